package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/integration/openai"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

const (
	botDealCount     = 10
	botFallbackReply = "I don't understand. Use /help to see available commands."
	botFetchError    = "Error fetching river data. Please try again later."
)

// QueryInterpreter turns a free-text message into a bot command
type QueryInterpreter interface {
	Interpret(ctx context.Context, text string, rivers []string) (*openai.Intent, error)
}

// TelegramBot answers river, hazard and deal questions over Telegram
type TelegramBot struct {
	bot         *tgbotapi.BotAPI
	rivers      *usecases.RiverUseCase
	deals       *usecases.DealUseCase
	interpreter QueryInterpreter
	log         *zap.Logger
}

// NewTelegramBot creates a bot handler. bot may be nil when only replies are
// needed; without an interpreter free text is looked up as a river name.
func NewTelegramBot(bot *tgbotapi.BotAPI, rivers *usecases.RiverUseCase, deals *usecases.DealUseCase, interpreter QueryInterpreter, log *zap.Logger) *TelegramBot {
	return &TelegramBot{
		bot:         bot,
		rivers:      rivers,
		deals:       deals,
		interpreter: interpreter,
		log:         log.Named("telegram"),
	}
}

// Start listens for messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) {
	t.log.Info("Authorized on Telegram account", zap.String("username", t.bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)
	t.log.Info("Bot is now listening for messages")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.log.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	log := t.log.With(zap.Int64("chat_id", message.Chat.ID))
	if message.From != nil {
		log = log.With(zap.String("username", message.From.UserName))
	}
	log.Debug("Received message", zap.String("text", message.Text))

	msg := tgbotapi.NewMessage(message.Chat.ID, t.reply(ctx, message))
	if _, err := t.bot.Send(msg); err != nil {
		log.Error("Error sending message", zap.Error(err))
	}
}

// reply builds the answer to one message
func (t *TelegramBot) reply(ctx context.Context, message *tgbotapi.Message) string {
	if !message.IsCommand() {
		return t.lookup(ctx, message.Text)
	}

	args := strings.TrimSpace(message.CommandArguments())
	switch message.Command() {
	case "start":
		return "Welcome to Water-Watcher! Use /rivers to see tracked rivers or /help for more information."
	case "help":
		return "Available commands:\n" +
			"/start - Start the bot\n" +
			"/rivers - Show the list of rivers\n" +
			"/river [name] - Show conditions for a river\n" +
			"/hazards [name] - Show active hazards on a river\n" +
			"/deals - Show the latest gear deals\n" +
			"/help - Show this help message\n\n" +
			"You can also just send a river name."
	case "rivers":
		return t.riverList(ctx)
	case "river":
		if args == "" {
			return "Please specify a river name. Example: /river Salmon"
		}
		return t.riverInfo(ctx, args)
	case "hazards":
		if args == "" {
			return "Please specify a river name. Example: /hazards Salmon"
		}
		return t.hazards(ctx, args)
	case "deals":
		return t.latestDeals(ctx)
	}
	return "Unknown command. Use /help to see available commands."
}

func (t *TelegramBot) riverList(ctx context.Context) string {
	rivers, err := t.rivers.ListAll(ctx)
	if err != nil {
		t.log.Error("Error fetching rivers", zap.Error(err))
		return botFetchError
	}
	if len(rivers) == 0 {
		return "No rivers are being tracked yet."
	}

	var b strings.Builder
	b.WriteString("Available rivers:\n\n")
	for _, r := range rivers {
		fmt.Fprintf(&b, "• %s (%s)\n", r.Name, r.State)
	}
	b.WriteString("\nUse /river [name] to get detailed information.")
	return b.String()
}

func (t *TelegramBot) riverInfo(ctx context.Context, name string) string {
	summary, err := t.rivers.FindByName(ctx, name)
	if err != nil {
		return t.notFoundOr(err, name)
	}
	return t.rivers.FormatRiverInfo(summary)
}

func (t *TelegramBot) hazards(ctx context.Context, name string) string {
	summary, err := t.rivers.FindByName(ctx, name)
	if err != nil {
		return t.notFoundOr(err, name)
	}
	hazards, err := t.rivers.Hazards(ctx, summary.ID)
	if err != nil {
		t.log.Error("Error fetching hazards", zap.String("river_id", summary.ID), zap.Error(err))
		return botFetchError
	}
	return t.rivers.FormatHazards(summary.Name, hazards)
}

func (t *TelegramBot) latestDeals(ctx context.Context) string {
	deals, _, err := t.deals.List(ctx, repository.DealQuery{Page: repository.NewPage(1, botDealCount)})
	if err != nil {
		t.log.Error("Error fetching deals", zap.Error(err))
		return "Error fetching gear deals. Please try again later."
	}
	return t.deals.FormatDeals(deals)
}

// lookup answers free text through the interpreter when one is set, and
// otherwise (or when it fails) treats the text as a river name
func (t *TelegramBot) lookup(ctx context.Context, text string) string {
	name := strings.TrimSpace(text)
	if name == "" {
		return botFallbackReply
	}
	if t.interpreter != nil {
		if reply, ok := t.interpret(ctx, name); ok {
			return reply
		}
	}
	summary, err := t.rivers.FindByName(ctx, name)
	if err != nil {
		if !errors.Is(err, entities.ErrNotFound) {
			t.log.Error("Error looking up river", zap.String("name", name), zap.Error(err))
		}
		return botFallbackReply
	}
	return t.rivers.FormatRiverInfo(summary)
}

func (t *TelegramBot) interpret(ctx context.Context, text string) (string, bool) {
	rivers, err := t.rivers.ListAll(ctx)
	if err != nil {
		t.log.Error("Error fetching rivers", zap.Error(err))
		return "", false
	}
	names := make([]string, len(rivers))
	for i, r := range rivers {
		names[i] = r.Name
	}

	intent, err := t.interpreter.Interpret(ctx, text, names)
	if err != nil {
		t.log.Warn("Failed to interpret message", zap.Error(err))
		return "", false
	}

	var answer string
	switch intent.Command {
	case openai.CommandRiver:
		if intent.RiverName == "" {
			return "", false
		}
		answer = t.riverInfo(ctx, intent.RiverName)
	case openai.CommandHazards:
		if intent.RiverName == "" {
			return "", false
		}
		answer = t.hazards(ctx, intent.RiverName)
	case openai.CommandDeals:
		answer = t.latestDeals(ctx)
	default:
		if intent.UserMessage == "" {
			return "", false
		}
		return intent.UserMessage, true
	}

	if intent.UserMessage != "" {
		answer = intent.UserMessage + "\n\n" + answer
	}
	return answer, true
}

func (t *TelegramBot) notFoundOr(err error, name string) string {
	if errors.Is(err, entities.ErrNotFound) {
		return fmt.Sprintf("No information found for river '%s'. Use /rivers to see the available rivers.", name)
	}
	t.log.Error("Error fetching river data", zap.String("name", name), zap.Error(err))
	return botFetchError
}

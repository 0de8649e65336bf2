package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/api"
	"github.com/abelzeko/water-watcher/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.toml if present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.Log
	log.Info("Starting Water-Watcher Telegram bot")

	token := a.Config.Telegram.BotToken
	if token == "" {
		return errors.New("telegram.bot_token (TELEGRAM_BOT_TOKEN) is not set")
	}

	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Error("Failed to create bot", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot := api.NewTelegramBot(botAPI, a.RiverUseCase(), a.DealUseCase(), a.BotInterpreter(), log)
	bot.Start(ctx)
	return nil
}

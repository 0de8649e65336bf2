// Package openai interprets free-text Telegram messages with a chat model
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/config"
)

// Commands an Intent can carry
const (
	CommandRiver   = "GetRiverData"
	CommandHazards = "GetRiverHazards"
	CommandDeals   = "GetGearDeals"
	CommandGeneral = "GeneralQuery"
)

// Intent is the structured answer of the model
type Intent struct {
	Command     string `json:"command" jsonschema:"enum=GetRiverData,enum=GetRiverHazards,enum=GetGearDeals,enum=GeneralQuery" jsonschema_description:"What the user wants: river conditions, river hazards, gear deals, or anything else"`
	RiverName   string `json:"river_name" jsonschema_description:"The tracked river the user means, spelled exactly as in the list, or empty"`
	UserMessage string `json:"user_message" jsonschema_description:"A one-line reply to show the user in their own language"`
}

// GenerateSchema reflects a strict JSON schema for T
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

const systemPrompt = `You are the assistant of Water-Watcher, a whitewater conditions bot for rafters and kayakers.
Classify each message into one command:
- GetRiverData: the user asks about flow, level or conditions of a river.
- GetRiverHazards: the user asks about hazards, closures, strainers or safety on a river.
- GetGearDeals: the user asks about rafts, kayaks or other paddling gear for sale.
- GeneralQuery: anything else.
For river commands set river_name to the matching river from this list, or leave it empty when none matches: %s
Reply in the user's language. Output strictly JSON.`

// Interpreter maps free text to bot commands
type Interpreter struct {
	client openai.Client
	model  string
	schema any
	log    *zap.Logger
}

// NewInterpreter creates an interpreter, or returns nil without an API key
func NewInterpreter(cfg config.OpenAIConfig, log *zap.Logger) *Interpreter {
	if cfg.APIKey == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &Interpreter{
		client: openai.NewClient(opts...),
		model:  model,
		schema: GenerateSchema[Intent](),
		log:    log.Named("openai"),
	}
}

// Interpret asks the model what the message wants, given the tracked river names
func (i *Interpreter) Interpret(ctx context.Context, text string, rivers []string) (*Intent, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "bot_intent",
		Description: openai.String("Command, river name and reply for a Telegram message"),
		Schema:      i.schema,
		Strict:      openai.Bool(true),
	}

	chat, err := i.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, strings.Join(rivers, ", "))),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Model: openai.ChatModel(i.model),
	})
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	content := chat.Choices[0].Message.Content
	var intent Intent
	if err := json.Unmarshal([]byte(content), &intent); err != nil {
		i.log.Warn("Failed to decode OpenAI response", zap.String("raw", content), zap.Error(err))
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	return &intent, nil
}

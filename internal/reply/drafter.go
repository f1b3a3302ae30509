package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/liquidmail/liquidmail/internal/logging"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4.1-mini"

	// DefaultTimeout bounds a single drafting call.
	DefaultTimeout = 30 * time.Second

	systemPrompt = "You are LiquidMail."
)

// Config holds the settings for a Drafter.
type Config struct {
	// APIKey authenticates against the OpenAI API. Required.
	APIKey string

	// Model selects the chat model. Defaults to DefaultModel.
	Model string

	// BaseURL overrides the OpenAI API base URL. Leave empty for the
	// production endpoint; tests point it at a local server.
	BaseURL string

	// Timeout bounds each drafting call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger receives drafting logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Drafter generates reply drafts for incoming emails.
type Drafter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDrafter creates a Drafter from the given config.
func NewDrafter(cfg Config) (*Drafter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is not configured")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}

	return &Drafter{
		client:  openai.NewClientWithConfig(cc),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Draft asks the model for a reply to the given email text and returns
// the drafted reply with surrounding whitespace trimmed.
func (d *Drafter) Draft(ctx context.Context, emailText string) (string, error) {
	if strings.TrimSpace(emailText) == "" {
		return "", fmt.Errorf("email text is required")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	prompt := "Write a natural, helpful reply in British English.\n\nIncoming email:\n" + emailText

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("drafting response contained no choices")
	}

	d.logger.Info("reply drafted",
		slog.String("model", d.model),
		logging.Duration(time.Since(start)),
	)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

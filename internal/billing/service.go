package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/liquidmail/liquidmail/internal/logging"
)

// DefaultFrontendURL is used when no frontend URL is configured.
const DefaultFrontendURL = "http://localhost:3000"

// Config holds the settings for a Service.
type Config struct {
	// SecretKey authenticates against the Stripe API. Required.
	SecretKey string

	// WebhookSecret verifies webhook signatures. Required.
	WebhookSecret string

	// FrontendURL is the base URL users return to after checkout.
	// Defaults to DefaultFrontendURL.
	FrontendURL string

	// BaseURL overrides the Stripe API base URL. Leave empty for the
	// production endpoint; tests point it at a local server.
	BaseURL string

	// Logger receives billing logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Service creates checkout sessions and processes webhook events.
type Service struct {
	sessions      session.Client
	webhookSecret string
	frontendURL   string
	logger        *slog.Logger
}

// NewService creates a Service from the given config.
func NewService(cfg Config) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is not configured")
	}

	frontendURL := cfg.FrontendURL
	if frontendURL == "" {
		frontendURL = DefaultFrontendURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Rejections must reach the caller unmodified, so the backend
	// never retries.
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &Service{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		frontendURL:   frontendURL,
		logger:        logger,
	}, nil
}

// CreateCheckoutSession creates a subscription checkout session for the
// given price and returns the hosted checkout URL. customerEmail is
// optional; Stripe creates the customer either way.
func (s *Service) CreateCheckoutSession(ctx context.Context, priceID, customerEmail string) (string, error) {
	if priceID == "" {
		return "", fmt.Errorf("price id is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.frontendURL + "/dashboard?success=true"),
		CancelURL:  stripe.String(s.frontendURL + "/dashboard?canceled=true"),
	}
	params.Context = ctx
	if customerEmail != "" {
		params.CustomerEmail = stripe.String(customerEmail)
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("checkout session created",
		slog.String("session_id", sess.ID),
		slog.String("price_id", priceID),
	)

	return sess.URL, nil
}

// HandleWebhook verifies the signature of a webhook delivery and acts on
// subscription lifecycle events. It returns the event type; unknown
// event types are acknowledged without action.
func (s *Service) HandleWebhook(payload []byte, sigHeader string) (string, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return "", fmt.Errorf("webhook signature verification failed: %w", err)
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated:
		s.logger.Info("subscription created", slog.String("subscription_id", subscriptionID(event)))
	case stripe.EventTypeCustomerSubscriptionUpdated:
		s.logger.Info("subscription updated", slog.String("subscription_id", subscriptionID(event)))
	case stripe.EventTypeCustomerSubscriptionDeleted:
		s.logger.Info("subscription cancelled", slog.String("subscription_id", subscriptionID(event)))
	default:
		s.logger.Debug("ignoring webhook event", slog.String("event_type", string(event.Type)))
	}

	return string(event.Type), nil
}

func subscriptionID(event stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	id, _ := event.Data.Object["id"].(string)
	return id
}

// leveledLogger routes the Stripe client's own logging through slog.
type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), logging.Service("stripe"))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...), logging.Service("stripe"))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), logging.Service("stripe"))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), logging.Service("stripe"))
}

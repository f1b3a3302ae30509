package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/liquidmail/liquidmail/internal/logging"
)

// DefaultTimeout bounds a single send call against the Gmail API.
const DefaultTimeout = 10 * time.Second

// Config holds the settings for a Dispatcher.
type Config struct {
	// Endpoint overrides the Gmail API base URL. Leave empty for the
	// production endpoint; tests point it at a local server.
	Endpoint string

	// Timeout bounds each send call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger receives send logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher sends email through the Gmail API.
type Dispatcher struct {
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher from the given config.
func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		endpoint: cfg.Endpoint,
		timeout:  timeout,
		logger:   logger,
	}
}

// EmailMessage represents an email to be sent
type EmailMessage struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	IsHTML  bool
}

// Send submits the message through the Gmail API using the given access
// token and returns the provider message ID. Provider errors are wrapped
// with %w so callers can recover the original *googleapi.Error.
func (d *Dispatcher) Send(ctx context.Context, accessToken string, msg *EmailMessage) (string, error) {
	if accessToken == "" {
		return "", fmt.Errorf("access token is required")
	}
	if msg == nil || len(msg.To) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if msg.Body == "" {
		return "", fmt.Errorf("body is required")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	svc, err := d.service(ctx, accessToken)
	if err != nil {
		return "", fmt.Errorf("failed to create gmail service: %w", err)
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildMIME(msg)))

	start := time.Now()
	sent, err := svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	d.logger.Info("email sent",
		slog.String("message_id", sent.Id),
		slog.Int("recipients", len(msg.To)+len(msg.Cc)+len(msg.Bcc)),
		logging.Duration(time.Since(start)),
	)

	return sent.Id, nil
}

func (d *Dispatcher) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		})),
	}
	if d.endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}

// buildMIME assembles the message in RFC 2822 format.
func buildMIME(msg *EmailMessage) string {
	var b strings.Builder

	b.WriteString("To: ")
	b.WriteString(strings.Join(msg.To, ", "))
	b.WriteString("\r\n")

	if len(msg.Cc) > 0 {
		b.WriteString("Cc: ")
		b.WriteString(strings.Join(msg.Cc, ", "))
		b.WriteString("\r\n")
	}

	if len(msg.Bcc) > 0 {
		b.WriteString("Bcc: ")
		b.WriteString(strings.Join(msg.Bcc, ", "))
		b.WriteString("\r\n")
	}

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(msg.Subject))
	b.WriteString("\r\n")

	if msg.IsHTML {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")

	b.WriteString(msg.Body)

	return b.String()
}

// encodeRFC2047 encodes a header value according to RFC 2047. Needed for
// non-ASCII characters (like German umlauts) in subjects.
func encodeRFC2047(s string) string {
	needsEncoding := false
	for _, r := range s {
		if r > 127 {
			needsEncoding = true
			break
		}
	}
	if !needsEncoding {
		return s
	}
	return mime.BEncoding.Encode("UTF-8", s)
}

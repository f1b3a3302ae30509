package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/liquidmail/liquidmail/internal/gmail"
	"github.com/liquidmail/liquidmail/internal/instrumentation"
	"github.com/liquidmail/liquidmail/internal/logging"
	"github.com/liquidmail/liquidmail/internal/token"
)

// DefaultFrontendURL is where browser flows return to when no frontend
// origin is configured.
const DefaultFrontendURL = "http://localhost:3000"

// Fixed content for the connectivity test message.
const (
	testEmailSubject = "LiquidMail Test"
	testEmailBody    = "This is a test email from LiquidMail!"
)

// TokenProvider vends a valid Gmail access token for a subject,
// refreshing behind the scenes when needed.
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, subject string) (string, error)
}

// OAuthConnector runs the Google side of the connect flow.
type OAuthConnector interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, subject string) (*token.Record, error)
	Revoke(ctx context.Context, rec *token.Record)
}

// StateStore issues and claims one-shot OAuth states.
type StateStore interface {
	Issue(subject string) string
	Claim(state string) (string, error)
}

// MailSender delivers mail using the given access token.
type MailSender interface {
	Send(ctx context.Context, accessToken string, msg *gmail.EmailMessage) (string, error)
}

// ReplyDrafter produces an AI-drafted reply to an incoming email.
type ReplyDrafter interface {
	Draft(ctx context.Context, emailText string) (string, error)
}

// BillingService creates checkout sessions and verifies webhook
// deliveries.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, priceID, customerEmail string) (string, error)
	HandleWebhook(payload []byte, sigHeader string) (string, error)
}

// Config holds the API's dependencies. OAuth, Drafter, and Billing may
// be nil when the corresponding credentials are not configured; their
// routes then report the missing configuration instead of failing at
// startup.
type Config struct {
	// FrontendURL is the browser origin redirected to after the connect
	// flow and allowed by CORS.
	FrontendURL string

	// TestRecipient receives the fixed connectivity test message.
	TestRecipient string

	OAuth   OAuthConnector
	States  StateStore
	Tokens  TokenProvider
	Store   token.Store
	Mail    MailSender
	Drafter ReplyDrafter
	Billing BillingService

	// Health serves the Kubernetes probes when set.
	Health *HealthChecker

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// API is the JSON backend the frontend talks to.
type API struct {
	frontendURL   string
	testRecipient string

	oauth   OAuthConnector
	states  StateStore
	tokens  TokenProvider
	store   token.Store
	mail    MailSender
	drafter ReplyDrafter
	billing BillingService

	health  *HealthChecker
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
}

// NewAPI creates the API over its dependencies.
func NewAPI(cfg Config) (*API, error) {
	if cfg.States == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Mail == nil {
		return nil, fmt.Errorf("mail sender is required")
	}

	if cfg.FrontendURL == "" {
		cfg.FrontendURL = DefaultFrontendURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		// Record calls stay safe when instrumentation is disabled.
		cfg.Metrics = &instrumentation.Metrics{}
	}

	return &API{
		frontendURL:   strings.TrimSuffix(cfg.FrontendURL, "/"),
		testRecipient: cfg.TestRecipient,
		oauth:         cfg.OAuth,
		states:        cfg.States,
		tokens:        cfg.Tokens,
		store:         cfg.Store,
		mail:          cfg.Mail,
		drafter:       cfg.Drafter,
		billing:       cfg.Billing,
		health:        cfg.Health,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		audit:         cfg.Audit,
	}, nil
}

// Routes builds the complete handler chain: the route table wrapped with
// per-endpoint instrumentation, security headers, and CORS.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)
	if a.health != nil {
		a.health.RegisterHealthEndpoints(mux)
	}

	mux.Handle("GET /oauth/gmail/url", a.instrument(route{
		endpoint: "oauth-url",
	}, a.handleOAuthURL))

	mux.Handle("GET /oauth/gmail/callback", a.instrument(route{
		endpoint:  "oauth-callback",
		service:   instrumentation.ServiceGoogle,
		operation: instrumentation.OperationExchange,
		audit:     true,
	}, a.handleOAuthCallback))

	mux.Handle("GET /connection-status", a.instrument(route{
		endpoint: "connection-status",
	}, a.handleConnectionStatus))

	mux.Handle("DELETE /oauth/gmail", a.instrument(route{
		endpoint:  "oauth-disconnect",
		service:   instrumentation.ServiceGoogle,
		operation: instrumentation.OperationRevoke,
		audit:     true,
	}, a.handleDisconnect))

	mux.Handle("POST /send-email", a.instrument(route{
		endpoint:  "send-email",
		service:   instrumentation.ServiceGmail,
		operation: instrumentation.OperationSend,
		audit:     true,
	}, a.handleSendEmail))

	mux.Handle("POST /test-email", a.instrument(route{
		endpoint:  "test-email",
		service:   instrumentation.ServiceGmail,
		operation: instrumentation.OperationSend,
		audit:     true,
	}, a.handleTestEmail))

	mux.Handle("POST /generate-reply", a.instrument(route{
		endpoint:  "generate-reply",
		service:   instrumentation.ServiceOpenAI,
		operation: instrumentation.OperationDraft,
	}, a.handleGenerateReply))

	mux.Handle("POST /stripe/create-checkout-session", a.instrument(route{
		endpoint:  "create-checkout-session",
		service:   instrumentation.ServiceStripe,
		operation: instrumentation.OperationCheckout,
	}, a.handleCreateCheckoutSession))

	mux.Handle("POST /stripe/webhook", a.instrument(route{
		endpoint:  "stripe-webhook",
		service:   instrumentation.ServiceStripe,
		operation: instrumentation.OperationWebhook,
	}, a.handleStripeWebhook))

	return newCORSMiddleware(a.frontendURL).Wrap(securityHeaders(mux))
}

// errorResponse is the error body shape: {"detail": "..."}.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// subjectParam returns the subject a request is scoped to. Single-user
// deployments omit it and get the default subject.
func subjectParam(r *http.Request) string {
	if s := r.URL.Query().Get("subject"); s != "" {
		return s
	}
	return token.DefaultSubject
}

// providerErrorDetail extracts the provider's own response body from a
// wrapped provider error so the caller sees the rejection verbatim.
func providerErrorDetail(err error) string {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && len(rerr.Body) > 0 {
		return string(rerr.Body)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Body != "" {
		return gerr.Body
	}
	return err.Error()
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleOAuthURL(w http.ResponseWriter, r *http.Request) {
	if a.oauth == nil {
		writeError(w, http.StatusInternalServerError, "Google OAuth env vars missing")
		return
	}

	subject := subjectParam(r)
	state := a.states.Issue(subject)

	a.logger.Info("issued oauth state",
		logging.Operation("oauth_url"),
		logging.SubjectHash(subject))

	writeJSON(w, http.StatusOK, map[string]string{"oauth_url": a.oauth.AuthCodeURL(state)})
}

func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.oauth == nil {
		writeError(w, http.StatusInternalServerError, "Google OAuth env vars missing")
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	subject, err := a.states.Claim(state)
	if err != nil {
		a.metrics.RecordOAuthConnect(ctx, instrumentation.OAuthResultFailure)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exchangeCtx, span := instrumentation.StartProviderSpan(ctx,
		instrumentation.ServiceGoogle, instrumentation.OperationExchange)
	rec, err := a.oauth.Exchange(exchangeCtx, code, subject)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		span.End()
		a.metrics.RecordOAuthConnect(ctx, instrumentation.OAuthResultFailure)
		a.logger.Warn("code exchange rejected",
			logging.Operation("oauth_callback"),
			logging.SubjectHash(subject),
			logging.Err(err))
		writeError(w, http.StatusBadRequest, providerErrorDetail(err))
		return
	}
	instrumentation.SetSpanSuccess(span)
	span.End()

	if err := a.store.Save(ctx, rec); err != nil {
		a.metrics.RecordOAuthConnect(ctx, instrumentation.OAuthResultFailure)
		a.logger.Error("failed to persist credential",
			logging.Operation("oauth_callback"),
			logging.SubjectHash(subject),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.metrics.RecordOAuthConnect(ctx, instrumentation.OAuthResultSuccess)
	a.logger.Info("gmail connected",
		logging.Operation("oauth_callback"),
		logging.SubjectHash(subject))

	http.Redirect(w, r, a.frontendURL+"/dashboard", http.StatusFound)
}

func (a *API) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	subject := subjectParam(r)

	_, err := a.tokens.GetValidAccessToken(r.Context(), subject)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
	case errors.Is(err, token.ErrNotConnected):
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_connected"})
	default:
		a.logger.Error("connection status lookup failed",
			logging.Operation("connection_status"),
			logging.SubjectHash(subject),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (a *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectParam(r)

	// Revocation is best effort: losing the Google-side revoke must not
	// keep the credential on our side.
	if rec, err := a.store.Load(ctx, subject); err == nil && a.oauth != nil {
		a.oauth.Revoke(ctx, rec)
	}

	if err := a.store.Delete(ctx, subject); err != nil {
		a.logger.Error("failed to delete credential",
			logging.Operation("disconnect"),
			logging.SubjectHash(subject),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.logger.Info("gmail disconnected",
		logging.Operation("disconnect"),
		logging.SubjectHash(subject))

	writeJSON(w, http.StatusOK, map[string]string{"detail": "Gmail disconnected"})
}

type sendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (a *API) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Subject == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "to, subject and body are required")
		return
	}

	id, err := a.deliver(r.Context(), subjectParam(r), &gmail.EmailMessage{
		To:      []string{req.To},
		Subject: req.Subject,
		Body:    req.Body,
	}, w)
	if err != nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "Email sent!", "id": id})
}

func (a *API) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	if a.testRecipient == "" {
		writeError(w, http.StatusInternalServerError, "Set GMAIL_TEST_RECIPIENT in .env")
		return
	}

	_, err := a.deliver(r.Context(), subjectParam(r), &gmail.EmailMessage{
		To:      []string{a.testRecipient},
		Subject: testEmailSubject,
		Body:    testEmailBody,
	}, w)
	if err != nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "Email sent!"})
}

// deliver runs the shared send path: valid token first, then dispatch.
// On failure it writes the error response and returns the error; the
// provider is never contacted for a subject with no credential.
func (a *API) deliver(ctx context.Context, subject string, msg *gmail.EmailMessage, w http.ResponseWriter) (string, error) {
	accessToken, err := a.tokens.GetValidAccessToken(ctx, subject)
	if err != nil {
		if errors.Is(err, token.ErrNotConnected) {
			writeError(w, http.StatusBadRequest, "Gmail not connected")
			return "", err
		}
		a.logger.Error("token lookup failed",
			logging.Operation("send"),
			logging.SubjectHash(subject),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return "", err
	}

	start := time.Now()
	sendCtx, span := instrumentation.StartProviderSpan(ctx,
		instrumentation.ServiceGmail, instrumentation.OperationSend)
	id, err := a.mail.Send(sendCtx, accessToken, msg)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		span.End()
		a.metrics.RecordMailSendForSubject(ctx, instrumentation.StatusError, subject, time.Since(start))
		a.logger.Warn("send rejected",
			logging.Operation("send"),
			logging.SubjectHash(subject),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, providerErrorDetail(err))
		return "", err
	}
	instrumentation.SetSpanSuccess(span)
	span.End()

	a.metrics.RecordMailSendForSubject(ctx, instrumentation.StatusSuccess, subject, time.Since(start))
	return id, nil
}

type generateReplyRequest struct {
	// SenderName is accepted in the request but drafting keys off the
	// email text alone.
	SenderName string `json:"sender_name"`
	EmailText  string `json:"email_text"`
}

func (a *API) handleGenerateReply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.drafter == nil {
		writeError(w, http.StatusInternalServerError, "Set OPENAI_API_KEY in .env")
		return
	}

	var req generateReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.EmailText) == "" {
		writeError(w, http.StatusBadRequest, "email_text is required")
		return
	}

	start := time.Now()
	draftCtx, span := instrumentation.StartProviderSpan(ctx,
		instrumentation.ServiceOpenAI, instrumentation.OperationDraft)
	reply, err := a.drafter.Draft(draftCtx, req.EmailText)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		span.End()
		a.metrics.RecordReplyDraft(ctx, instrumentation.StatusError, time.Since(start))
		a.logger.Warn("draft failed",
			logging.Operation("generate_reply"),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	instrumentation.SetSpanSuccess(span)
	span.End()

	a.metrics.RecordReplyDraft(ctx, instrumentation.StatusSuccess, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type checkoutRequest struct {
	PriceID   string `json:"price_id"`
	UserEmail string `json:"user_email"`
}

func (a *API) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.billing == nil {
		writeError(w, http.StatusInternalServerError, "Set STRIPE_SECRET_KEY in .env")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	checkoutCtx, span := instrumentation.StartProviderSpan(ctx,
		instrumentation.ServiceStripe, instrumentation.OperationCheckout)
	url, err := a.billing.CreateCheckoutSession(checkoutCtx, req.PriceID, req.UserEmail)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		span.End()
		a.metrics.RecordCheckout(ctx, instrumentation.StatusError)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	instrumentation.SetSpanSuccess(span)
	span.End()

	a.metrics.RecordCheckout(ctx, instrumentation.StatusSuccess)
	writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

func (a *API) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.billing == nil {
		writeError(w, http.StatusInternalServerError, "Set STRIPE_SECRET_KEY in .env")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	eventType, err := a.billing.HandleWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		a.logger.Warn("webhook rejected",
			logging.Operation("stripe_webhook"),
			logging.Err(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.metrics.RecordWebhookEvent(ctx, eventType)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

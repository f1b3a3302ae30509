package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/liquidmail/liquidmail/internal/gmail"
	"github.com/liquidmail/liquidmail/internal/token"
)

// fakeTokens vends a canned access token and records the subjects asked
// for.
type fakeTokens struct {
	token    string
	err      error
	subjects []string
}

func (f *fakeTokens) GetValidAccessToken(_ context.Context, subject string) (string, error) {
	f.subjects = append(f.subjects, subject)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeConnector struct {
	rec         *token.Record
	exchangeErr error
	exchanged   []string
	revoked     int
}

func (f *fakeConnector) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (f *fakeConnector) Exchange(_ context.Context, code, subject string) (*token.Record, error) {
	f.exchanged = append(f.exchanged, code+"/"+subject)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.rec, nil
}

func (f *fakeConnector) Revoke(_ context.Context, _ *token.Record) {
	f.revoked++
}

type fakeStates struct {
	subject  string
	claimErr error
	issued   []string
	claimed  []string
}

func (f *fakeStates) Issue(subject string) string {
	f.issued = append(f.issued, subject)
	return "state-123"
}

func (f *fakeStates) Claim(state string) (string, error) {
	f.claimed = append(f.claimed, state)
	if f.claimErr != nil {
		return "", f.claimErr
	}
	return f.subject, nil
}

type fakeSender struct {
	id     string
	err    error
	sent   []*gmail.EmailMessage
	tokens []string
}

func (f *fakeSender) Send(_ context.Context, accessToken string, msg *gmail.EmailMessage) (string, error) {
	f.tokens = append(f.tokens, accessToken)
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

type fakeDrafter struct {
	reply string
	err   error
	texts []string
}

func (f *fakeDrafter) Draft(_ context.Context, emailText string) (string, error) {
	f.texts = append(f.texts, emailText)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeBilling struct {
	url       string
	createErr error
	eventType string
	hookErr   error
	prices    []string
	sigs      []string
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, priceID, _ string) (string, error) {
	f.prices = append(f.prices, priceID)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.url, nil
}

func (f *fakeBilling) HandleWebhook(_ []byte, sigHeader string) (string, error) {
	f.sigs = append(f.sigs, sigHeader)
	if f.hookErr != nil {
		return "", f.hookErr
	}
	return f.eventType, nil
}

// failingStore wraps a real store with injectable failures.
type failingStore struct {
	token.Store
	saveErr error
	delErr  error
}

func (s *failingStore) Save(ctx context.Context, rec *token.Record) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, rec)
}

func (s *failingStore) Delete(ctx context.Context, subject string) error {
	if s.delErr != nil {
		return s.delErr
	}
	return s.Store.Delete(ctx, subject)
}

type apiFixture struct {
	api     *API
	oauth   *fakeConnector
	states  *fakeStates
	tokens  *fakeTokens
	store   *token.MemoryStore
	mail    *fakeSender
	drafter *fakeDrafter
	billing *fakeBilling
}

func newTestAPI(t *testing.T, mutate func(*Config)) *apiFixture {
	t.Helper()

	f := &apiFixture{
		oauth: &fakeConnector{
			rec: token.NewRecord("jane@example.com", "A1", "R1", time.Now().Add(time.Hour), token.DefaultExpiryMargin),
		},
		states:  &fakeStates{subject: "jane@example.com"},
		tokens:  &fakeTokens{token: "access-1"},
		store:   token.NewMemoryStore(),
		mail:    &fakeSender{id: "msg-1"},
		drafter: &fakeDrafter{reply: "Thanks, I will get back to you tomorrow."},
		billing: &fakeBilling{url: "https://checkout.stripe.com/c/pay_123", eventType: "customer.subscription.created"},
	}

	cfg := Config{
		TestRecipient: "probe@example.com",
		OAuth:         f.oauth,
		States:        f.states,
		Tokens:        f.tokens,
		Store:         f.store,
		Mail:          f.mail,
		Drafter:       f.drafter,
		Billing:       f.billing,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	api, err := NewAPI(cfg)
	require.NoError(t, err)
	f.api = api
	return f
}

func (f *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	f.api.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
	return m
}

func TestNewAPI_Validation(t *testing.T) {
	base := func() Config {
		return Config{
			OAuth:  &fakeConnector{},
			States: &fakeStates{},
			Tokens: &fakeTokens{},
			Store:  token.NewMemoryStore(),
			Mail:   &fakeSender{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing states", func(c *Config) { c.States = nil }, "state store is required"},
		{"missing tokens", func(c *Config) { c.Tokens = nil }, "token provider is required"},
		{"missing store", func(c *Config) { c.Store = nil }, "credential store is required"},
		{"missing mail", func(c *Config) { c.Mail = nil }, "mail sender is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			_, err := NewAPI(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("optional deps may be nil", func(t *testing.T) {
		cfg := base()
		cfg.OAuth = nil
		cfg.Drafter = nil
		cfg.Billing = nil
		api, err := NewAPI(cfg)
		require.NoError(t, err)
		assert.NotNil(t, api)
	})
}

func TestHandleHealth(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestOAuthURL(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodGet, "/oauth/gmail/url", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["oauth_url"], "state=state-123")
	assert.Equal(t, []string{token.DefaultSubject}, f.states.issued)
}

func TestOAuthURL_SubjectParam(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodGet, "/oauth/gmail/url?subject=jane@example.com", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"jane@example.com"}, f.states.issued)
}

func TestOAuthURL_Unconfigured(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.OAuth = nil })

	rr := f.do(http.MethodGet, "/oauth/gmail/url", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Google OAuth env vars missing", decodeBody(t, rr)["detail"])
}

func TestOAuthCallback_Success(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodGet, "/oauth/gmail/callback?code=c1&state=state-123", "")
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "http://localhost:3000/dashboard", rr.Header().Get("Location"))
	assert.Equal(t, []string{"state-123"}, f.states.claimed)
	assert.Equal(t, []string{"c1/jane@example.com"}, f.oauth.exchanged)

	persisted, err := f.store.Load(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "A1", persisted.AccessToken)
}

func TestOAuthCallback_MissingParams(t *testing.T) {
	f := newTestAPI(t, nil)

	for _, target := range []string{
		"/oauth/gmail/callback",
		"/oauth/gmail/callback?code=c1",
		"/oauth/gmail/callback?state=state-123",
	} {
		rr := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
	assert.Empty(t, f.oauth.exchanged, "incomplete callbacks must not reach the provider")
}

func TestOAuthCallback_UnknownState(t *testing.T) {
	f := newTestAPI(t, nil)
	f.states.claimErr = errors.New("unknown or expired state")

	rr := f.do(http.MethodGet, "/oauth/gmail/callback?code=c1&state=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "unknown or expired state", decodeBody(t, rr)["detail"])
	assert.Empty(t, f.oauth.exchanged)
}

func TestOAuthCallback_ExchangeRejected(t *testing.T) {
	f := newTestAPI(t, nil)
	f.oauth.exchangeErr = &oauth2.RetrieveError{
		Response: &http.Response{Status: "400 Bad Request", StatusCode: http.StatusBadRequest},
		Body:     []byte(`{"error": "invalid_grant", "error_description": "Bad Request"}`),
	}

	rr := f.do(http.MethodGet, "/oauth/gmail/callback?code=c1&state=state-123", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, `{"error": "invalid_grant", "error_description": "Bad Request"}`,
		decodeBody(t, rr)["detail"], "the provider rejection must pass through verbatim")
}

func TestOAuthCallback_PersistFailure(t *testing.T) {
	f := newTestAPI(t, func(c *Config) {
		c.Store = &failingStore{Store: token.NewMemoryStore(), saveErr: errors.New("disk full")}
	})

	rr := f.do(http.MethodGet, "/oauth/gmail/callback?code=c1&state=state-123", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["detail"], "disk full")
}

func TestOAuthCallback_CustomFrontend(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.FrontendURL = "https://mail.example.com/" })

	rr := f.do(http.MethodGet, "/oauth/gmail/callback?code=c1&state=state-123", "")
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://mail.example.com/dashboard", rr.Header().Get("Location"))
}

func TestConnectionStatus_Connected(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodGet, "/connection-status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "connected", decodeBody(t, rr)["status"])
	assert.Equal(t, []string{token.DefaultSubject}, f.tokens.subjects)
}

func TestConnectionStatus_NotConnected(t *testing.T) {
	f := newTestAPI(t, nil)
	f.tokens.err = token.ErrNotConnected

	rr := f.do(http.MethodGet, "/connection-status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "not_connected", decodeBody(t, rr)["status"])
}

func TestConnectionStatus_RefreshFailureMeansNotConnected(t *testing.T) {
	f := newTestAPI(t, nil)
	f.tokens.err = fmt.Errorf("%w: %w", token.ErrNotConnected, errors.New(`{"error": "invalid_grant"}`))

	rr := f.do(http.MethodGet, "/connection-status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "not_connected", decodeBody(t, rr)["status"])
}

func TestConnectionStatus_StorageFailure(t *testing.T) {
	f := newTestAPI(t, nil)
	f.tokens.err = errors.New("disk gone")

	rr := f.do(http.MethodGet, "/connection-status", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestDisconnect(t *testing.T) {
	f := newTestAPI(t, nil)
	ctx := context.Background()
	rec := token.NewRecord(token.DefaultSubject, "A1", "R1", time.Now().Add(time.Hour), token.DefaultExpiryMargin)
	require.NoError(t, f.store.Save(ctx, rec))

	rr := f.do(http.MethodDelete, "/oauth/gmail", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Gmail disconnected", decodeBody(t, rr)["detail"])
	assert.Equal(t, 1, f.oauth.revoked)

	_, err := f.store.Load(ctx, token.DefaultSubject)
	assert.ErrorIs(t, err, token.ErrNotConnected)
}

func TestDisconnect_Idempotent(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodDelete, "/oauth/gmail", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Gmail disconnected", decodeBody(t, rr)["detail"])
	assert.Equal(t, 0, f.oauth.revoked, "nothing to revoke without a stored credential")
}

func TestDisconnect_DeleteFailure(t *testing.T) {
	f := newTestAPI(t, func(c *Config) {
		c.Store = &failingStore{Store: token.NewMemoryStore(), delErr: errors.New("disk gone")}
	})

	rr := f.do(http.MethodDelete, "/oauth/gmail", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSendEmail(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/send-email",
		`{"to": "to@example.com", "subject": "Hello", "body": "Hi there"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "Email sent!", body["detail"])
	assert.Equal(t, "msg-1", body["id"])

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, []string{"to@example.com"}, f.mail.sent[0].To)
	assert.Equal(t, "Hello", f.mail.sent[0].Subject)
	assert.Equal(t, []string{"access-1"}, f.mail.tokens)
	assert.Equal(t, []string{token.DefaultSubject}, f.tokens.subjects)
}

func TestSendEmail_SubjectParam(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/send-email?subject=jane@example.com",
		`{"to": "to@example.com", "subject": "Hello", "body": "Hi"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"jane@example.com"}, f.tokens.subjects)
}

func TestSendEmail_InvalidJSON(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/send-email", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid JSON body", decodeBody(t, rr)["detail"])
}

func TestSendEmail_MissingFields(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/send-email", `{"to": "to@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.mail.sent)
}

func TestSendEmail_NotConnected(t *testing.T) {
	f := newTestAPI(t, nil)
	f.tokens.err = token.ErrNotConnected

	rr := f.do(http.MethodPost, "/send-email",
		`{"to": "to@example.com", "subject": "Hello", "body": "Hi"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Gmail not connected", decodeBody(t, rr)["detail"])
	assert.Empty(t, f.mail.sent, "a disconnected subject must never reach the provider")
}

func TestSendEmail_ProviderRejection(t *testing.T) {
	f := newTestAPI(t, nil)
	f.mail.err = fmt.Errorf("failed to send email: %w", &googleapi.Error{
		Code: http.StatusForbidden,
		Body: `{"error": {"code": 403, "message": "Insufficient Permission"}}`,
	})

	rr := f.do(http.MethodPost, "/send-email",
		`{"to": "to@example.com", "subject": "Hello", "body": "Hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, `{"error": {"code": 403, "message": "Insufficient Permission"}}`,
		decodeBody(t, rr)["detail"], "the provider rejection must pass through verbatim")
}

func TestSendEmail_TokenStorageFailure(t *testing.T) {
	f := newTestAPI(t, nil)
	f.tokens.err = errors.New("disk gone")

	rr := f.do(http.MethodPost, "/send-email",
		`{"to": "to@example.com", "subject": "Hello", "body": "Hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, f.mail.sent)
}

func TestTestEmail(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/test-email", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "Email sent!", body["detail"])
	_, hasID := body["id"]
	assert.False(t, hasID, "the test message response carries no message id")

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, []string{"probe@example.com"}, f.mail.sent[0].To)
	assert.Equal(t, "LiquidMail Test", f.mail.sent[0].Subject)
	assert.Equal(t, "This is a test email from LiquidMail!", f.mail.sent[0].Body)
}

func TestTestEmail_NoRecipient(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.TestRecipient = "" })

	rr := f.do(http.MethodPost, "/test-email", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Set GMAIL_TEST_RECIPIENT in .env", decodeBody(t, rr)["detail"])
	assert.Empty(t, f.mail.sent)
}

func TestTestEmail_NotConnected(t *testing.T) {
	f := newTestAPI(t, nil)
	f.tokens.err = token.ErrNotConnected

	rr := f.do(http.MethodPost, "/test-email", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Gmail not connected", decodeBody(t, rr)["detail"])
}

func TestGenerateReply(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/generate-reply",
		`{"sender_name": "Bob", "email_text": "Can we meet on Friday?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Thanks, I will get back to you tomorrow.", decodeBody(t, rr)["reply"])
	assert.Equal(t, []string{"Can we meet on Friday?"}, f.drafter.texts)
}

func TestGenerateReply_EmptyText(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/generate-reply", `{"email_text": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.drafter.texts)
}

func TestGenerateReply_Unconfigured(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.Drafter = nil })

	rr := f.do(http.MethodPost, "/generate-reply", `{"email_text": "Hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Set OPENAI_API_KEY in .env", decodeBody(t, rr)["detail"])
}

func TestGenerateReply_DrafterFailure(t *testing.T) {
	f := newTestAPI(t, nil)
	f.drafter.err = errors.New("model overloaded")

	rr := f.do(http.MethodPost, "/generate-reply", `{"email_text": "Hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["detail"], "model overloaded")
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodPost, "/stripe/create-checkout-session",
		`{"price_id": "price_123", "user_email": "jane@example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://checkout.stripe.com/c/pay_123", decodeBody(t, rr)["checkout_url"])
	assert.Equal(t, []string{"price_123"}, f.billing.prices)
}

func TestCreateCheckoutSession_Failure(t *testing.T) {
	f := newTestAPI(t, nil)
	f.billing.createErr = errors.New("No such price: 'price_bad'")

	rr := f.do(http.MethodPost, "/stripe/create-checkout-session", `{"price_id": "price_bad"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No such price: 'price_bad'", decodeBody(t, rr)["detail"])
}

func TestCreateCheckoutSession_Unconfigured(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.Billing = nil })

	rr := f.do(http.MethodPost, "/stripe/create-checkout-session", `{"price_id": "price_123"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Set STRIPE_SECRET_KEY in .env", decodeBody(t, rr)["detail"])
}

func TestStripeWebhook(t *testing.T) {
	f := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook",
		strings.NewReader(`{"type": "customer.subscription.created"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	f.api.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "success", decodeBody(t, rr)["status"])
	assert.Equal(t, []string{"t=1,v1=abc"}, f.billing.sigs)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	f := newTestAPI(t, nil)
	f.billing.hookErr = errors.New("signature verification failed")

	rr := f.do(http.MethodPost, "/stripe/webhook", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["detail"], "signature verification failed")
}

func TestStripeWebhook_Unconfigured(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.Billing = nil })

	rr := f.do(http.MethodPost, "/stripe/webhook", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCORS_PreflightAllowed(t *testing.T) {
	f := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/send-email", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	f.api.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestCORS_PreflightDisallowedOrigin(t *testing.T) {
	f := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/send-email", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	f.api.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ActualRequest(t *testing.T) {
	f := newTestAPI(t, func(c *Config) { c.FrontendURL = "https://mail.example.com" })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://mail.example.com")
	rr := httptest.NewRecorder()
	f.api.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://mail.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Values("Vary"), "Origin")
}

func TestSecurityHeaders(t *testing.T) {
	f := newTestAPI(t, nil)

	rr := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
}

func TestHealthEndpointsRegistered(t *testing.T) {
	health := NewHealthChecker()
	f := newTestAPI(t, func(c *Config) { c.Health = health })

	rr := f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	health.SetShuttingDown()
	rr = f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

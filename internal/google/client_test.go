package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/liquidmail/liquidmail/internal/token"
)

func testConfig(tokenURL string) Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://api.example.com/oauth/gmail/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing client id", Config{ClientSecret: "s", RedirectURL: "r"}},
		{"missing client secret", Config{ClientID: "c", RedirectURL: "r"}},
		{"missing redirect url", Config{ClientID: "c", ClientSecret: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	c, err := NewClient(testConfig("https://oauth2.example.com/token"))
	require.NoError(t, err)

	raw := c.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, GmailSendScope, q.Get("scope"))
	assert.Equal(t, "https://api.example.com/oauth/gmail/callback", q.Get("redirect_uri"))
}

func TestExchange_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-abc", r.PostForm.Get("code"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "A1",
			"refresh_token": "R1",
			"expires_in":    3600,
			"token_type":    "Bearer",
			"scope":         GmailSendScope,
		})
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	rec, err := c.Exchange(context.Background(), "code-abc", "jane@example.com")
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", rec.Subject)
	assert.Equal(t, "A1", rec.AccessToken)
	assert.Equal(t, "R1", rec.RefreshToken)
	assert.Equal(t, "Bearer", rec.TokenType)
	assert.Equal(t, GmailSendScope, rec.Scope)
	assert.WithinDuration(t, time.Now().Add(3600*time.Second-token.DefaultExpiryMargin), rec.Expiry, 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExchange_ProviderRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Bad authorization code"}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "bad-code", "jane@example.com")
	require.Error(t, err)

	var re *oauth2.RetrieveError
	require.ErrorAs(t, err, &re, "provider response must stay in the chain")
	assert.Contains(t, string(re.Body), "invalid_grant")
	assert.Equal(t, int32(1), calls.Load(), "a rejected exchange is never retried")
}

func TestRevoke(t *testing.T) {
	var calls atomic.Int32
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		gotToken = r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig("https://oauth2.example.com/token")
	cfg.RevokeURL = srv.URL
	c, err := NewClient(cfg)
	require.NoError(t, err)

	rec := &token.Record{Subject: "jane@example.com", AccessToken: "A1"}
	c.Revoke(context.Background(), rec)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "A1", gotToken)
}

func TestRevoke_NoCredential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := testConfig("https://oauth2.example.com/token")
	cfg.RevokeURL = srv.URL
	c, err := NewClient(cfg)
	require.NoError(t, err)

	c.Revoke(context.Background(), nil)
	c.Revoke(context.Background(), &token.Record{Subject: "s"})

	assert.Equal(t, int32(0), calls.Load(), "nothing to revoke means no provider call")
}

func TestRevoke_ProviderErrorSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testConfig("https://oauth2.example.com/token")
	cfg.RevokeURL = srv.URL
	c, err := NewClient(cfg)
	require.NoError(t, err)

	// Should not panic and not propagate: local deletion proceeds anyway.
	c.Revoke(context.Background(), &token.Record{Subject: "s", AccessToken: "A1"})
}

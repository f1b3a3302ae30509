package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/liquidmail/liquidmail/internal/billing"
	"github.com/liquidmail/liquidmail/internal/gmail"
	"github.com/liquidmail/liquidmail/internal/google"
	"github.com/liquidmail/liquidmail/internal/instrumentation"
	"github.com/liquidmail/liquidmail/internal/logging"
	"github.com/liquidmail/liquidmail/internal/reply"
	"github.com/liquidmail/liquidmail/internal/server"
	"github.com/liquidmail/liquidmail/internal/token"
)

// DefaultRedirectURL is where Google sends the user back after consent
// when GOOGLE_REDIRECT_URI is not set.
const DefaultRedirectURL = "http://localhost:8000/oauth/gmail/callback"

// serveConfig carries the resolved serve settings.
type serveConfig struct {
	debug          bool
	addr           string
	frontendURL    string
	storeType      string
	tokensFile     string
	databaseURL    string
	safetyMargin   time.Duration
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var cfg serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API backend",
		Long: `Start the HTTP API backend for the LiquidMail frontend.

Credential storage:
  --token-store file (default): credentials live in a JSON file (--tokens-file)
  --token-store postgres: multi-tenant storage in PostgreSQL; requires
    --database-url or DATABASE_URL, schema migrations run at startup
  --token-store memory: in-process only, lost on restart

OAuth Configuration:
  GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars enable the Gmail
  connect flow and automatic token refresh. GOOGLE_REDIRECT_URI defaults
  to http://localhost:8000/oauth/gmail/callback.

Optional providers:
  OPENAI_API_KEY enables reply drafting (OPENAI_MODEL overrides the model).
  STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET enable billing.
  GMAIL_TEST_RECIPIENT enables the /test-email connectivity check.
  Routes whose provider is not configured report the missing variable
  instead of failing startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Environment fallbacks apply only when the flag was not
			// explicitly set.
			if !cmd.Flags().Changed("addr") {
				if v := os.Getenv("API_ADDR"); v != "" {
					cfg.addr = v
				}
			}
			if !cmd.Flags().Changed("frontend-url") {
				if v := os.Getenv("FRONTEND_URL"); v != "" {
					cfg.frontendURL = v
				}
			}
			if !cmd.Flags().Changed("token-store") {
				if v := os.Getenv("TOKEN_STORE"); v != "" {
					cfg.storeType = v
				}
			}
			if !cmd.Flags().Changed("tokens-file") {
				if v := os.Getenv("TOKENS_FILE"); v != "" {
					cfg.tokensFile = v
				}
			}
			if cfg.databaseURL == "" {
				cfg.databaseURL = os.Getenv("DATABASE_URL")
			}
			if !cmd.Flags().Changed("token-safety-margin") {
				if v := os.Getenv("TOKEN_SAFETY_MARGIN"); v != "" {
					d, err := time.ParseDuration(v)
					if err != nil {
						return fmt.Errorf("invalid TOKEN_SAFETY_MARGIN %q: %w", v, err)
					}
					cfg.safetyMargin = d
				}
			}
			if !cmd.Flags().Changed("metrics-enabled") {
				if v := os.Getenv("METRICS_ENABLED"); v != "" {
					cfg.metricsEnabled = v == "true"
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if v := os.Getenv("METRICS_ADDR"); v != "" {
					cfg.metricsAddr = v
				}
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.addr, "addr", server.DefaultAPIAddr, "API server address. Can also use API_ADDR env var.")
	cmd.Flags().StringVar(&cfg.frontendURL, "frontend-url", server.DefaultFrontendURL, "Frontend origin for redirects and CORS. Can also use FRONTEND_URL env var.")
	cmd.Flags().StringVar(&cfg.storeType, "token-store", "file", "Credential storage backend: file, postgres or memory. Can also use TOKEN_STORE env var.")
	cmd.Flags().StringVar(&cfg.tokensFile, "tokens-file", "tokens.json", "Credential file path for the file store. Can also use TOKENS_FILE env var.")
	cmd.Flags().StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL DSN for the postgres store. Can also use DATABASE_URL env var.")
	cmd.Flags().DurationVar(&cfg.safetyMargin, "token-safety-margin", token.DefaultExpiryMargin, "Margin subtracted from provider expiry times. Can also use TOKEN_SAFETY_MARGIN env var.")
	cmd.Flags().BoolVar(&cfg.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg serveConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg.debug)
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	metrics := &instrumentation.Metrics{}
	var audit *instrumentation.AuditLogger
	if provider.Enabled() {
		metrics = provider.Metrics()
		audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}

	store, err := buildStore(shutdownCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("credential store close failed", logging.Err(err))
		}
	}()

	// The connect flow and token refresh need Google OAuth credentials.
	// Without them the API still serves, with those routes reporting the
	// missing configuration.
	var (
		connector server.OAuthConnector
		refresher token.Refresher = unconfiguredRefresher{}
	)
	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID != "" && googleClientSecret != "" {
		redirectURL := os.Getenv("GOOGLE_REDIRECT_URI")
		if redirectURL == "" {
			redirectURL = DefaultRedirectURL
		}
		client, err := google.NewClient(google.Config{
			ClientID:     googleClientID,
			ClientSecret: googleClientSecret,
			RedirectURL:  redirectURL,
			ExpiryMargin: cfg.safetyMargin,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create google oauth client: %w", err)
		}
		connector = client
		refresher = &instrumentedRefresher{inner: client.Refresher(), metrics: metrics}
		logger.Info("gmail connect flow enabled", slog.String("redirect_url", redirectURL))
	} else {
		logger.Warn("GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET not set, gmail connect flow disabled")
	}

	states := google.NewStateStore(google.DefaultStateTTL)
	defer states.Close()

	manager := token.NewManager(store, refresher, logger)
	dispatcher := gmail.NewDispatcher(gmail.Config{Logger: logger})

	var drafter server.ReplyDrafter
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		d, err := reply.NewDrafter(reply.Config{
			APIKey: key,
			Model:  os.Getenv("OPENAI_MODEL"),
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create reply drafter: %w", err)
		}
		drafter = d
	} else {
		logger.Warn("OPENAI_API_KEY not set, reply drafting disabled")
	}

	var billingService server.BillingService
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	stripeWebhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if stripeKey != "" && stripeWebhookSecret != "" {
		b, err := billing.NewService(billing.Config{
			SecretKey:     stripeKey,
			WebhookSecret: stripeWebhookSecret,
			FrontendURL:   cfg.frontendURL,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create billing service: %w", err)
		}
		billingService = b
	} else {
		logger.Warn("STRIPE_SECRET_KEY / STRIPE_WEBHOOK_SECRET not set, billing disabled")
	}

	health := server.NewHealthChecker()

	api, err := server.NewAPI(server.Config{
		FrontendURL:   cfg.frontendURL,
		TestRecipient: os.Getenv("GMAIL_TEST_RECIPIENT"),
		OAuth:         connector,
		States:        states,
		Tokens:        manager,
		Store:         store,
		Mail:          dispatcher,
		Drafter:       drafter,
		Billing:       billingService,
		Health:        health,
		Logger:        logger,
		Metrics:       metrics,
		Audit:         audit,
	})
	if err != nil {
		return fmt.Errorf("failed to create api: %w", err)
	}

	// Start metrics server when the prometheus exporter is active
	if cfg.metricsEnabled && provider.Enabled() && provider.PrometheusEnabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.metricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm the metrics server started
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	apiServer := server.NewHTTPServer(cfg.addr, api.Routes(), logger)

	apiReady := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := apiServer.StartWithReadySignal(apiReady); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-apiReady:
		logger.Info("api server started",
			slog.String("addr", apiServer.Addr()),
			slog.String("frontend_url", cfg.frontendURL))
	case err := <-serverDone:
		return fmt.Errorf("api server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("api server startup timed out")
	}

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping api server")
		health.SetShuttingDown()

		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down api server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("api server stopped with error: %w", err)
		}
	}

	logger.Info("api server gracefully stopped")
	return nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildStore creates the credential store named by the config. The postgres
// store runs its schema migrations before it is handed out.
func buildStore(ctx context.Context, cfg serveConfig, logger *slog.Logger) (token.Store, error) {
	switch cfg.storeType {
	case "file", "":
		fs, err := token.NewFileStore(cfg.tokensFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential file: %w", err)
		}
		return fs, nil
	case "postgres":
		if cfg.databaseURL == "" {
			return nil, fmt.Errorf("postgres token store requires --database-url or DATABASE_URL")
		}
		ps, err := token.NewPostgresStore(ctx, cfg.databaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		if err := token.RunMigrations(ctx, ps.DB(), logger); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return ps, nil
	case "memory":
		return token.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported token store type: %s (supported: file, postgres, memory)", cfg.storeType)
	}
}

// unconfiguredRefresher fails every refresh attempt. It stands in when no
// Google OAuth client is configured but the store still holds expired
// credentials from an earlier run.
type unconfiguredRefresher struct{}

func (unconfiguredRefresher) Refresh(context.Context, *token.Record) (*token.Record, error) {
	return nil, errors.New("google oauth client is not configured")
}

// instrumentedRefresher wraps a token refresher with a provider span and
// refresh-outcome metrics.
type instrumentedRefresher struct {
	inner   token.Refresher
	metrics *instrumentation.Metrics
}

func (r *instrumentedRefresher) Refresh(ctx context.Context, rec *token.Record) (*token.Record, error) {
	ctx, span := instrumentation.StartProviderSpan(ctx,
		instrumentation.ServiceGoogle, instrumentation.OperationRefresh)
	defer span.End()

	refreshed, err := r.inner.Refresh(ctx, rec)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		r.metrics.RecordOAuthTokenRefresh(ctx, refreshResult(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	r.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	return refreshed, nil
}

// refreshResult classifies a refresh failure: a revoked or expired grant
// reads differently on a dashboard than a transient provider failure.
func refreshResult(err error) string {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode == "invalid_grant" || strings.Contains(string(rerr.Body), "invalid_grant") {
			return instrumentation.OAuthResultExpired
		}
	}
	return instrumentation.OAuthResultFailure
}

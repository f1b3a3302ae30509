// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the liquidmail service.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, OAuth operations, and provider calls
//   - Distributed tracing for request flows and provider calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// OAuth Metrics:
//   - oauth_connect_total: Counter of Gmail connect attempts by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Mail Metrics:
//   - gmail_send_total: Counter of Gmail send operations by status
//   - gmail_send_duration_seconds: Histogram of Gmail send durations
//
// Reply Drafting Metrics:
//   - reply_draft_total: Counter of reply drafting operations by status
//   - reply_draft_duration_seconds: Histogram of reply drafting durations
//
// Billing Metrics:
//   - billing_checkout_total: Counter of checkout session creations by status
//   - billing_webhook_events_total: Counter of webhook events by type
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling (endpoint.<name>)
//   - Provider calls (gmail.send, openai.draft, stripe.checkout)
//   - OAuth token operations (google.exchange, google.refresh)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: liquidmail)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "liquidmail",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/send-email", 200, time.Since(start))
//
//	// Record a Gmail send
//	recorder.RecordMailSend(ctx, "success", time.Since(start))
//
//	// Record a token refresh
//	recorder.RecordOAuthTokenRefresh(ctx, "success")
package instrumentation

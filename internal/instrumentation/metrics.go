package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrResult    = "result"
	attrEventType = "event_type"
	attrSubject   = "subject"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// OAuth metrics
	oauthConnectTotal      metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Mail metrics
	mailSendTotal    metric.Int64Counter
	mailSendDuration metric.Float64Histogram

	// Reply drafting metrics
	replyDraftTotal    metric.Int64Counter
	replyDraftDuration metric.Float64Histogram

	// Billing metrics
	billingCheckoutTotal      metric.Int64Counter
	billingWebhookEventsTotal metric.Int64Counter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthConnectTotal, err = meter.Int64Counter(
		"oauth_connect_total",
		metric.WithDescription("Total number of Gmail connect attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_connect_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	// Mail Metrics
	m.mailSendTotal, err = meter.Int64Counter(
		"gmail_send_total",
		metric.WithDescription("Total number of Gmail send operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_send_total counter: %w", err)
	}

	m.mailSendDuration, err = meter.Float64Histogram(
		"gmail_send_duration_seconds",
		metric.WithDescription("Gmail send duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_send_duration_seconds histogram: %w", err)
	}

	// Reply Drafting Metrics
	m.replyDraftTotal, err = meter.Int64Counter(
		"reply_draft_total",
		metric.WithDescription("Total number of reply drafting operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply_draft_total counter: %w", err)
	}

	m.replyDraftDuration, err = meter.Float64Histogram(
		"reply_draft_duration_seconds",
		metric.WithDescription("Reply drafting duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply_draft_duration_seconds histogram: %w", err)
	}

	// Billing Metrics
	m.billingCheckoutTotal, err = meter.Int64Counter(
		"billing_checkout_total",
		metric.WithDescription("Total number of checkout session creations"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing_checkout_total counter: %w", err)
	}

	m.billingWebhookEventsTotal, err = meter.Int64Counter(
		"billing_webhook_events_total",
		metric.WithDescription("Total number of billing webhook events by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing_webhook_events_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthConnect records a Gmail connect attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthConnect(ctx context.Context, result string) {
	if m.oauthConnectTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthConnectTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "expired"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMailSend records a Gmail send operation with status and duration.
// Status should be one of: "success", "error"
func (m *Metrics) RecordMailSend(ctx context.Context, status string, duration time.Duration) {
	if m.mailSendTotal == nil || m.mailSendDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	m.mailSendTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.mailSendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordMailSendForSubject records a Gmail send operation with subject info.
// This is the detailed version that includes the account subject when
// detailedLabels is enabled.
func (m *Metrics) RecordMailSendForSubject(ctx context.Context, status, subject string, duration time.Duration) {
	if m.mailSendTotal == nil || m.mailSendDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && subject != "" {
		attrs = append(attrs, attribute.String(attrSubject, subject))
	}

	m.mailSendTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.mailSendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordReplyDraft records a reply drafting operation with status and duration.
// Status should be one of: "success", "error"
func (m *Metrics) RecordReplyDraft(ctx context.Context, status string, duration time.Duration) {
	if m.replyDraftTotal == nil || m.replyDraftDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	m.replyDraftTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.replyDraftDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCheckout records a checkout session creation with status.
// Status should be one of: "success", "error"
func (m *Metrics) RecordCheckout(ctx context.Context, status string) {
	if m.billingCheckoutTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	m.billingCheckoutTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent records a billing webhook event by type.
// Event types are the Stripe event names (bounded cardinality).
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType string) {
	if m.billingWebhookEventsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrEventType, eventType),
	}

	m.billingWebhookEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

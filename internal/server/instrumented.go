package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liquidmail/liquidmail/internal/instrumentation"
)

// route describes how an endpoint is instrumented: its metric name, the
// upstream provider it talks to (if any), and whether invocations are
// audit logged.
type route struct {
	endpoint  string
	service   string
	operation string
	audit     bool
}

// instrument wraps a handler with tracing, metrics, and audit logging.
// It records HTTP request metrics and logs the invocation for audit
// purposes when the route asks for it.
func (a *API) instrument(meta route, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Start timing and create the invocation record
		start := time.Now()
		ctx, span := instrumentation.StartEndpointSpan(r.Context(), meta.endpoint)
		defer span.End()

		invocation := instrumentation.NewInvocation(meta.endpoint).
			WithSpanContext(ctx).
			WithUser(subjectParam(r))
		if meta.service != "" {
			invocation.WithService(meta.service, meta.operation)
		}

		// Call the actual handler
		rec := newStatusRecorder(w)
		handler(rec, r.WithContext(ctx))
		duration := time.Since(start)

		// Determine status from the response code
		status := instrumentation.StatusSuccess
		if rec.status >= http.StatusBadRequest {
			status = instrumentation.StatusError
			invocation.Complete(false, nil)
		} else {
			invocation.CompleteSuccess()
		}
		span.SetAttributes(attribute.String(instrumentation.SpanAttrStatus, status))

		a.metrics.RecordHTTPRequest(ctx, r.Method, r.URL.Path, rec.status, duration)

		if meta.audit && a.audit != nil {
			a.audit.LogInvocation(invocation)
		}
	})
}

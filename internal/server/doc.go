// Package server provides the HTTP API and the dedicated metrics server
// for the liquidmail application.
//
// # Key Components
//
// API is the JSON backend the frontend talks to. It owns the route table
// (Gmail connect flow, connection status, mail sending, reply drafting,
// Stripe billing) and depends on narrow interfaces so every provider can
// be faked in tests. Error bodies use the {"detail": "..."} shape.
//
// HTTPServer and MetricsServer wrap http.Server with bounded timeouts,
// a ready-signal start for orderly process bring-up, and graceful
// shutdown. Metrics are served on a separate listener so operational
// data never shares a port with user traffic.
//
// HealthChecker serves the Kubernetes liveness and readiness probes.
//
// # Request Handling
//
// Every route is wrapped with per-endpoint instrumentation: an endpoint
// span, HTTP request metrics, and, for credential and mail operations,
// an audit record. CORS is restricted to the configured frontend origin
// plus localhost; responses carry basic security headers.
package server

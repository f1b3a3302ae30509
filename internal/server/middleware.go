package server

import (
	"net/http"
	"strconv"
)

// statusRecorder captures the status code a handler writes so the
// instrumentation layer can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// corsMiddleware allows the configured frontend origin (and local
// development) to call the API with credentials.
type corsMiddleware struct {
	origins map[string]bool
}

func newCORSMiddleware(frontendURL string) *corsMiddleware {
	origins := map[string]bool{
		"http://localhost:3000": true,
	}
	if frontendURL != "" {
		origins[frontendURL] = true
	}
	return &corsMiddleware{origins: origins}
}

func (c *corsMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if c.origins[origin] {
			// Credentialed CORS forbids the wildcard origin.
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			if c.origins[origin] {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				headers := r.Header.Get("Access-Control-Request-Headers")
				if headers == "" {
					headers = "Content-Type, Authorization"
				}
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(600))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets baseline response headers on every route.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

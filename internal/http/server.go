// Package http serves the bill JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"billminder/internal/log"
	"billminder/internal/metrics"
	"billminder/internal/notify"
	"billminder/internal/services"
)

// Responder hands a user action on a notification to whoever routes it.
type Responder interface {
	Respond(ctx context.Context, resp notify.Response) error
}

// Server is the HTTP front end for bills and notification responses.
type Server struct {
	http.Server

	bills       *services.BillService
	responder   Responder
	metrics     *metrics.Metrics
	logger      *log.StructuredLogger
	rateLimiter *rateLimiter
	now         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimit caps mutating requests per client IP per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimiter = newRateLimiter(perMinute, time.Minute) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates the API server with its routes and middleware.
func NewServer(addr string, billSvc *services.BillService, responder Responder, logger *log.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		bills:     billSvc,
		responder: responder,
		logger:    log.NewStructuredLogger(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = newRateLimiter(60, time.Minute)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /bills", s.handleListBills)
	mux.HandleFunc("POST /bills", s.handleCreateBill)
	mux.HandleFunc("GET /bills/{id}", s.handleGetBill)
	mux.HandleFunc("PUT /bills/{id}", s.handleUpdateBill)
	mux.HandleFunc("DELETE /bills/{id}", s.handleDeleteBill)
	mux.HandleFunc("POST /bills/{id}/paid", s.handleMarkPaid)
	mux.HandleFunc("DELETE /bills/{id}/paid", s.handleMarkUnpaid)
	mux.HandleFunc("PUT /bills/{id}/reminder", s.handleScheduleReminder)
	mux.HandleFunc("DELETE /bills/{id}/reminder", s.handleRemoveReminder)

	mux.HandleFunc("GET /notifications/{nid}/bill", s.handleGetNotificationBill)
	mux.HandleFunc("POST /notifications/{nid}/response", s.handleNotificationResponse)

	s.Handler = log.Middleware(logger.WithComponent(log.ComponentHTTP))(
		withRequestID(
			log.RequestIDMiddleware(func(r *http.Request) string { return r.Header.Get("X-Request-ID") })(
				s.withRequestLogging(mux))))

	return s
}

// Shutdown stops background work and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.stop()
	return s.Server.Shutdown(ctx)
}

// withRequestID makes sure every request carries an X-Request-ID, echoed
// back on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)
		r.Header.Set("X-Request-ID", id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)

		if isSuspiciousRequest(r) {
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			s.metrics.RateLimited()
			w.Header().Set("Retry-After", "60")
			writeJSON(rw, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, please try again later"})
		} else {
			// The mux records the matched pattern on r.
			next.ServeHTTP(rw, r)
		}

		duration := time.Since(start)
		s.metrics.HTTPRequest(r.Pattern, rw.statusCode, duration)
		s.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// fail writes the error with its mapped status. Server errors are logged
// and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	slog.DebugContext(r.Context(), "Request rejected", "operation", op, "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

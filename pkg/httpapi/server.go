// Package httpapi exposes the dispatcher over HTTP. It authenticates callers,
// lists the tools they may see and forwards calls; all policy lives in the
// dispatcher.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolregistry"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes  = 1 << 20
	maxBatchCalls = 64

	requestIDHeader = "X-Request-ID"
)

// Authenticator resolves the caller of a request
type Authenticator interface {
	Authenticate(r *http.Request) (permission.AuthenticatedUser, error)
}

// Metrics records request metrics and serves the scrape endpoint
type Metrics interface {
	ObserveHTTP(route string, code int, duration time.Duration)
	Handler() http.Handler
}

// Options configures the server
type Options struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	ShutdownTimeout    time.Duration
	RateLimitPerMinute int
}

// Server is the HTTP transport
type Server struct {
	options     Options
	dispatcher  *dispatch.Dispatcher
	auth        Authenticator
	metrics     Metrics
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startTime   time.Time

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server. metrics may be nil.
func NewServer(options Options, d *dispatch.Dispatcher, auth Authenticator, metrics Metrics, logger zerolog.Logger) (*Server, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.ReadTimeout == 0 {
		options.ReadTimeout = 30 * time.Second
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		options:     options,
		dispatcher:  d,
		auth:        auth,
		metrics:     metrics,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		logger:      logger.With().Str("component", "httpapi").Logger(),
		startTime:   time.Now(),
	}, nil
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", s.route("health", s.handleHealth))
	mux.Handle("GET /v1/tools", s.route("list_tools", s.authenticated(s.handleListTools)))
	mux.Handle("POST /v1/tools/{name}/call", s.route("call_tool", s.authenticated(s.handleCall)))
	mux.Handle("POST /v1/batch", s.route("batch", s.authenticated(s.handleBatch)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// Start serves until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.options.ReadTimeout,
		ReadTimeout:       s.options.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.Stop()
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	s.rateLimiter.Stop()
	if srv == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

type callerKey struct{}

func callerFrom(ctx context.Context) permission.AuthenticatedUser {
	caller, _ := ctx.Value(callerKey{}).(permission.AuthenticatedUser)
	return caller
}

// route assigns a request id, logs the request and records its metrics
func (s *Server) route(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := tracing.NewRequestContext(r.Context())
		if id := r.Header.Get(requestIDHeader); id != "" {
			ctx = tracing.WithRequestID(ctx, id)
		}
		w.Header().Set(requestIDHeader, tracing.GetRequestID(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(name, rec.status, duration)
		}

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// authenticated resolves the caller and applies the rate limit
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.Authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}

		if !s.rateLimiter.Allow(caller.ID) {
			w.Header().Set("Retry-After", strconv.Itoa(s.rateLimiter.RetryAfter(caller.ID)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
		"tools":  s.dispatcher.Registry().Len(),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	filters := []toolregistry.Filter{toolregistry.VisibleTo(callerFrom(r.Context()))}
	if category := r.URL.Query().Get("category"); category != "" {
		filters = append(filters, toolregistry.ByCategory(category))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tools": s.dispatcher.Registry().Descriptors(filters...),
	})
}

type callRequest struct {
	Args map[string]any `json:"args"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.dispatcher.Dispatch(r.Context(), r.PathValue("name"), req.Args, callerFrom(r.Context()))
	writeJSON(w, statusFor(result), result)
}

type batchRequest struct {
	Calls []dispatch.Call `json:"calls"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Calls) > maxBatchCalls {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d calls", maxBatchCalls))
		return
	}

	caller := callerFrom(r.Context())
	for i := range req.Calls {
		req.Calls[i].Caller = caller
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": s.dispatcher.DispatchBatch(r.Context(), req.Calls),
	})
}

// statusFor maps a call outcome to an HTTP status
func statusFor(result dispatch.CallResult) int {
	switch result.Kind() {
	case "":
		return http.StatusOK
	case dispatch.UnknownTool:
		return http.StatusNotFound
	case dispatch.WritePermissionDenied, dispatch.AdminPermissionDenied:
		return http.StatusForbidden
	case dispatch.InvalidArguments:
		return http.StatusBadRequest
	case dispatch.Canceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

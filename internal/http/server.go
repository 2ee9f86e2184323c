package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

// RequestIDHeader carries the request id of every response
const RequestIDHeader = "X-Request-ID"

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

// Server serves the operational endpoints
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer binds port and routes the operational endpoints. Port "0" picks a free port
func NewServer(handlers *Handlers, port string, log *zap.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+port) //nolint:noctx // Server initialization doesn't require context
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HealthHandler)
	mux.HandleFunc("GET /stats", handlers.StatsHandler)

	log.Info("HTTP server configured", zap.String("port", port))

	return &Server{
		httpServer: &http.Server{
			Handler:      requestMiddleware(recoverMiddleware(mux), log),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		listener: lis,
		logger:   log,
	}, nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Handler returns the routed handler with its middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections until Shutdown
func (s *Server) Serve() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.Addr().String()))

	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// requestMiddleware tags each request with an id, reusing the caller's, and hands the handlers a
// logger carrying it. Server errors are logged at error level, everything else at debug
func requestMiddleware(next http.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		reqLog := log.With(logger.RequestFields(requestID, logger.TransportHTTP, r.Method+" "+r.URL.Path)...)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), reqLog)))

		fields := []zap.Field{
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			reqLog.Error("HTTP request failed", fields...)
			return
		}
		reqLog.Debug("HTTP request completed", fields...)
	})
}

// recoverMiddleware turns a handler panic into a 500
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.FromContext(r.Context(), zap.NewNop()).Error("HTTP handler panicked", zap.Any("panic", v), zap.Stack("stack"))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code and body size
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

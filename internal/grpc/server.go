package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

// RequestIDHeader carries the request id in incoming and outgoing metadata
const RequestIDHeader = "x-request-id"

// HealthChecker reports whether the entity store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server wraps the gRPC server
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checker    HealthChecker
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer creates a new gRPC server
func NewServer(entityService *EntityServer, checker HealthChecker, port string, log *zap.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+port) //nolint:noctx // Server initialization doesn't require context
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(loggingInterceptor(log)),
	)

	RegisterEntityServiceServer(grpcServer, entityService)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Register reflection service for development (allows tools like grpcurl)
	reflection.Register(grpcServer)

	log.Info("gRPC server configured", zap.String("port", port))

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		checker:    checker,
		listener:   lis,
		logger:     log,
	}, nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve starts the gRPC server
func (s *Server) Serve() error {
	s.logger.Info("starting gRPC server", zap.String("address", s.listener.Addr().String()))

	if err := s.grpcServer.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// CheckHealth pings the store and publishes the result as the serving status of the server
// and of the entity service
func (s *Server) CheckHealth(ctx context.Context) bool {
	serving := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.Health(ctx); err != nil {
		s.logger.Warn("entity store unhealthy", zap.Error(err))
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(EntityServiceName, serving)
	return serving == healthpb.HealthCheckResponse_SERVING
}

// StartHealthJob refreshes the serving status every interval until ctx is done
func (s *Server) StartHealthJob(ctx context.Context, interval time.Duration) {
	s.CheckHealth(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckHealth(ctx)
			}
		}
	}()
}

// GracefulStop gracefully stops the gRPC server
func (s *Server) GracefulStop() {
	s.logger.Info("gracefully stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Stop immediately stops the gRPC server
func (s *Server) Stop() {
	s.logger.Info("stopping gRPC server")
	s.grpcServer.Stop()
}

// loggingInterceptor logs all gRPC requests under a request id and hands the handler a logger
// carrying it. The caller's id is reused when it sent one
func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := incomingRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))

		reqLog := log.With(logger.RequestFields(requestID, logger.TransportGRPC, info.FullMethod)...)
		start := time.Now()
		reqLog.Debug("gRPC request")

		resp, err := handler(logger.WithContext(ctx, reqLog), req)

		switch status.Code(err) {
		case codes.OK:
			reqLog.Debug("gRPC request completed", zap.Duration("duration", time.Since(start)))
		case codes.NotFound, codes.InvalidArgument:
			reqLog.Debug("gRPC request rejected", zap.Error(err))
		default:
			reqLog.Error("gRPC request failed", zap.Error(err))
		}

		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDHeader); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return uuid.NewString()
}

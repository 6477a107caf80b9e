package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/observability"
	"github.com/LeoVS09/simple-yield-farm/internal/query"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway in front of it.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
}

// ServerDeps holds everything the vault service needs.
type ServerDeps struct {
	Engine        Engine
	QueryService  *query.QueryService
	EventLog      SequenceSource
	DB            *sql.DB
	VaultID       uuid.UUID
	Units         fpmath.DecimalConfig
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// NewGRPCServer creates a gRPC server with the vault, health and
// reflection services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps ServerDeps) *GRPCServer {
	logger := deps.Logger.With().Str("component", "api").Logger()

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		unaryInterceptor(deps.Metrics, logger),
	))

	grpcServer.RegisterService(&VaultService_ServiceDesc, &vaultService{
		engine:  deps.Engine,
		queries: deps.QueryService,
		log:     deps.EventLog,
		db:      deps.DB,
		vaultID: deps.VaultID,
		units:   deps.Units,
		logger:  logger,
	})

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		logger:        logger,
	}
}

// StartGRPC listens on the configured address and serves until ctx is
// cancelled.
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves on lis until ctx is cancelled, then drains in-flight
// calls.
func (s *GRPCServer) ServeGRPC(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("gRPC server shutting down")
			s.grpcServer.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway serves the HTTP/JSON gateway, proxying every call to
// the gRPC server. Blocks until ctx is cancelled.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	conn, err := grpc.NewClient(s.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial grpc: %w", err)
	}
	defer conn.Close()

	handler, err := NewGatewayHandler(NewVaultServiceClient(conn), s.healthChecker)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Str("grpc", s.grpcAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// unaryInterceptor logs every call and records its code and latency.
func unaryInterceptor(metrics *observability.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		if metrics != nil {
			metrics.RequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
			metrics.RequestDuration.WithLabelValues(info.FullMethod).Observe(elapsed.Seconds())
		}

		ev := logger.Debug()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("took", elapsed).
			Msg("rpc")
		return resp, err
	}
}

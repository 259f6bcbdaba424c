// Package server implements the gRPC server for the counseld daemon.
package server

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
	"github.com/aschepis/backscratcher/counsel/counsel"
	"github.com/aschepis/backscratcher/counsel/outreach"
	"github.com/aschepis/backscratcher/counsel/storage"
)

// Version is reported by Status.
var Version = "0.1.0"

// Counselor runs turns and answers relationship queries.
type Counselor interface {
	Turn(ctx context.Context, req counsel.Request) (*counsel.Response, error)
	EraseUser(ctx context.Context, userID string) error
	Relationship(ctx context.Context, userID string) (*counsel.RelationshipView, error)
}

// Server is the main gRPC server for counseld.
type Server struct {
	counselv1.UnimplementedCounselServer

	grpcServer *grpc.Server
	counselor  Counselor
	inbox      *outreach.Inbox
	limiter    *userLimiter
	validate   *validator.Validate
	info       Info
	logger     zerolog.Logger

	// Server state
	startedAt  time.Time
	socketPath string
}

// Info is static daemon metadata reported by Status.
type Info struct {
	Provider        string
	Model           string
	Storage         string
	OutreachEnabled bool
}

// RateLimit bounds turns per user. A zero PerMinute disables limiting.
type RateLimit struct {
	PerMinute float64
	Burst     int
	IdleTTL   time.Duration
}

// Config holds server configuration options.
type Config struct {
	SocketPath string
	RateLimit  RateLimit
	Info       Info
	Logger     zerolog.Logger
}

// New creates a new gRPC server. inbox may be nil when outreach is disabled.
func New(cfg Config, counselor Counselor, inbox *outreach.Inbox) *Server {
	s := &Server{
		counselor:  counselor,
		inbox:      inbox,
		limiter:    newUserLimiter(cfg.RateLimit),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		info:       cfg.Info,
		logger:     cfg.Logger.With().Str("component", "grpc-server").Logger(),
		socketPath: cfg.SocketPath,
	}

	// Create gRPC server with interceptors
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.loggingInterceptor),
	)

	counselv1.RegisterCounselServer(s.grpcServer, s)

	// Enable reflection for debugging tools like grpcurl
	reflection.Register(s.grpcServer)

	return s
}

// Serve starts the gRPC server on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting gRPC server")
	return s.grpcServer.Serve(listener)
}

// ServeUnix starts the server on a Unix domain socket, replacing a stale
// socket file.
func (s *Server) ServeUnix(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	s.socketPath = socketPath
	return s.Serve(listener)
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// GracefulStop gracefully stops the server.
func (s *Server) GracefulStop() {
	s.logger.Info().Msg("Gracefully stopping gRPC server")
	s.grpcServer.GracefulStop()
}

// Stop immediately stops the server.
func (s *Server) Stop() {
	s.logger.Info().Msg("Stopping gRPC server")
	s.grpcServer.Stop()
}

// loggingInterceptor logs unary RPC calls.
func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", duration).
			Err(err).
			Msg("RPC failed")
	} else {
		s.logger.Debug().
			Str("method", info.FullMethod).
			Dur("duration", duration).
			Msg("RPC completed")
	}

	return resp, err
}

// recoveryInterceptor turns a handler panic into codes.Internal.
func (s *Server) recoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("method", info.FullMethod).Interface("panic", r).Msg("RPC panicked")
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// checkRequest validates req and maps failures to InvalidArgument.
func (s *Server) checkRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return status.Errorf(codes.InvalidArgument, "%s failed %q", fe.Field(), fe.Tag())
		}
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error, msg string) error {
	switch {
	case errors.Is(err, counsel.ErrEmptyMessage), errors.Is(err, counsel.ErrMissingUserID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, msg+": not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg+": canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, msg+": deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "%s: %v", msg, err)
	}
}

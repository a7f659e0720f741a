// Package api exposes the backtester over HTTP (gin), gRPC and a WebSocket
// stream of run-completed events.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"tradelab/internal/config"
	"tradelab/internal/domain"
	"tradelab/internal/engine"
	"tradelab/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server is the tradelab API server.
type Server struct {
	cfg         config.Server
	backtester  *engine.Backtester
	bars        store.BarStore
	runs        store.RunStore
	market      string
	defaultCash float64

	router *gin.Engine
	http   *http.Server
	grpc   *grpc.Server
	hub    *Hub
	log    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRunStore serves stored runs from rs.
func WithRunStore(rs store.RunStore) Option {
	return func(s *Server) { s.runs = rs }
}

// WithMarket sets the market used when a request does not name one.
func WithMarket(market string) Option {
	return func(s *Server) { s.market = market }
}

// WithDefaultCash sets the starting cash for requests that omit it.
func WithDefaultCash(cash float64) Option {
	return func(s *Server) { s.defaultCash = cash }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a Server. Nothing listens until ListenAndServe.
func NewServer(cfg config.Server, bt *engine.Backtester, bars store.BarStore, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		backtester:  bt,
		bars:        bars,
		market:      string(domain.MarketUS),
		defaultCash: 100_000,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "api")
	s.hub = NewHub(s.log)

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger(s.log))
	s.registerRoutes()

	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(unaryLogger(s.log)))
	RegisterBacktestService(s.grpc, s.BacktestService())
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPAddr returns the configured HTTP listen address.
func (s *Server) HTTPAddr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// GRPCAddr returns the configured gRPC listen address.
func (s *Server) GRPCAddr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.GRPCPort))
}

// ListenAndServe binds the configured HTTP and gRPC ports and serves until
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.HTTPAddr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.HTTPAddr(), err)
	}
	grpcLn, err := net.Listen("tcp", s.GRPCAddr())
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening on %s: %w", s.GRPCAddr(), err)
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves HTTP on httpLn and gRPC on grpcLn until ctx is cancelled or
// either listener fails, then shuts both down.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.log.Info("http listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc listening", "addr", grpcLn.Addr().String())
		if err := s.grpc.Serve(grpcLn); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops both listeners, waiting for in-flight requests until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	err := s.http.Shutdown(ctx)

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.log.Info("api stopped")
	return err
}

// runBacktest runs a wire request and publishes the completed run.
func (s *Server) runBacktest(ctx context.Context, wire backtestRequest) (*store.RunRecord, error) {
	req, err := wire.toEngine(s.defaultCash)
	if err != nil {
		return nil, err
	}
	if req.Market == "" {
		req.Market = s.market
	}
	res, err := s.backtester.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	rec := res.Record()
	s.hub.Publish(newRunEvent(rec))
	return rec, nil
}

// requestLogger logs every HTTP request at Info.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

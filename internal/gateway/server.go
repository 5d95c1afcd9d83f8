package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/logging"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Server serves the HTTP front and, when enabled, the admin API.
type Server struct {
	gateway     *Gateway
	config      *config.Config
	frontServer *http.Server
	adminServer *http.Server

	frontAddr net.Addr
	adminAddr net.Addr
	ready     chan struct{}
	bindErr   error
}

// NewServer creates a server for gw.
func NewServer(cfg *config.Config, gw *Gateway) *Server {
	s := &Server{
		gateway: gw,
		config:  cfg,
		ready:   make(chan struct{}),
		frontServer: &http.Server{
			Addr:         cfg.Listener.Address,
			Handler:      gw.Handler(),
			ReadTimeout:  cfg.Listener.ReadTimeout,
			WriteTimeout: cfg.Listener.WriteTimeout,
			IdleTimeout:  cfg.Listener.IdleTimeout,
		},
	}

	if cfg.Admin.Enabled {
		s.adminServer = &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      gw.AdminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return s
}

// Ready is closed once all listeners are bound, or once binding has failed.
// Check BindErr after it closes.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// BindErr returns the listen error that ended Run early. Valid after Ready.
func (s *Server) BindErr() error {
	return s.bindErr
}

// FrontAddr returns the bound proxy address. Valid after Ready.
func (s *Server) FrontAddr() net.Addr {
	return s.frontAddr
}

// AdminAddr returns the bound admin address, nil when admin is disabled.
// Valid after Ready.
func (s *Server) AdminAddr() net.Addr {
	return s.adminAddr
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down
// gracefully and closes the gateway.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frontLn, adminLn, err := s.listen()
	if err != nil {
		s.bindErr = err
		close(s.ready)
		s.gateway.Close()
		return err
	}
	close(s.ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("Starting hit counter", zap.String("address", s.frontAddr.String()))
		if err := s.frontServer.Serve(frontLn); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("proxy server error: %w", err)
		}
		return nil
	})

	if adminLn != nil {
		g.Go(func() error {
			logging.Info("Starting admin server", zap.String("address", s.adminAddr.String()))
			if err := s.adminServer.Serve(adminLn); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("admin server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down gracefully...")
		return s.Shutdown(ShutdownTimeout)
	})

	return g.Wait()
}

func (s *Server) listen() (front, admin net.Listener, err error) {
	front, err = net.Listen("tcp", s.frontServer.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", s.frontServer.Addr, err)
	}
	s.frontAddr = front.Addr()

	if s.adminServer != nil {
		admin, err = net.Listen("tcp", s.adminServer.Addr)
		if err != nil {
			front.Close()
			s.frontAddr = nil
			return nil, nil, fmt.Errorf("failed to listen on %s: %w", s.adminServer.Addr, err)
		}
		s.adminAddr = admin.Addr()
	}
	return front, admin, nil
}

// Shutdown stops the listeners, waiting up to timeout for in-flight
// invocations, then closes the gateway.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			logging.Error("Admin server shutdown error", zap.Error(err))
		}
	}
	if err := s.frontServer.Shutdown(ctx); err != nil {
		logging.Error("Proxy server shutdown error", zap.Error(err))
	}

	if err := s.gateway.Close(); err != nil {
		return err
	}
	logging.Info("Server shutdown complete")
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/wrongjunior/updaterelay/internal/domain"
)

// Server связывает HTTP-сервер с жизненным циклом процесса:
// выбор свободного порта, обслуживание и graceful shutdown.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	onShutdown []func()
}

// Listen занимает первый свободный порт, начиная с port.
// Конфликт порта не фатален: пробуется следующий, всего attempts портов.
func Listen(host string, port, attempts int, logger *slog.Logger) (net.Listener, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		addr := net.JoinHostPort(host, fmt.Sprint(port+i))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		lastErr = &domain.PortConflictError{Port: port + i, Err: err}
		logger.Warn("Port is already in use, trying next", "port", port+i, "next", port+i+1)
	}
	return nil, fmt.Errorf("no free port in %d..%d: %w", port, port+attempts-1, lastErr)
}

// New создаёт сервер поверх уже занятого listener.
func New(ln net.Listener, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}
}

// Addr возвращает фактический адрес прослушивания.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// OnShutdown регистрирует функцию, вызываемую после остановки HTTP-сервера.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run обслуживает запросы, пока не отменён ctx, затем корректно завершает работу.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.listener.Addr().String())
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
		}
		s.runShutdownHooks()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.runShutdownHooks()
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) runShutdownHooks() {
	for _, fn := range s.onShutdown {
		fn()
	}
}

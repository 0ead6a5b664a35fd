package server

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AxlAleT/Redes2/pkg/transfer"
)

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	// A missing upload directory is created again on the first upload.
	if err := transfer.EnsureDir(s.cfg.UploadDir); err != nil {
		slog.Warn("upload directory unavailable", "dir", s.cfg.UploadDir, "err", err)
	}

	ln, err := s.Listen()
	if err != nil {
		return err
	}

	slog.Info("chat server running",
		"addr", ln.Addr().String(),
		"uploads", s.cfg.UploadDir,
		"mirror", s.mirror != nil,
		"ledger", s.ledger != nil,
	)

	s.StartMetricsHTTP()
	if s.cfg.MetricsLogInterval > 0 {
		s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.ctx.Done())
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	case err := <-serveErr:
		s.Shutdown()
		s.Wait()
		return err
	}

	s.Shutdown()
	err = <-serveErr
	s.Wait()
	s.metrics.LogSummary()
	return err
}

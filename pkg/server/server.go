// Package server implements the chat server: it accepts TCP clients,
// authenticates them and serves chat and file upload commands, one goroutine
// per connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/AxlAleT/Redes2/pkg/credentials"
	"github.com/AxlAleT/Redes2/pkg/datastore"
	"github.com/AxlAleT/Redes2/pkg/model"
	"github.com/AxlAleT/Redes2/pkg/transfer"
)

// Mirror receives a copy of every successful upload.
type Mirror interface {
	Mirror(ctx context.Context, up model.Upload) error
}

// Dependencies holds external dependencies for the server.
// Ledger and Mirror are optional.
type Dependencies struct {
	Credentials credentials.Store
	Ledger      datastore.UploadLedger
	Mirror      Mirror
}

// Server is the chat server.
type Server struct {
	cfg      Config
	creds    credentials.Store
	ledger   datastore.UploadLedger
	mirror   Mirror
	receiver *transfer.Receiver
	metrics  *Metrics

	mu sync.Mutex
	ln net.Listener

	wg     sync.WaitGroup // connection goroutines and mirror copies
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		creds:    deps.Credentials,
		ledger:   deps.Ledger,
		mirror:   deps.Mirror,
		receiver: transfer.NewReceiver(cfg.UploadDir),
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Listen binds the configured TCP address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown is called, handling each one
// on its own goroutine. Accept errors are logged and retried.
func (s *Server) Serve(ln net.Listener) error {
	if s.creds == nil {
		return fmt.Errorf("server: missing credentials dependency")
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	slog.Info("chat server listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("server: accept: %w", err)
			}
			backoff = nextBackoff(backoff)
			if isTemporary(err) {
				slog.Debug("accept interrupted, retrying", "err", err, "backoff", backoff)
			} else {
				slog.Error("accept error", "err", err, "backoff", backoff)
			}
			select {
			case <-s.ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting and closes every open connection.
func (s *Server) Shutdown() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

// Wait blocks until every connection goroutine has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func nextBackoff(d time.Duration) time.Duration {
	const maxBackoff = time.Second
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isTemporary(err error) bool {
	if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

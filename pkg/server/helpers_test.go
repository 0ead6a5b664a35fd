package server

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AxlAleT/Redes2/pkg/credentials"
	"github.com/AxlAleT/Redes2/pkg/model"
	"github.com/AxlAleT/Redes2/pkg/protocol"
)

var testUsers = credentials.StaticStore{
	{Username: "alice", Secret: "s3cret"},
	{Username: "bob", Secret: "pw"},
}

type testServer struct {
	srv  *Server
	addr string
	cfg  Config
	stop func()
}

func startServer(t *testing.T, deps Dependencies, mutate func(*Config)) *testServer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.MetricsLogInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	if deps.Credentials == nil {
		deps.Credentials = testUsers
	}

	srv := New(cfg, deps)
	ln, err := srv.Listen()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			srv.Shutdown()
			if err := <-done; err != nil {
				t.Errorf("Serve: %v", err)
			}
			srv.Wait()
		})
	}
	t.Cleanup(stop)

	return &testServer{srv: srv, addr: ln.Addr().String(), cfg: cfg, stop: stop}
}

type peer struct {
	conn net.Conn
	r    *protocol.Reader
}

func dial(t *testing.T, addr string) *peer {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{conn: conn, r: protocol.NewReader(conn, protocol.DefaultMaxLine)}
}

// login dials and authenticates as alice.
func login(t *testing.T, addr string) *peer {
	t.Helper()
	p := dial(t, addr)
	p.send(t, protocol.AuthRequest("alice", "s3cret"))
	p.expect(t, protocol.ReplyAuthOK)
	return p
}

func (p *peer) send(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, protocol.WriteLine(p.conn, line))
}

func (p *peer) sendRaw(t *testing.T, b []byte) {
	t.Helper()
	_, err := p.conn.Write(b)
	require.NoError(t, err)
}

func (p *peer) expect(t *testing.T, want string) {
	t.Helper()
	line, err := p.r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, want, string(line))
}

func (p *peer) expectEOF(t *testing.T) {
	t.Helper()
	_, err := p.r.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

type fakeLedger struct {
	mu      sync.Mutex
	uploads []model.Upload
}

func (l *fakeLedger) RecordUpload(u model.Upload) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.uploads = append(l.uploads, u)
	return int64(len(l.uploads)), nil
}

func (l *fakeLedger) ListUploads() ([]model.Upload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Upload(nil), l.uploads...), nil
}

type fakeMirror struct {
	got chan model.Upload
	err error
}

func (m *fakeMirror) Mirror(_ context.Context, up model.Upload) error {
	m.got <- up
	return m.err
}

package server

import (
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/AxlAleT/Redes2/pkg/protocol"
)

// State is the position of a session in the connection lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection state. It is owned by a single goroutine and
// never shared.
type Session struct {
	ID         string
	Username   string // set once, on successful authentication
	RemoteAddr string

	state  State
	conn   net.Conn
	reader *protocol.Reader
	log    *slog.Logger
}

func newSession(conn net.Conn, maxLine int) *Session {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	return &Session{
		ID:         id,
		RemoteAddr: remote,
		state:      StateUnauthenticated,
		conn:       conn,
		reader:     protocol.NewReader(conn, maxLine),
		log:        slog.With("session", id, "remote", remote),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

func (s *Session) reply(line string) error {
	return protocol.WriteLine(s.conn, line)
}

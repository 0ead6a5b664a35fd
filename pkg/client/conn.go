// Package client implements the chat client: connection setup,
// authentication, one-shot uploads and the interactive front end.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/AxlAleT/Redes2/pkg/model"
	"github.com/AxlAleT/Redes2/pkg/protocol"
	"github.com/AxlAleT/Redes2/pkg/transfer"
)

// ErrAuthFailed is returned when the server rejects the credentials or
// closes the connection without answering.
var ErrAuthFailed = errors.New("client: authentication failed")

// Conn is a connection to the chat server. Writes are serialised so a file
// payload is never interleaved with a chat line; reads must come from a
// single goroutine.
type Conn struct {
	conn net.Conn
	r    *protocol.Reader
	mu   sync.Mutex
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}
	return NewConn(conn), nil
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		r:    protocol.NewReader(conn, protocol.DefaultMaxLine),
	}
}

// Authenticate sends the AUTH request and waits for the verdict.
func (c *Conn) Authenticate(username, secret string) error {
	cred := model.Credential{Username: username, Secret: secret}
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if err := c.SendLine(protocol.AuthRequest(username, secret)); err != nil {
		return fmt.Errorf("client: send auth: %w", err)
	}

	line, err := c.r.ReadLine()
	if err != nil {
		return fmt.Errorf("%w: no reply: %w", ErrAuthFailed, err)
	}
	if string(line) != protocol.ReplyAuthOK {
		return fmt.Errorf("%w: server replied %q", ErrAuthFailed, line)
	}
	return nil
}

// SendLine writes one protocol line.
func (c *Conn) SendLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteLine(c.conn, line)
}

// SendFile writes a FILE header and payload without waiting for the acknowledgement.
func (c *Conn) SendFile(path string) (protocol.FileHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transfer.Send(c.conn, path)
}

// Upload sends a file and returns the server's acknowledgement line. It reads
// from the connection, so it must not run while a receive loop is active.
func (c *Conn) Upload(path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transfer.SendAndConfirm(c.conn, c.r, path)
}

// Logout sends salir and returns the server's reply.
func (c *Conn) Logout() (string, error) {
	if err := c.SendLine(protocol.KeywordLogout); err != nil {
		return "", err
	}
	line, err := c.r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("client: read logout reply: %w", err)
	}
	return string(line), nil
}

// ReadLine reads one line sent by the server.
func (c *Conn) ReadLine() ([]byte, error) {
	return c.r.ReadLine()
}

// CloseWrite half-closes the connection so the server sees end of stream
// while replies can still be read.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

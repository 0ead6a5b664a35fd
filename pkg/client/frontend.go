package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/AxlAleT/Redes2/pkg/protocol"
	"github.com/AxlAleT/Redes2/pkg/transfer"
)

// SendCommand is the local command that uploads a file.
const SendCommand = "/enviar"

// FrontEnd runs an interactive session on an authenticated Conn: it prints
// everything the server sends while forwarding the user's input lines.
type FrontEnd struct {
	conn *Conn

	outMu sync.Mutex
	out   io.Writer

	ackMu   sync.Mutex
	pending chan string // waiting upload, nil when none
}

// NewFrontEnd creates a front end printing server output to out.
func NewFrontEnd(conn *Conn, out io.Writer) *FrontEnd {
	return &FrontEnd{conn: conn, out: out}
}

// Run blocks until the session ends: the user types salir or closes in, the
// server closes the connection or says BYE, or ctx is cancelled. The
// connection is closed on return. A clean end of session returns nil.
func (f *FrontEnd) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = f.conn.Close() }()

	lines, pumpErr := pumpLines(ctx, in)

	recvDone := make(chan error, 1)
	go func() {
		recvDone <- f.receiveLoop(ctx)
		cancel()
	}()

	sendErr := f.sendLoop(ctx, lines, pumpErr)

	// Nothing more will be written; the server answers what it has and closes.
	_ = f.conn.CloseWrite()

	var recvErr error
	select {
	case recvErr = <-recvDone:
	case <-ctx.Done():
		_ = f.conn.Close()
		recvErr = <-recvDone
	}
	return errors.Join(sendErr, recvErr)
}

// pumpLines reads in on its own goroutine so the send loop can observe
// cancellation between lines. The error channel yields the reader's final
// error (nil at end of input) once lines is closed.
func pumpLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, protocol.DefaultMaxLine), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				errCh <- nil
				return
			}
		}
		errCh <- sc.Err()
	}()
	return lines, errCh
}

func (f *FrontEnd) sendLoop(ctx context.Context, lines <-chan string, pumpErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-pumpErr; err != nil {
					return fmt.Errorf("client: read input: %w", err)
				}
				return nil
			}
			done, err := f.handleInput(ctx, strings.TrimRight(line, "\r"))
			if err != nil || done {
				return err
			}
		}
	}
}

// handleInput acts on one input line and reports whether the session is over.
func (f *FrontEnd) handleInput(ctx context.Context, line string) (bool, error) {
	switch {
	case strings.TrimSpace(line) == "":
		return false, nil

	case protocol.IsLogout(line):
		if err := f.conn.SendLine(protocol.KeywordLogout); err != nil {
			return true, fmt.Errorf("client: send logout: %w", err)
		}
		return true, nil

	case isSendCommand(line):
		path := strings.TrimSpace(line[len(SendCommand):])
		if path == "" {
			f.printf("usage: %s <path>\n", SendCommand)
			return false, nil
		}
		return false, f.upload(ctx, path)

	default:
		if err := f.conn.SendLine(line); err != nil {
			return true, fmt.Errorf("client: send message: %w", err)
		}
		return false, nil
	}
}

func isSendCommand(line string) bool {
	if !strings.HasPrefix(line, SendCommand) {
		return false
	}
	rest := line[len(SendCommand):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// upload sends one file and waits for the receive loop to hand over the
// acknowledgement. Local failures are reported to the user and the session
// continues; a payload cut short leaves the stream unusable and ends it.
func (f *FrontEnd) upload(ctx context.Context, path string) error {
	ack := make(chan string, 1)
	f.setPending(ack)

	hdr, err := f.conn.SendFile(path)
	if err != nil {
		f.setPending(nil)
		if errors.Is(err, transfer.ErrDesynced) {
			return fmt.Errorf("client: upload %s: %w", path, err)
		}
		f.printf("cannot send %s: %v\n", path, err)
		return nil
	}
	slog.Debug("upload sent", "name", hdr.Name, "size", hdr.Size)

	select {
	case line := <-ack:
		f.printf("%s\n", line)
	case <-ctx.Done():
		f.setPending(nil)
	}
	return nil
}

func (f *FrontEnd) setPending(ch chan string) {
	f.ackMu.Lock()
	f.pending = ch
	f.ackMu.Unlock()
}

// deliverAck hands line to a waiting upload and reports whether one was waiting.
func (f *FrontEnd) deliverAck(line string) bool {
	f.ackMu.Lock()
	defer f.ackMu.Unlock()
	if f.pending == nil {
		return false
	}
	f.pending <- line
	f.pending = nil
	return true
}

func (f *FrontEnd) receiveLoop(ctx context.Context) error {
	for {
		raw, err := f.conn.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				f.printf("connection closed by server\n")
				return nil
			case ctx.Err() != nil, errors.Is(err, net.ErrClosed):
				return nil
			default:
				return fmt.Errorf("client: receive: %w", err)
			}
		}

		line := string(raw)
		if protocol.IsFileAck(line) && f.deliverAck(line) {
			continue
		}
		f.printf("%s\n", line)
		if protocol.IsBye(line) {
			return nil
		}
	}
}

func (f *FrontEnd) printf(format string, args ...any) {
	f.outMu.Lock()
	defer f.outMu.Unlock()
	_, _ = fmt.Fprintf(f.out, format, args...)
}

// Package protocol implements the chat wire format: newline-framed text
// commands and replies, interleaved with raw file payloads of a declared
// length on the same stream.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultPort is the TCP port the server listens on unless configured otherwise.
	DefaultPort = 8080

	// DefaultMaxLine is the line buffer size; ReadLine returns at most
	// DefaultMaxLine-1 bytes per call.
	DefaultMaxLine = 4096

	// payloadChunk is the copy granularity for file payloads.
	payloadChunk = 4096
)

var (
	// ErrMalformed is returned for auth requests and file headers that do not parse.
	ErrMalformed = errors.New("protocol: malformed request")

	// ErrShortRead means the stream ended (or failed) before a declared payload was complete.
	ErrShortRead = errors.New("protocol: payload truncated")

	// ErrSinkFailed means the payload was consumed but could not be written to its destination.
	ErrSinkFailed = errors.New("protocol: payload sink failed")
)

// Reader frames one connection. Lines and exact-length payloads share the same
// underlying buffer so they can be freely interleaved.
type Reader struct {
	br     *bufio.Reader
	maxLen int
}

// NewReader wraps r. maxLen below 2 selects DefaultMaxLine.
func NewReader(r io.Reader, maxLen int) *Reader {
	if maxLen < 2 {
		maxLen = DefaultMaxLine
	}
	return &Reader{
		br:     bufio.NewReaderSize(r, DefaultMaxLine),
		maxLen: maxLen,
	}
}

// ReadLine returns the next line without its trailing "\n" / "\r".
//
// Lines longer than maxLen-1 bytes are split across calls. io.EOF is returned
// only when the stream ends before any byte of the line was read: a stream
// that ends mid-line yields the partial line first and io.EOF on the next call.
// An empty line is returned as an empty, non-nil slice.
func (r *Reader) ReadLine() ([]byte, error) {
	line := make([]byte, 0, 64)
	for len(line) < r.maxLen-1 {
		c, err := r.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(line) == 0 {
					return nil, io.EOF
				}
				break
			}
			return nil, fmt.Errorf("protocol: read line: %w", err)
		}
		if c == '\n' {
			break
		}
		line = append(line, c)
	}
	return trimEOL(line), nil
}

// ReadExact blocks until exactly n bytes have been read.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(r.br, buf)
	if err != nil {
		return nil, shortRead(int64(got), int64(n), err)
	}
	return buf, nil
}

// CopyExact streams exactly n bytes from the connection to dst.
//
// A failing dst does not stop consumption: the rest of the payload is drained
// so the next ReadLine starts at a command boundary, and the write error is
// returned wrapped in ErrSinkFailed. A read shortfall is ErrShortRead; in that
// case the connection is no longer usable.
func (r *Reader) CopyExact(dst io.Writer, n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	buf := make([]byte, payloadChunk)
	var written, consumed int64
	var sinkErr error
	for consumed < n {
		chunk := int64(len(buf))
		if rem := n - consumed; rem < chunk {
			chunk = rem
		}
		got, err := io.ReadFull(r.br, buf[:chunk])
		consumed += int64(got)
		if sinkErr == nil && got > 0 {
			w, werr := dst.Write(buf[:got])
			written += int64(w)
			if werr == nil && w != got {
				werr = io.ErrShortWrite
			}
			sinkErr = werr
		}
		if err != nil {
			return written, shortRead(consumed, n, err)
		}
	}
	if sinkErr != nil {
		return written, fmt.Errorf("%w: %w", ErrSinkFailed, sinkErr)
	}
	return written, nil
}

// Buffered returns the number of bytes that can be read without touching the connection.
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

// WriteLine writes line followed by "\n" in a single Write call.
func WriteLine(w io.Writer, line string) error {
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return fmt.Errorf("protocol: write line: %w", err)
	}
	return nil
}

func shortRead(got, want int64, err error) error {
	return fmt.Errorf("%w after %d of %d bytes: %w", ErrShortRead, got, want, err)
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

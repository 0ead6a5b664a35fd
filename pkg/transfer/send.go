// Package transfer implements both ends of the inline file transfer: a
// "FILE <name> <size>" header line followed by exactly size raw bytes on the
// same connection as the chat traffic.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/AxlAleT/Redes2/pkg/model"
	"github.com/AxlAleT/Redes2/pkg/protocol"
)

// ErrDesynced means a header went out but its payload did not complete. The
// peer is now reading payload bytes that will never come, so the connection
// must be closed.
var ErrDesynced = errors.New("transfer: payload incomplete, connection out of sync")

// DisplayName is the name announced for path: its last component, with
// whitespace replaced by '_' so it stays a single header token.
func DisplayName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, path)
}

// Send writes the header for the file at path and streams its content to w.
// Nothing is written if the file cannot be opened or is not a regular file.
func Send(w io.Writer, path string) (protocol.FileHeader, error) {
	f, err := os.Open(path) //nolint:gosec // path typed by the local user
	if err != nil {
		return protocol.FileHeader{}, fmt.Errorf("transfer: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return protocol.FileHeader{}, fmt.Errorf("transfer: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return protocol.FileHeader{}, fmt.Errorf("transfer: %s is not a regular file", path)
	}

	hdr := protocol.FileHeader{Name: DisplayName(path), Size: info.Size()}
	if hdr.Name == "" || len(hdr.Name) > model.MaxTokenLength {
		return hdr, fmt.Errorf("transfer: unusable file name %q", hdr.Name)
	}

	if err := protocol.WriteLine(w, hdr.Line()); err != nil {
		return hdr, fmt.Errorf("transfer: send header: %w", err)
	}
	n, err := io.CopyN(w, f, hdr.Size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return hdr, fmt.Errorf("%w: %s shrank to %d of %d bytes", ErrDesynced, path, n, hdr.Size)
		}
		return hdr, fmt.Errorf("%w: %w", ErrDesynced, err)
	}
	return hdr, nil
}

// SendAndConfirm sends the file and blocks for the peer's acknowledgement
// line, which is returned verbatim.
func SendAndConfirm(w io.Writer, r *protocol.Reader, path string) (string, error) {
	if _, err := Send(w, path); err != nil {
		return "", err
	}
	line, err := r.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("transfer: connection closed awaiting acknowledgement: %w", err)
		}
		return "", fmt.Errorf("transfer: read acknowledgement: %w", err)
	}
	return string(line), nil
}

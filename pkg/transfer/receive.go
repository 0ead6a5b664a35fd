package transfer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AxlAleT/Redes2/pkg/crypto"
	"github.com/AxlAleT/Redes2/pkg/model"
	"github.com/AxlAleT/Redes2/pkg/protocol"
)

// ErrDestination wraps filesystem failures on the receiving side: the upload
// directory or destination file could not be created or written.
var ErrDestination = errors.New("transfer: destination unavailable")

// Receiver stores incoming payloads in Dir, one file per transfer under its
// sanitized name. Concurrent transfers to the same name are not serialised;
// each opens the destination with O_TRUNC independently.
type Receiver struct {
	Dir string
}

// NewReceiver returns a receiver writing into dir.
func NewReceiver(dir string) *Receiver {
	return &Receiver{Dir: dir}
}

// EnsureDir creates dir if it does not exist. It fails if dir exists but is
// not a directory.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists and is not a directory", ErrDestination, dir)
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrDestination, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // shared upload directory
		return fmt.Errorf("%w: %w", ErrDestination, err)
	}
	return nil
}

// Receive consumes exactly hdr.Size payload bytes from r into the destination
// file.
//
// Filesystem failures return ErrDestination; the payload is still drained so
// the connection stays framed. A truncated payload returns
// protocol.ErrShortRead and the connection must be considered dead. There is
// no rollback: on failure the destination may hold a partial file.
func (rc *Receiver) Receive(r *protocol.Reader, hdr protocol.FileHeader, uploader, remote string) (model.Upload, error) {
	up := model.Upload{
		Uploader:      uploader,
		RemoteAddr:    remote,
		DeclaredName:  hdr.Name,
		SanitizedName: SanitizeName(hdr.Name),
		Size:          hdr.Size,
	}
	up.Path = filepath.Join(rc.Dir, up.SanitizedName)

	if hdr.Size < 0 {
		return up, fmt.Errorf("%w: negative size %d", protocol.ErrMalformed, hdr.Size)
	}
	if err := EnsureDir(rc.Dir); err != nil {
		return up, drain(r, hdr.Size, err)
	}

	f, err := os.OpenFile(up.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec // name is sanitized
	if err != nil {
		return up, drain(r, hdr.Size, fmt.Errorf("%w: %w", ErrDestination, err))
	}

	h := crypto.NewPayloadHash()
	n, copyErr := r.CopyExact(io.MultiWriter(f, h), hdr.Size)
	up.BytesWritten = n
	closeErr := f.Close()

	switch {
	case errors.Is(copyErr, protocol.ErrSinkFailed):
		return up, fmt.Errorf("%w: %w", ErrDestination, copyErr)
	case copyErr != nil:
		return up, copyErr
	case closeErr != nil:
		return up, fmt.Errorf("%w: close: %w", ErrDestination, closeErr)
	}

	up.Digest = crypto.HexSum(h)
	up.ReceivedAt = time.Now().UTC()
	slog.Info("file received",
		"user", uploader,
		"remote", remote,
		"path", up.Path,
		"size", up.Size,
		"digest", up.Digest,
	)
	return up, nil
}

// drain discards a payload that has nowhere to go and returns cause, joined
// with the read error if the payload could not be consumed either.
func drain(r *protocol.Reader, size int64, cause error) error {
	if _, err := r.CopyExact(io.Discard, size); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

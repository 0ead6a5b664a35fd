// Package credentials answers "may this username/secret pair log in?" from a
// flat list of comma-separated records.
//
// File format, one record per line:
//
//	# comment
//	alice, s3cret
//	bob,hunter2
//
// Surrounding whitespace is trimmed from both fields and the line is split on
// the first comma only, so secrets may contain commas.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/AxlAleT/Redes2/pkg/model"
)

const (
	commentMarker = "#"
	separator     = ","
)

// ErrSourceUnavailable wraps failures to open or read a credential source.
var ErrSourceUnavailable = errors.New("credentials: source unavailable")

// Store authenticates plaintext credentials. Implementations must be safe for
// concurrent use and fail closed.
type Store interface {
	Lookup(username, secret string) bool
}

// FileStore reads its file on every lookup, so edits take effect for the next
// authentication attempt without restarting the server.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Lookup returns true on the first record matching both fields exactly.
// An unreadable file is logged and treated as "no match".
func (s *FileStore) Lookup(username, secret string) bool {
	ok, err := s.lookup(username, secret)
	if err != nil {
		slog.Warn("credential lookup failed", "path", s.Path, "err", err)
		return false
	}
	return ok
}

func (s *FileStore) lookup(username, secret string) (bool, error) {
	f, err := os.Open(s.Path) //nolint:gosec // path from server config
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	found := false
	err = scan(f, func(c model.Credential) bool {
		if c.Username == username && c.Secret == secret {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Parse returns every record of a credential list in file order.
func Parse(r io.Reader) ([]model.Credential, error) {
	var out []model.Credential
	err := scan(r, func(c model.Credential) bool {
		out = append(out, c)
		return true
	})
	return out, err
}

// ParseLine splits one record. ok is false for blank lines, comments and
// lines without a separator.
func ParseLine(line string) (model.Credential, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, commentMarker) {
		return model.Credential{}, false
	}
	user, secret, found := strings.Cut(trimmed, separator)
	if !found {
		return model.Credential{}, false
	}
	return model.Credential{
		Username: strings.TrimSpace(user),
		Secret:   strings.TrimSpace(secret),
	}, true
}

// scan feeds each record to fn until fn returns false.
func scan(r io.Reader, fn func(model.Credential) bool) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		c, ok := ParseLine(sc.Text())
		if !ok {
			continue
		}
		if !fn(c) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return nil
}

// StaticStore is an in-memory credential list, mostly useful in tests and
// for embedding the server.
type StaticStore []model.Credential

// Lookup implements Store.
func (s StaticStore) Lookup(username, secret string) bool {
	for _, c := range s {
		if c.Username == username && c.Secret == secret {
			return true
		}
	}
	return false
}

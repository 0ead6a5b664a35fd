package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AxlAleT/Redes2/pkg/model"
)

// Compile-time check.
var _ DataStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory DataStore. It mirrors SQLite behaviour for
// validation and ordering, and backs the recent-uploads view when no
// database is configured. With a positive limit only the newest uploads are kept.
type MemoryStore struct {
	mu sync.RWMutex

	now   func() time.Time
	limit int

	creds        []model.Credential
	uploads      []model.Upload
	nextUploadID int64
}

// NewMemory creates a MemoryStore keeping at most limit uploads (0 = unbounded).
func NewMemory(limit int) *MemoryStore {
	return NewMemoryWithClock(limit, func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(limit int, now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:          now,
		limit:        limit,
		nextUploadID: 1,
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Lookup reports whether any record matches both fields exactly.
func (s *MemoryStore) Lookup(username, secret string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creds {
		if c.Username == username && c.Secret == secret {
			return true
		}
	}
	return false
}

// ListUsernames returns distinct usernames in first-inserted order.
func (s *MemoryStore) ListUsernames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(s.creds))
	var names []string
	for _, c := range s.creds {
		if !seen[c.Username] {
			seen[c.Username] = true
			names = append(names, c.Username)
		}
	}
	return names, nil
}

// AddCredential appends one record. Duplicate usernames are allowed.
func (s *MemoryStore) AddCredential(c model.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("datastore: add credential: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = append(s.creds, c)
	return nil
}

// ImportCredentials behaves like Store.ImportCredentials.
func (s *MemoryStore) ImportCredentials(ctx context.Context, creds []model.Credential, replace bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("datastore: begin import: %w", err)
	}

	valid := make([]model.Credential, 0, len(creds))
	for _, c := range creds {
		if err := c.Validate(); err != nil {
			slog.Warn("skipping credential", "user", c.Username, "err", err)
			continue
		}
		valid = append(valid, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if replace {
		s.creds = nil
	}
	s.creds = append(s.creds, valid...)
	return len(valid), nil
}

// RecordUpload appends a completed transfer and returns its ID, evicting the
// oldest entry when the limit is reached.
func (s *MemoryStore) RecordUpload(u model.Upload) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = s.now()
	}
	u.ID = s.nextUploadID
	s.nextUploadID++

	s.uploads = append(s.uploads, u)
	if s.limit > 0 && len(s.uploads) > s.limit {
		s.uploads = append([]model.Upload(nil), s.uploads[len(s.uploads)-s.limit:]...)
	}
	return u.ID, nil
}

// ListUploads returns a copy of the retained uploads, oldest first.
func (s *MemoryStore) ListUploads() ([]model.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.uploads) == 0 {
		return nil, nil
	}
	return append([]model.Upload(nil), s.uploads...), nil
}

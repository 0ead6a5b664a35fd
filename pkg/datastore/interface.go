package datastore

import (
	"context"

	"github.com/AxlAleT/Redes2/pkg/credentials"
	"github.com/AxlAleT/Redes2/pkg/model"
)

// DataStore defines the persistence interface of the chat server: an
// alternative credential source and the upload ledger. Chat messages are
// never stored.
type DataStore interface {
	CredentialReadProvider
	CredentialWriteProvider
	UploadLedger
	Close() error
}

// Compile-time checks.
var (
	_ DataStore         = (*Store)(nil)
	_ credentials.Store = (*Store)(nil)
)

type CredentialReadProvider interface {
	Lookup(username, secret string) bool
	ListUsernames() ([]string, error)
}

type CredentialWriteProvider interface {
	AddCredential(c model.Credential) error
	ImportCredentials(ctx context.Context, creds []model.Credential, replace bool) (int, error)
}

// UploadLedger records completed transfers.
type UploadLedger interface {
	RecordUpload(u model.Upload) (int64, error)
	ListUploads() ([]model.Upload, error)
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AxlAleT/Redes2/pkg/credentials"
	"github.com/AxlAleT/Redes2/pkg/datastore"
)

// UsersExport is the top-level YAML for user export. Secrets are never exported.
type UsersExport struct {
	Users []string `yaml:"users"`
}

// UploadYAML represents one ledger entry in YAML export.
type UploadYAML struct {
	ID            int64  `yaml:"id"`
	Uploader      string `yaml:"uploader"`
	RemoteAddr    string `yaml:"remote_addr"`
	DeclaredName  string `yaml:"declared_name"`
	SanitizedName string `yaml:"sanitized_name"`
	Path          string `yaml:"path"`
	Size          int64  `yaml:"size"`
	Digest        string `yaml:"digest"`
	ReceivedAt    string `yaml:"received_at"`
}

// UploadsExport is the top-level YAML for the upload ledger export.
type UploadsExport struct {
	Uploads []UploadYAML `yaml:"uploads"`
}

// ExportUsersYAML exports the distinct usernames of the credential database as YAML.
func ExportUsersYAML(st datastore.CredentialReadProvider) ([]byte, error) {
	names, err := st.ListUsernames()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(&UsersExport{Users: names})
}

// ExportUploadsYAML exports the upload ledger as YAML.
func ExportUploadsYAML(st datastore.UploadLedger) ([]byte, error) {
	uploads, err := st.ListUploads()
	if err != nil {
		return nil, err
	}

	export := UploadsExport{}
	for _, u := range uploads {
		export.Uploads = append(export.Uploads, UploadYAML{
			ID:            u.ID,
			Uploader:      u.Uploader,
			RemoteAddr:    u.RemoteAddr,
			DeclaredName:  u.DeclaredName,
			SanitizedName: u.SanitizedName,
			Path:          u.Path,
			Size:          u.Size,
			Digest:        u.Digest,
			ReceivedAt:    u.ReceivedAt.UTC().Format(time.RFC3339),
		})
	}
	return yaml.Marshal(&export)
}

// ImportCredentialsFile loads a flat credentials file into the database.
// With replace set, existing records are dropped first.
func ImportCredentialsFile(ctx context.Context, path string, st datastore.CredentialWriteProvider, replace bool) (int, error) {
	f, err := os.Open(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return 0, fmt.Errorf("server: import credentials: %w", err)
	}
	defer func() { _ = f.Close() }()

	creds, err := credentials.Parse(f)
	if err != nil {
		return 0, fmt.Errorf("server: import credentials: %w", err)
	}
	n, err := st.ImportCredentials(ctx, creds, replace)
	if err != nil {
		return 0, err
	}
	slog.Info("imported credentials", "path", path, "count", n, "skipped", len(creds)-n)
	return n, nil
}


package model

import "time"

// Upload describes one received file transfer. It only outlives the transfer
// when an upload ledger is configured.
type Upload struct {
	ID            int64     `json:"id" yaml:"id"`
	Uploader      string    `json:"uploader" yaml:"uploader"`
	RemoteAddr    string    `json:"remote_addr" yaml:"remote_addr"`
	DeclaredName  string    `json:"declared_name" yaml:"declared_name"`
	SanitizedName string    `json:"sanitized_name" yaml:"sanitized_name"`
	Path          string    `json:"path" yaml:"path"`
	Size          int64     `json:"size" yaml:"size"`
	BytesWritten  int64     `json:"bytes_written" yaml:"bytes_written"`
	Digest        string    `json:"digest" yaml:"digest"` // hex BLAKE2b-256 of the payload
	ReceivedAt    time.Time `json:"received_at" yaml:"received_at"`
}

// Complete reports whether every declared byte reached the destination.
func (u Upload) Complete() bool {
	return u.BytesWritten == u.Size
}

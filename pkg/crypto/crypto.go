// Package crypto provides the payload digests recorded for received files.
//
// Digests are integrity fingerprints for operators comparing a stored file
// with its source; they are not an authentication mechanism.
package crypto

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the byte length of a payload digest (BLAKE2b-256).
const DigestSize = blake2b.Size256

// NewPayloadHash returns an unkeyed BLAKE2b-256 hash for streaming payloads.
func NewPayloadHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic("crypto: blake2b init: " + err.Error())
	}
	return h
}

// HexSum returns the hex encoding of h's current sum.
func HexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// DigestBytes returns the hex payload digest of b.
func DigestBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestFile streams the file at path through the payload hash.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := NewPayloadHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("crypto: read: %w", err)
	}
	return HexSum(h), nil
}

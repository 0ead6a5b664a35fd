package model

import (
	"errors"
	"fmt"
	"unicode"
)

// MaxTokenLength bounds usernames and secrets: both travel as single
// whitespace-delimited tokens of the AUTH line.
const MaxTokenLength = 255

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrSecretEmpty = errors.New("secret must not be empty")
var ErrTokenTooLong = fmt.Errorf("username and secret must not exceed %d bytes", MaxTokenLength)
var ErrTokenWhitespace = errors.New("username and secret must not contain whitespace")

// Credential is one (username, secret) record of the credential list.
// Usernames are not unique: lookups accept the first record matching both fields.
type Credential struct {
	Username string `json:"username" yaml:"username"`
	Secret   string `json:"-" yaml:"-"`
}

// Validate reports whether the credential can ever authenticate over the wire.
// A username or secret containing whitespace would be split by the AUTH parser.
func (c Credential) Validate() error {
	if c.Username == "" {
		return ErrUsernameEmpty
	}
	if c.Secret == "" {
		return ErrSecretEmpty
	}
	if len(c.Username) > MaxTokenLength || len(c.Secret) > MaxTokenLength {
		return ErrTokenTooLong
	}
	for _, r := range c.Username + c.Secret {
		if unicode.IsSpace(r) {
			return ErrTokenWhitespace
		}
	}
	return nil
}

package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AxlAleT/Redes2/pkg/model"
)

// Wire keywords and replies. These strings are the protocol; do not localise them.
const (
	KeywordAuth   = "AUTH"
	KeywordFile   = "FILE"
	KeywordLogout = "salir"

	ReplyAuthOK   = "AUTH_OK"
	ReplyAuthFail = "AUTH_FAIL"
	ReplyBye      = "BYE"
	ReplyFileOK   = "FILE_OK"
	ReplyFileErr  = "FILE_ERR"
	ReplyChat     = "SERVIDOR: "

	// FILE_ERR reasons.
	ReasonHeader = "header"
	ReasonIO     = "io"
)

// Kind classifies a framed line received from an authenticated client.
type Kind int

const (
	KindEmpty Kind = iota
	KindMessage
	KindFileUpload
	KindBadFileHeader
	KindLogout
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindMessage:
		return "message"
	case KindFileUpload:
		return "file"
	case KindBadFileHeader:
		return "bad_file_header"
	case KindLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// FileHeader announces a raw payload of Size bytes that follows the header line.
type FileHeader struct {
	Name string
	Size int64
}

// Line renders the header as sent on the wire, without the terminator.
func (h FileHeader) Line() string {
	return fmt.Sprintf("%s %s %d", KeywordFile, h.Name, h.Size)
}

// Command is one parsed client line.
type Command struct {
	Kind Kind
	Text string     // KindMessage: the line verbatim
	File FileHeader // KindFileUpload
}

// ParseCommand classifies a line received after authentication.
func ParseCommand(line string) Command {
	switch {
	case line == "":
		return Command{Kind: KindEmpty}
	case IsLogout(line):
		return Command{Kind: KindLogout}
	case hasPrefixFold(line, KeywordFile+" "):
		hdr, err := ParseFileHeader(line)
		if err != nil {
			return Command{Kind: KindBadFileHeader, Text: line}
		}
		return Command{Kind: KindFileUpload, File: hdr}
	default:
		return Command{Kind: KindMessage, Text: line}
	}
}

// IsLogout reports whether line starts with the logout keyword as a whole
// token, ignoring case.
func IsLogout(line string) bool {
	n := len(KeywordLogout)
	if !hasPrefixFold(line, KeywordLogout) {
		return false
	}
	return len(line) == n || isSpace(line[n])
}

// ParseAuth extracts username and secret from "AUTH <username> <secret>".
// Tokens after the secret are ignored.
func ParseAuth(line string) (username, secret string, err error) {
	if !hasPrefixFold(line, KeywordAuth+" ") {
		return "", "", fmt.Errorf("%w: missing %s keyword", ErrMalformed, KeywordAuth)
	}
	fields := strings.Fields(line[len(KeywordAuth)+1:])
	if len(fields) < 2 {
		return "", "", fmt.Errorf("%w: expected username and secret", ErrMalformed)
	}
	if len(fields[0]) > model.MaxTokenLength || len(fields[1]) > model.MaxTokenLength {
		return "", "", fmt.Errorf("%w: credential token too long", ErrMalformed)
	}
	return fields[0], fields[1], nil
}

// ParseFileHeader parses "FILE <name> <size>" with a non-negative decimal size.
func ParseFileHeader(line string) (FileHeader, error) {
	if !hasPrefixFold(line, KeywordFile+" ") {
		return FileHeader{}, fmt.Errorf("%w: missing %s keyword", ErrMalformed, KeywordFile)
	}
	fields := strings.Fields(line[len(KeywordFile)+1:])
	if len(fields) < 2 {
		return FileHeader{}, fmt.Errorf("%w: expected name and size", ErrMalformed)
	}
	if len(fields[0]) > model.MaxTokenLength {
		return FileHeader{}, fmt.Errorf("%w: file name too long", ErrMalformed)
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size < 0 {
		return FileHeader{}, fmt.Errorf("%w: invalid size %q", ErrMalformed, fields[1])
	}
	return FileHeader{Name: fields[0], Size: size}, nil
}

// AuthRequest renders the client's authentication line.
func AuthRequest(username, secret string) string {
	return KeywordAuth + " " + username + " " + secret
}

// ChatReply renders the server acknowledgement of a chat line.
func ChatReply(text string) string {
	return ReplyChat + text
}

// FileOK renders a successful transfer acknowledgement.
func FileOK(h FileHeader) string {
	return fmt.Sprintf("%s %s %d", ReplyFileOK, h.Name, h.Size)
}

// FileErr renders a failed transfer acknowledgement.
func FileErr(reason string) string {
	return ReplyFileErr + " " + reason
}

// IsBye reports whether a server line asks the client to terminate.
func IsBye(line string) bool {
	return hasPrefixFold(line, ReplyBye)
}

// IsFileAck reports whether a server line acknowledges a file transfer.
func IsFileAck(line string) bool {
	return strings.HasPrefix(line, ReplyFileOK) || strings.HasPrefix(line, ReplyFileErr)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

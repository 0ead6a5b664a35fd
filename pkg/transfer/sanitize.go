package transfer

import (
	"strings"

	"github.com/AxlAleT/Redes2/pkg/model"
)

// DefaultName replaces supplied names that sanitize to nothing usable.
const DefaultName = "archivo.txt"

// SanitizeName derives a safe file name from an untrusted one: directory
// components are dropped, every byte outside [A-Za-z0-9._-] becomes '_', the
// result is capped at model.MaxTokenLength bytes, and empty, "." or ".."
// results become DefaultName. SanitizeName(SanitizeName(x)) == SanitizeName(x).
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for i := 0; i < len(name) && b.Len() < model.MaxTokenLength; i++ {
		c := name[i]
		if allowedNameByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	switch out := b.String(); out {
	case "", ".", "..":
		return DefaultName
	default:
		return out
	}
}

func allowedNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}

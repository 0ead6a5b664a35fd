// Package version holds build-time version info injected via ldflags.
//
// Set at compile time:
//
//	go build -ldflags "-X github.com/AxlAleT/Redes2/pkg/version.tag=v1.0.0
//	  -X github.com/AxlAleT/Redes2/pkg/version.commit=abc1234
//	  -X github.com/AxlAleT/Redes2/pkg/version.date=2026-01-01" ./cmd/...
package version

import (
	"fmt"
	"io"
	"runtime"
)

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, else the commit, else "dev".
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != "unknown":
		return commit
	default:
		return "dev"
	}
}

// Full returns "tag (commit) built date" or a sensible fallback.
func Full() string {
	switch {
	case tag != "":
		return tag + " (" + commit + ") built " + date
	case commit != "unknown":
		return commit + " built " + date
	default:
		return "dev"
	}
}

// Print writes "<program> <full version> <go version> <os/arch>" to w.
func Print(w io.Writer, program string) {
	_, _ = fmt.Fprintf(w, "%s %s %s %s/%s\n", program, Full(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func readAllLines(t *testing.T, r *Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines
		}
		if err != nil {
			t.Fatalf("ReadLine: unexpected error: %v", err)
		}
		lines = append(lines, string(line))
	}
}

func TestReadLine(t *testing.T) {
	tests := map[string]struct {
		input  string
		maxLen int
		want   []string
	}{
		"empty_stream":         {input: "", want: nil},
		"single_line":          {input: "hello\n", want: []string{"hello"}},
		"crlf":                 {input: "hello\r\nworld\r\n", want: []string{"hello", "world"}},
		"empty_lines":          {input: "\n\nx\n", want: []string{"", "", "x"}},
		"partial_final_line":   {input: "a\nbc", want: []string{"a", "bc"}},
		"only_partial":         {input: "abc", want: []string{"abc"}},
		"trailing_cr_partial":  {input: "abc\r", want: []string{"abc"}},
		"split_long_line":      {input: "abcdefg\n", maxLen: 4, want: []string{"abc", "def", "g"}},
		"exact_budget_newline": {input: "abc\n", maxLen: 4, want: []string{"abc", ""}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tc.input), tc.maxLen)
			got := readAllLines(t, r)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ReadLine mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadLinePartialThenEOF(t *testing.T) {
	r := NewReader(strings.NewReader("tail"), 0)

	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("first ReadLine: unexpected error: %v", err)
	}
	if string(line) != "tail" {
		t.Fatalf("first ReadLine = %q, want %q", line, "tail")
	}
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("second ReadLine: expected io.EOF, got %v", err)
	}
}

func TestReadLineEmptyIsNotEOF(t *testing.T) {
	r := NewReader(strings.NewReader("\n"), 0)
	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: unexpected error: %v", err)
	}
	if line == nil || len(line) != 0 {
		t.Fatalf("ReadLine = %#v, want empty non-nil slice", line)
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestReadLineTransportError(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(failingReader{err: boom}, 0)
	if _, err := r.ReadLine(); !errors.Is(err, boom) {
		t.Fatalf("ReadLine: expected wrapped boom, got %v", err)
	}
}

func TestReadExact(t *testing.T) {
	r := NewReader(strings.NewReader("FILE a 3\nxyzrest\n"), 0)
	if _, err := r.ReadLine(); err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	payload, err := r.ReadExact(3)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(payload) != "xyz" {
		t.Fatalf("ReadExact = %q, want %q", payload, "xyz")
	}
	line, err := r.ReadLine()
	if err != nil || string(line) != "rest" {
		t.Fatalf("ReadLine after payload = %q, %v; want %q", line, err, "rest")
	}
}

func TestReadExactShort(t *testing.T) {
	r := NewReader(strings.NewReader("ab"), 0)
	_, err := r.ReadExact(5)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("ReadExact: expected ErrShortRead, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadExact: expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestCopyExact(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0xff, '\n', 'a'}, 3000) // binary, spans several chunks
	stream := append(append([]byte{}, payload...), []byte("next\n")...)
	r := NewReader(bytes.NewReader(stream), 0)

	var dst bytes.Buffer
	n, err := r.CopyExact(&dst, int64(len(payload)))
	if err != nil {
		t.Fatalf("CopyExact: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(dst.Bytes(), payload) {
		t.Fatalf("CopyExact copied %d bytes, content equal=%t", n, bytes.Equal(dst.Bytes(), payload))
	}
	line, err := r.ReadLine()
	if err != nil || string(line) != "next" {
		t.Fatalf("ReadLine after payload = %q, %v", line, err)
	}
}

type brokenWriter struct{ after int }

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestCopyExactSinkFailureDrains(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 10000)
	stream := append(append([]byte{}, payload...), []byte("after\n")...)
	r := NewReader(bytes.NewReader(stream), 0)

	n, err := r.CopyExact(&brokenWriter{after: 1}, int64(len(payload)))
	if !errors.Is(err, ErrSinkFailed) {
		t.Fatalf("CopyExact: expected ErrSinkFailed, got %v", err)
	}
	if n != payloadChunk {
		t.Fatalf("CopyExact written = %d, want %d", n, payloadChunk)
	}
	line, err := r.ReadLine()
	if err != nil || string(line) != "after" {
		t.Fatalf("stream not drained: ReadLine = %q, %v", line, err)
	}
}

func TestCopyExactShortRead(t *testing.T) {
	r := NewReader(strings.NewReader("hello"), 0)
	var dst bytes.Buffer
	n, err := r.CopyExact(&dst, 13)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("CopyExact: expected ErrShortRead, got %v", err)
	}
	if n != 5 || dst.String() != "hello" {
		t.Fatalf("CopyExact partial = %d %q", n, dst.String())
	}
}

func TestCopyExactZero(t *testing.T) {
	r := NewReader(strings.NewReader("line\n"), 0)
	n, err := r.CopyExact(io.Discard, 0)
	if err != nil || n != 0 {
		t.Fatalf("CopyExact(0) = %d, %v", n, err)
	}
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, ReplyAuthOK); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if buf.String() != "AUTH_OK\n" {
		t.Fatalf("WriteLine wrote %q", buf.String())
	}
}

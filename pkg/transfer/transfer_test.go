package transfer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/AxlAleT/Redes2/pkg/crypto"
	"github.com/AxlAleT/Redes2/pkg/model"
	"github.com/AxlAleT/Redes2/pkg/protocol"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]struct {
		in, want string
	}{
		"plain":            {in: "report.txt", want: "report.txt"},
		"allowed_set":      {in: "a-B_9.tar.gz", want: "a-B_9.tar.gz"},
		"spaces":           {in: "my file.txt", want: "my_file.txt"},
		"traversal":        {in: "../../etc/passwd", want: "passwd"},
		"windows_path":     {in: `C:\Users\x\doc.pdf`, want: "doc.pdf"},
		"trailing_slash":   {in: "dir/", want: DefaultName},
		"empty":            {in: "", want: DefaultName},
		"dot":              {in: ".", want: DefaultName},
		"dotdot":           {in: "..", want: DefaultName},
		"hidden_file":      {in: ".bashrc", want: ".bashrc"},
		"multibyte":        {in: "ñ.txt", want: "__.txt"},
		"specials":         {in: "a;b|c$d", want: "a_b_c_d"},
		"truncated_length": {in: strings.Repeat("x", 300), want: strings.Repeat("x", model.MaxTokenLength)},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := SanitizeName(tc.in); got != tc.want {
				t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeNameProperties(t *testing.T) {
	prop := func(in string) bool {
		out := SanitizeName(in)
		if out == "" || out == "." || out == ".." || len(out) > model.MaxTokenLength {
			return false
		}
		for i := 0; i < len(out); i++ {
			if !allowedNameByte(out[i]) {
				return false
			}
		}
		return SanitizeName(out) == out
	}
	if err := quick.Check(prop, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatalf("SanitizeName property violated: %v", err)
	}
}

func TestSanitizeNameKeepsPermittedNames(t *testing.T) {
	const alphabet = "abcXYZ019._-"
	prop := func(seed []byte) bool {
		var b strings.Builder
		for _, c := range seed {
			b.WriteByte(alphabet[int(c)%len(alphabet)])
		}
		name := b.String()
		if name == "" || name == "." || name == ".." || len(name) > model.MaxTokenLength {
			return true
		}
		return SanitizeName(name) == name
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatalf("permitted name altered: %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"/tmp/report.txt":      "report.txt",
		"report.txt":           "report.txt",
		`dir\sub\file.bin`:     "file.bin",
		"/tmp/my report.txt":   "my_report.txt",
		"relative/dir/a b\tc": "a_b_c",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReceive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	payload := []byte("hello world!!")
	stream := append(append([]byte{}, payload...), []byte("next line\n")...)
	r := protocol.NewReader(bytes.NewReader(stream), 0)

	rc := NewReceiver(dir)
	up, err := rc.Receive(r, protocol.FileHeader{Name: "report.txt", Size: 13}, "alice", "127.0.0.1:5000")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	want := model.Upload{
		Uploader:      "alice",
		RemoteAddr:    "127.0.0.1:5000",
		DeclaredName:  "report.txt",
		SanitizedName: "report.txt",
		Path:          filepath.Join(dir, "report.txt"),
		Size:          13,
		BytesWritten:  13,
		Digest:        crypto.DigestBytes(payload),
	}
	if diff := cmp.Diff(want, up, cmpIgnoreTime()); diff != "" {
		t.Fatalf("Receive mismatch (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(up.Path)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("destination = %q, want %q", got, payload)
	}
	line, err := r.ReadLine()
	if err != nil || string(line) != "next line" {
		t.Fatalf("stream after payload = %q, %v", line, err)
	}
}

func TestReceiveTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("much longer old content"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := protocol.NewReader(strings.NewReader("new"), 0)
	if _, err := NewReceiver(dir).Receive(r, protocol.FileHeader{Name: "a.txt", Size: 3}, "u", "r"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(got) != "new" {
		t.Fatalf("destination = %q, want %q", got, "new")
	}
}

func TestReceiveSanitizesTraversal(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uploads")
	r := protocol.NewReader(strings.NewReader("xy"), 0)
	up, err := NewReceiver(dir).Receive(r, protocol.FileHeader{Name: "../escape.txt", Size: 2}, "u", "r")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if up.Path != filepath.Join(dir, "escape.txt") {
		t.Fatalf("Receive path = %s, want inside %s", up.Path, dir)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file escaped upload dir: %v", err)
	}
}

func TestReceiveDirIsFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	if err := os.WriteFile(dir, []byte("not a dir"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := protocol.NewReader(strings.NewReader("abcdeFOLLOW\n"), 0)
	_, err := NewReceiver(dir).Receive(r, protocol.FileHeader{Name: "x", Size: 5}, "u", "r")
	if !errors.Is(err, ErrDestination) {
		t.Fatalf("Receive: expected ErrDestination, got %v", err)
	}
	line, err := r.ReadLine()
	if err != nil || string(line) != "FOLLOW" {
		t.Fatalf("payload not drained: ReadLine = %q, %v", line, err)
	}
}

func TestReceiveShortRead(t *testing.T) {
	dir := t.TempDir()
	r := protocol.NewReader(strings.NewReader("hello"), 0)
	up, err := NewReceiver(dir).Receive(r, protocol.FileHeader{Name: "r.txt", Size: 13}, "u", "r")
	if !errors.Is(err, protocol.ErrShortRead) {
		t.Fatalf("Receive: expected ErrShortRead, got %v", err)
	}
	if errors.Is(err, ErrDestination) {
		t.Fatalf("Receive: short read misreported as destination failure: %v", err)
	}
	if up.Complete() {
		t.Fatalf("Receive: truncated upload reported complete: %+v", up)
	}
}

func TestSendMissingFileWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Send(&buf, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("Send: expected error for missing file")
	}
	if buf.Len() != 0 {
		t.Fatalf("Send wrote %d bytes for a missing file", buf.Len())
	}
}

func TestSendDirectoryRejected(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Send(&buf, t.TempDir()); err == nil {
		t.Fatal("Send: expected error for directory")
	}
	if buf.Len() != 0 {
		t.Fatalf("Send wrote %d bytes for a directory", buf.Len())
	}
}

func TestSendWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(path, []byte("hello world!!"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var buf bytes.Buffer
	hdr, err := Send(&buf, path)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if hdr != (protocol.FileHeader{Name: "report.txt", Size: 13}) {
		t.Fatalf("Send header = %+v", hdr)
	}
	if buf.String() != "FILE report.txt 13\nhello world!!" {
		t.Fatalf("Send wire bytes = %q", buf.String())
	}
}

func TestRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "blob.bin")
	payload := make([]byte, 64*1024+17)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if err := os.WriteFile(src, payload, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	clientSide, serverSide := pipe(t)
	dir := filepath.Join(t.TempDir(), "uploads")

	serverErr := make(chan error, 1)
	go func() {
		r := protocol.NewReader(serverSide, 0)
		line, err := r.ReadLine()
		if err != nil {
			serverErr <- err
			return
		}
		hdr, err := protocol.ParseFileHeader(string(line))
		if err != nil {
			serverErr <- err
			return
		}
		if _, err := NewReceiver(dir).Receive(r, hdr, "alice", "pipe"); err != nil {
			serverErr <- err
			return
		}
		serverErr <- protocol.WriteLine(serverSide, protocol.FileOK(hdr))
	}()

	ack, err := SendAndConfirm(clientSide, protocol.NewReader(clientSide, 0), src)
	if err != nil {
		t.Fatalf("SendAndConfirm: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("server side: %v", err)
	}
	if want := "FILE_OK blob.bin 65553"; ack != want {
		t.Fatalf("ack = %q, want %q", ack, want)
	}
	got, err := os.ReadFile(filepath.Join(dir, "blob.bin"))
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("destination differs from source")
	}
}

package mirror

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"

	"github.com/AxlAleT/Redes2/pkg/model"
)

type putCall struct {
	Bucket   string
	Key      string
	Body     string
	Length   int64
	Metadata map[string]string
}

type fakeS3 struct {
	calls []putCall
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(params.Body)
	f.calls = append(f.calls, putCall{
		Bucket:   aws.ToString(params.Bucket),
		Key:      aws.ToString(params.Key),
		Body:     buf.String(),
		Length:   aws.ToInt64(params.ContentLength),
		Metadata: params.Metadata,
	})
	return &s3.PutObjectOutput{}, nil
}

func writeUpload(t *testing.T, name, content string) model.Upload {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return model.Upload{
		Uploader:      "alice",
		SanitizedName: name,
		Path:          p,
		Size:          int64(len(content)),
		Digest:        "feed",
	}
}

func TestMirror(t *testing.T) {
	fake := &fakeS3{}
	m := &S3Mirror{Client: fake, Bucket: "chat-uploads", Prefix: "incoming"}

	if err := m.Mirror(context.Background(), writeUpload(t, "report.txt", "hello world!!")); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	want := []putCall{{
		Bucket:   "chat-uploads",
		Key:      "incoming/report.txt",
		Body:     "hello world!!",
		Length:   13,
		Metadata: map[string]string{"uploader": "alice", "blake2b": "feed"},
	}}
	if diff := cmp.Diff(want, fake.calls); diff != "" {
		t.Fatalf("put calls mismatch (-want +got):\n%s", diff)
	}
}

func TestMirrorErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		m := &S3Mirror{Client: &fakeS3{}, Bucket: "b"}
		err := m.Mirror(context.Background(), model.Upload{Path: filepath.Join(t.TempDir(), "gone"), SanitizedName: "gone"})
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})
	t.Run("put fails", func(t *testing.T) {
		boom := errors.New("boom")
		m := &S3Mirror{Client: &fakeS3{err: boom}, Bucket: "b"}
		err := m.Mirror(context.Background(), writeUpload(t, "a.bin", "x"))
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want wrapping %v", err, boom)
		}
	})
}

func TestKey(t *testing.T) {
	tests := map[string]struct {
		prefix, name, want string
	}{
		"no prefix":      {prefix: "", name: "a.txt", want: "a.txt"},
		"prefix":         {prefix: "chat", name: "a.txt", want: "chat/a.txt"},
		"trailing slash": {prefix: "chat/", name: "a.txt", want: "chat/a.txt"},
		"nested prefix":  {prefix: "chat/2024", name: "a.txt", want: "chat/2024/a.txt"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := &S3Mirror{Prefix: tc.prefix}
			if got := m.Key(tc.name); got != tc.want {
				t.Fatalf("Key(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestNewStaticCredentials(t *testing.T) {
	m, err := New(context.Background(), Config{
		Bucket:          "chat-uploads",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		UsePathStyle:    true,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Client == nil || m.Bucket != "chat-uploads" {
		t.Fatalf("unexpected mirror: %+v", m)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty config should be disabled")
	}
	if !(Config{Bucket: "b"}).Enabled() {
		t.Fatal("config with bucket should be enabled")
	}
}

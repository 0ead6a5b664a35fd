// Package mirror copies received uploads to S3-compatible object storage.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/AxlAleT/Redes2/pkg/model"
)

// Config selects the bucket uploads are mirrored to. An empty Bucket disables mirroring.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // e.g. http://127.0.0.1:9000 for MinIO
	Prefix          string `yaml:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// S3ClientAPI is the subset of the S3 client the mirror uses.
type S3ClientAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads files to a single bucket.
type S3Mirror struct {
	Client S3ClientAPI
	Bucket string
	Prefix string
}

// New builds an S3Mirror from the default AWS credential chain, overridden by
// static keys and a custom endpoint when cfg sets them.
func New(ctx context.Context, cfg Config) (*S3Mirror, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Mirror{
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	}, nil
}

// Key returns the object key for a sanitized file name.
func (m *S3Mirror) Key(name string) string {
	return path.Join(m.Prefix, name)
}

// Mirror copies the file recorded in up to the bucket. The local file is left in place.
func (m *S3Mirror) Mirror(ctx context.Context, up model.Upload) error {
	f, err := os.Open(up.Path) //nolint:gosec // path built by the receiver from a sanitized name
	if err != nil {
		return fmt.Errorf("mirror: open %s: %w", up.Path, err)
	}
	defer func() { _ = f.Close() }()

	key := m.Key(up.SanitizedName)
	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(up.Size),
		Metadata: map[string]string{
			"uploader": up.Uploader,
			"blake2b":  up.Digest,
		},
	})
	if err != nil {
		return fmt.Errorf("mirror: put %s: %w", key, err)
	}

	slog.Debug("upload mirrored", "bucket", m.Bucket, "key", key, "size", up.Size)
	return nil
}

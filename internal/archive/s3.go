// Package archive copies completed cycle directories to S3-compatible
// object storage.
package archive

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/i474232898/atmostream/internal/forecast"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// S3Config configures the archiver.
type S3Config struct {
	Bucket          string // S3 bucket name
	Prefix          string // key prefix, without trailing slash
	Region          string // AWS region
	EndpointURL     string // optional custom endpoint (MinIO)
	AccessKeyID     string // optional static credentials
	SecretAccessKey string
}

// ObjectPutter is the subset of the S3 client used by the archiver.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads every file of a cycle directory to
// <prefix>/<cycle dir>/<file>.
type S3Archiver struct {
	log    *slog.Logger
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Archiver builds an S3 client from cfg. Static credentials are used
// when given, otherwise the default AWS credential chain applies.
func NewS3Archiver(ctx context.Context, log *slog.Logger, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, &forecast.ConfigurationError{Field: "archive.bucket", Message: "must not be empty"}
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true
		},
	}
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return NewWithClient(log, s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient builds an archiver around an existing client.
func NewWithClient(log *slog.Logger, client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{log: log, client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key of a file in a cycle directory.
func (a *S3Archiver) Key(dir, name string) string {
	return path.Join(a.prefix, filepath.Base(dir), name)
}

func (a *S3Archiver) Archive(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", forecast.ErrArchiveFailure, dir, err)
	}

	var uploaded int
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := a.put(ctx, dir, e); err != nil {
			return fmt.Errorf("%w: %s: %w", forecast.ErrArchiveFailure, e.Name(), err)
		}
		uploaded++
	}
	a.log.Info("archive: uploaded cycle", "dir", dir, "bucket", a.bucket, "objects", uploaded)
	return nil
}

func (a *S3Archiver) put(ctx context.Context, dir string, e fs.DirEntry) error {
	f, err := os.Open(filepath.Join(dir, e.Name()))
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(dir, e.Name())),
		Body:   f,
	})
	return err
}

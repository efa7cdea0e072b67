// Package s3 implements a backend.Backend that mirrors store paths to an
// S3-compatible binary cache bucket.
//
// Each store path becomes one object: a gzip-compressed tar archive of the
// path, keyed by the path's base name under an optional prefix. The bucket
// must already exist.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/pkg/backend"
	"github.com/mightyiam/magic-nix-cache/pkg/journal"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// Config configures the S3 backend.
type Config struct {
	// Bucket is the target bucket name. Required.
	Bucket string

	// Region is the AWS region.
	Region string

	// Endpoint overrides the S3 endpoint (MinIO, R2, and friends).
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When empty the
	// default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle uses path-style addressing, required by most
	// S3-compatible servers.
	ForcePathStyle bool

	// KeyPrefix is prepended to every object key.
	KeyPrefix string

	// Uploader tunes the queue and worker pool.
	Uploader backend.UploaderConfig
}

// Backend mirrors store paths to an S3 bucket.
type Backend struct {
	client   *awss3.Client
	bucket   string
	uploader *backend.Uploader
}

// NewClient creates an S3 client from configuration parameters.
func NewClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// New creates and starts the backend, verifying bucket access up front so a
// misconfigured bucket fails at startup rather than during drain.
func New(ctx context.Context, cfg Config, j *journal.Journal) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("cannot access bucket %q: %w", cfg.Bucket, err)
	}

	b := &Backend{client: client, bucket: cfg.Bucket}
	b.uploader = backend.NewUploader("s3", cfg.Uploader, func(ctx context.Context, p store.StorePath) error {
		return b.uploadPath(ctx, cfg.KeyPrefix, j, p)
	})
	b.uploader.Start(ctx)

	return b, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "s3" }

// Enqueue implements backend.Backend.
func (b *Backend) Enqueue(ctx context.Context, paths []store.StorePath) error {
	return b.uploader.Enqueue(ctx, paths)
}

// Shutdown implements backend.Backend.
func (b *Backend) Shutdown(ctx context.Context) (backend.Report, error) {
	return b.uploader.Drain(ctx)
}

func (b *Backend) uploadPath(ctx context.Context, keyPrefix string, j *journal.Journal, p store.StorePath) error {
	uploaded, err := j.IsUploaded(ctx, "s3", p)
	if err != nil {
		return err
	}
	if uploaded {
		return backend.ErrSkipUpload
	}

	key := objectKey(keyPrefix, p)

	// An object that already exists needs no re-upload: store paths are
	// content-addressed, so same key means same content.
	_, err = b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		if markErr := j.MarkUploaded(ctx, "s3", p); markErr != nil {
			logger.Warn("Failed to journal existing object", "path", p, "error", markErr)
		}
		return backend.ErrSkipUpload
	}

	archive, err := backend.ArchivePath(p)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", p, err)
	}

	_, err = b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(archive),
		StorageClass: types.StorageClassStandard,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}

	if err := j.MarkUploaded(ctx, "s3", p); err != nil {
		logger.Warn("Failed to journal uploaded path", "path", p, "error", err)
	}

	logger.Debug("Uploaded path to S3", "bucket", b.bucket, "key", key, "bytes", len(archive))
	return nil
}

// objectKey derives the object key for a store path.
func objectKey(prefix string, p store.StorePath) string {
	base := filepath.Base(p.String()) + ".tar.gz"
	if prefix == "" {
		return base
	}
	return prefix + "/" + base
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/config"
)

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo is one entry of a bucket listing.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Bucket abstracts the object store media is read from and subtitles are written to.
type Bucket interface {
	// Walk calls fn for every object in listing order, fetching pages as needed.
	// It stops at the first error from the store or from fn.
	Walk(ctx context.Context, fn func(ObjectInfo) error) error

	// Open returns a reader for the object body.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Save stores data under key.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// HeadBucket checks that the bucket exists and is reachable.
	HeadBucket(ctx context.Context) error

	// Name returns the bucket name or directory.
	Name() string

	// Type returns "s3" or "local".
	Type() string
}

// New creates a Bucket based on config. An unreachable S3 bucket is logged,
// not fatal: the health endpoint reports it.
func New(cfg *config.Config, log zerolog.Logger) (Bucket, error) {
	if cfg.StorageBackend == "local" {
		log.Info().Str("dir", cfg.LocalBucketDir).Msg("using local directory bucket")
		return NewLocalStore(cfg.LocalBucketDir), nil
	}

	s3store, err := NewS3Store(S3Options{
		Bucket:    cfg.BucketName,
		Region:    cfg.AWSRegion,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Endpoint:  cfg.S3Endpoint,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.BucketName).Str("endpoint", cfg.S3Endpoint).
			Msg("S3 startup check failed")
	} else {
		log.Info().Str("bucket", cfg.BucketName).Str("endpoint", cfg.S3Endpoint).Msg("S3 connection verified")
	}
	return s3store, nil
}

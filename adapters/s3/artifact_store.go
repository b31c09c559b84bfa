package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds the object storage connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// ArtifactStore archives consultation audio in an S3 compatible bucket
type ArtifactStore struct {
	client *minio.Client
	bucket string
	host   string
	logger *zap.Logger
}

// NewArtifactStore connects to the bucket and checks that it exists
func NewArtifactStore(ctx context.Context, cfg Config, logger *zap.Logger) (*ArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	logger.Info("Connected to artifact store",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket))

	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		host:   fmt.Sprintf("%s://%s", scheme, cfg.Endpoint),
		logger: logger,
	}, nil
}

// PutObject implements repositories.ArtifactStore and returns the object URL
func (s *ArtifactStore) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-at": time.Now().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	s.logger.Info("Archived consultation audio",
		zap.String("key", key),
		zap.String("size", humanize.Bytes(uint64(size))))

	return buildObjectURL(s.host, s.bucket, key), nil
}

// RemoveObject deletes an object, e.g. audio staged only for transcription
func (s *ArtifactStore) RemoveObject(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	return nil
}

func buildObjectURL(host, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", host, bucket, (&url.URL{Path: path.Clean(key)}).EscapedPath())
}

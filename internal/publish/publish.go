// Package publish uploads a run's output file to an S3-compatible bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the bucket coordinates. Publishing is disabled unless both
// Endpoint and Bucket are set.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key.
	Prefix string
	Region string
	Secure bool
	// CreateBucket makes the bucket when it does not exist yet.
	CreateBucket bool
	// PathStyle forces path-style bucket lookup, as MinIO expects.
	PathStyle bool
}

// Enabled reports whether publishing is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Publisher uploads files with a minio client.
type Publisher struct {
	client *minio.Client
	cfg    Config
}

// New builds a Publisher. No request is made until Upload.
func New(cfg Config) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("publish: endpoint and bucket are required")
	}

	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: client: %w", err)
	}
	return &Publisher{client: client, cfg: cfg}, nil
}

// Key returns the object key a file is stored under for runID.
func (p *Publisher) Key(filePath, runID string) string {
	parts := []string{}
	if prefix := strings.Trim(p.cfg.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.Base(filePath))
	return path.Join(parts...)
}

// Upload stores filePath in the bucket and returns its object key.
func (p *Publisher) Upload(ctx context.Context, filePath, runID string) (string, error) {
	if p.cfg.CreateBucket {
		exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
		if err != nil {
			return "", fmt.Errorf("publish: check bucket %s: %w", p.cfg.Bucket, err)
		}
		if !exists {
			if err := p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region}); err != nil {
				return "", fmt.Errorf("publish: make bucket %s: %w", p.cfg.Bucket, err)
			}
		}
	}

	key := p.Key(filePath, runID)
	_, err := p.client.FPutObject(ctx, p.cfg.Bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType(filePath),
	})
	if err != nil {
		return "", fmt.Errorf("publish: upload %s: %w", key, err)
	}
	return key, nil
}

func contentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return "text/csv"
	case ".json", ".jsonl":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

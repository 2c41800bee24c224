/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package dataset

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hortator-ai/annbench/internal/codec"
)

// ObjectStoreConfig locates datasets in an S3-compatible bucket.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// ObjectStoreFetcher downloads dataset files from an S3-compatible bucket.
type ObjectStoreFetcher struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectStoreFetcher connects to the configured endpoint. Empty keys fall
// back to the standard AWS/MinIO environment variables.
func NewObjectStoreFetcher(cfg ObjectStoreConfig) (*ObjectStoreFetcher, error) {
	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	if cfg.AccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &ObjectStoreFetcher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (f *ObjectStoreFetcher) key(name string) string {
	return path.Join(f.prefix, name+codec.Ext)
}

// Fetch downloads the dataset object to dst. A missing object maps to
// ErrDatasetNotFound.
func (f *ObjectStoreFetcher) Fetch(ctx context.Context, name, dst string) error {
	key := f.key(name)
	if _, err := f.client.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return fmt.Errorf("%w: s3://%s/%s", ErrDatasetNotFound, f.bucket, key)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	// FGetObject downloads to a .part file and renames on completion.
	return f.client.FGetObject(ctx, f.bucket, key, dst, minio.GetObjectOptions{})
}

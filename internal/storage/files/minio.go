package files

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/xenking/checkout-core/internal/domain/variation"
)

var _ variation.FileRemover = (*MinIO)(nil)

// MinIOConfig addresses an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type objectRemover interface {
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// MinIO removes objects whose URLs have the form <endpoint>/<bucket>/<key>.
type MinIO struct {
	client objectRemover
	bucket string
}

// NewMinIO creates a MinIO remover.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

// Remove deletes the object behind rawURL. S3 treats a missing key as
// success.
func (m *MinIO) Remove(ctx context.Context, rawURL string) error {
	key, err := objectKey(rawURL, m.bucket)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

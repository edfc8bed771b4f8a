// storage/client.go
package storage

import (
	"context"
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dwdown/dwdown/models"
)

// ObjectStore is the narrow surface the bucket pipelines need from an
// S3-compatible service. It exists so the transfer logic can be exercised
// against fakes.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	List(ctx context.Context, bucket, prefix string) ([]models.RemoteFileRecord, error)
	Download(ctx context.Context, bucket, remotePath, localPath string) error
	Upload(ctx context.Context, bucket, localPath, remotePath string) (etag string, err error)
	Stat(ctx context.Context, bucket, remotePath string) (etag string, err error)
}

// minioStore adapts a MinIO client to ObjectStore.
type minioStore struct {
	client *minio.Client
}

// NewMinioStore builds an ObjectStore backed by a MinIO/S3 endpoint.
func NewMinioStore(endpoint, accessKey, secretKey string, secure bool) (ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &minioStore{client: client}, nil
}

func (s *minioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

func (s *minioStore) List(ctx context.Context, bucket, prefix string) ([]models.RemoteFileRecord, error) {
	var records []models.RemoteFileRecord
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", bucket, obj.Err)
		}
		records = append(records, models.RemoteFileRecord{
			Path:        obj.Key,
			ContentHash: obj.ETag,
		})
	}
	return records, nil
}

func (s *minioStore) Download(ctx context.Context, bucket, remotePath, localPath string) error {
	return s.client.FGetObject(ctx, bucket, remotePath, localPath, minio.GetObjectOptions{})
}

func (s *minioStore) Upload(ctx context.Context, bucket, localPath, remotePath string) (string, error) {
	info, err := s.client.FPutObject(ctx, bucket, remotePath, localPath, minio.PutObjectOptions{})
	if err != nil {
		return "", err
	}
	return info.ETag, nil
}

func (s *minioStore) Stat(ctx context.Context, bucket, remotePath string) (string, error) {
	info, err := s.client.StatObject(ctx, bucket, remotePath, minio.StatObjectOptions{})
	if err != nil {
		return "", err
	}
	return info.ETag, nil
}

package assets

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/iurnickita/digimart/internal/assets/config"
)

type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(ctx context.Context, cfg config.Config) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("check s3 bucket %q: %w", cfg.S3Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create s3 bucket %q: %w", cfg.S3Bucket, err)
		}
	}

	return &S3Storage{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *S3Storage) Open(ctx context.Context, locator string) (Asset, error) {
	key, err := cleanLocator(locator)
	if err != nil {
		return Asset{}, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Asset{}, fmt.Errorf("get object: %w", err)
	}
	// GetObject ленивый: ошибки отсутствия видны только в Stat
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Asset{}, ErrNotFound
		}
		return Asset{}, fmt.Errorf("stat object: %w", err)
	}

	ct := info.ContentType
	if ct == "" {
		ct = contentType(key)
	}
	return Asset{Body: obj, Size: info.Size, ContentType: ct, Name: path.Base(key)}, nil
}

func (s *S3Storage) Put(ctx context.Context, locator string, body io.Reader, size int64) error {
	key, err := cleanLocator(locator)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("put object to s3: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rmashqip/internal/config"
)

// ObjectStore 图片与头像的对象存储（S3 兼容）
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.cfg.BucketImages, s.cfg.BucketAvatars} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("bucket exists %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// Put 上传对象并返回公开访问地址
func (s *ObjectStore) Put(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, path, err)
	}
	return s.PublicURL(bucket, path), nil
}

func (s *ObjectStore) PublicURL(bucket, path string) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if s.cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + strings.TrimPrefix(strings.TrimPrefix(s.cfg.Endpoint, "https://"), "http://")
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, path)
}

func (s *ObjectStore) ImagesBucket() string  { return s.cfg.BucketImages }
func (s *ObjectStore) AvatarsBucket() string { return s.cfg.BucketAvatars }

// Package avatar stores profile pictures in S3-compatible object storage.
package avatar

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxAvatarSize = 5 << 20 // 5MB

var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the avatar bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Upload stores an avatar and returns its object key. One object per user:
// a new upload replaces the old avatar.
func (s *Service) Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	if size > maxAvatarSize {
		return "", fmt.Errorf("avatar too large: %d bytes", size)
	}

	key := "avatars/" + userID + ext
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return key, nil
}

// Fetch streams an avatar by its object key. The caller must close the
// returned reader.
func (s *Service) Fetch(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(key, "avatars/") {
		return nil, "", fmt.Errorf("invalid avatar key %q", key)
	}
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("fetch avatar: %w", err)
	}
	stat, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, "", fmt.Errorf("stat avatar: %w", err)
	}
	return object, stat.ContentType, nil
}

// PresignedURL returns a time-limited download URL for an avatar.
func (s *Service) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign avatar url: %w", err)
	}
	return url.String(), nil
}

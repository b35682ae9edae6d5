package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"storedesk/config"
)

// MaxAvatarSize is the largest avatar upload accepted, in bytes.
const MaxAvatarSize = 2 << 20

var (
	ErrDisabled      = errors.New("blobstore: object storage not configured")
	ErrInvalidAvatar = errors.New("blobstore: invalid avatar")
)

var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarType reports whether contentType is an accepted avatar image type.
func AvatarType(contentType string) bool {
	_, ok := avatarTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// Store keeps profile avatars in an S3-compatible bucket.
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to cfg.Endpoint. An empty endpoint returns a disabled store.
func New(cfg *config.StorageConfig) (*Store, error) {
	if cfg.Endpoint == "" {
		return &Store{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: client: %w", err)
	}
	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + cfg.Endpoint
	}
	return &Store{client: client, bucket: cfg.Bucket, publicURL: public}, nil
}

func (s *Store) Enabled() bool { return s != nil && s.client != nil }

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blobstore: check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("blobstore: create bucket %s: %w", s.bucket, err)
	}
	log.Printf("blobstore: created bucket %s", s.bucket)
	return nil
}

// PutAvatar uploads an avatar image for profileID and returns its public URL.
func (s *Store) PutAvatar(ctx context.Context, profileID string, r io.Reader, size int64, contentType string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	key, err := avatarKey(profileID, contentType, size, time.Now())
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: put %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *Store) objectURL(key string) string {
	return s.publicURL + "/" + url.PathEscape(s.bucket) + "/" + key
}

// avatarKey validates the upload and names the object. Each upload gets a
// fresh key so cached copies of the previous avatar are never served.
func avatarKey(profileID, contentType string, size int64, now time.Time) (string, error) {
	if profileID == "" {
		return "", fmt.Errorf("%w: missing profile", ErrInvalidAvatar)
	}
	ext, ok := avatarTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidAvatar, contentType)
	}
	if size <= 0 || size > MaxAvatarSize {
		return "", fmt.Errorf("%w: size %d outside 1..%d bytes", ErrInvalidAvatar, size, MaxAvatarSize)
	}
	return path.Join("avatars", url.PathEscape(profileID), fmt.Sprintf("%d%s", now.UnixNano(), ext)), nil
}

// services/common/objectstore/minio.go
package objectstore

import (
	"context"
	"io"
	"net/url"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOConfig configures an S3-compatible backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinIO stores objects in one bucket of an S3-compatible service.
type MinIO struct {
	log    *zap.Logger
	client *minio.Client
	bucket string
}

var _ Store = (*MinIO)(nil)

// NewMinIO creates the client without touching the network.
func NewMinIO(log *zap.Logger, cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	return &MinIO{log: log, client: client, bucket: cfg.Bucket}, nil
}

// OpenMinIO creates the client and makes sure the bucket exists.
func OpenMinIO(ctx context.Context, log *zap.Logger, cfg MinIOConfig) (*MinIO, error) {
	store, err := NewMinIO(log, cfg)
	if err != nil {
		return nil, err
	}

	exists, err := store.client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	if !exists {
		if err := store.client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, ErrUnavailable.New("create bucket %q: %v", cfg.Bucket, err)
		}
		log.Info("✅ Created bucket", zap.String("bucket", cfg.Bucket))
	}
	log.Info("✅ MinIO client initialized", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
	return store, nil
}

// Put implements Store.
func (s *MinIO) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return mapMinIOError(key, err)
	}
	s.log.Debug("stored object", zap.String("key", key), zap.String("size", humanize.Bytes(uint64(info.Size))))
	return nil
}

// Stat implements Store.
func (s *MinIO) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, mapMinIOError(key, err)
	}
	return fromMinIO(info), nil
}

// Get implements Store.
func (s *MinIO) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, mapMinIOError(key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before any bytes are sent.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, mapMinIOError(key, err)
	}
	return obj, fromMinIO(info), nil
}

// List implements Store.
func (s *MinIO) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapMinIOError(prefix, obj.Err)
		}
		objects = append(objects, fromMinIO(obj))
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// SignedURL implements Store.
func (s *MinIO) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	return s.presign(ctx, key, ttl)
}

func (s *MinIO) presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", ErrUnavailable.Wrap(err)
	}
	return u.String(), nil
}

// Ping implements Store.
func (s *MinIO) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return ErrUnavailable.Wrap(err)
	}
	return nil
}

func fromMinIO(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	}
}

func mapMinIOError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return ErrNotFound.New("%s", key)
	}
	return ErrUnavailable.Wrap(err)
}

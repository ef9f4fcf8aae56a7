package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

// Publisher ships a freshly written dataset to a secondary location the
// front end can read from.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, dataset []byte) error
}

// MinioOptions configures an S3-compatible dataset upload.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Object    string
}

type minioPublisher struct {
	client *minio.Client
	bucket string
	object string
}

// NewMinioPublisher uploads the dataset as a single JSON object.
func NewMinioPublisher(opts MinioOptions) (Publisher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	object := opts.Object
	if object == "" {
		object = "buildings_data.json"
	}
	return &minioPublisher{client: client, bucket: opts.Bucket, object: object}, nil
}

func (m *minioPublisher) Name() string { return "minio" }

func (m *minioPublisher) Publish(ctx context.Context, dataset []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.object, bytes.NewReader(dataset), int64(len(dataset)), minio.PutObjectOptions{
		ContentType:  "application/json",
		CacheControl: "public, max-age=300",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", m.bucket, m.object, err)
	}
	return nil
}

// RedisOptions configures a dataset copy stored under a single key.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

type redisPublisher struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisPublisher stores the dataset under opts.Key. A zero TTL keeps the
// key until the next publish overwrites it.
func NewRedisPublisher(opts RedisOptions) Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisPublisher(client, opts.Key, opts.TTL)
}

func newRedisPublisher(client redis.Cmdable, key string, ttl time.Duration) *redisPublisher {
	if key == "" {
		key = "classfinder:dataset"
	}
	return &redisPublisher{client: client, key: key, ttl: ttl}
}

func (r *redisPublisher) Name() string { return "redis" }

func (r *redisPublisher) Publish(ctx context.Context, dataset []byte) error {
	if err := r.client.Set(ctx, r.key, dataset, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

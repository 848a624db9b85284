// Package backup keeps an extra copy of every upload in S3-compatible object
// storage (Supabase Storage, MinIO or AWS). Backups are best-effort: the
// upload flow logs and ignores backup failures.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("backup storage is not configured")

// Store writes and removes backup copies.
type Store interface {
	// Put stores content and returns the object key.
	Put(ctx context.Context, ownerID, filename string, content []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Config selects the bucket and credentials.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether enough is configured to reach a bucket.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 implements Store on an S3 bucket.
type S3 struct {
	api    objectAPI
	bucket string
	now    func() time.Time
}

// NewS3 builds an S3 store with static credentials. A custom endpoint
// switches to path-style addressing, which Supabase and MinIO require.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("could not load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{api: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Key returns the object key for a backup written at t: the owner's prefix,
// a millisecond timestamp and the original extension.
func Key(ownerID, filename string, t time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%d-file%s", ownerID, t.UnixMilli(), ext)
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, ownerID, filename string, content []byte) (string, error) {
	key := Key(ownerID, filename, s.now())
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(content),
		ContentType:  aws.String(contentType(filename)),
		CacheControl: aws.String("max-age=3600"),
	})
	if err != nil {
		return "", fmt.Errorf("backup upload failed: %w", err)
	}
	return key, nil
}

// Delete implements Store.
func (s *S3) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("backup delete failed: %w", err)
	}
	return nil
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsm":
		return "application/vnd.ms-excel.sheet.macroEnabled.12"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Noop is the Store used when no bucket is configured.
type Noop struct{}

// Put implements Store.
func (Noop) Put(context.Context, string, string, []byte) (string, error) { return "", ErrDisabled }

// Delete implements Store.
func (Noop) Delete(context.Context, string) error { return nil }

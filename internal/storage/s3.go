// Package storage keeps photo bytes in an S3-compatible bucket. Clients upload and
// download directly through presigned URLs; the API never proxies image data.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"photorank-backend/internal/config"
)

// allowedExtensions maps accepted image content types to object key extensions
var allowedExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Presigned is a time-limited URL for one object
type Presigned struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectStore presigns uploads and downloads and deletes objects
type ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

// NewObjectStore builds an S3 client. A custom endpoint (Cloudflare R2, MinIO) switches to
// path-style addressing; static keys are used when both are set, otherwise the default chain.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (*ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ObjectStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expiry:  cfg.PresignExpiry,
	}, nil
}

// NewKey returns a fresh object key for an upload in a category
func NewKey(categoryID int64, contentType string) (string, error) {
	ext, ok := allowedExtensions[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	return path.Join("photos", fmt.Sprint(categoryID), uuid.NewString()+ext), nil
}

// PresignUpload returns a URL the client can PUT the object to
func (s *ObjectStore) PresignUpload(ctx context.Context, key, contentType string) (*Presigned, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}
	return &Presigned{URL: req.URL, Method: req.Method, Key: key, ExpiresAt: time.Now().Add(s.expiry)}, nil
}

// PresignDownload returns a URL the client can GET the object from
func (s *ObjectStore) PresignDownload(ctx context.Context, key string) (*Presigned, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	return &Presigned{URL: req.URL, Method: req.Method, Key: key, ExpiresAt: time.Now().Add(s.expiry)}, nil
}

// Delete removes an object
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Package objstore stores request attachments in an S3-compatible bucket
// through minio-go. It implements leave.AttachmentBackend.
package objstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const defaultRegion = "us-east-1"

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	// PublicURL prefixes returned references. Defaults to the endpoint.
	PublicURL string
}

type Bucket struct {
	client *minio.Client
	bucket string
	base   string
}

func New(cfg Config) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &Bucket{client: client, bucket: cfg.Bucket, base: strings.TrimRight(base, "/")}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: defaultRegion})
}

// PutNew uploads u as name unless an object with that name already exists.
func (b *Bucket) PutNew(ctx context.Context, name string, u leave.Upload) (string, error) {
	_, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return "", fmt.Errorf("%w: %s", leave.ErrAttachmentExists, name)
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return "", err
	}

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := b.client.PutObject(ctx, b.bucket, name, u.Body, u.Size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", err
	}
	return b.Ref(name), nil
}

// Ref returns the public reference for an object name.
func (b *Bucket) Ref(name string) string {
	return b.base + "/" + b.bucket + "/" + name
}

// ObjectName extracts the object name from a reference: everything after
// "/<bucket>/".
func (b *Bucket) ObjectName(ref string) (string, error) {
	_, name, ok := strings.Cut(ref, "/"+b.bucket+"/")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: reference %q is not in bucket %s", generic.ErrValidation, ref, b.bucket)
	}
	return name, nil
}

func (b *Bucket) Remove(ctx context.Context, ref string) error {
	name, err := b.ObjectName(ref)
	if err != nil {
		return err
	}
	return b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{})
}

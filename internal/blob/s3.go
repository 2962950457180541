// ABOUTME: S3 implementation of the blob store for MinIO-compatible endpoints
// ABOUTME: Static credentials, custom base endpoint, presigned GETs for downloads

package blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the connection settings for the object store.
type S3Config struct {
	Endpoint    string // base endpoint, e.g. http://localhost:9000 for MinIO
	Region      string
	AccessKey   string
	SecretKey   string
	ImageBucket string
	FileBucket  string
	SignTTL     time.Duration // validity of presigned download URLs
}

// S3Store implements Store against any S3-compatible object store.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     S3Config
}

// NewS3Store builds the S3 client and presigner from static credentials.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO serves buckets under the path, not a subdomain
		o.UsePathStyle = true
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

func (s *S3Store) bucket(kind Kind) string {
	if kind == KindImage {
		return s.cfg.ImageBucket
	}
	return s.cfg.FileBucket
}

// Put uploads an object to the bucket for its kind.
func (s *S3Store) Put(ctx context.Context, kind Kind, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket(kind)),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

// SignedGetURL returns a presigned download URL for one object.
func (s *S3Store) SignedGetURL(ctx context.Context, kind Kind, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket(kind)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.SignTTL))
	if err != nil {
		return "", fmt.Errorf("presigning object %s: %w", key, err)
	}
	return req.URL, nil
}

// List returns all keys under a prefix, following pagination.
func (s *S3Store) List(ctx context.Context, kind Kind, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket(kind)),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Delete removes the given objects one by one. S3 DeleteObject on a missing
// key succeeds, which matches the contract.
func (s *S3Store) Delete(ctx context.Context, kind Kind, keys []string) error {
	for _, key := range keys {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket(kind)),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("deleting object %s: %w", key, err)
		}
	}
	return nil
}

package persist

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage stores snapshots as objects under <prefix><key>.json.
//
// Example usage:
//
//	client := persist.NewS3Client(persist.S3ClientConfig{Region: "eu-west-1"})
//	storage := persist.NewS3Storage(client, "campusdesk-state", "prod/")
type S3Storage struct {
	client S3API
	bucket string
	prefix string

	mu     sync.RWMutex
	closed bool
}

// NewS3Storage creates an S3-backed storage.
func NewS3Storage(client S3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// S3ClientConfig holds what NewS3Client needs to build a client without the
// shared AWS config loader.
type S3ClientConfig struct {
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle addresses buckets as <endpoint>/<bucket>.
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewS3Client builds an *s3.Client with static credentials.
func NewS3Client(cfg S3ClientConfig) *s3.Client {
	creds := aws.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		Source:          "campusdesk",
	}
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *S3Storage) objectKey(key string) string {
	return s.prefix + key + ".json"
}

func (s *S3Storage) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Load fetches the object for key.
func (s *S3Storage) Load(ctx context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStorageClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 get %s: %w", s.objectKey(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", s.objectKey(key), err)
	}
	return data, nil
}

// Save uploads data as a single PutObject, which S3 applies atomically.
func (s *S3Storage) Save(ctx context.Context, key string, data []byte) error {
	if s.isClosed() {
		return ErrStorageClosed
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", s.objectKey(key), err)
	}
	return nil
}

// Delete removes the object for key.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrStorageClosed
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %s: %w", s.objectKey(key), err)
	}
	return nil
}

// Close marks the storage closed. The client is not owned.
func (s *S3Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || strings.HasSuffix(code, "NotFound")
	}
	return false
}

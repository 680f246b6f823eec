package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3API is the subset of the AWS S3 client the store uses. It allows mocking
// in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Storage implements Store on top of an Amazon S3 bucket. Keys are
// {prefix}{id}.
type S3Storage struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Storage builds an S3 client from the default AWS credential chain.
// endpoint overrides the service URL and switches to path-style addressing,
// which S3-compatible providers usually require. Static credentials are used
// when both keys are set.
func NewS3Storage(ctx context.Context, bucket, region, prefix, endpoint, accessKeyID, secretAccessKey string) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	slog.Info("storage: using S3 bucket", "bucket", bucket, "region", region, "prefix", prefix)
	return NewS3StorageWithClient(s3.NewFromConfig(cfg, s3Opts...), bucket, prefix), nil
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(client S3API, bucket, prefix string) *S3Storage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Storage{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Storage) key(id string) string {
	return s.prefix + id
}

// Fetch reads the whole object.
func (s *S3Storage) Fetch(ctx context.Context, id string) (*Object, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, s3Error("fetch", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "fetch", Kind: ErrTransport, Err: err}
	}
	return &Object{
		Data:               data,
		ContentType:        aws.ToString(resp.ContentType),
		ContentDisposition: aws.ToString(resp.ContentDisposition),
	}, nil
}

// Upload stores the payload under a fresh identifier.
func (s *S3Storage) Upload(ctx context.Context, in UploadRequest) (*Record, error) {
	id := uuid.NewString()
	uploadedAt := in.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(in.Data),
		ContentLength: aws.Int64(int64(len(in.Data))),
		Metadata: map[string]string{
			"file-name":     in.FileName,
			"uploaded-from": in.UploadedFrom,
			"uploaded-at":   uploadedAt.Format(time.RFC3339),
		},
	}
	if in.MimeType != "" {
		input.ContentType = aws.String(in.MimeType)
	}
	if d := inlineDisposition(in.FileName); d != "" {
		input.ContentDisposition = aws.String(d)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, s3Error("upload", err)
	}
	return &Record{
		ID:         id,
		FileName:   in.FileName,
		Size:       int64(len(in.Data)),
		MimeType:   in.MimeType,
		UploadedAt: uploadedAt,
	}, nil
}

// s3Error maps an AWS SDK error onto the storage error kinds, first by API
// error code and then by HTTP status. Errors carrying neither never reached S3.
func s3Error(op string, err error) error {
	status := 0
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	kind := ErrUnavailable
	switch {
	case code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket" || status == http.StatusNotFound:
		kind = ErrNotFound
	case code == "SlowDown" || code == "Throttling" || code == "TooManyRequests" || status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case code == "EntityTooLarge" || status == http.StatusRequestEntityTooLarge:
		kind = ErrTooLarge
	case code == "" && status == 0:
		kind = ErrTransport
	}
	return &Error{Op: op, Kind: kind, Status: status, Err: err}
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements Store using a MinIO (or any S3-compatible) backend.
// Objects are stored under their identifier; the original file name and the
// upload metadata travel as user metadata.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage creates a MinIO client and ensures the bucket exists. The
// bucket stays private: browsers read through the retrieval gateway.
func NewMinioStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		slog.Info("storage: created bucket", "bucket", bucket)
	}

	return &MinioStorage{client: client, bucket: bucket}, nil
}

// Fetch reads the whole object. GetObject is lazy, so the first error (a
// missing key included) surfaces from Stat.
func (s *MinioStorage) Fetch(ctx context.Context, id string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError("fetch", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, minioError("fetch", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, minioError("fetch", err)
	}
	return &Object{
		Data:               data,
		ContentType:        info.ContentType,
		ContentDisposition: info.Metadata.Get("Content-Disposition"),
	}, nil
}

// Upload stores the payload under a fresh identifier.
func (s *MinioStorage) Upload(ctx context.Context, in UploadRequest) (*Record, error) {
	id := uuid.NewString()
	uploadedAt := in.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	_, err := s.client.PutObject(ctx, s.bucket, id, bytes.NewReader(in.Data), int64(len(in.Data)), minio.PutObjectOptions{
		ContentType:        in.MimeType,
		ContentDisposition: inlineDisposition(in.FileName),
		UserMetadata: map[string]string{
			"file-name":     in.FileName,
			"uploaded-from": in.UploadedFrom,
			"uploaded-at":   uploadedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, minioError("upload", err)
	}

	return &Record{
		ID:         id,
		FileName:   in.FileName,
		Size:       int64(len(in.Data)),
		MimeType:   in.MimeType,
		UploadedAt: uploadedAt,
	}, nil
}

// minioError maps a minio-go error onto the storage error kinds. A zero
// ErrorResponse means the request never got an S3 answer.
func minioError(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	kind := ErrUnavailable
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		kind = ErrNotFound
	case resp.Code == "SlowDown" || resp.StatusCode == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case resp.Code == "EntityTooLarge" || resp.StatusCode == http.StatusRequestEntityTooLarge:
		kind = ErrTooLarge
	case resp.StatusCode == 0 && resp.Code == "":
		kind = ErrTransport
	}
	return &Error{Op: op, Kind: kind, Status: resp.StatusCode, Err: err}
}

func inlineDisposition(fileName string) string {
	if fileName == "" {
		return ""
	}
	return fmt.Sprintf(`inline; filename="%s"`, escapeQuotes(fileName))
}

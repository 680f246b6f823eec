// Package upload forwards files from the dashboard to the upstream store and
// reduces upstream failures to a small vocabulary clients can act on.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/studiocms/service/internal/assetref"
	"github.com/studiocms/service/internal/metrics"
	"github.com/studiocms/service/internal/storage"
)

const (
	msgTooLargeUpstream = "The storage service rejected the file because it is too large."
	msgRateLimited      = "Too many uploads right now. Please wait a moment and try again."
	msgUnavailable      = "The storage service is temporarily unavailable. Please try again shortly."
)

// Request is a single file plus the metadata forwarded with it.
type Request struct {
	Data     []byte
	FileName string
	MimeType string
	Metadata Metadata
}

// Metadata is forwarded upstream alongside the file.
type Metadata struct {
	UploadedFrom string
	UploadedAt   time.Time
}

// Service performs uploads. It never retries: a failed upload is reported to
// the client, which decides whether to send it again.
type Service struct {
	store    storage.Store
	resolver *assetref.Resolver
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMaxBytes rejects larger files locally. Zero disables the check.
func WithMaxBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// WithClock replaces time.Now for the upload timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service. resolver builds the public URL of created files.
func NewService(store storage.Store, resolver *assetref.Resolver, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes returns the local size limit, 0 when there is none.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload forwards req upstream once and classifies the result.
func (s *Service) Upload(ctx context.Context, req Request) Outcome {
	if len(req.Data) == 0 {
		return NoFile{}
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		s.logger.Warn("upload: file exceeds local limit", "file", req.FileName, "size", len(req.Data), "limit", s.maxBytes)
		return TooLarge{Message: fmt.Sprintf("The file exceeds the upload limit of %s.", formatBytes(s.maxBytes))}
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(req.Data)
	}
	uploadedAt := req.Metadata.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = s.now().UTC()
	}

	start := time.Now()
	rec, err := s.store.Upload(ctx, storage.UploadRequest{
		Data:         req.Data,
		FileName:     req.FileName,
		MimeType:     mimeType,
		UploadedFrom: req.Metadata.UploadedFrom,
		UploadedAt:   uploadedAt,
	})
	metrics.UpstreamDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	if err != nil {
		return s.classify(req.FileName, err)
	}

	out := *rec
	if out.FileName == "" {
		out.FileName = req.FileName
	}
	if out.Size == 0 {
		out.Size = int64(len(req.Data))
	}
	if out.MimeType == "" {
		out.MimeType = mimeType
	}
	if out.UploadedAt.IsZero() {
		out.UploadedAt = uploadedAt
	}
	s.logger.Info("upload: stored", "id", out.ID, "file", out.FileName, "size", out.Size)
	return Created{Record: out, PublicURL: s.resolver.ProxyURL(out.ID)}
}

func (s *Service) classify(fileName string, err error) Outcome {
	switch kind := storage.KindOf(err); {
	case errors.Is(kind, storage.ErrTooLarge):
		s.logger.Warn("upload: rejected by upstream as too large", "file", fileName, "error", err)
		return TooLarge{Message: msgTooLargeUpstream}
	case errors.Is(kind, storage.ErrRateLimited):
		s.logger.Warn("upload: upstream rate limited", "file", fileName, "error", err)
		return RateLimited{Message: msgRateLimited}
	default:
		s.logger.Error("upload: upstream failed", "file", fileName, "status", storage.StatusOf(err), "error", err)
		return Unavailable{Message: msgUnavailable}
	}
}

func formatBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

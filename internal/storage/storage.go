// Package storage defines the contract with the upstream object store that
// durably holds uploaded media. Swap implementations by changing the concrete
// type injected at startup: the HTTP store speaks the hosted provider's API,
// the MinIO store works with any S3-compatible provider and the S3 store uses
// the AWS SDK.
//
// Failures are reported as *Error values carrying one of the sentinel kinds
// below, so callers classify with errors.Is instead of inspecting messages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the interface for reading and writing objects upstream.
type Store interface {
	// Fetch downloads the full object identified by id.
	Fetch(ctx context.Context, id string) (*Object, error)
	// Upload stores a new object and returns the record issued by the store.
	Upload(ctx context.Context, req UploadRequest) (*Record, error)
}

// Object is a downloaded object body plus the headers worth passing on.
type Object struct {
	Data               []byte
	ContentType        string
	ContentDisposition string
}

// Record is the canonical description of a stored object, as issued by the
// upstream store on a successful upload.
type Record struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// UploadRequest is a single file payload plus the metadata forwarded with it.
type UploadRequest struct {
	Data         []byte
	FileName     string
	MimeType     string
	UploadedFrom string
	UploadedAt   time.Time
}

// Error kinds. Every *Error matches exactly one of these with errors.Is.
var (
	// ErrNotFound means the object does not exist upstream.
	ErrNotFound = errors.New("object not found")
	// ErrRateLimited means the upstream asked us to slow down.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrTooLarge means the upstream refused the payload size.
	ErrTooLarge = errors.New("payload too large")
	// ErrTransport means the upstream could not be reached or the exchange broke off.
	ErrTransport = errors.New("upstream unreachable")
	// ErrUnavailable covers every other upstream failure.
	ErrUnavailable = errors.New("upstream unavailable")
)

// Error describes a failed upstream operation.
type Error struct {
	Op     string // "fetch" or "upload"
	Kind   error  // one of the sentinel kinds
	Status int    // upstream HTTP status, 0 when there was no response
	Detail string // short upstream message, safe to log
	Err    error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Summary()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Summary is the operation, kind and status without any upstream text.
// It is the only part of an Error that may be shown to clients.
func (e *Error) Summary() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the sentinel kind of err, treating anything that is not a
// storage error as ErrUnavailable.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrRateLimited, ErrTooLarge, ErrTransport, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrUnavailable
}

// StatusOf returns the upstream HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

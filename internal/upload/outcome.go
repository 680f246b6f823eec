package upload

import (
	"net/http"

	"github.com/studiocms/service/internal/storage"
)

// Outcome is the result of an upload as presented to clients.
type Outcome interface {
	// Status is the HTTP status the outcome maps to.
	Status() int
	// CanRetry reports whether sending the same request later may succeed.
	CanRetry() bool
	// Label names the outcome in metrics.
	Label() string
}

// Created means the upstream accepted the file.
type Created struct {
	Record    storage.Record
	PublicURL string
}

// NoFile means the request carried no file payload.
type NoFile struct{}

// TooLarge means the file exceeds the local or upstream size limit.
type TooLarge struct{ Message string }

// RateLimited means the upstream asked us to slow down.
type RateLimited struct{ Message string }

// Unavailable covers every other upstream failure.
type Unavailable struct{ Message string }

func (Created) Status() int     { return http.StatusCreated }
func (NoFile) Status() int      { return http.StatusBadRequest }
func (TooLarge) Status() int    { return http.StatusRequestEntityTooLarge }
func (RateLimited) Status() int { return http.StatusTooManyRequests }
func (Unavailable) Status() int { return http.StatusServiceUnavailable }

func (Created) CanRetry() bool     { return false }
func (NoFile) CanRetry() bool      { return false }
func (TooLarge) CanRetry() bool    { return false }
func (RateLimited) CanRetry() bool { return true }
func (Unavailable) CanRetry() bool { return true }

func (Created) Label() string     { return "created" }
func (NoFile) Label() string      { return "bad_request" }
func (TooLarge) Label() string    { return "too_large" }
func (RateLimited) Label() string { return "rate_limited" }
func (Unavailable) Label() string { return "unavailable" }

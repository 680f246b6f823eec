package storage

import (
	"net/http"
	"strings"
	"unicode"
)

const maxDetailLen = 200

// ClassifyMessage maps an upstream failure message onto an error kind using
// case-insensitive substring matches. Size problems win over rate limiting;
// everything unrecognized is ErrUnavailable.
func ClassifyMessage(msg string) error {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "too large"), strings.Contains(m, "413"):
		return ErrTooLarge
	case strings.Contains(m, "too many requests"), strings.Contains(m, "rate limit"):
		return ErrRateLimited
	default:
		return ErrUnavailable
	}
}

// classifyFetchStatus maps a non-2xx read response onto an error kind.
// Only the status counts here: a 500 that mentions rate limits is still a 500.
func classifyFetchStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	default:
		return ErrUnavailable
	}
}

// classifyUploadStatus maps a non-2xx write response onto an error kind,
// falling back to the response message when the status is not decisive.
func classifyUploadStatus(status int, msg string) error {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ClassifyMessage(msg)
	}
}

// Sanitize reduces an upstream message to a single printable line of bounded
// length with the given secrets redacted.
func Sanitize(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, "[redacted]")
		}
	}
	msg = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, msg)
	msg = strings.Join(strings.Fields(msg), " ")
	if runes := []rune(msg); len(runes) > maxDetailLen {
		msg = string(runes[:maxDetailLen-3]) + "..."
	}
	return msg
}

// Package response provides shared JSON response helpers for HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the standard API response envelope.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Problem is the body of a failed gateway request. Hard failures set Error,
// soft failures the client may retry set Warning.
type Problem struct {
	Error    string `json:"error,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Message  string `json:"message,omitempty"`
	CanRetry *bool  `json:"canRetry,omitempty"`
}

// JSON writes a JSON-encoded payload with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Created writes a 201 response with data.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Error writes an error response with the given status and message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Error: message})
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

// Fail writes {"error": title} with an optional message.
func Fail(w http.ResponseWriter, status int, title, message string) {
	JSON(w, status, Problem{Error: title, Message: message})
}

// Refused writes a failure the client should not retry as is.
func Refused(w http.ResponseWriter, status int, title, message string) {
	retry := false
	JSON(w, status, Problem{Error: title, Message: message, CanRetry: &retry})
}

// Warn writes a transient failure the client may retry later.
func Warn(w http.ResponseWriter, status int, title, message string) {
	retry := true
	JSON(w, status, Problem{Warning: title, Message: message, CanRetry: &retry})
}

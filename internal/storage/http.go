package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/studiocms/service/internal/assetref"
)

// maxErrorBody caps how much of a failed upstream response is read for
// classification and logging.
const maxErrorBody = 4 << 10

// HTTPStore talks to the hosted object store over its public read endpoint
// and its authenticated ingestion endpoint.
type HTTPStore struct {
	client   *http.Client
	resolver *assetref.Resolver
	baseURL  string
	readKey  string
	writeKey string
}

// NewHTTPStore returns a store for the upstream at baseURL. Reads go through
// resolver.DirectURL; writes are sent to {baseURL}/upload with writeKey as a
// bearer token. A zero timeout leaves requests bounded only by their context.
func NewHTTPStore(resolver *assetref.Resolver, baseURL, readKey, writeKey string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		client:   &http.Client{Timeout: timeout},
		resolver: resolver,
		baseURL:  strings.TrimRight(baseURL, "/"),
		readKey:  readKey,
		writeKey: writeKey,
	}
}

// Fetch downloads id from the public read endpoint. Non-2xx responses are
// classified by status alone.
func (s *HTTPStore) Fetch(ctx context.Context, id string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resolver.DirectURL(id), nil)
	if err != nil {
		return nil, &Error{Op: "fetch", Kind: ErrUnavailable, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "fetch", Kind: ErrTransport, Detail: s.sanitize(err.Error())}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Op:     "fetch",
			Kind:   classifyFetchStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Detail: s.sanitize(readMessage(resp.Body)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "fetch", Kind: ErrTransport, Status: resp.StatusCode, Detail: s.sanitize(err.Error())}
	}
	return &Object{
		Data:               data,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	}, nil
}

// Upload posts a single file plus its metadata to the ingestion endpoint.
func (s *HTTPStore) Upload(ctx context.Context, in UploadRequest) (*Record, error) {
	body, contentType, err := encodeUpload(in)
	if err != nil {
		return nil, &Error{Op: "upload", Kind: ErrUnavailable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", body)
	if err != nil {
		return nil, &Error{Op: "upload", Kind: ErrUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.writeKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "upload", Kind: ErrTransport, Detail: s.sanitize(err.Error())}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readMessage(resp.Body)
		return nil, &Error{
			Op:     "upload",
			Kind:   classifyUploadStatus(resp.StatusCode, msg),
			Status: resp.StatusCode,
			Detail: s.sanitize(msg),
		}
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, &Error{Op: "upload", Kind: ErrUnavailable, Status: resp.StatusCode, Err: fmt.Errorf("decode upload response: %w", err)}
	}
	if rec.ID == "" {
		return nil, &Error{Op: "upload", Kind: ErrUnavailable, Status: resp.StatusCode, Detail: "upload response carried no id"}
	}
	return &rec, nil
}

func (s *HTTPStore) sanitize(msg string) string {
	return Sanitize(msg, s.readKey, url.PathEscape(s.readKey), s.writeKey)
}

func encodeUpload(in UploadRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(in.FileName)))
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Data); err != nil {
		return nil, "", err
	}
	if in.UploadedFrom != "" {
		if err := w.WriteField("uploadedFrom", in.UploadedFrom); err != nil {
			return nil, "", err
		}
	}
	if !in.UploadedAt.IsZero() {
		if err := w.WriteField("uploadedAt", in.UploadedAt.UTC().Format(time.RFC3339)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// readMessage pulls a human-readable message out of an error response. JSON
// bodies with an "error" or "message" field yield that field; anything else
// is returned as text.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Message != "" && payload.Error != "":
			return payload.Error + ": " + payload.Message
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

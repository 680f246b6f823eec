package retrieval

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studiocms/service/internal/assetref"
	"github.com/studiocms/service/internal/storage"
	"github.com/studiocms/service/internal/storage/mocks"
)

func newTestRouter(store storage.Store, fb FallbackSource) http.Handler {
	h := NewHandler(newTestGateway(store, fb, &recordingSleep{}))
	r := chi.NewRouter()
	r.Get("/files/", h.ServeFile)
	r.Get("/files/{fileId}", h.ServeFile)
	r.Head("/files/{fileId}", h.ServeFile)
	return r
}

func TestServeFileSuccess(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "abc-123").Return(&storage.Object{
		Data:               []byte("png-bytes"),
		ContentType:        "image/png",
		ContentDisposition: `inline; filename="logo.png"`,
	}, nil)

	rec := httptest.NewRecorder()
	newTestRouter(store, staticFallback{data: placeholder}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/abc-123", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable, stale-while-revalidate=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("CDN-Cache-Control"))
	assert.Equal(t, `inline; filename="logo.png"`, rec.Header().Get("Content-Disposition"))
	assert.Empty(t, rec.Header().Get("X-Fallback"))
}

func TestServeFileFallback(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "missing-1").Return(nil, upstreamErr(storage.ErrNotFound, 404))

	rec := httptest.NewRecorder()
	newTestRouter(store, staticFallback{data: placeholder}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/missing-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, placeholder, rec.Body.Bytes())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "true", rec.Header().Get("X-Fallback"))
	store.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestServeFileUnavailable(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "abc-123").Return(nil, upstreamErr(storage.ErrUnavailable, 500))

	rec := httptest.NewRecorder()
	newTestRouter(store, staticFallback{err: os.ErrNotExist}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/abc-123", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "File temporarily unavailable", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestServeFileUnavailableOmitsUpstreamBody(t *testing.T) {
	const leaked = "pq: connection to 10.2.3.4:5432 failed for user admin_internal at db.query(files.go:88)"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(leaked))
	}))
	defer upstream.Close()

	resolver := assetref.NewResolver("/files", upstream.URL, "ro-key")
	store := storage.NewHTTPStore(resolver, upstream.URL, "ro-key", "rw-key", 5*time.Second)

	rec := httptest.NewRecorder()
	newTestRouter(store, staticFallback{err: os.ErrNotExist}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/abc-123", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "admin_internal")
	assert.NotContains(t, rec.Body.String(), "10.2.3.4")
	assert.JSONEq(t, `{"error":"File temporarily unavailable","message":"fetch: upstream unavailable (status 500)"}`, rec.Body.String())
}

func TestServeFileMissingID(t *testing.T) {
	store := new(mocks.MockStore)

	rec := httptest.NewRecorder()
	newTestRouter(store, staticFallback{data: placeholder}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"File ID is required"}`, rec.Body.String())
	store.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestServeFileHead(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "abc-123").Return(&storage.Object{Data: []byte("12345"), ContentType: "image/gif"}, nil)

	srv := httptest.NewServer(newTestRouter(store, staticFallback{data: placeholder}))
	defer srv.Close()

	resp, err := http.Head(srv.URL + "/files/abc-123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(5), resp.ContentLength)
}

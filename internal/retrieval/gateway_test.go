package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studiocms/service/internal/assetref"
	"github.com/studiocms/service/internal/storage"
	"github.com/studiocms/service/internal/storage/mocks"
)

var placeholder = []byte("fallback-jpeg")

type staticFallback struct {
	data []byte
	err  error
}

func (s staticFallback) Load() ([]byte, error) { return s.data, s.err }

// recordingSleep records requested waits without waiting.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(store storage.Store, fb FallbackSource, sleeper *recordingSleep) *Gateway {
	return NewGateway(store, fb,
		WithSleep(sleeper.sleep),
		WithLogger(quietLogger()),
		WithSecrets("ro-key"),
	)
}

func upstreamErr(kind error, status int) error {
	return &storage.Error{Op: "fetch", Kind: kind, Status: status}
}

func TestRetrieveSuccess(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "abc-123").
		Return(&storage.Object{Data: []byte("png"), ContentType: "image/png"}, nil).Once()
	sleeper := &recordingSleep{}

	out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "abc-123")

	require.IsType(t, Success{}, out)
	assert.Equal(t, []byte("png"), out.(Success).Data)
	assert.Equal(t, "image/png", out.(Success).ContentType)
	assert.Empty(t, sleeper.waits)
	store.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRetrieveDefaultsContentType(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "abc-123").Return(&storage.Object{Data: []byte("x")}, nil)

	out := newTestGateway(store, staticFallback{data: placeholder}, &recordingSleep{}).Retrieve(context.Background(), "abc-123")

	require.IsType(t, Success{}, out)
	assert.Equal(t, "image/jpeg", out.(Success).ContentType)
}

func TestRetrieveNotFoundFallsBackImmediately(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "missing-1").Return(nil, upstreamErr(storage.ErrNotFound, 404))
	sleeper := &recordingSleep{}

	out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "missing-1")

	assert.Equal(t, Fallback{Data: placeholder}, out)
	assert.Empty(t, sleeper.waits)
	store.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRetrieveRateLimitedSchedule(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "flaky-1").Return(nil, upstreamErr(storage.ErrRateLimited, 429))
	sleeper := &recordingSleep{}

	out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "flaky-1")

	assert.Equal(t, Fallback{Data: placeholder}, out)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	store.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestRetrieveRateLimitedThenSuccess(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "flaky-2").Return(nil, upstreamErr(storage.ErrRateLimited, 429)).Once()
	store.On("Fetch", mock.Anything, "flaky-2").Return(&storage.Object{Data: []byte("ok"), ContentType: "image/webp"}, nil).Once()
	sleeper := &recordingSleep{}

	out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "flaky-2")

	require.IsType(t, Success{}, out)
	assert.Equal(t, []time.Duration{time.Second}, sleeper.waits)
	store.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestRetrieveTransportFailures(t *testing.T) {
	t.Run("recovers on retry", func(t *testing.T) {
		store := new(mocks.MockStore)
		store.On("Fetch", mock.Anything, "net-1").Return(nil, upstreamErr(storage.ErrTransport, 0)).Once()
		store.On("Fetch", mock.Anything, "net-1").Return(&storage.Object{Data: []byte("ok")}, nil).Once()
		sleeper := &recordingSleep{}

		out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "net-1")

		require.IsType(t, Success{}, out)
		assert.Equal(t, []time.Duration{time.Second}, sleeper.waits)
	})

	t.Run("exhausted", func(t *testing.T) {
		store := new(mocks.MockStore)
		store.On("Fetch", mock.Anything, "net-2").Return(nil, upstreamErr(storage.ErrTransport, 0))
		sleeper := &recordingSleep{}

		out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "net-2")

		assert.Equal(t, Fallback{Data: placeholder}, out)
		assert.Equal(t, []time.Duration{time.Second}, sleeper.waits)
		store.AssertNumberOfCalls(t, "Fetch", 2)
	})
}

func TestRetrieveStopsOnOtherFailures(t *testing.T) {
	tests := []struct {
		name string
		obj  *storage.Object
		err  error
	}{
		{"server error", nil, upstreamErr(storage.ErrUnavailable, 500)},
		{"forbidden", nil, upstreamErr(storage.ErrUnavailable, 403)},
		{"empty body", &storage.Object{ContentType: "image/png"}, nil},
		{"untyped error", nil, errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mocks.MockStore)
			store.On("Fetch", mock.Anything, "id-1").Return(tt.obj, tt.err)
			sleeper := &recordingSleep{}

			out := newTestGateway(store, staticFallback{data: placeholder}, sleeper).Retrieve(context.Background(), "id-1")

			assert.Equal(t, Fallback{Data: placeholder}, out)
			assert.Empty(t, sleeper.waits)
			store.AssertNumberOfCalls(t, "Fetch", 1)
		})
	}
}

func TestRetrieveFallbackAbsent(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "missing-1").Return(nil, &storage.Error{
		Op:     "fetch",
		Kind:   storage.ErrNotFound,
		Status: 404,
		Detail: "no object at /public/ro-key/missing-1",
	})

	out := newTestGateway(store, staticFallback{err: os.ErrNotExist}, &recordingSleep{}).Retrieve(context.Background(), "missing-1")

	require.IsType(t, Unavailable{}, out)
	msg := out.(Unavailable).LastError
	assert.Contains(t, msg, "object not found")
	assert.NotContains(t, msg, "ro-key")
}

func TestRetrieveUnavailableHidesUpstreamBody(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "abc-123").Return(nil, &storage.Error{
		Op:     "fetch",
		Kind:   storage.ErrUnavailable,
		Status: 502,
		Detail: "backend db-7 refused connection",
		Err:    errors.New("sdk: request id 91f2"),
	})

	out := newTestGateway(store, staticFallback{err: os.ErrNotExist}, &recordingSleep{}).Retrieve(context.Background(), "abc-123")

	assert.Equal(t, Unavailable{LastError: "fetch: upstream unavailable (status 502)"}, out)
}

func TestRetrieveUnavailableAfterPanic(t *testing.T) {
	out := newTestGateway(panickingStore{}, staticFallback{err: os.ErrNotExist}, &recordingSleep{}).Retrieve(context.Background(), "id-1")

	assert.Equal(t, Unavailable{LastError: "fetch: unexpected failure"}, out)
}

type panickingStore struct{}

func (panickingStore) Fetch(context.Context, string) (*storage.Object, error) {
	panic("nil map write")
}

func (panickingStore) Upload(context.Context, storage.UploadRequest) (*storage.Record, error) {
	panic("not used")
}

func TestRetrievePanicDegradesToFallback(t *testing.T) {
	out := newTestGateway(panickingStore{}, staticFallback{data: placeholder}, &recordingSleep{}).Retrieve(context.Background(), "id-1")
	assert.Equal(t, Fallback{Data: placeholder}, out)
}

func TestRetrieveCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := new(mocks.MockStore)
	store.On("Fetch", mock.Anything, "flaky-1").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, upstreamErr(storage.ErrRateLimited, 429))

	gw := NewGateway(store, staticFallback{data: placeholder}, WithLogger(quietLogger()))
	start := time.Now()
	out := gw.Retrieve(ctx, "flaky-1")

	assert.Equal(t, Fallback{Data: placeholder}, out)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	store.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRetrieveEmptyID(t *testing.T) {
	store := new(mocks.MockStore)
	out := newTestGateway(store, staticFallback{data: placeholder}, &recordingSleep{}).Retrieve(context.Background(), "")

	assert.Equal(t, Fallback{Data: placeholder}, out)
	store.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestPolicyBackoff(t *testing.T) {
	p := DefaultPolicy()
	rateLimited := upstreamErr(storage.ErrRateLimited, 429)
	transport := upstreamErr(storage.ErrTransport, 0)

	wait, retry := p.Backoff(1, rateLimited)
	assert.Equal(t, time.Second, wait)
	assert.True(t, retry)

	wait, retry = p.Backoff(2, rateLimited)
	assert.Equal(t, 2*time.Second, wait)
	assert.False(t, retry)

	wait, retry = p.Backoff(1, transport)
	assert.Equal(t, time.Second, wait)
	assert.True(t, retry)

	wait, retry = p.Backoff(2, transport)
	assert.Zero(t, wait)
	assert.False(t, retry)

	wait, retry = p.Backoff(1, upstreamErr(storage.ErrNotFound, 404))
	assert.Zero(t, wait)
	assert.False(t, retry)

	_, retry = Policy{}.Backoff(1, transport)
	assert.False(t, retry)
}

func TestFileFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fallback.jpg")

	cached := NewFileFallback(path, true)
	_, err := cached.Load()
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, placeholder, 0o644))
	data, err := cached.Load()
	require.NoError(t, err)
	assert.Equal(t, placeholder, data)

	require.NoError(t, os.Remove(path))
	data, err = cached.Load()
	require.NoError(t, err)
	assert.Equal(t, placeholder, data)

	_, err = NewFileFallback(path, false).Load()
	assert.Error(t, err)
}

// TestRetrieveRateLimitedRealClock runs the full schedule against a real
// upstream that always answers 429.
func TestRetrieveRateLimitedRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the real retry schedule")
	}

	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resolver := assetref.NewResolver("/files", srv.URL, "ro-key")
	store := storage.NewHTTPStore(resolver, srv.URL, "ro-key", "rw-key", 5*time.Second)
	gw := NewGateway(store, staticFallback{data: placeholder}, WithLogger(quietLogger()))

	start := time.Now()
	out := gw.Retrieve(context.Background(), "flaky-1")
	elapsed := time.Since(start)

	assert.Equal(t, Fallback{Data: placeholder}, out)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
	assert.GreaterOrEqual(t, elapsed, 3*time.Second)
	assert.Less(t, elapsed, 10*time.Second)
}

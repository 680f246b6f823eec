package retrieval

import (
	"fmt"
	"os"
	"sync"
)

// FallbackSource provides the placeholder image served when an object
// cannot be fetched.
type FallbackSource interface {
	Load() ([]byte, error)
}

// FileFallback reads the placeholder from disk. With caching enabled the
// first successful read is kept; failed reads are retried on the next call.
type FileFallback struct {
	path  string
	cache bool

	mu   sync.Mutex
	data []byte
}

// NewFileFallback creates a FileFallback for the asset at path.
func NewFileFallback(path string, cache bool) *FileFallback {
	return &FileFallback{path: path, cache: cache}
}

// Load returns the asset bytes.
func (f *FileFallback) Load() ([]byte, error) {
	if !f.cache {
		return f.read()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data != nil {
		return f.data, nil
	}
	data, err := f.read()
	if err != nil {
		return nil, err
	}
	f.data = data
	return data, nil
}

func (f *FileFallback) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read fallback asset: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fallback asset %s is empty", f.path)
	}
	return data, nil
}

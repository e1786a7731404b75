package media

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mrezende/courier/internal/cache"
)

// Loader resolves attachment URLs to bytes. Recently loaded attachments are
// kept in a bounded cache so re-rendering a thread does not re-read them.
type Loader struct {
	cache *cache.Cache
}

// NewLoader creates a loader caching at most maxEntries attachments.
func NewLoader(maxEntries int) *Loader {
	return &Loader{cache: cache.New(maxEntries)}
}

// Load returns the bytes behind an attachment URL. Only file:// URLs are
// resolvable locally.
func (l *Loader) Load(_ context.Context, url string) ([]byte, error) {
	if data, ok := l.cache.Get(url); ok {
		return data, nil
	}
	path, ok := strings.CutPrefix(url, "file://")
	if !ok {
		return nil, fmt.Errorf("unsupported attachment url %q", url)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	l.cache.Put(url, data)
	return data, nil
}

// Evict drops a cached attachment, reporting whether it was cached.
func (l *Loader) Evict(url string) bool {
	return l.cache.Evict(url)
}

package etl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ── Line Source ────────────────────────────────────────────
// A LineSource streams the raw text lines of a source file.
// Implementations live in etl/sources/, one file per location scheme.

// LineSource is the interface every raw-data location must implement.
type LineSource interface {
	// Lines streams lines from location into a channel, in file order.
	// The channel is closed when all lines have been read or ctx is cancelled.
	// Errors are sent on the error channel (buffered size 1).
	Lines(ctx context.Context, location string) (<-chan string, <-chan error)
}

// ── Source Registry ────────────────────────────────────────
// Maps a location scheme ("https", "s3", "file", ...) to its LineSource.

// Registry resolves locations to line sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]LineSource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]LineSource{}}
}

// Register binds scheme to s, replacing any previous binding.
func (r *Registry) Register(scheme string, s LineSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[strings.ToLower(scheme)] = s
}

// Resolve returns the source for location's scheme. Locations without a
// scheme are local files.
func (r *Registry) Resolve(location string) (LineSource, error) {
	scheme := SchemeOf(location)
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no line source for scheme %q", ErrUnknownSource, scheme)
	}
	return s, nil
}

// Schemes returns the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for s := range r.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SchemeOf returns the lower-cased scheme of location, or "file".
func SchemeOf(location string) string {
	if i := strings.Index(location, "://"); i > 0 {
		return strings.ToLower(location[:i])
	}
	return "file"
}

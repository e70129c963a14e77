// Package resolve maps textual path arguments to files. Mux picks a
// resolver by URI scheme; the subpackages implement the schemes.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// ErrNotFound is returned when a path names nothing.
var ErrNotFound = errors.New("file not found")

// ErrUnsupportedScheme is returned for paths whose scheme has no resolver.
var ErrUnsupportedScheme = errors.New("unsupported path scheme")

// Mux dispatches on the scheme prefix ("gs://", "file://"). Paths without a
// scheme go to the default resolver.
type Mux struct {
	schemes  map[string]jobs.PathResolver
	fallback jobs.PathResolver
}

// NewMux returns a Mux sending scheme-less paths to fallback, which may be nil.
func NewMux(fallback jobs.PathResolver) *Mux {
	return &Mux{schemes: make(map[string]jobs.PathResolver), fallback: fallback}
}

// Handle registers r for scheme, e.g. "gs".
func (m *Mux) Handle(scheme string, r jobs.PathResolver) {
	m.schemes[strings.ToLower(scheme)] = r
}

// Resolve implements jobs.PathResolver.
func (m *Mux) Resolve(ctx context.Context, path string) (jobs.File, error) {
	scheme, _, hasScheme := strings.Cut(path, "://")
	target := m.fallback
	if hasScheme {
		target = m.schemes[strings.ToLower(scheme)]
	}
	if target == nil {
		return nil, fmt.Errorf("%q: %w", path, ErrUnsupportedScheme)
	}
	f, err := target.Resolve(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	return f, nil
}

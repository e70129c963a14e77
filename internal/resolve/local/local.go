// Package local resolves paths against a directory on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/resolve"
)

// Config captures the parameters for the filesystem resolver.
type Config struct {
	// BaseDir confines resolution; paths may not escape it.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Resolver maps relative, absolute and file:// paths to files under BaseDir.
type Resolver struct {
	baseDir string
}

// New validates cfg and returns a Resolver.
func New(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("absolute base directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Resolver{baseDir: filepath.Clean(abs)}, nil
}

// Resolve implements jobs.PathResolver.
func (r *Resolver) Resolve(_ context.Context, path string) (jobs.File, error) {
	p := strings.TrimPrefix(path, "file://")
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("path is required")
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(r.baseDir, full)
	}
	full = filepath.Clean(full)
	if full != r.baseDir && !strings.HasPrefix(full, r.baseDir+string(filepath.Separator)) {
		return nil, fmt.Errorf("path traversal detected")
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, resolve.ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", full, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", full)
	}
	return File{path: full}, nil
}

// File is a resolved local file.
type File struct {
	path string
}

// Name returns the absolute path.
func (f File) Name() string { return f.path }

// Open opens the file for reading.
func (f File) Open(context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	return fh, nil
}

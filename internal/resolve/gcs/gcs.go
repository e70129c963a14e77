// Package gcs resolves gs:// paths to Cloud Storage objects.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/resolve"
)

// Config captures the parameters required to resolve objects.
type Config struct {
	// Bucket is used for paths without a gs:// prefix.
	Bucket string `mapstructure:"bucket"`
}

// Resolver checks object existence and hands out readable handles.
type Resolver struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed resolver.
func New(client *storage.Client, cfg Config) (*Resolver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return &Resolver{client: client, bucket: cfg.Bucket}, nil
}

// ParseURI splits "gs://bucket/object". A bare object name uses
// defaultBucket.
func ParseURI(path, defaultBucket string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(path, "gs://")
	if !ok {
		if defaultBucket == "" {
			return "", "", fmt.Errorf("%q has no bucket and no default is configured", path)
		}
		rest = defaultBucket + "/" + strings.TrimPrefix(path, "/")
	}
	bucket, object, found := strings.Cut(rest, "/")
	if bucket == "" || !found || object == "" {
		return "", "", fmt.Errorf("%q is not a gs://bucket/object URI", path)
	}
	return bucket, object, nil
}

// Resolve implements jobs.PathResolver. The object must exist.
func (r *Resolver) Resolve(ctx context.Context, path string) (jobs.File, error) {
	bucket, object, err := ParseURI(path, r.bucket)
	if err != nil {
		return nil, err
	}
	handle := r.client.Bucket(bucket).Object(object)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, resolve.ErrNotFound
		}
		return nil, fmt.Errorf("object attrs: %w", err)
	}
	return &Object{handle: handle, uri: fmt.Sprintf("gs://%s/%s", bucket, object), size: attrs.Size}, nil
}

// Object is a resolved Cloud Storage object.
type Object struct {
	handle *storage.ObjectHandle
	uri    string
	size   int64
}

// Name returns the gs:// URI.
func (o *Object) Name() string { return o.uri }

// Size returns the object size observed at resolution time.
func (o *Object) Size() int64 { return o.size }

// Open streams the object contents.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := o.handle.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.uri, err)
	}
	return rc, nil
}

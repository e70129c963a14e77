package resolve

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

type namedFile string

func (f namedFile) Name() string { return string(f) }

func (f namedFile) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(f))), nil
}

type resolverFunc func(ctx context.Context, path string) (jobs.File, error)

func (f resolverFunc) Resolve(ctx context.Context, path string) (jobs.File, error) { return f(ctx, path) }

func TestMuxDispatchesByScheme(t *testing.T) {
	t.Parallel()

	local := resolverFunc(func(_ context.Context, p string) (jobs.File, error) { return namedFile("local:" + p), nil })
	remote := resolverFunc(func(_ context.Context, p string) (jobs.File, error) { return namedFile("gcs:" + p), nil })
	mux := NewMux(local)
	mux.Handle("GS", remote)

	f, err := mux.Resolve(context.Background(), "a.txt")
	require.NoError(t, err)
	require.Equal(t, "local:a.txt", f.Name())

	f, err = mux.Resolve(context.Background(), "gs://bucket/a.txt")
	require.NoError(t, err)
	require.Equal(t, "gcs:gs://bucket/a.txt", f.Name())

	_, err = mux.Resolve(context.Background(), "s3://bucket/a.txt")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestMuxWrapsResolverErrors(t *testing.T) {
	t.Parallel()

	mux := NewMux(resolverFunc(func(context.Context, string) (jobs.File, error) { return nil, ErrNotFound }))
	_, err := mux.Resolve(context.Background(), "foo.txt")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "foo.txt")

	_, err = NewMux(nil).Resolve(context.Background(), "foo.txt")
	require.True(t, errors.Is(err, ErrUnsupportedScheme))
}

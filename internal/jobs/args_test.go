package jobs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/result"
)

type stubFile struct{ name string }

func (f stubFile) Name() string { return f.name }

func (f stubFile) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.name)), nil
}

type mapResolver map[string]File

func (m mapResolver) Resolve(_ context.Context, path string) (File, error) {
	f, ok := m[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return f, nil
}

func sumDescriptor() Descriptor {
	return Descriptor{Manager: "math", Method: "sum", Params: []ParamKind{ParamValue, ParamValue}}
}

func linesDescriptor() Descriptor {
	return Descriptor{
		Manager:       "text",
		Method:        "lines",
		Params:        []ParamKind{ParamFile, ParamSink},
		WantsProgress: true,
	}
}

func TestBind_ChecksArity(t *testing.T) {
	t.Parallel()

	_, err := Bind(sumDescriptor(), []Arg{Value(1)})
	require.ErrorIs(t, err, ErrArity)
	require.Contains(t, err.Error(), "math.sum(value, value)")

	_, err = Bind(sumDescriptor(), []Arg{Value(1), Path("x")})
	require.ErrorIs(t, err, ErrArity)

	b, err := Bind(sumDescriptor(), []Arg{Value(2), Value(3)})
	require.NoError(t, err)
	require.Len(t, b.Args, 2)
	require.Equal(t, -1, b.SinkSlot)
}

func TestBind_InsertsMissingSinkAndStripsUI(t *testing.T) {
	t.Parallel()

	called := false
	b, err := Bind(linesDescriptor(), []Arg{UIArg(func(Outcome) { called = true }), Path("a.txt")})
	require.NoError(t, err)
	require.Len(t, b.Args, 2)
	require.Equal(t, ArgPath, b.Args[0].Kind())
	require.Equal(t, ArgSink, b.Args[1].Kind())
	require.Nil(t, b.Args[1].Sink())
	require.Equal(t, 1, b.SinkSlot)

	require.NotNil(t, b.UI)
	b.UI(Outcome{})
	require.True(t, called)
}

func TestPrepare_SubstitutesSlots(t *testing.T) {
	t.Parallel()

	d := linesDescriptor()
	b, err := Bind(d, []Arg{Path("a.txt"), SinkArg(nil)})
	require.NoError(t, err)

	tok := progress.NewToken(context.Background())
	col := result.NewCollector()
	in, err := Prepare(context.Background(), d, b, mapResolver{"a.txt": stubFile{name: "/data/a.txt"}}, tok, col)
	require.NoError(t, err)

	require.Equal(t, stubFile{name: "/data/a.txt"}, in.Args[0])
	require.Same(t, col, in.Args[1])
	require.Same(t, col, in.Sink)
	require.Same(t, tok, in.Progress)
}

func TestPrepare_ResolutionFailure(t *testing.T) {
	t.Parallel()

	d := linesDescriptor()
	b, err := Bind(d, []Arg{Path("foo.txt")})
	require.NoError(t, err)

	_, err = Prepare(context.Background(), d, b, mapResolver{}, progress.NewToken(context.Background()), nil)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "foo.txt", resErr.Path)
	require.Equal(t, 0, resErr.Arg)

	_, err = Prepare(context.Background(), d, b, nil, nil, nil)
	require.ErrorAs(t, err, &resErr)
}

func TestPrepare_NoTokenWhenNotRequested(t *testing.T) {
	t.Parallel()

	d := sumDescriptor()
	b, err := Bind(d, []Arg{Value(1), Value(2)})
	require.NoError(t, err)
	in, err := Prepare(context.Background(), d, b, nil, progress.NewToken(context.Background()), nil)
	require.NoError(t, err)
	require.Nil(t, in.Progress)
	require.Equal(t, []any{1, 2}, in.Args)
}

func TestArgAs(t *testing.T) {
	t.Parallel()

	in := &Input{Args: []any{float64(4), "x", 2.5}}

	n, err := ArgAs[int](in, 0)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	s, err := ArgAs[string](in, 1)
	require.NoError(t, err)
	require.Equal(t, "x", s)

	_, err = ArgAs[int](in, 2)
	require.True(t, IsDomain(err))

	_, err = ArgAs[int](in, 7)
	require.Error(t, err)

	f, err := ArgAs[float64](&Input{Args: []any{3}}, 0)
	require.NoError(t, err)
	require.InDelta(t, 3.0, f, 0)
}

func TestFormatArgs(t *testing.T) {
	t.Parallel()

	got := FormatArgs([]Arg{Value(2), Path("a.txt"), SinkArg(nil), FileArg(stubFile{name: "b"})})
	require.Equal(t, `[2, path("a.txt"), sink, file(b)]`, got)
}

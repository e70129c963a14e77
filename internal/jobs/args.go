package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/result"
)

// ArgKind tags an argument slot.
type ArgKind int

// Argument kinds.
const (
	ArgValue ArgKind = iota
	ArgPath
	ArgFile
	ArgSink
	ArgUI
)

// Arg is one positional argument of a submission.
type Arg struct {
	kind  ArgKind
	value any
	path  string
	file  File
	sink  result.Sink
	ui    Continuation
}

// Value is a plain argument forwarded as is.
func Value(v any) Arg { return Arg{kind: ArgValue, value: v} }

// Path is a textual path resolved to a File before the operation runs.
func Path(p string) Arg { return Arg{kind: ArgPath, path: p} }

// FileArg passes an already resolved file.
func FileArg(f File) Arg { return Arg{kind: ArgFile, file: f} }

// SinkArg fills a sink slot. A nil sink asks the scheduler for its own collector.
func SinkArg(s result.Sink) Arg { return Arg{kind: ArgSink, sink: s} }

// UIArg carries a UI continuation; it is routed to delivery, never to the operation.
func UIArg(c Continuation) Arg { return Arg{kind: ArgUI, ui: c} }

// Kind returns the slot kind.
func (a Arg) Kind() ArgKind { return a.kind }

// Sink returns the sink of an ArgSink slot.
func (a Arg) Sink() result.Sink { return a.sink }

func (a Arg) String() string {
	switch a.kind {
	case ArgPath:
		return fmt.Sprintf("path(%q)", a.path)
	case ArgFile:
		if a.file == nil {
			return "file(<nil>)"
		}
		return fmt.Sprintf("file(%s)", a.file.Name())
	case ArgSink:
		return "sink"
	case ArgUI:
		return "ui"
	default:
		return fmt.Sprintf("%v", a.value)
	}
}

// FormatArgs renders arguments for diagnostics.
func FormatArgs(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Binding is a submission's arguments checked against a descriptor.
type Binding struct {
	Args     []Arg
	UI       Continuation
	SinkSlot int
}

// Bind validates args against d: UI arguments are taken out, a missing sink
// slot is filled with a placeholder, and every remaining slot must match its
// parameter kind.
func Bind(d Descriptor, args []Arg) (Binding, error) {
	b := Binding{SinkSlot: d.SinkSlot()}
	bound := make([]Arg, 0, len(d.Params))
	for _, a := range args {
		if a.kind == ArgUI {
			if b.UI == nil {
				b.UI = a.ui
			}
			continue
		}
		bound = append(bound, a)
	}
	if b.SinkSlot >= 0 && len(bound) == len(d.Params)-1 && !hasSink(bound) {
		bound = append(bound, Arg{})
		copy(bound[b.SinkSlot+1:], bound[b.SinkSlot:])
		bound[b.SinkSlot] = SinkArg(nil)
	}
	if len(bound) != len(d.Params) {
		return Binding{}, fmt.Errorf("%s: got %d arguments, want %d: %w",
			d.Signature(), len(bound), len(d.Params), ErrArity)
	}
	for i, p := range d.Params {
		if !accepts(p, bound[i].kind) {
			return Binding{}, fmt.Errorf("%s: argument %d is %s, want %s: %w",
				d.Signature(), i, bound[i], p, ErrArity)
		}
	}
	b.Args = bound
	return b, nil
}

func hasSink(args []Arg) bool {
	for _, a := range args {
		if a.kind == ArgSink {
			return true
		}
	}
	return false
}

func accepts(p ParamKind, k ArgKind) bool {
	switch p {
	case ParamFile:
		return k == ArgPath || k == ArgFile
	case ParamSink:
		return k == ArgSink
	default:
		return k == ArgValue
	}
}

// Input is what an operation receives: the substituted arguments in
// positional order plus the progress token when requested.
type Input struct {
	Args     []any
	Progress *progress.Token
	Sink     result.Sink
}

// Prepare runs the substitution pass: paths become files, the sink slot
// receives sink, and the token is attached when the descriptor asks for it.
// It runs exactly once per job, before invocation.
func Prepare(
	ctx context.Context,
	d Descriptor,
	b Binding,
	resolver PathResolver,
	token *progress.Token,
	sink result.Sink,
) (*Input, error) {
	in := &Input{Args: make([]any, len(b.Args))}
	for i, a := range b.Args {
		switch a.kind {
		case ArgPath:
			if resolver == nil {
				return nil, &ResolutionError{Arg: i, Path: a.path, Err: fmt.Errorf("no path resolver configured")}
			}
			f, err := resolver.Resolve(ctx, a.path)
			if err != nil {
				return nil, &ResolutionError{Arg: i, Path: a.path, Err: err}
			}
			in.Args[i] = f
		case ArgFile:
			in.Args[i] = a.file
		case ArgSink:
			in.Args[i] = sink
			in.Sink = sink
		default:
			in.Args[i] = a.value
		}
	}
	if d.WantsProgress {
		in.Progress = token
	}
	return in, nil
}

// ArgAs returns argument i converted to T. Numeric values decoded from JSON
// arrive as float64; ArgAs converts them to int and int64 targets, and
// widens int and int64 values to float64 targets.
func ArgAs[T any](in *Input, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(in.Args) {
		return zero, fmt.Errorf("argument %d out of range (have %d)", i, len(in.Args))
	}
	raw := in.Args[i]
	if v, ok := raw.(T); ok {
		return v, nil
	}
	if f, ok := raw.(float64); ok && f == float64(int64(f)) {
		switch any(zero).(type) {
		case int:
			return any(int(f)).(T), nil
		case int64:
			return any(int64(f)).(T), nil
		}
	}
	if _, ok := any(zero).(float64); ok {
		switch n := raw.(type) {
		case int:
			return any(float64(n)).(T), nil
		case int64:
			return any(float64(n)).(T), nil
		}
	}
	return zero, NewDomainError(fmt.Sprintf("argument %d has type %T, want %T", i, raw, zero), nil)
}

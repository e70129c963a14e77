package result

// Hook observes the values a job produces.
type Hook interface {
	OnPartial(v any)
	OnComplete(v any)
}

// HookFuncs adapts plain functions to Hook. Nil fields are skipped.
// Use it by pointer so composed chains can tell instances apart.
type HookFuncs struct {
	Partial  func(v any)
	Complete func(v any)
}

// OnPartial calls f.Partial when set.
func (f *HookFuncs) OnPartial(v any) {
	if f.Partial != nil {
		f.Partial(v)
	}
}

// OnComplete calls f.Complete when set.
func (f *HookFuncs) OnComplete(v any) {
	if f.Complete != nil {
		f.Complete(v)
	}
}

// Chain is an immutable ordered list of hooks invoked first to last.
type Chain struct {
	hooks []Hook
}

// Compose returns a hook that notifies inner and then outer. Chains are
// flattened and each hook instance appears once, so composing a hook with
// itself, directly or through an existing chain, never invokes it twice.
func Compose(outer, inner Hook) Hook {
	var hooks []Hook
	hooks = appendUnique(hooks, inner)
	hooks = appendUnique(hooks, outer)
	switch len(hooks) {
	case 0:
		return nil
	case 1:
		return hooks[0]
	default:
		return &Chain{hooks: hooks}
	}
}

// Hooks returns the chain members in invocation order.
func (c *Chain) Hooks() []Hook {
	out := make([]Hook, len(c.hooks))
	copy(out, c.hooks)
	return out
}

// OnPartial notifies every member.
func (c *Chain) OnPartial(v any) {
	for _, h := range c.hooks {
		h.OnPartial(v)
	}
}

// OnComplete notifies every member.
func (c *Chain) OnComplete(v any) {
	for _, h := range c.hooks {
		h.OnComplete(v)
	}
}

func appendUnique(dst []Hook, h Hook) []Hook {
	if h == nil {
		return dst
	}
	if c, ok := h.(*Chain); ok {
		for _, member := range c.hooks {
			dst = appendUnique(dst, member)
		}
		return dst
	}
	for _, existing := range dst {
		if sameHook(existing, h) {
			return dst
		}
	}
	return append(dst, h)
}

// sameHook compares identities; hooks of non-comparable dynamic types are
// treated as distinct.
func sameHook(a, b Hook) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

type hookSink struct {
	hook Hook
}

// HookSink exposes a hook as a Sink. It returns nil for a nil hook.
func HookSink(h Hook) Sink {
	if h == nil {
		return nil
	}
	return hookSink{hook: h}
}

func (s hookSink) Partial(v any)  { s.hook.OnPartial(v) }
func (s hookSink) Complete(v any) { s.hook.OnComplete(v) }

type sinkHook struct {
	sink Sink
}

// SinkHook exposes a sink as a Hook. It returns nil for a nil sink.
func SinkHook(s Sink) Hook {
	if s == nil {
		return nil
	}
	return &sinkHook{sink: s}
}

func (h *sinkHook) OnPartial(v any)  { h.sink.Partial(v) }
func (h *sinkHook) OnComplete(v any) { h.sink.Complete(v) }

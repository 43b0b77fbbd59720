package hook

import (
	"context"
	"errors"
	"fmt"
)

// Pipeline invokes hooks strictly in registration order for PreInvoke and
// strictly in reverse order for PostInvoke, mirroring acquire/release
// discipline: a hook that opens a span on entry closes it symmetrically on
// exit. Concurrency never reorders hook execution; each delegation runs its
// own pipeline pass.
type Pipeline struct {
	hooks []Hook
}

// NewPipeline creates a pipeline over the given hooks, in order.
func NewPipeline(hooks ...Hook) *Pipeline {
	return &Pipeline{hooks: hooks}
}

// Register appends a hook. Not safe for concurrent use with Run*; wire the
// pipeline at startup.
func (p *Pipeline) Register(h Hook) {
	p.hooks = append(p.hooks, h)
}

// RunPre invokes PreInvoke in registration order. The first error
// short-circuits the remaining hooks and the dispatch is never sent.
// AbortErrors come back with the aborting hook's name filled in.
func (p *Pipeline) RunPre(ctx context.Context, hc *Context) error {
	for _, h := range p.hooks {
		if err := h.PreInvoke(ctx, hc); err != nil {
			var abort *AbortError
			if errors.As(err, &abort) && abort.Hook == "" {
				abort.Hook = h.Name()
			}
			return fmt.Errorf("pre-invoke %s: %w", h.Name(), err)
		}
	}
	return nil
}

// RunPost invokes PostInvoke in reverse registration order. Post hooks do
// not short-circuit each other; the first error is returned after all hooks
// have run.
func (p *Pipeline) RunPost(ctx context.Context, hc *Context) error {
	var first error
	for i := len(p.hooks) - 1; i >= 0; i-- {
		h := p.hooks[i]
		if err := h.PostInvoke(ctx, hc); err != nil && first == nil {
			first = fmt.Errorf("post-invoke %s: %w", h.Name(), err)
		}
	}
	return first
}

// RunOnError notifies every hook of a dispatch failure, in reverse order so
// teardown mirrors setup.
func (p *Pipeline) RunOnError(ctx context.Context, hc *Context, cause error) {
	for i := len(p.hooks) - 1; i >= 0; i-- {
		p.hooks[i].OnError(ctx, hc, cause)
	}
}

package registry

import (
	"context"
	"fmt"
)

// Operation is a mapper operation hooks can be attached to
type Operation string

const (
	OpFind      Operation = "find"
	OpCount     Operation = "count"
	OpUpdate    Operation = "update"
	OpDelete    Operation = "delete"
	OpConnected Operation = "connected"
)

// HookEvent is handed to every hook of one operation. Pre hooks may rewrite
// Filter and Values; Result is set for post hooks only.
type HookEvent struct {
	Operation Operation
	Model     string
	Filter    map[string]any
	Values    map[string]any
	Result    any
}

// Hook is a pre or post handler. A non-nil error aborts the operation.
type Hook func(ctx context.Context, ev *HookEvent) error

// Hooks are ordered handler lists per operation
type Hooks struct {
	Pre  map[Operation][]Hook
	Post map[Operation][]Hook
}

// AddPre appends a handler run before op is compiled
func (h *Hooks) AddPre(op Operation, hook Hook) {
	if h.Pre == nil {
		h.Pre = make(map[Operation][]Hook)
	}
	h.Pre[op] = append(h.Pre[op], hook)
}

// AddPost appends a handler run after op returned its results
func (h *Hooks) AddPost(op Operation, hook Hook) {
	if h.Post == nil {
		h.Post = make(map[Operation][]Hook)
	}
	h.Post[op] = append(h.Post[op], hook)
}

// RunPre runs the pre handlers of ev.Operation in registration order
func (h Hooks) RunPre(ctx context.Context, ev *HookEvent) error {
	return run(ctx, "pre", h.Pre[ev.Operation], ev)
}

// RunPost runs the post handlers of ev.Operation in registration order
func (h Hooks) RunPost(ctx context.Context, ev *HookEvent) error {
	return run(ctx, "post", h.Post[ev.Operation], ev)
}

func run(ctx context.Context, stage string, hooks []Hook, ev *HookEvent) error {
	for i, hook := range hooks {
		if err := hook(ctx, ev); err != nil {
			return fmt.Errorf("%s-%s hook %d of %s: %w", stage, ev.Operation, i, ev.Model, err)
		}
	}
	return nil
}

func (h Hooks) clone() Hooks {
	return Hooks{Pre: cloneHookMap(h.Pre), Post: cloneHookMap(h.Post)}
}

func cloneHookMap(m map[Operation][]Hook) map[Operation][]Hook {
	if m == nil {
		return nil
	}
	out := make(map[Operation][]Hook, len(m))
	for op, hooks := range m {
		out[op] = append([]Hook(nil), hooks...)
	}
	return out
}

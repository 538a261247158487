package infra

import "context"

type commitHooksKey struct{}

type commitHooks struct {
	fns []func()
}

// AfterCommit defers fn until the outermost unit of work bound to ctx has
// committed. Without a unit of work fn runs immediately. Hooks of a unit that
// rolls back are dropped.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

func withCommitHooks(ctx context.Context) (context.Context, *commitHooks) {
	h := &commitHooks{}
	return context.WithValue(ctx, commitHooksKey{}, h), h
}

func (h *commitHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

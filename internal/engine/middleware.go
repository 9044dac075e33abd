package engine

import (
	"context"

	"github.com/loomworks/gantry/internal/capability"
)

// Handler is the terminal shape of a composed pipeline: one callable
// that executes a capability call end to end.
type Handler func(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context) (any, error)

// Middleware wraps a Handler. It may inspect or reject the call before
// invoking next, transform the result after, or skip next entirely (the
// replay recorder does this to suppress side effects).
type Middleware func(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context, next Handler) (any, error)

// Compose folds an ordered middleware list into one Handler.
//
// The fold is right-to-left so the FIRST-listed middleware is
// OUTERMOST. Compose(terminal, a, b, c) produces a(b(c(terminal))).
//
// Compose is a pure combinator: it captures nothing beyond its
// arguments and is associative - composing in stages yields the same
// chain as composing in one call.
func Compose(terminal Handler, mws ...Middleware) Handler {
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := h
		h = func(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context) (any, error) {
			return mw(ctx, def, params, ec, inner)
		}
	}
	return h
}

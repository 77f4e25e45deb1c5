package agent

import (
	"context"

	"github.com/dotsetgreg/relay/pkg/actions"
	"github.com/dotsetgreg/relay/pkg/memory"
)

// Hooks are the two cooperative veto points around the model call and the
// dispatch. A nil hook allows; a false return short-circuits that stage for
// the message while the run still completes normally.
type Hooks struct {
	// PreDecision runs before any model invocation. Vetoing skips the model
	// call entirely.
	PreDecision func(ctx context.Context, msg *memory.Memory) bool

	// PreDispatch runs after a decision is accepted, before any handler
	// executes. Vetoing skips all outbound sends for the message.
	PreDispatch func(ctx context.Context, decision *actions.Decision) bool
}

func (h Hooks) allowDecision(ctx context.Context, msg *memory.Memory) bool {
	if h.PreDecision == nil {
		return true
	}
	return h.PreDecision(ctx, msg)
}

func (h Hooks) allowDispatch(ctx context.Context, decision *actions.Decision) bool {
	if h.PreDispatch == nil {
		return true
	}
	return h.PreDispatch(ctx, decision)
}

// Package actions holds the named response strategies the agent can decide
// on, and the structured-decision plumbing that picks between them.
package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/relay/pkg/memory"
)

// Name identifies one registered action.
type Name string

const (
	ActionReply  Name = "REPLY"
	ActionIgnore Name = "IGNORE"
	ActionNone   Name = "NONE"
)

// Request is everything a handler gets about the message being acted on.
type Request struct {
	Decision Decision
	Message  *memory.Memory
	Thread   []memory.Memory
}

// Response is one outbound message a handler wants sent.
type Response struct {
	Text      string
	InReplyTo string
	Action    string
}

// EmitFunc delivers one Response. A handler may call it zero times (an
// ignore-style action), once (a direct reply), or several times (a
// multi-step action with follow-ups).
type EmitFunc func(ctx context.Context, resp Response) error

// Handler executes one action.
type Handler func(ctx context.Context, req Request, emit EmitFunc) error

// Action couples a name with its handler and the one-line description shown
// to the model when it picks actions.
type Action struct {
	Name        Name
	Description string
	Handler     Handler
}

// Registry maps action names to handlers. Registration happens at startup
// and is validated for completeness there, not at dispatch time.
type Registry struct {
	mu      sync.RWMutex
	actions map[Name]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[Name]Action)}
}

func (r *Registry) Register(a Action) error {
	if a.Name == "" {
		return fmt.Errorf("action without a name")
	}
	if a.Handler == nil {
		return fmt.Errorf("action %s without a handler", a.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.Name]; exists {
		return fmt.Errorf("action %s registered twice", a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

func (r *Registry) Get(name Name) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Validate fails startup when any required action has no handler.
func (r *Registry) Validate(required ...Name) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, name := range required {
		if _, ok := r.actions[name]; !ok {
			missing = append(missing, string(name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("actions missing handlers: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Describe renders the available-action metadata for the decision prompt,
// in stable order.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, string(name))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		a := r.actions[Name(name)]
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	return b.String()
}

// RegisterBuiltins installs the default reply/ignore/none actions.
func RegisterBuiltins(r *Registry) error {
	builtins := []Action{
		{
			Name:        ActionReply,
			Description: "Send the drafted message back into the conversation.",
			Handler: func(ctx context.Context, req Request, emit EmitFunc) error {
				text := strings.TrimSpace(req.Decision.Message)
				if text == "" {
					return nil
				}
				return emit(ctx, Response{
					Text:      text,
					InReplyTo: req.Decision.InReplyTo,
					Action:    string(ActionReply),
				})
			},
		},
		{
			Name:        ActionIgnore,
			Description: "Deliberately stay silent for this message.",
			Handler: func(ctx context.Context, req Request, emit EmitFunc) error {
				return nil
			},
		},
		{
			Name:        ActionNone,
			Description: "No action applies; produce no output.",
			Handler: func(ctx context.Context, req Request, emit EmitFunc) error {
				return nil
			},
		},
	}
	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

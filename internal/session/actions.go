package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rbright/vaani/internal/commands"
)

// ActionRunner performs application actions on behalf of the runtime.
type ActionRunner interface {
	Run(ctx context.Context, action commands.ActionID) error
}

// ActionFunc adapts a function to the ActionRunner interface.
type ActionFunc func(context.Context, commands.ActionID) error

func (f ActionFunc) Run(ctx context.Context, action commands.ActionID) error {
	return f(ctx, action)
}

// Handler performs one action.
type Handler func(context.Context) error

// Registry maps actions to handlers. Unregistered actions go to Fallback when set.
type Registry struct {
	Fallback ActionRunner

	mu       sync.RWMutex
	handlers map[commands.ActionID]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry(fallback ActionRunner) *Registry {
	return &Registry{Fallback: fallback, handlers: make(map[commands.ActionID]Handler)}
}

// Register installs h for action, replacing any previous handler.
func (r *Registry) Register(action commands.ActionID, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

func (r *Registry) Run(ctx context.Context, action commands.ActionID) error {
	r.mu.RLock()
	h, ok := r.handlers[action]
	r.mu.RUnlock()
	if ok {
		return h(ctx)
	}
	if r.Fallback != nil {
		return r.Fallback.Run(ctx, action)
	}
	return fmt.Errorf("%w: %s", ErrNoHandler, action)
}

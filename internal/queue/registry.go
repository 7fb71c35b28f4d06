package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type handlerFunc func(ctx context.Context, body []byte) error

// Registry maps message types to handlers. It is filled at startup with
// HandleCommand and Subscribe and is read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]handlerFunc
	commands map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]handlerFunc),
		commands: make(map[string]bool),
	}
}

// HandleCommand registers the single handler of command type T. It panics
// when T already has a handler.
func HandleCommand[T Message](r *Registry, fn func(context.Context, T) error) {
	var zero T
	typ := zero.MessageType()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handlers[typ]) > 0 {
		panic(fmt.Sprintf("queue: command %q already has a handler", typ))
	}
	r.commands[typ] = true
	r.handlers[typ] = append(r.handlers[typ], decoding(typ, fn))
}

// Subscribe adds a handler for event type T. Events may have any number of
// subscribers.
func Subscribe[T Message](r *Registry, fn func(context.Context, T) error) {
	var zero T
	typ := zero.MessageType()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commands[typ] {
		panic(fmt.Sprintf("queue: %q is a command and cannot have subscribers", typ))
	}
	r.handlers[typ] = append(r.handlers[typ], decoding(typ, fn))
}

func decoding[T Message](typ string, fn func(context.Context, T) error) handlerFunc {
	return func(ctx context.Context, body []byte) error {
		var msg T
		if err := json.Unmarshal(body, &msg); err != nil {
			return Unrecoverable(fmt.Errorf("decode %s: %w", typ, err))
		}
		return fn(ctx, msg)
	}
}

// Has reports whether at least one handler is registered for typ.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[typ]) > 0
}

// Deliver runs every handler registered for typ. A message nobody handles
// is unrecoverable. When several handlers fail, the result is unrecoverable
// only if every failure is; otherwise the recoverable failures are
// returned so the message is retried.
func (r *Registry) Deliver(ctx context.Context, typ string, body []byte) error {
	r.mu.RLock()
	hs := r.handlers[typ]
	r.mu.RUnlock()
	if len(hs) == 0 {
		return Unrecoverable(fmt.Errorf("no handler for message type %q", typ))
	}

	var retryable, permanent []error
	for _, h := range hs {
		if err := h(ctx, body); err != nil {
			if IsUnrecoverable(err) {
				permanent = append(permanent, err)
			} else {
				retryable = append(retryable, err)
			}
		}
	}
	switch {
	case len(retryable) > 0:
		return errors.Join(retryable...)
	case len(permanent) == 1:
		return permanent[0]
	case len(permanent) > 1:
		return Unrecoverable(errors.Join(permanent...))
	}
	return nil
}

package alert

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoHandler is returned when no handler is registered for a type
var ErrNoHandler = errors.New("no alert handler registered")

// Handler delivers an alert through one channel.
// Implementations report every delivery problem through the returned error.
type Handler interface {
	Notify(ctx context.Context, cfg *ConfigWithParams, tpl *Template) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, cfg *ConfigWithParams, tpl *Template) error

// Notify implements the Handler interface.
func (f HandlerFunc) Notify(ctx context.Context, cfg *ConfigWithParams, tpl *Template) error {
	return f(ctx, cfg, tpl)
}

// Resolver maps alert types to their handlers
type Resolver struct {
	handlers map[Type]Handler
}

// NewResolver builds a resolver from a static handler table.
// Nil handlers are dropped.
func NewResolver(handlers map[Type]Handler) *Resolver {
	table := make(map[Type]Handler, len(handlers))
	for t, h := range handlers {
		if h != nil {
			table[t] = h
		}
	}
	return &Resolver{handlers: table}
}

// Resolve returns the handler for t
func (r *Resolver) Resolve(t Type) (Handler, error) {
	if r != nil {
		if h, ok := r.handlers[t]; ok {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoHandler, t)
}

// Missing returns the known types without a handler
func (r *Resolver) Missing() []Type {
	var missing []Type
	for _, t := range Types() {
		if _, err := r.Resolve(t); err != nil {
			missing = append(missing, t)
		}
	}
	return missing
}

// Package channel contains the dispatch adapters the nurturing engine sends
// messages through.
package channel

import (
	"context"
	"fmt"
)

// Message is one rendered nurturing message ready to send.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Adapter delivers messages over a single channel.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Registry resolves adapters by channel name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	reg := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		reg.adapters[adapter.Name()] = adapter
	}
	return reg
}

// Get returns the adapter for the channel name.
func (r *Registry) Get(name string) (Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %q", name)
	}
	return adapter, nil
}

// Package reward dispatches claimed rewards to fulfilment handlers.
package reward

import (
	"context"
	"errors"
	"sort"
	"sync"

	"levelup-engine/internal/model"
)

// Request is the input of one fulfilment.
type Request struct {
	Member *model.Member
	Reward *model.Reward
	Claim  *model.RewardClaim
}

// Handler fulfils one reward type.
type Handler interface {
	// Type returns the reward type this handler serves.
	Type() string
	// Fulfil delivers the reward. An error marks the claim failed.
	Fulfil(ctx context.Context, req Request) error
}

// Registry maps reward types to handlers. Safe for concurrent use.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h, replacing any handler with the same type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("cannot register nil handler")
	}
	if h.Type() == "" {
		return errors.New("handler type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
	return nil
}

// Get returns the handler for rewardType.
func (r *Registry) Get(rewardType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[rewardType]
	return h, ok
}

// Types returns the registered reward types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

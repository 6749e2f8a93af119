package broker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks the set of configured worker queues and resolves a
// service type (or a pinned queue name) to a live Queue, backing the
// service resolver (§4.B).
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// Register adds a queue, keyed by its configured name.
func (r *Registry) Register(q *Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[q.Name()] = q
}

// ByName returns the queue registered under name, if any.
func (r *Registry) ByName(name string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	return q, ok
}

// ByServiceType returns all queues advertising serviceType, ordered by
// name for deterministic resolution.
func (r *Registry) ByServiceType(serviceType string) []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*Queue
	for _, q := range r.queues {
		if q.ServiceType() == serviceType {
			matches = append(matches, q)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name() < matches[j].Name() })
	return matches
}

// Resolve picks a queue for serviceType: pinnedName if set and registered
// under that type, otherwise any queue advertising the type. It returns
// false if no queue can satisfy the request (§4.B UnresolvableTaskError).
func (r *Registry) Resolve(serviceType, pinnedName string) (*Queue, bool) {
	if pinnedName != "" {
		q, ok := r.ByName(pinnedName)
		if !ok || q.ServiceType() != serviceType {
			return nil, false
		}
		return q, true
	}
	matches := r.ByServiceType(serviceType)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// Close closes every registered queue's connection.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for name, q := range r.queues {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing queue %q: %w", name, err)
		}
	}
	return firstErr
}

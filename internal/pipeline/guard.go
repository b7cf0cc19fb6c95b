package pipeline

import "sync"

// Inflight is the per-sender admission registry. For any identity at most one
// pipeline run may be active at a time; concurrent webhook deliveries for the
// same sender (provider retries, rapid double-send) are rejected instead of
// producing duplicate or interleaved replies.
type Inflight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInflight creates an empty registry.
func NewInflight() *Inflight {
	return &Inflight{active: make(map[string]struct{})}
}

// Admit atomically checks and inserts the identity. Returns false when a run
// for the identity is already in flight.
func (g *Inflight) Admit(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[identity]; busy {
		return false
	}
	g.active[identity] = struct{}{}
	return true
}

// Release unconditionally removes the identity. Runs on every terminal state,
// success or failure.
func (g *Inflight) Release(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, identity)
}

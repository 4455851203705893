package engine

import "github.com/npanium/zkLeaderboard/internal/domain"

// NonceRegistry tracks the next expected authorization nonce per bettor.
// Nonces start at zero and only ever increase. It is not safe for concurrent
// use on its own; the Engine guards it with its lock.
type NonceRegistry struct {
	next map[domain.Address]uint64
}

// NewNonceRegistry returns an empty registry.
func NewNonceRegistry() *NonceRegistry {
	return &NonceRegistry{next: make(map[domain.Address]uint64)}
}

// Get returns the nonce the next authorization from p must carry.
func (r *NonceRegistry) Get(p domain.Address) uint64 {
	return r.next[p]
}

// consume advances p's nonce by one.
func (r *NonceRegistry) consume(p domain.Address) {
	r.next[p]++
}

// Nonce returns the next expected authorization nonce for p.
func (e *Engine) Nonce(p domain.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nonces.Get(p)
}

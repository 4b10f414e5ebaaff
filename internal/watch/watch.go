// Package watch registers derived contract addresses whose events the
// upstream decoder should start emitting.
package watch

import (
	"context"
	"sync"
)

// Template names the contract ABI a watched address is decoded with.
type Template string

// Templates.
const (
	TemplateSubjectToken    Template = "SubjectToken"
	TemplateTokenLockWallet Template = "TokenLockWallet"
)

// Request asks the decoder to start watching Address with Template.
type Request struct {
	Template Template `json:"template"`
	Address  string   `json:"address"`
	// Block is the first block to decode from.
	Block uint64 `json:"block"`
}

// Registry accepts watch requests. Implementations must be idempotent:
// a rolled back event may register the same address again on retry.
type Registry interface {
	Register(ctx context.Context, req Request) error
}

// MemoryRegistry keeps requests in memory. Used by replay and tests.
type MemoryRegistry struct {
	mu       sync.Mutex
	seen     map[Request]struct{}
	requests []Request
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{seen: make(map[Request]struct{})}
}

// Register records req once.
func (r *MemoryRegistry) Register(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[req]; ok {
		return nil
	}
	r.seen[req] = struct{}{}
	r.requests = append(r.requests, req)
	return nil
}

// Requests returns the registered requests in arrival order.
func (r *MemoryRegistry) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Nop discards every request.
type Nop struct{}

// Register does nothing.
func (Nop) Register(context.Context, Request) error { return nil }

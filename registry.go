package mqttsn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MessageRegistry stores publish payloads keyed by UUID so queued
// publishes stay small and payloads survive requeue cycles. Entries
// expire after their TTL and are tidied from the state loop.
type MessageRegistry struct {
	mu    sync.Mutex
	blobs *expirable.LRU[uuid.UUID, []byte]
}

// NewMessageRegistry creates a registry. maxEntries bounds the store
// (0 means unbounded); ttl expires untouched payloads.
func NewMessageRegistry(maxEntries int, ttl time.Duration) *MessageRegistry {
	return &MessageRegistry{
		blobs: expirable.NewLRU[uuid.UUID, []byte](maxEntries, nil, ttl),
	}
}

// Add stores a payload and returns its key.
func (r *MessageRegistry) Add(data []byte) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs.Add(id, data)
	return id
}

// Get returns the payload under id.
func (r *MessageRegistry) Get(id uuid.UUID) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs.Get(id)
}

// Remove drops the payload under id.
func (r *MessageRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs.Remove(id)
}

// Len returns the number of stored payloads.
func (r *MessageRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs.Len()
}

// Tidy evicts expired payloads. The expirable store reaps on access;
// touching the length from the state loop keeps memory bounded even
// when the registry is otherwise idle.
func (r *MessageRegistry) Tidy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.blobs.Len()
}

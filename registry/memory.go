package registry

import (
	"context"
	"sync"

	"github.com/medisync/recordcrypt/interfaces"
)

// MemoryRegistry is an in-memory key registry for tests and development.
// Safe for concurrent use.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[interfaces.UserID]interfaces.KeyRecord
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[interfaces.UserID]interfaces.KeyRecord)}
}

// Fetch returns the key record stored for the user.
func (r *MemoryRegistry) Fetch(ctx context.Context, user interfaces.UserID) (*interfaces.KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[user]
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	copied := record
	return &copied, nil
}

// Store writes the key record for the user.
func (r *MemoryRegistry) Store(ctx context.Context, user interfaces.UserID, record *interfaces.KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[user] = *record
	return nil
}

// Delete removes the user's key record.
func (r *MemoryRegistry) Delete(ctx context.Context, user interfaces.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[user]; !ok {
		return interfaces.ErrKeyNotFound
	}
	delete(r.records, user)
	return nil
}

// Available always reports true for the in-memory registry.
func (r *MemoryRegistry) Available(ctx context.Context) bool { return true }

// Name returns a unique identifier for this backend.
func (r *MemoryRegistry) Name() string { return "memory" }

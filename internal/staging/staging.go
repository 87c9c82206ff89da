// Package staging holds extracted-but-unconfirmed material records between
// the extract step and the confirm step, one record set per delivery.
//
// A staged set survives navigation within a session and is cleared on a
// successful confirm. A set abandoned mid-flow goes stale harmlessly: Get is
// only consulted by the review step, and an absent entry degrades to an
// empty record list.
package staging

import (
	"context"
	"sync"

	"github.com/buildlens/delivery-intake/internal/delivery"
)

// DeliveryID is the typed staging key. Keying by type rather than by string
// concatenation removes key-collision risk between flows.
type DeliveryID string

// Store is the staging contract. Put overwrites; Get reports ok=false for an
// absent entry; Clear on an absent entry is a no-op.
type Store interface {
	Put(ctx context.Context, id DeliveryID, records []delivery.MaterialRecord) error
	Get(ctx context.Context, id DeliveryID) ([]delivery.MaterialRecord, bool, error)
	Clear(ctx context.Context, id DeliveryID) error
}

// MemoryStore is the default session-scoped implementation. It does not
// survive process restart, which the intake flow does not require.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[DeliveryID][]delivery.MaterialRecord
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory staging store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[DeliveryID][]delivery.MaterialRecord)}
}

// Put stages records for a delivery, replacing any previous set.
func (s *MemoryStore) Put(_ context.Context, id DeliveryID, records []delivery.MaterialRecord) error {
	copied := make([]delivery.MaterialRecord, len(records))
	copy(copied, records)

	s.mu.Lock()
	s.entries[id] = copied
	s.mu.Unlock()
	return nil
}

// Get returns the staged records for a delivery, ok=false when none exist.
func (s *MemoryStore) Get(_ context.Context, id DeliveryID) ([]delivery.MaterialRecord, bool, error) {
	s.mu.Lock()
	records, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	copied := make([]delivery.MaterialRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

// Clear removes the staged records for a delivery.
func (s *MemoryStore) Clear(_ context.Context, id DeliveryID) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

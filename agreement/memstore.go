package agreement

import (
	"context"
	"sync"
)

// MemStore is a deterministic in-memory Store for unit tests and local
// development. Reads and writes exchange deep copies, so a caller mutating
// a working copy observes nothing until SaveAgreement commits it.
type MemStore struct {
	mu         sync.Mutex
	nextID     int64
	agreements map[int64]*Agreement
	disputes   map[int64]*Dispute
	outbox     []Event
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		agreements: make(map[int64]*Agreement),
		disputes:   make(map[int64]*Dispute),
	}
}

// NextAgreementID hands out strictly increasing identifiers starting at 1.
func (m *MemStore) NextAgreementID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

// GetAgreement returns a deep copy or ErrAgreementNotFound.
func (m *MemStore) GetAgreement(ctx context.Context, id int64) (*Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return nil, ErrAgreementNotFound
	}
	assertConserved(a)
	return a.Clone(), nil
}

// SaveAgreement stores deep copies of the agreement graph, dispute record,
// and events under the lock, making the save atomic.
func (m *MemStore) SaveAgreement(ctx context.Context, a *Agreement, d *Dispute, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agreements[a.ID] = a.Clone()
	if d != nil {
		dup := *d
		if d.ResolvedAt != nil {
			t := *d.ResolvedAt
			dup.ResolvedAt = &t
		}
		m.disputes[a.ID] = &dup
	}
	m.outbox = append(m.outbox, events...)
	return nil
}

// GetDispute returns the dispute record for the agreement, if any.
func (m *MemStore) GetDispute(ctx context.Context, agreementID int64) (*Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[agreementID]
	if !ok {
		return nil, ErrNoDispute
	}
	dup := *d
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		dup.ResolvedAt = &t
	}
	return &dup, nil
}

// Outbox returns a snapshot of the emitted events, oldest first.
func (m *MemStore) Outbox() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.outbox))
	copy(out, m.outbox)
	return out
}

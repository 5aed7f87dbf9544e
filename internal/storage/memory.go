package storage

import (
	"sync"
	"sync/atomic"

	"github.com/paxossim/quorum/internal/paxos"
)

// snapshot is one acceptor's full durable state, published as a single
// immutable value: a reader that grabs the pointer always sees a promised
// id and accepted (id, value) pair that were true at the same instant,
// never a promised update torn from a concurrent accepted update.
type snapshot struct {
	promised      paxos.ProposalID
	acceptedID    paxos.ProposalID
	acceptedValue paxos.Value
}

// MemoryStorage is an in-process Storage holding its state as an atomically
// swapped snapshot. Nothing is written to disk, so an acceptor using it
// loses its promised/accepted state across a restart — acceptable for
// simulation, where nodes are created fresh for each run and "crash" means
// stop responding, not restart.
type MemoryStorage struct {
	mu      sync.Mutex // serializes read-modify-write snapshot swaps
	current atomic.Pointer[snapshot]
}

// NewMemoryStorage returns an empty Storage with no promised or accepted
// state.
func NewMemoryStorage() *MemoryStorage {
	m := &MemoryStorage{}
	m.current.Store(&snapshot{})
	return m
}

func (m *MemoryStorage) view() snapshot {
	if s := m.current.Load(); s != nil {
		return *s
	}
	return snapshot{}
}

func (m *MemoryStorage) SavePromised(id paxos.ProposalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.view()
	next.promised = id
	m.current.Store(&next)
	return nil
}

func (m *MemoryStorage) LoadPromised() (paxos.ProposalID, error) {
	return m.view().promised, nil
}

func (m *MemoryStorage) SaveAccepted(id paxos.ProposalID, value paxos.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.view()
	next.acceptedID = id
	next.acceptedValue = append(paxos.Value(nil), value...)
	m.current.Store(&next)
	return nil
}

func (m *MemoryStorage) LoadAccepted() (paxos.ProposalID, paxos.Value, error) {
	s := m.view()
	return s.acceptedID, append(paxos.Value(nil), s.acceptedValue...), nil
}

// Reset clears all stored state, for test isolation between runs that
// reuse a MemoryStorage instance.
func (m *MemoryStorage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Store(&snapshot{})
}

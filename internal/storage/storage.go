// Package storage abstracts the acceptor's durable state: the highest
// promised proposal id and the highest accepted (id, value) pair. Paxos
// safety depends on an acceptor never forgetting either across restarts;
// coding to this interface keeps that concern swappable without touching
// acceptor logic. This module ships only the in-memory implementation —
// durable-across-restart storage is explicitly out of scope (see
// SPEC_FULL.md §4), but the seam is here for a disk-backed Storage to slot
// into later.
package storage

import "github.com/paxossim/quorum/internal/paxos"

// Storage persists one acceptor's promised and accepted state.
type Storage interface {
	// SavePromised durably records the highest proposal id this acceptor
	// has promised not to accept below.
	SavePromised(id paxos.ProposalID) error

	// LoadPromised returns the highest promised proposal id, or the zero
	// ProposalID if none has ever been promised.
	LoadPromised() (paxos.ProposalID, error)

	// SaveAccepted durably records the (id, value) pair this acceptor has
	// accepted.
	SaveAccepted(id paxos.ProposalID, value paxos.Value) error

	// LoadAccepted returns the accepted (id, value) pair, or the zero
	// ProposalID and a nil value if nothing has ever been accepted.
	LoadAccepted() (paxos.ProposalID, paxos.Value, error)

	// Reset clears all stored state. Used by tests for isolation between
	// runs that reuse a Storage instance.
	Reset()
}

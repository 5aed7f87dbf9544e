// Package paxos implements the single-decree Paxos state machines —
// Proposer, Acceptor, and Learner — plus the proposal identifier and
// message types that flow between them over the network fabric.
package paxos

import "fmt"

// ProposalID totally orders proposals across every proposer in the system.
// Proposals compare by Round first, then by ProposerID as a tiebreaker, so
// two proposers minting ids concurrently never collide: each proposer only
// ever increments its own Round.
//
//	(1, "P0") < (1, "P1") < (2, "P0") < (3, "P0")
type ProposalID struct {
	Round      uint64
	ProposerID string
}

// IsZero reports whether id is the null proposal id, which compares less
// than every real proposal id.
func (id ProposalID) IsZero() bool {
	return id.Round == 0 && id.ProposerID == ""
}

// Less reports whether id sorts strictly before other.
func (id ProposalID) Less(other ProposalID) bool {
	if id.Round != other.Round {
		return id.Round < other.Round
	}
	return id.ProposerID < other.ProposerID
}

// Greater reports whether id sorts strictly after other.
func (id ProposalID) Greater(other ProposalID) bool {
	return other.Less(id)
}

// GreaterOrEqual reports whether id sorts at or after other.
func (id ProposalID) GreaterOrEqual(other ProposalID) bool {
	return !id.Less(other)
}

// Equal reports whether id and other identify the same proposal.
func (id ProposalID) Equal(other ProposalID) bool {
	return id.Round == other.Round && id.ProposerID == other.ProposerID
}

func (id ProposalID) String() string {
	if id.IsZero() {
		return "∅"
	}
	return fmt.Sprintf("(round=%d, proposer=%s)", id.Round, id.ProposerID)
}

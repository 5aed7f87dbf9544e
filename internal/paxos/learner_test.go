package paxos

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLearnerResolvesAtQuorum(t *testing.T) {
	l := NewLearner("L0", 2, nil)
	id := ProposalID{Round: 1, ProposerID: "P0"}

	resolved, _, _ := l.Resolved()
	require.False(t, resolved)

	l.OnAccepted("A0", id, Value("v"))
	resolved, _, _ = l.Resolved()
	require.False(t, resolved, "one of two acceptors is not yet quorum")

	l.OnAccepted("A1", id, Value("v"))
	resolved, resolvedID, value := l.Resolved()
	require.True(t, resolved)
	require.Equal(t, id, resolvedID)
	require.Equal(t, Value("v"), value)
}

func TestLearnerIgnoresDuplicateAcceptorReport(t *testing.T) {
	l := NewLearner("L0", 2, nil)
	id := ProposalID{Round: 1, ProposerID: "P0"}

	l.OnAccepted("A0", id, Value("v"))
	l.OnAccepted("A0", id, Value("v"))
	resolved, _, _ := l.Resolved()
	require.False(t, resolved, "duplicate reports from the same acceptor must not double-count")
}

func TestLearnerLatchesFirstValueOnly(t *testing.T) {
	l := NewLearner("L0", 2, nil)
	first := ProposalID{Round: 1, ProposerID: "P0"}
	second := ProposalID{Round: 2, ProposerID: "P1"}

	l.OnAccepted("A0", first, Value("v1"))
	l.OnAccepted("A1", first, Value("v1"))

	l.OnAccepted("A0", second, Value("v2"))
	l.OnAccepted("A1", second, Value("v2"))

	resolved, resolvedID, value := l.Resolved()
	require.True(t, resolved)
	require.Equal(t, first, resolvedID)
	require.Equal(t, Value("v1"), value, "once final_value is set it never changes")
}

package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paxossim/quorum/internal/paxos"
)

func fastPhaseCfg(base Config) Config {
	base.PhaseTimeout = 30 * time.Millisecond
	base.MaxPhaseRetries = 3
	if base.GlobalTimeout == 0 {
		base.GlobalTimeout = 2 * time.Second
	}
	return base
}

func TestRunHappyPath(t *testing.T) {
	cfg := fastPhaseCfg(Config{
		NumProposers: 1,
		NumAcceptors: 3,
		NumLearners:  1,
		InitialValue: paxos.Value("v"),
	})

	metrics, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, metrics.Decided)
	require.False(t, metrics.TimedOut)
	require.Equal(t, paxos.Value("v"), metrics.FinalValue)
	require.Equal(t, 1, metrics.Rounds)
	require.Equal(t, int64(0), metrics.MessagesDropped)
}

func TestRunSucceedsUnderPartialDropWithRetries(t *testing.T) {
	cfg := fastPhaseCfg(Config{
		NumProposers:      1,
		NumAcceptors:      3,
		NumLearners:       1,
		InitialValue:      paxos.Value("v"),
		DropRate:          0.3,
		MaxNetworkRetries: 5,
		RetryBase:         time.Millisecond,
		RetryCap:          10 * time.Millisecond,
		GlobalTimeout:     3 * time.Second,
	})

	metrics, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, metrics.Decided)
}

func TestRunInsufficientAcceptorsTimesOut(t *testing.T) {
	cfg := fastPhaseCfg(Config{
		NumProposers: 1,
		NumAcceptors: 3,
		NumLearners:  1,
		Proposals: []ProposalEvent{
			{At: 10 * time.Millisecond, Proposer: 0, Value: paxos.Value("v")},
		},
		CrashSchedule: []CrashEvent{
			{At: 0, NodeID: "A0"},
			{At: 0, NodeID: "A1"},
		},
	})

	metrics, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.False(t, metrics.Decided)
	require.True(t, metrics.TimedOut)
	require.Equal(t, cfg.MaxPhaseRetries, metrics.Rounds)
}

func TestRunTwoOfFiveAcceptorsCrashStillDecides(t *testing.T) {
	cfg := fastPhaseCfg(Config{
		NumProposers: 1,
		NumAcceptors: 5,
		NumLearners:  1,
		InitialValue: paxos.Value("v"),
		CrashSchedule: []CrashEvent{
			{At: 15 * time.Millisecond, NodeID: "A0"},
			{At: 15 * time.Millisecond, NodeID: "A1"},
		},
	})

	metrics, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, metrics.Decided)
}

func TestRunContendingProposersAgreeOnOneValue(t *testing.T) {
	cfg := fastPhaseCfg(Config{
		NumProposers: 2,
		NumAcceptors: 3,
		NumLearners:  1,
		Proposals: []ProposalEvent{
			{At: 0, Proposer: 0, Value: paxos.Value("X")},
			{At: 0, Proposer: 1, Value: paxos.Value("Y")},
		},
	})

	metrics, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, metrics.Decided)
	require.Contains(t, []string{"X", "Y"}, string(metrics.FinalValue))
}

func TestRunRejectsBadConfig(t *testing.T) {
	_, err := Run(context.Background(), Config{NumProposers: 1, NumAcceptors: 0})
	require.Error(t, err)

	_, err = Run(context.Background(), Config{NumProposers: 0, NumAcceptors: 3})
	require.Error(t, err)
}

func TestRunStampsDistinctRunIDs(t *testing.T) {
	cfg := fastPhaseCfg(Config{
		NumProposers: 1,
		NumAcceptors: 3,
		NumLearners:  1,
		InitialValue: paxos.Value("v"),
	})

	m1, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	m2, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NotEmpty(t, m1.RunID)
	require.NotEqual(t, m1.RunID, m2.RunID)
}

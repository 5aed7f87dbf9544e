package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paxossim/quorum/internal/paxos"
)

type fakeReceiver struct {
	id      string
	mu      sync.Mutex
	crashed bool
	got     []paxos.Message
}

func (f *fakeReceiver) ID() string { return f.id }
func (f *fakeReceiver) Crashed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crashed
}
func (f *fakeReceiver) Deliver(msg paxos.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
}
func (f *fakeReceiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestNetworkDeliversWithZeroDelayAndZeroDrop(t *testing.T) {
	n := New(DefaultConfig(), nil, nil)
	defer n.Stop()

	recv := &fakeReceiver{id: "A0"}
	n.Register(recv)

	n.Send(paxos.Prepare{From: "P0", To: "A0", ProposalID: paxos.ProposalID{Round: 1, ProposerID: "P0"}})

	waitUntil(t, time.Second, func() bool { return recv.count() == 1 })
	require.Equal(t, int64(1), n.Counters().Sent)
	require.Equal(t, int64(0), n.Counters().Dropped)
}

func TestNetworkNeverDeliversToCrashedReceiver(t *testing.T) {
	n := New(DefaultConfig(), nil, nil)
	defer n.Stop()

	recv := &fakeReceiver{id: "A0", crashed: true}
	n.Register(recv)

	n.Send(paxos.Prepare{From: "P0", To: "A0", ProposalID: paxos.ProposalID{Round: 1, ProposerID: "P0"}})
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 0, recv.count())
}

func TestNetworkStopPreventsFurtherDelivery(t *testing.T) {
	n := New(DefaultConfig(), nil, nil)
	recv := &fakeReceiver{id: "A0"}
	n.Register(recv)
	n.Stop()

	n.Send(paxos.Prepare{From: "P0", To: "A0", ProposalID: paxos.ProposalID{Round: 1, ProposerID: "P0"}})
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 0, recv.count())
}

func TestNetworkAlwaysDropsAtFullDropRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DropRate = 1.0
	n := New(cfg, nil, nil)
	defer n.Stop()

	recv := &fakeReceiver{id: "A0"}
	n.Register(recv)

	n.Send(paxos.Prepare{From: "P0", To: "A0", ProposalID: paxos.ProposalID{Round: 1, ProposerID: "P0"}})
	waitUntil(t, time.Second, func() bool { return n.Counters().Dropped == 1 })

	require.Equal(t, 0, recv.count())
	require.Equal(t, int64(0), n.Counters().Retried, "drop_rate=1.0 skips retries entirely")
}

func TestNetworkDedupesInFlightRetryByToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBase = time.Millisecond
	cfg.RetryCap = 5 * time.Millisecond
	cfg.DelayMin = 20 * time.Millisecond // keep attempt 0 in flight across both sends
	cfg.DelayMax = 20 * time.Millisecond
	n := New(cfg, nil, nil)
	defer n.Stop()

	recv := &fakeReceiver{id: "A0"}
	n.Register(recv)

	msg := paxos.Prepare{From: "P0", To: "A0", ProposalID: paxos.ProposalID{Round: 1, ProposerID: "P0"}}
	n.send(msg, 0)
	n.send(msg, 0) // same token while attempt 0 is in flight — must be a no-op

	waitUntil(t, time.Second, func() bool { return recv.count() >= 1 })
	require.Equal(t, 1, recv.count())
}

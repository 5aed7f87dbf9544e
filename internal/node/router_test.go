package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paxossim/quorum/internal/network"
	"github.com/paxossim/quorum/internal/paxos"
)

func TestRouterFansOutUnaddressedAccepted(t *testing.T) {
	net := network.New(network.DefaultConfig(), nil, nil)
	defer net.Stop()

	l0 := &recordingRole{}
	l1 := &recordingRole{}
	nl0 := New("L0", l0, nil, 0)
	nl1 := New("L1", l1, nil, 0)
	nl0.Start()
	nl1.Start()
	defer nl0.Stop()
	defer nl1.Stop()
	net.Register(nl0)
	net.Register(nl1)

	router := NewRouter(net, []string{"L0", "L1"})
	id := paxos.ProposalID{Round: 1, ProposerID: "P0"}
	router.Send(paxos.Accepted{From: "A0", ProposalID: id, Value: paxos.Value("v")})

	waitUntil(t, time.Second, func() bool { return l0.count() == 1 && l1.count() == 1 })
}

func TestRouterSendsDirectlyAddressedMessageOnce(t *testing.T) {
	net := network.New(network.DefaultConfig(), nil, nil)
	defer net.Stop()

	p := &recordingRole{}
	np := New("P0", p, nil, 0)
	np.Start()
	defer np.Stop()
	net.Register(np)

	router := NewRouter(net, []string{"L0"})
	id := paxos.ProposalID{Round: 1, ProposerID: "P0"}
	router.Send(paxos.Promise{From: "A0", To: "P0", ProposalID: id})

	waitUntil(t, time.Second, func() bool { return p.count() == 1 })
}

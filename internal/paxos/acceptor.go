package paxos

import (
	"sync"

	"go.uber.org/zap"

	"github.com/paxossim/quorum/internal/storage"
)

// Broadcaster is the narrow send surface a role needs from the network —
// just enough to reply to one sender or fan a message out to a role's full
// membership. internal/node wires the real network.Network to it.
type Broadcaster interface {
	Send(msg Message)
}

// Acceptor is the safety half of the protocol: it promises not to accept
// below a proposal id, and never accepts a value lower than the id it
// promised. State lives behind a storage.Storage so the durability strategy
// is swappable without touching this logic.
type Acceptor struct {
	id    string
	store storage.Storage
	out   Broadcaster
	log   *zap.Logger

	mu sync.Mutex
}

// NewAcceptor returns an Acceptor that keeps no promised or accepted state
// of its own; store is queried fresh on every operation, so a store
// pre-loaded from a prior run resumes from it.
func NewAcceptor(id string, store storage.Storage, out Broadcaster, log *zap.Logger) *Acceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Acceptor{id: id, store: store, out: out, log: log}
}

// OnPrepare implements spec §4.2: promise id if it is unset or strictly
// greater than the current promise, replying with whatever this acceptor
// has already accepted so the proposer can adopt it. A stale prepare gets
// no reply at all — the proposer recovers via its own phase timeout.
func (a *Acceptor) OnPrepare(from string, id ProposalID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	promised, err := a.store.LoadPromised()
	if err != nil {
		a.log.Error("load promised failed", zap.Error(err))
		return
	}
	if !promised.IsZero() && !id.Greater(promised) {
		return
	}
	if err := a.store.SavePromised(id); err != nil {
		a.log.Error("save promised failed", zap.Error(err))
		return
	}

	acceptedID, acceptedValue, err := a.store.LoadAccepted()
	if err != nil {
		a.log.Error("load accepted failed", zap.Error(err))
		return
	}
	a.out.Send(Promise{
		From:       a.id,
		To:         from,
		ProposalID: id,
		PrevID:     acceptedID,
		PrevValue:  acceptedValue,
	})
}

// OnAccept implements spec §4.2: accept (id, value) if id is unset-promised
// or at least the current promise, then broadcast Accepted to every learner
// and proposer known to out. A stale accept is silently ignored.
func (a *Acceptor) OnAccept(from string, id ProposalID, value Value) {
	a.mu.Lock()
	promised, err := a.store.LoadPromised()
	if err != nil {
		a.mu.Unlock()
		a.log.Error("load promised failed", zap.Error(err))
		return
	}
	if !promised.IsZero() && id.Less(promised) {
		a.mu.Unlock()
		return
	}
	if err := a.store.SavePromised(id); err != nil {
		a.mu.Unlock()
		a.log.Error("save promised failed", zap.Error(err))
		return
	}
	if err := a.store.SaveAccepted(id, value); err != nil {
		a.mu.Unlock()
		a.log.Error("save accepted failed", zap.Error(err))
		return
	}
	a.mu.Unlock()

	a.out.Send(Accepted{From: a.id, ProposalID: id, Value: value})
}

// State returns the currently recorded promised id and accepted (id,
// value) pair, for tests and metrics.
func (a *Acceptor) State() (promised, accepted ProposalID, value Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	promised, _ = a.store.LoadPromised()
	accepted, value, _ = a.store.LoadAccepted()
	return
}

// Deliver dispatches an inbound message to the acceptor operation it maps
// to; message kinds that make no sense for an acceptor are ignored.
func (a *Acceptor) Deliver(msg Message) {
	switch m := msg.(type) {
	case Prepare:
		a.OnPrepare(m.From, m.ProposalID)
	case Accept:
		a.OnAccept(m.From, m.ProposalID, m.Value)
	default:
		a.log.Warn("acceptor: unhandled message kind", zap.String("acceptor", a.id), zap.String("kind", msg.Kind()))
	}
}

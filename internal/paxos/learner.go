package paxos

import (
	"sync"

	"go.uber.org/zap"
)

type tally struct {
	seen  map[string]bool
	value Value
}

// Learner aggregates accepted notifications and declares a decision the
// first time any single proposal id is reported accepted by quorumSize
// distinct acceptors.
type Learner struct {
	id         string
	quorumSize int
	log        *zap.Logger

	mu         sync.Mutex
	tallies    map[ProposalID]*tally
	finalValue Value
	hasFinal   bool
	finalID    ProposalID
}

// NewLearner returns a Learner that has not yet resolved.
func NewLearner(id string, quorumSize int, log *zap.Logger) *Learner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Learner{id: id, quorumSize: quorumSize, log: log, tallies: make(map[ProposalID]*tally)}
}

// OnAccepted implements spec §4.4: tallies from under id, deduplicated per
// acceptor, and latches final_value the first time any id's tally reaches
// quorum. Subsequent notifications — for this or any other id — never
// change an already-resolved learner.
func (l *Learner) OnAccepted(from string, id ProposalID, value Value) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tallies[id]
	if !ok {
		t = &tally{seen: make(map[string]bool), value: value}
		l.tallies[id] = t
	}
	if t.seen[from] {
		return
	}
	t.seen[from] = true

	if l.hasFinal || len(t.seen) < l.quorumSize {
		return
	}
	l.hasFinal = true
	l.finalValue = value
	l.finalID = id
	l.log.Info("resolution reached", zap.String("learner", l.id),
		zap.Uint64("round", id.Round), zap.String("proposer", id.ProposerID))
}

// Resolved reports whether this learner has observed a quorum, and if so
// the proposal id and value it resolved to.
func (l *Learner) Resolved() (resolved bool, id ProposalID, value Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasFinal, l.finalID, l.finalValue
}

// Deliver dispatches an inbound message to the learner operation it maps
// to; message kinds that make no sense for a learner are ignored.
func (l *Learner) Deliver(msg Message) {
	m, ok := msg.(Accepted)
	if !ok {
		l.log.Warn("learner: unhandled message kind", zap.String("learner", l.id), zap.String("kind", msg.Kind()))
		return
	}
	l.OnAccepted(m.From, m.ProposalID, m.Value)
}

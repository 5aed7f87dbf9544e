package paxos

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is where a Proposer's current decree attempt stands.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePrepare
	PhaseAccept
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseAccept:
		return "accept"
	default:
		return "idle"
	}
}

// ProposerConfig bounds one proposer's timeout and retry behavior.
type ProposerConfig struct {
	PhaseTimeout    time.Duration
	MaxPhaseRetries int
}

// DefaultProposerConfig matches spec defaults: a 4s phase timeout and up to
// 3 phase retries before giving up on the decree.
func DefaultProposerConfig() ProposerConfig {
	return ProposerConfig{PhaseTimeout: 4 * time.Second, MaxPhaseRetries: 3}
}

// Proposer drives one decree to a chosen value, tolerating message loss,
// stale rounds, and contending proposers via phase timeouts and round
// re-escalation.
type Proposer struct {
	id         string
	cfg        ProposerConfig
	quorumSize int
	acceptors  []string
	out        Broadcaster
	log        *zap.Logger
	clock      func() time.Time

	mu             sync.Mutex
	phase          Phase
	currentRound   uint64
	currentID      ProposalID
	proposedValue  Value
	promisesRcvd   map[string]bool
	bestPrior      *ProposalID
	bestPriorValue Value
	acceptsRcvd    map[string]bool
	quorumReached  bool
	prepareRetries int
	acceptRetries  int
	roundsCounter  int
	startTS        time.Time
	decideTS       time.Time
	decided        bool
	decidedValue   Value
	generation     uint64
	gaveUp         bool
}

// NewProposer returns an idle Proposer addressing the given acceptor ids.
func NewProposer(id string, quorumSize int, acceptors []string, out Broadcaster, cfg ProposerConfig, log *zap.Logger) *Proposer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Proposer{
		id:         id,
		cfg:        cfg,
		quorumSize: quorumSize,
		acceptors:  acceptors,
		out:        out,
		log:        log,
		clock:      time.Now,
		phase:      PhaseIdle,
	}
}

// SetValue records the value this proposer will push through the decree.
// It has no other side effect — callers call Prepare separately to start.
func (p *Proposer) SetValue(v Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposedValue = v
}

// Prepare enters phase=prepare with a freshly minted, strictly higher
// proposal id and sends prepare to every acceptor. It arms a phase timer
// that, on expiry, either retries or gives up per MaxPhaseRetries.
func (p *Proposer) Prepare() {
	p.mu.Lock()
	p.phase = PhasePrepare
	p.currentRound++
	p.currentID = ProposalID{Round: p.currentRound, ProposerID: p.id}
	p.promisesRcvd = make(map[string]bool)
	p.bestPrior = nil
	p.bestPriorValue = nil
	p.quorumReached = false
	p.roundsCounter++
	if p.startTS.IsZero() {
		p.startTS = p.clock()
	}
	p.generation++
	gen := p.generation
	id := p.currentID
	acceptors := append([]string(nil), p.acceptors...)
	p.mu.Unlock()

	for _, a := range acceptors {
		p.out.Send(Prepare{From: p.id, To: a, ProposalID: id})
	}
	p.armTimer(gen, p.onPrepareTimeout)
}

func (p *Proposer) armTimer(gen uint64, fn func(gen uint64)) {
	time.AfterFunc(p.cfg.PhaseTimeout, func() { fn(gen) })
}

// onPrepareTimeout fires MaxPhaseRetries-bounded re-escalation when the
// prepare phase has not reached quorum in time. A stale generation (the
// phase already moved on) makes this a no-op.
func (p *Proposer) onPrepareTimeout(gen uint64) {
	p.mu.Lock()
	if p.generation != gen || p.phase != PhasePrepare || p.quorumReached {
		p.mu.Unlock()
		return
	}
	p.prepareRetries++
	retry := p.prepareRetries < p.cfg.MaxPhaseRetries
	if !retry {
		p.gaveUp = true
		p.phase = PhaseIdle
	}
	p.mu.Unlock()

	if retry {
		p.log.Debug("prepare timeout, re-escalating round", zap.String("proposer", p.id))
		p.Prepare()
	} else {
		p.log.Debug("prepare retries exhausted, giving up", zap.String("proposer", p.id))
	}
}

// OnPromise implements spec §4.3: counts a promise toward quorum once per
// acceptor per current proposal id, tracks the highest prior accepted
// value reported, and triggers SendAccept once quorum is reached.
func (p *Proposer) OnPromise(from string, id ProposalID, prevID ProposalID, prevValue Value) {
	p.mu.Lock()
	if p.phase != PhasePrepare || !id.Equal(p.currentID) || p.promisesRcvd[from] {
		p.mu.Unlock()
		return
	}
	p.promisesRcvd[from] = true
	if !prevID.IsZero() && (p.bestPrior == nil || prevID.Greater(*p.bestPrior)) {
		bp := prevID
		p.bestPrior = &bp
		p.bestPriorValue = prevValue
	}

	if len(p.promisesRcvd) < p.quorumSize || p.quorumReached {
		p.mu.Unlock()
		return
	}
	p.quorumReached = true
	value := p.proposedValue
	if p.bestPrior != nil {
		value = p.bestPriorValue
	}
	curID := p.currentID
	p.mu.Unlock()

	p.sendAccept(curID, value)
}

// sendAccept implements spec §4.3: moves to phase=accept and fans accept
// out to every acceptor, arming a fresh phase timer.
func (p *Proposer) sendAccept(id ProposalID, value Value) {
	p.mu.Lock()
	if !p.quorumReached || !id.Equal(p.currentID) {
		p.mu.Unlock()
		return
	}
	p.phase = PhaseAccept
	p.acceptsRcvd = make(map[string]bool)
	p.generation++
	gen := p.generation
	acceptors := append([]string(nil), p.acceptors...)
	p.mu.Unlock()

	for _, a := range acceptors {
		p.out.Send(Accept{From: p.id, To: a, ProposalID: id, Value: value})
	}
	p.armTimer(gen, p.onAcceptTimeout)
}

func (p *Proposer) onAcceptTimeout(gen uint64) {
	p.mu.Lock()
	if p.generation != gen || p.phase != PhaseAccept || p.decided {
		p.mu.Unlock()
		return
	}
	p.acceptRetries++
	if p.acceptRetries < p.cfg.MaxPhaseRetries {
		id := p.currentID
		value := p.proposedValue
		if p.bestPrior != nil {
			value = p.bestPriorValue
		}
		acceptors := append([]string(nil), p.acceptors...)
		p.generation++
		gen2 := p.generation
		p.mu.Unlock()

		p.log.Debug("accept timeout, resending", zap.String("proposer", p.id))
		for _, a := range acceptors {
			p.out.Send(Accept{From: p.id, To: a, ProposalID: id, Value: value})
		}
		p.armTimer(gen2, p.onAcceptTimeout)
		return
	}
	p.mu.Unlock()

	p.log.Debug("accept retries exhausted, restarting from prepare", zap.String("proposer", p.id))
	p.Prepare()
}

// OnAccepted implements spec §4.3: counts an accepted notification toward
// accept-quorum once per acceptor per current proposal id, and records
// decision latency the first time quorum is reached.
func (p *Proposer) OnAccepted(from string, id ProposalID, value Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseAccept || !id.Equal(p.currentID) || p.acceptsRcvd[from] {
		return
	}
	p.acceptsRcvd[from] = true
	if len(p.acceptsRcvd) < p.quorumSize || p.decided {
		return
	}
	p.decided = true
	p.decidedValue = value
	p.decideTS = p.clock()
	p.phase = PhaseIdle
}

// Decided reports whether this decree's accept-quorum has been reached,
// its value, and the observed latency from Prepare's first call.
func (p *Proposer) Decided() (decided bool, value Value, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.decided {
		return false, nil, 0
	}
	return true, p.decidedValue, p.decideTS.Sub(p.startTS)
}

// GaveUp reports whether this proposer exhausted MaxPhaseRetries without
// reaching quorum.
func (p *Proposer) GaveUp() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gaveUp
}

// Rounds returns how many times Prepare has run for this decree.
func (p *Proposer) Rounds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roundsCounter
}

// Deliver dispatches an inbound message to the proposer operation it maps
// to; message kinds that make no sense for a proposer are ignored.
func (p *Proposer) Deliver(msg Message) {
	switch m := msg.(type) {
	case Promise:
		p.OnPromise(m.From, m.ProposalID, m.PrevID, m.PrevValue)
	case Accepted:
		p.OnAccepted(m.From, m.ProposalID, m.Value)
	default:
		p.log.Warn("proposer: unhandled message kind", zap.String("proposer", p.id), zap.String("kind", msg.Kind()))
	}
}

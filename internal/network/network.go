// Package network simulates the in-process message fabric Paxos nodes
// communicate over: uniformly-random delay, independent Bernoulli loss, and
// exponential-backoff retries of dropped messages, with per-token
// deduplication so a retry never double-enqueues. There is no wire format —
// messages are handed to the receiver's Deliver method as Go values.
package network

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/paxossim/quorum/internal/paxos"
)

// Receiver is implemented by anything the network can deliver a message to.
// internal/node.Node is the only production implementation.
type Receiver interface {
	ID() string
	Crashed() bool
	Deliver(msg paxos.Message)
}

// Counters are incremented reported values: Sent counts every send attempt
// (including retries), Dropped counts only terminal drops (a dropped
// message that is still going to be retried is not yet "dropped"), and
// Retried counts retry enqueues.
type Counters struct {
	Sent    int64
	Dropped int64
	Retried int64
}

// Config bounds the fabric's loss and delay behavior. Zero-value DelayMin/
// DelayMax with DropRate 0 is a perfect, instantaneous network — useful for
// deterministic happy-path tests.
type Config struct {
	DelayMin   time.Duration
	DelayMax   time.Duration
	DropRate   float64
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration
}

// DefaultConfig matches spec defaults: no delay, no loss, three retries with
// a 0.5s..5s exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryBase:  500 * time.Millisecond,
		RetryCap:   5 * time.Second,
	}
}

// Network is the shared fabric every node in a run is registered with. It is
// safe for concurrent use by many nodes' goroutines.
type Network struct {
	cfg   Config
	log   *zap.Logger
	rng   *rand.Rand
	rngMu sync.Mutex

	mu       sync.Mutex
	nodes    map[string]Receiver
	running  bool
	active   map[string]int // token -> retry attempt in flight
	counters Counters
	timers   []*time.Timer

	promSent    prometheus.Counter
	promDropped prometheus.Counter
	promRetried prometheus.Counter
}

// New constructs a Network. A nil logger is replaced with zap.NewNop(); the
// network never configures a logger itself, only uses one handed to it. reg
// may be nil — in that case counters are tracked only in-process and
// returned via Counters/driver.Metrics. When non-nil, sent/dropped/retried
// are additionally published as named prometheus counters on reg.
func New(cfg Config, log *zap.Logger, reg *prometheus.Registry) *Network {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Network{
		cfg:     cfg,
		log:     log,
		rng:     rand.New(rand.NewSource(1)),
		nodes:   make(map[string]Receiver),
		active:  make(map[string]int),
		running: true,
	}
	if reg != nil {
		n.promSent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxos_network_messages_sent_total",
			Help: "Total messages handed to the simulated network, including retries.",
		})
		n.promDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxos_network_messages_dropped_total",
			Help: "Messages permanently dropped after exhausting retries.",
		})
		n.promRetried = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxos_network_messages_retried_total",
			Help: "Retry enqueues following a simulated message loss.",
		})
		reg.MustRegister(n.promSent, n.promDropped, n.promRetried)
	}
	return n
}

// Register idempotently records node.ID() -> node.
func (n *Network) Register(node Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[node.ID()] = node
}

func (n *Network) float64() float64 {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64()
}

func (n *Network) duration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return lo + time.Duration(n.rng.Int63n(int64(hi-lo)))
}

func token(msg paxos.Message, attempt int) string {
	id := proposalIDOf(msg)
	return fmt.Sprintf("%s-%s-%s-%s-%d", msg.GetFrom(), msg.GetTo(), msg.Kind(), id, attempt)
}

func proposalIDOf(msg paxos.Message) paxos.ProposalID {
	switch m := msg.(type) {
	case paxos.Prepare:
		return m.ProposalID
	case paxos.Promise:
		return m.ProposalID
	case paxos.Accept:
		return m.ProposalID
	case paxos.Accepted:
		return m.ProposalID
	default:
		return paxos.ProposalID{}
	}
}

// Send attempts to deliver msg, injecting loss and delay per Config. It
// returns immediately; delivery (or a drop/retry decision) happens
// asynchronously. A message whose sender is registered and crashed is
// discarded without being counted.
func (n *Network) Send(msg paxos.Message) {
	n.mu.Lock()
	sender, ok := n.nodes[msg.GetFrom()]
	n.mu.Unlock()
	if ok && sender.Crashed() {
		return
	}
	n.send(msg, 0)
}

func (n *Network) send(msg paxos.Message, attempt int) {
	n.mu.Lock()
	n.counters.Sent++
	running := n.running
	tok := token(msg, attempt)
	_, inFlight := n.active[tok]
	if running && !inFlight {
		n.active[tok] = attempt
	}
	n.mu.Unlock()
	if n.promSent != nil {
		n.promSent.Inc()
	}
	if !running || inFlight {
		return
	}

	if n.cfg.DropRate > 0 && n.float64() < n.cfg.DropRate {
		n.handleDrop(msg, tok, attempt)
		return
	}

	delay := n.duration(n.cfg.DelayMin, n.cfg.DelayMax)
	if delay <= 0 {
		n.deliver(msg, tok)
		return
	}
	n.scheduleTimer(delay, func() { n.deliver(msg, tok) })
}

func (n *Network) handleDrop(msg paxos.Message, tok string, attempt int) {
	n.mu.Lock()
	canRetry := n.cfg.DropRate < 1.0 && attempt < n.cfg.MaxRetries
	if !canRetry {
		n.counters.Dropped++
		delete(n.active, tok)
		n.mu.Unlock()
		if n.promDropped != nil {
			n.promDropped.Inc()
		}
		n.log.Debug("message permanently dropped",
			zap.String("kind", msg.Kind()), zap.String("from", msg.GetFrom()),
			zap.String("to", msg.GetTo()), zap.Int("attempt", attempt))
		return
	}
	n.counters.Retried++
	n.mu.Unlock()
	if n.promRetried != nil {
		n.promRetried.Inc()
	}

	backoff := n.cfg.RetryBase << attempt
	if backoff > n.cfg.RetryCap || backoff <= 0 {
		backoff = n.cfg.RetryCap
	}
	n.log.Debug("retrying dropped message",
		zap.String("kind", msg.Kind()), zap.String("from", msg.GetFrom()),
		zap.String("to", msg.GetTo()), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))

	n.scheduleTimer(backoff, func() {
		n.mu.Lock()
		delete(n.active, tok)
		n.mu.Unlock()
		n.send(msg, attempt+1)
	})
}

func (n *Network) scheduleTimer(d time.Duration, fn func()) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	t := time.AfterFunc(d, fn)
	n.timers = append(n.timers, t)
	n.mu.Unlock()
}

func (n *Network) deliver(msg paxos.Message, tok string) {
	defer func() {
		n.mu.Lock()
		delete(n.active, tok)
		n.mu.Unlock()
	}()

	n.mu.Lock()
	running := n.running
	receiver, ok := n.nodes[msg.GetTo()]
	n.mu.Unlock()

	if !running {
		return
	}
	if !ok {
		n.log.Warn("dropping message to unknown receiver",
			zap.String("kind", msg.Kind()), zap.String("from", msg.GetFrom()), zap.String("to", msg.GetTo()))
		return
	}
	if receiver.Crashed() {
		n.log.Debug("dropping message to crashed receiver",
			zap.String("kind", msg.Kind()), zap.String("from", msg.GetFrom()), zap.String("to", msg.GetTo()))
		return
	}
	receiver.Deliver(msg)
}

// Stop clears running, preventing further sends or deliveries, and drains
// every pending token. Already-scheduled timers become no-ops when they
// fire since running is false.
func (n *Network) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	for tok := range n.active {
		delete(n.active, tok)
	}
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
}

// Counters returns a snapshot of sent/dropped/retried totals.
func (n *Network) Counters() Counters {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counters
}

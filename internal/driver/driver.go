// Package driver orchestrates one simulation run: it builds the proposer,
// acceptor, and learner populations, wires them to a network.Network,
// kicks off the configured proposals, applies any crash schedule, and
// waits for a decision or the global timeout before returning per-run
// metrics suitable for a sweep driven by an external caller.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paxossim/quorum/internal/network"
	"github.com/paxossim/quorum/internal/node"
	"github.com/paxossim/quorum/internal/paxos"
	"github.com/paxossim/quorum/internal/storage"
)

// CrashEvent schedules a node to be marked crashed at At, measured from the
// start of the run.
type CrashEvent struct {
	At     time.Duration
	NodeID string
}

// ProposalEvent schedules a proposer to set a value and call Prepare at
// At, measured from the start of the run.
type ProposalEvent struct {
	At       time.Duration
	Proposer int // index into the proposer population
	Value    paxos.Value
}

// Config bounds one simulation run. Proposer, acceptor, and learner ids are
// assigned "P0".."P{NumProposers-1}", "A0".."A{NumAcceptors-1}",
// "L0".."L{NumLearners-1}".
type Config struct {
	NumProposers int
	NumAcceptors int
	NumLearners  int

	DelayMin          time.Duration
	DelayMax          time.Duration
	DropRate          float64
	MaxNetworkRetries int
	RetryBase         time.Duration
	RetryCap          time.Duration

	PhaseTimeout    time.Duration
	MaxPhaseRetries int

	GlobalTimeout time.Duration

	// InitialValue seeds Proposals when Proposals is empty: proposer 0
	// proposes it at t=0.
	InitialValue  paxos.Value
	Proposals     []ProposalEvent
	CrashSchedule []CrashEvent

	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Metrics is the outcome of one run, shaped for collection across a sweep
// of Configs by an external caller — this package does not itself loop
// over parameter grids or aggregate statistics.
type Metrics struct {
	RunID           string
	TimedOut        bool
	Decided         bool
	FinalValue      paxos.Value
	LatencySeconds  float64
	Rounds          int
	TotalRetries    int64
	MessagesSent    int64
	MessagesDropped int64
}

func quorumSize(n int) int { return n/2 + 1 }

func proposerID(i int) string { return fmt.Sprintf("P%d", i) }
func acceptorID(i int) string { return fmt.Sprintf("A%d", i) }
func learnerID(i int) string  { return fmt.Sprintf("L%d", i) }

// Run builds one simulation, drives it to decision or timeout, and returns
// its metrics. The returned error is reserved for setup/programmer faults
// (bad Config); a run that times out without deciding is reported through
// Metrics.TimedOut, not through error.
func Run(ctx context.Context, cfg Config) (Metrics, error) {
	if cfg.NumAcceptors <= 0 {
		return Metrics{}, fmt.Errorf("driver: NumAcceptors must be positive, got %d", cfg.NumAcceptors)
	}
	if cfg.NumProposers <= 0 {
		return Metrics{}, fmt.Errorf("driver: NumProposers must be positive, got %d", cfg.NumProposers)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	globalTimeout := cfg.GlobalTimeout
	if globalTimeout <= 0 {
		globalTimeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, globalTimeout)
	defer cancel()

	qsize := quorumSize(cfg.NumAcceptors)

	netCfg := network.Config{
		DelayMin:   cfg.DelayMin,
		DelayMax:   cfg.DelayMax,
		DropRate:   cfg.DropRate,
		MaxRetries: cfg.MaxNetworkRetries,
		RetryBase:  cfg.RetryBase,
		RetryCap:   cfg.RetryCap,
	}
	if netCfg.MaxRetries == 0 {
		netCfg.MaxRetries = network.DefaultConfig().MaxRetries
	}
	if netCfg.RetryBase == 0 {
		netCfg.RetryBase = network.DefaultConfig().RetryBase
	}
	if netCfg.RetryCap == 0 {
		netCfg.RetryCap = network.DefaultConfig().RetryCap
	}
	net := network.New(netCfg, log, cfg.Registry)

	proposerCfg := paxos.DefaultProposerConfig()
	if cfg.PhaseTimeout > 0 {
		proposerCfg.PhaseTimeout = cfg.PhaseTimeout
	}
	if cfg.MaxPhaseRetries > 0 {
		proposerCfg.MaxPhaseRetries = cfg.MaxPhaseRetries
	}

	acceptorIDs := make([]string, cfg.NumAcceptors)
	for i := range acceptorIDs {
		acceptorIDs[i] = acceptorID(i)
	}
	broadcastTargets := make([]string, 0, cfg.NumProposers+cfg.NumLearners)
	for i := 0; i < cfg.NumProposers; i++ {
		broadcastTargets = append(broadcastTargets, proposerID(i))
	}
	for i := 0; i < cfg.NumLearners; i++ {
		broadcastTargets = append(broadcastTargets, learnerID(i))
	}

	var nodes []*node.Node
	var proposers []*paxos.Proposer
	var learners []*paxos.Learner

	for i := 0; i < cfg.NumAcceptors; i++ {
		id := acceptorID(i)
		router := node.NewRouter(net, broadcastTargets)
		acc := paxos.NewAcceptor(id, storage.NewMemoryStorage(), router, log)
		n := node.New(id, acc, log, 0)
		net.Register(n)
		nodes = append(nodes, n)
	}
	for i := 0; i < cfg.NumProposers; i++ {
		id := proposerID(i)
		router := node.NewRouter(net, nil)
		p := paxos.NewProposer(id, qsize, acceptorIDs, router, proposerCfg, log)
		n := node.New(id, p, log, 0)
		net.Register(n)
		nodes = append(nodes, n)
		proposers = append(proposers, p)
	}
	for i := 0; i < cfg.NumLearners; i++ {
		id := learnerID(i)
		l := paxos.NewLearner(id, qsize, log)
		n := node.New(id, l, log, 0)
		net.Register(n)
		nodes = append(nodes, n)
		learners = append(learners, l)
	}

	for _, n := range nodes {
		n.Start()
	}
	defer func() {
		net.Stop()
		for _, n := range nodes {
			n.Stop()
		}
	}()

	runID := uuid.NewString()
	log.Info("run starting", zap.String("run_id", runID),
		zap.Int("proposers", cfg.NumProposers), zap.Int("acceptors", cfg.NumAcceptors),
		zap.Int("learners", cfg.NumLearners))

	proposals := cfg.Proposals
	if len(proposals) == 0 {
		proposals = []ProposalEvent{{At: 0, Proposer: 0, Value: cfg.InitialValue}}
	}

	g, gctx := errgroup.WithContext(runCtx)
	nodeByID := make(map[string]*node.Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID()] = n
	}

	for _, ev := range cfg.CrashSchedule {
		ev := ev
		g.Go(func() error {
			t := time.NewTimer(ev.At)
			defer t.Stop()
			select {
			case <-gctx.Done():
			case <-t.C:
				if n, ok := nodeByID[ev.NodeID]; ok {
					log.Info("crashing node", zap.String("node", ev.NodeID))
					n.Crash()
				}
			}
			return nil
		})
	}
	for _, ev := range proposals {
		ev := ev
		if ev.Proposer < 0 || ev.Proposer >= len(proposers) {
			continue
		}
		g.Go(func() error {
			t := time.NewTimer(ev.At)
			defer t.Stop()
			select {
			case <-gctx.Done():
			case <-t.C:
				p := proposers[ev.Proposer]
				p.SetValue(ev.Value)
				p.Prepare()
			}
			return nil
		})
	}

	decisionCh := make(chan struct{})
	go func() {
		defer close(decisionCh)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			if decided, _, _ := anyDecision(proposers, learners); decided {
				return
			}
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	<-decisionCh
	_ = g.Wait()

	decided, _, value := anyDecision(proposers, learners)
	timedOut := runCtx.Err() != nil && !decided

	var latency float64
	rounds := 0
	for _, p := range proposers {
		if d, _, lat := p.Decided(); d {
			latency = lat.Seconds()
		}
		if r := p.Rounds(); r > rounds {
			rounds = r
		}
	}

	counters := net.Counters()

	log.Info("run finished", zap.String("run_id", runID), zap.Bool("decided", decided),
		zap.Bool("timed_out", timedOut), zap.Int64("sent", counters.Sent),
		zap.Int64("dropped", counters.Dropped), zap.Int64("retried", counters.Retried))

	return Metrics{
		RunID:           runID,
		TimedOut:        timedOut,
		Decided:         decided,
		FinalValue:      value,
		LatencySeconds:  latency,
		Rounds:          rounds,
		TotalRetries:    counters.Retried,
		MessagesSent:    counters.Sent,
		MessagesDropped: counters.Dropped,
	}, nil
}

// anyDecision reports whether any learner (or, absent learners, any
// proposer) has reached a decision, and what it decided.
func anyDecision(proposers []*paxos.Proposer, learners []*paxos.Learner) (bool, paxos.ProposalID, paxos.Value) {
	for _, l := range learners {
		if resolved, id, value := l.Resolved(); resolved {
			return true, id, value
		}
	}
	if len(learners) == 0 {
		for _, p := range proposers {
			if decided, value, _ := p.Decided(); decided {
				return true, paxos.ProposalID{}, value
			}
		}
	}
	return false, paxos.ProposalID{}, nil
}

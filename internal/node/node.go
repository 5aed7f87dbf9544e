// Package node wires one Paxos role (proposer, acceptor, or learner) to the
// network fabric: an inbound queue, a run flag, a crash switch, and a
// processing loop that drains the queue one message at a time so a role's
// internal state transitions serialize with respect to the network.
package node

import (
	"sync"

	"go.uber.org/zap"

	"github.com/paxossim/quorum/internal/paxos"
)

// Role is the message-handling surface a Node hosts. *paxos.Proposer,
// *paxos.Acceptor, and *paxos.Learner all satisfy it.
type Role interface {
	Deliver(msg paxos.Message)
}

// Node is a per-role container: it owns an inbound queue and a processing
// goroutine, and exposes the network.Receiver surface (ID, Crashed,
// Deliver) the fabric dispatches onto.
type Node struct {
	id   string
	role Role
	log  *zap.Logger

	mu      sync.Mutex
	running bool
	crashed bool

	inbox  chan paxos.Message
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a stopped, non-crashed Node wrapping role. inboxSize bounds
// how many undelivered messages may queue before Deliver drops further
// ones, logging a warning for each — generous enough that it is never hit under the retry caps
// and node counts this simulator exercises.
func New(id string, role Role, log *zap.Logger, inboxSize int) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	if inboxSize <= 0 {
		inboxSize = 256
	}
	return &Node{
		id:     id,
		role:   role,
		log:    log,
		inbox:  make(chan paxos.Message, inboxSize),
		stopCh: make(chan struct{}),
	}
}

// ID implements network.Receiver.
func (n *Node) ID() string { return n.id }

// Crashed implements network.Receiver.
func (n *Node) Crashed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.crashed
}

// Crash freezes the node: its state stops mutating, it sends nothing
// further, and any message still addressed to it is discarded on arrival.
// There is no restart — this simulator does not model acceptor
// reconfiguration or crash recovery.
func (n *Node) Crash() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.crashed = true
}

// Deliver implements network.Receiver: it enqueues msg for this node's own
// processing loop rather than handling it inline, so messages from many
// concurrent network deliveries still serialize per node.
func (n *Node) Deliver(msg paxos.Message) {
	n.mu.Lock()
	ok := n.running && !n.crashed
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case n.inbox <- msg:
	default:
		n.log.Warn("inbox full, dropping message", zap.String("node", n.id), zap.String("kind", msg.Kind()))
	}
}

// Start spawns the processing loop. It is a no-op if already running.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.running = true
	n.wg.Add(1)
	go n.loop()
}

// Stop signals the processing loop to exit and waits for it.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	close(n.stopCh)
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Node) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case msg := <-n.inbox:
			n.process(msg)
		}
	}
}

// process dispatches one message to the role, recovering from any panic at
// this boundary so a single bad message cannot halt the node.
func (n *Node) process(msg paxos.Message) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("recovered from panic handling message",
				zap.String("node", n.id), zap.String("kind", msg.Kind()), zap.Any("panic", r))
		}
	}()
	if n.Crashed() {
		return
	}
	n.role.Deliver(msg)
}

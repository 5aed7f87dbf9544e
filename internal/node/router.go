package node

import (
	"github.com/paxossim/quorum/internal/network"
	"github.com/paxossim/quorum/internal/paxos"
)

// Router implements paxos.Broadcaster over a network.Network. It is the
// "explicit typed routing" spec.md asks for in place of the source's
// dynamic role dispatch: an Accepted message with no To is fanned out to
// every id in broadcastTo (every learner and every proposer, per spec
// §4.2) instead of the acceptor reasoning about receivers itself.
type Router struct {
	net         *network.Network
	broadcastTo []string
}

// NewRouter returns a Router that sends directly addressed messages as-is
// and fans unaddressed Accepted messages out to broadcastTo.
func NewRouter(net *network.Network, broadcastTo []string) *Router {
	return &Router{net: net, broadcastTo: append([]string(nil), broadcastTo...)}
}

// Send implements paxos.Broadcaster.
func (r *Router) Send(msg paxos.Message) {
	accepted, ok := msg.(paxos.Accepted)
	if !ok || accepted.To != "" {
		r.net.Send(msg)
		return
	}
	for _, to := range r.broadcastTo {
		fanned := accepted
		fanned.To = to
		r.net.Send(fanned)
	}
}

package paxos

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Transport is the abstract, best-effort message channel the core depends
// on. It may deliver messages in any order, drop them, or delay them
// arbitrarily, but per spec.md §5 it must never call back into OnReceive's
// handler synchronously on the sending goroutine — if an implementation
// can't guarantee that, it must buffer and dispatch from elsewhere.
type Transport interface {
	Send(to NodeID, msg Message) bool
	Broadcast(msg Message) int
	OnReceive(handler func(Message))
}

// Identity supplies a node's own id and the full peer set — every node in
// the deployment, including itself — used to derive the quorum size
// (spec.md §4.6). Membership is fixed at construction; changing it requires
// a restart.
type Identity struct {
	Self  NodeID
	Peers []NodeID
}

// Node owns exactly one Proposer/Acceptor/Learner triple and dispatches
// inbound messages to the role that owns each variant (spec.md §4.5).
type Node struct {
	id        NodeID
	transport Transport
	log       *logrus.Entry

	acceptor *Acceptor
	proposer *Proposer
	learner  *Learner

	crashed atomic.Bool
}

// NewNode wires a Proposer/Acceptor/Learner for identity.Self and registers
// the dispatcher with transport. log may be nil, in which case a discarding
// logger is used — Node never assumes a shared process-global logger.
func NewNode(identity Identity, transport Transport, log *logrus.Logger) *Node {
	if log == nil {
		log = logrus.New()
		log.SetOutput(discardWriter{})
	}
	entry := log.WithField("node", identity.Self)

	majority := Majority(len(identity.Peers))

	n := &Node{
		id:        identity.Self,
		transport: transport,
		log:       entry,
	}

	n.learner = NewLearner(identity.Self, entry)
	n.acceptor = NewAcceptor(identity.Self, entry)
	n.proposer = NewProposer(identity.Self, majority, loopbackSender{n},
		func() bool { _, ok := n.learner.Decided(); return ok },
		func(np ProposalNumber, v Value) { n.learner.Handle(Learn{Sender: identity.Self, N: np, Value: v}) },
		entry)

	transport.OnReceive(n.dispatch)
	return n
}

func (n *Node) dispatch(msg Message) {
	if n.crashed.Load() {
		n.log.WithField("kind", msg.Kind()).Debug("node: dropping message, crashed")
		return
	}

	switch m := msg.(type) {
	case Prepare:
		if reply, ok := n.acceptor.HandlePrepare(m); ok {
			n.transport.Send(m.Sender, reply)
		}
	case Promise:
		n.proposer.HandlePromise(m)
	case AcceptRequest:
		if reply, ok := n.acceptor.HandleAcceptRequest(m); ok {
			n.transport.Send(m.Sender, reply)
		}
	case Accepted:
		n.proposer.HandleAccepted(m)
	case Learn:
		n.learner.Handle(m)
	default:
		n.log.WithField("kind", msg.Kind()).Warn("node: unrecognized message kind")
	}
}

// Propose asks this node's Proposer to drive a new round for value, unless
// the node is crashed.
func (n *Node) Propose(value Value) Outcome {
	if n.crashed.Load() {
		return Crashed
	}
	return n.proposer.Propose(value)
}

// Decided reports the Learner's decided value, if any.
func (n *Node) Decided() (Value, bool) {
	return n.learner.Decided()
}

// OnDecided registers a callback fired exactly once when this node's
// Learner transitions to decided.
func (n *Node) OnDecided(cb func(Value)) {
	n.learner.OnDecided(cb)
}

// ID returns this node's identity.
func (n *Node) ID() NodeID { return n.id }

// SimulateCrash makes the dispatcher drop every inbound message until
// Recover is called. Acceptor/Proposer/Learner state survives untouched —
// this model has no persistence, but also no state loss on "crash".
func (n *Node) SimulateCrash() { n.crashed.Store(true) }

// Recover clears the simulated-crash flag.
func (n *Node) Recover() { n.crashed.Store(false) }

// Crashed reports whether the node is currently simulated-crashed.
func (n *Node) Crashed() bool { return n.crashed.Load() }

// Reset clears all role state and the crash flag. Test-only.
func (n *Node) Reset() {
	n.acceptor.Reset()
	n.proposer.Reset()
	n.learner.Reset()
	n.crashed.Store(false)
}

// AcceptorState and ProposerState expose the underlying roles' state for
// tests that need to assert on role-level state directly.
func (n *Node) AcceptorState() (*ProposalNumber, *ProposalNumber, Value) { return n.acceptor.State() }
func (n *Node) ProposerState() (Phase, ProposalNumber, Value)            { return n.proposer.State() }

// loopbackSender is the Sender a Node hands its Proposer. Transport.Broadcast
// skips self, but the quorum counts this node too, so every broadcast is also
// sent to the node's own dispatcher through the transport (which keeps the
// delivery asynchronous) and its own Acceptor and Learner take part.
type loopbackSender struct{ n *Node }

func (s loopbackSender) Send(to NodeID, msg Message) bool { return s.n.transport.Send(to, msg) }

func (s loopbackSender) Broadcast(msg Message) int {
	count := s.n.transport.Broadcast(msg)
	if s.n.transport.Send(s.n.id, msg) {
		count++
	}
	return count
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

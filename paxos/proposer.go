package paxos

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Phase is where a Proposer's currently-active round sits in the state
// diagram from spec.md §4.3.
type Phase int

const (
	Idle Phase = iota
	Preparing
	Accepting
	Decided
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Accepting:
		return "accepting"
	case Decided:
		return "decided"
	default:
		return "unknown"
	}
}

// Outcome is what Propose reports back to its caller.
type Outcome int

const (
	Initiated Outcome = iota
	Busy
	AlreadyDecided
	Crashed
)

func (o Outcome) String() string {
	switch o {
	case Initiated:
		return "initiated"
	case Busy:
		return "busy"
	case AlreadyDecided:
		return "already-decided"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Sender is the capability a Proposer needs to talk to the rest of the
// cluster (an Acceptor returns its replies to Node, which sends them). It is injected at construction rather than
// discovered through a back-pointer to Node — spec.md §9 calls this out
// explicitly as the way to break the Node/role/sender cycle at the type
// level. Transport satisfies this interface.
type Sender interface {
	Send(to NodeID, msg Message) bool
	Broadcast(msg Message) int
}

// Proposer drives one round of the protocol at a time. Its Promise/Accepted
// handlers and its Propose entry point are mutually exclusive under mu,
// independent of the owning node's Acceptor lock (spec.md §5).
type Proposer struct {
	mu sync.Mutex

	self     NodeID
	majority int
	sender   Sender
	log      *logrus.Entry

	// isDecided lets Propose answer "already decided" without a back
	// reference to the Learner type; onDecided is the direct call the
	// proposing node uses to make its own Learner absorb the value the
	// moment a majority of Accepteds arrives (spec.md §4.3's "the local
	// Learner also absorbs it ... via a direct call").
	isDecided func() bool
	onDecided func(ProposalNumber, Value)

	counter Counter
	phase   Phase

	n            ProposalNumber
	myValue      Value
	chosenValue  Value
	highestSeen  *ProposalNumber
	promisesFrom map[NodeID]struct{}
	acceptsFrom  map[NodeID]struct{}
}

// NewProposer builds a Proposer for self. majority is the quorum size
// (Majority(len(peers))); sender is how it reaches the rest of the cluster.
func NewProposer(self NodeID, majority int, sender Sender, isDecided func() bool, onDecided func(ProposalNumber, Value), log *logrus.Entry) *Proposer {
	return &Proposer{
		self:      self,
		majority:  majority,
		sender:    sender,
		log:       log,
		isDecided: isDecided,
		onDecided: onDecided,
	}
}

// Propose starts a new round for v, unless a value is already decided or a
// round is already in flight — per spec.md §4.3, propose calls from the
// same node are serialized and the later ones fail fast rather than queue.
func (p *Proposer) Propose(v Value) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isDecided != nil && p.isDecided() {
		return AlreadyDecided
	}
	if p.phase != Idle {
		return Busy
	}

	n := p.counter.Fresh(p.self)
	p.n = n
	p.myValue = v
	p.chosenValue = v
	p.highestSeen = nil
	p.promisesFrom = make(map[NodeID]struct{})
	p.acceptsFrom = make(map[NodeID]struct{})
	p.phase = Preparing

	p.log.WithFields(logrus.Fields{"n": n, "value": v}).Info("proposer: preparing")
	p.sender.Broadcast(Prepare{Sender: p.self, N: n})
	return Initiated
}

// HandlePromise implements spec.md §4.3's Promise handling, including the
// safety-critical adoption rule: on quorum, whatever value came attached to
// the highest-numbered prior accept among the promises wins over the
// proposer's own value.
func (p *Proposer) HandlePromise(msg Promise) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase != Preparing || !msg.N.Equal(p.n) {
		return
	}

	p.promisesFrom[msg.Sender] = struct{}{}

	if msg.HasAccepted && (p.highestSeen == nil || msg.AcceptedN.Greater(*p.highestSeen)) {
		n := msg.AcceptedN
		p.highestSeen = &n
		p.chosenValue = msg.AcceptedValue
		p.log.WithFields(logrus.Fields{"n": n, "value": msg.AcceptedValue}).
			Info("proposer: adopting previously accepted value")
	}

	if len(p.promisesFrom) == p.majority {
		p.phase = Accepting
		chosen := p.chosenValue
		p.log.WithFields(logrus.Fields{"n": p.n, "value": chosen}).
			Info("proposer: reached promise quorum, sending accept requests")
		p.sender.Broadcast(AcceptRequest{Sender: p.self, N: p.n, Value: chosen})
	}
}

// HandleAccepted implements spec.md §4.3's Accepted handling: on reaching
// quorum, freeze the decision, broadcast Learn, and make the local Learner
// absorb it directly so the proposing node itself learns.
func (p *Proposer) HandleAccepted(msg Accepted) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase != Accepting || !msg.N.Equal(p.n) {
		return
	}

	p.acceptsFrom[msg.Sender] = struct{}{}

	if len(p.acceptsFrom) == p.majority {
		p.phase = Decided
		n, v := p.n, p.chosenValue
		p.log.WithFields(logrus.Fields{"n": n, "value": v}).Info("proposer: decided")
		p.sender.Broadcast(Learn{Sender: p.self, N: n, Value: v})
		if p.onDecided != nil {
			p.onDecided(n, v)
		}
	}
}

// State reports the current phase and round for tests and status displays.
func (p *Proposer) State() (phase Phase, n ProposalNumber, chosenValue Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase, p.n, p.chosenValue
}

// Reset returns the proposer to Idle. Test-only: a live proposer is
// otherwise abandoned, never rewound, once superseded.
func (p *Proposer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = Idle
	p.n = ProposalNumber{}
	p.myValue = nil
	p.chosenValue = nil
	p.highestSeen = nil
	p.promisesFrom = nil
	p.acceptsFrom = nil
}

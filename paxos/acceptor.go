package paxos

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Acceptor is the safety guardian: it promises not to go below a proposal
// number and accepts values only under the rules spec.md §4.2 lays out. Both
// handlers run under a single mutex, matching spec.md §5's requirement that
// an acceptor serializes its own state transitions.
type Acceptor struct {
	mu sync.Mutex

	self NodeID
	log  *logrus.Entry

	promised      *ProposalNumber
	acceptedN     *ProposalNumber
	acceptedValue Value
}

// NewAcceptor creates an Acceptor with empty promised/accepted state.
func NewAcceptor(self NodeID, log *logrus.Entry) *Acceptor {
	return &Acceptor{self: self, log: log}
}

// HandlePrepare implements spec.md §4.2's Prepare rule: promise the first
// time a strictly higher number arrives, otherwise silently ignore — there
// is no NACK, liveness is left to higher-round retries.
func (a *Acceptor) HandlePrepare(msg Prepare) (Promise, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.promised != nil && !msg.N.Greater(*a.promised) {
		a.log.WithFields(logrus.Fields{"n": msg.N, "promised": a.promised}).
			Debug("acceptor: ignoring prepare below promised number")
		return Promise{}, false
	}

	n := msg.N
	a.promised = &n

	reply := Promise{Sender: a.self, N: msg.N}
	if a.acceptedN != nil {
		reply.HasAccepted = true
		reply.AcceptedN = *a.acceptedN
		reply.AcceptedValue = a.acceptedValue
	}

	a.log.WithFields(logrus.Fields{"n": msg.N}).Info("acceptor: promised")
	return reply, true
}

// HandleAcceptRequest implements spec.md §4.2's AcceptRequest rule: accept
// whenever the number is greater-or-equal to what was promised (note the
// asymmetry with Prepare's strict greater-than — an acceptor must still
// accept the very proposal it just promised).
//
// If a higher-numbered accept supersedes an older accepted value, the older
// value is intentionally discarded — spec.md §9 flags this as the standard
// Paxos rule, not a bug to "fix" by remembering it.
func (a *Acceptor) HandleAcceptRequest(msg AcceptRequest) (Accepted, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.promised != nil && msg.N.Less(*a.promised) {
		a.log.WithFields(logrus.Fields{"n": msg.N, "promised": a.promised}).
			Debug("acceptor: ignoring accept request below promised number")
		return Accepted{}, false
	}

	n := msg.N
	a.promised = &n
	a.acceptedN = &n
	a.acceptedValue = msg.Value

	a.log.WithFields(logrus.Fields{"n": msg.N, "value": msg.Value}).Info("acceptor: accepted")
	return Accepted{Sender: a.self, N: msg.N, Value: msg.Value}, true
}

// State returns the current (promised, acceptedN, acceptedValue), for tests
// and status reporting only.
func (a *Acceptor) State() (promised *ProposalNumber, acceptedN *ProposalNumber, acceptedValue Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.promised, a.acceptedN, a.acceptedValue
}

// Reset clears all acceptor state. Test-only: spec.md's lifecycle never
// resets on normal protocol events.
func (a *Acceptor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.promised = nil
	a.acceptedN = nil
	a.acceptedValue = nil
}

package paxos

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Learner absorbs the first Learn it sees and never overwrites it — the
// safety property of Paxos means a well-behaved system never presents a
// conflicting Learn, so detecting one is an alarm, not a state change
// (spec.md §4.4).
type Learner struct {
	mu sync.Mutex

	self NodeID
	log  *logrus.Entry

	hasDecided bool
	decidedN   ProposalNumber
	value      Value

	onDecided func(Value)
}

// NewLearner creates an empty Learner.
func NewLearner(self NodeID, log *logrus.Entry) *Learner {
	return &Learner{self: self, log: log}
}

// Handle absorbs msg if nothing has been decided yet. A later Learn with a
// different value is a protocol-violation alarm: it is logged, not applied.
func (l *Learner) Handle(msg Learn) {
	l.mu.Lock()
	if l.hasDecided {
		if !l.value.Equal(msg.Value) {
			l.log.WithFields(logrus.Fields{
				"decided": l.value, "conflicting": msg.Value, "from": msg.Sender,
			}).Error("learner: conflicting Learn received, ignoring (safety violation alarm)")
		}
		l.mu.Unlock()
		return
	}

	l.hasDecided = true
	l.decidedN = msg.N
	l.value = msg.Value
	cb := l.onDecided
	v := msg.Value
	l.log.WithFields(logrus.Fields{"n": msg.N, "value": v, "from": msg.Sender}).Info("learner: decided")
	l.mu.Unlock()

	if cb != nil {
		cb(v)
	}
}

// Decided reports the decided value, if any, without blocking.
func (l *Learner) Decided() (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.hasDecided
}

// OnDecided registers a callback fired exactly once, the moment this
// Learner transitions to decided. Registering after the transition already
// happened fires immediately with the existing value.
func (l *Learner) OnDecided(cb func(Value)) {
	l.mu.Lock()
	if l.hasDecided {
		v := l.value
		l.mu.Unlock()
		cb(v)
		return
	}
	l.onDecided = cb
	l.mu.Unlock()
}

// Reset clears learner state. Test-only.
func (l *Learner) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hasDecided = false
	l.decidedN = ProposalNumber{}
	l.value = nil
	l.onDecided = nil
}

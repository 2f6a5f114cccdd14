// Package transport provides an in-process reference Transport for tests
// and the demo CLI. The real network transport (TCP wire encoding,
// reconnection, framing) is explicitly out of scope for this module per
// spec.md §1 — Memory exists so the core has something to run against
// without one.
package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/lmorrow/paxos-core/paxos"
)

// Profile controls the fault injection a Memory hub applies to every
// message it routes, generalized from the NetworkProfile enum
// (RELIABLE/LATENT/FAILURE/STANDARD) in the original source this module was
// distilled from into a plain struct so tests can build arbitrary profiles.
type Profile struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	DropRate float64 // in [0,1]; probability a message is silently lost
}

// Reliable is a zero-fault profile: no delay, no loss.
var Reliable = Profile{}

func (p Profile) delay(rng *rand.Rand) time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rng.Int63n(int64(p.MaxDelay-p.MinDelay)))
}

// Memory is a shared in-process hub connecting every node's Endpoint. Sends
// are always handed off on a fresh goroutine so a node's handler is never
// invoked synchronously on the sending goroutine, satisfying the
// non-reentrancy contract spec.md §5 requires of any Transport.
type Memory struct {
	mu          sync.Mutex
	peers       []paxos.NodeID
	handlers    map[paxos.NodeID]func(paxos.Message)
	partitioned map[paxos.NodeID]bool
	profile     Profile
	rng         *rand.Rand
}

// NewMemory creates a hub for the given peer set. Peers must match the
// Identity.Peers each Node on the hub is constructed with.
func NewMemory(peers []paxos.NodeID) *Memory {
	return &Memory{
		peers:       append([]paxos.NodeID(nil), peers...),
		handlers:    make(map[paxos.NodeID]func(paxos.Message)),
		partitioned: make(map[paxos.NodeID]bool),
		rng:         rand.New(rand.NewSource(1)),
	}
}

// SetProfile replaces the fault-injection profile applied to future sends.
func (m *Memory) SetProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = p
}

// Partition cuts id off from every other node until Heal is called: sends to
// and from id are dropped, modeling spec.md §8 scenario 6's minority
// partition.
func (m *Memory) Partition(id paxos.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitioned[id] = true
}

// Heal reconnects a previously partitioned node.
func (m *Memory) Heal(id paxos.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitioned, id)
}

// Endpoint returns the paxos.Transport view of the hub for node self.
func (m *Memory) Endpoint(self paxos.NodeID) *Endpoint {
	return &Endpoint{self: self, hub: m}
}

func (m *Memory) register(id paxos.NodeID, handler func(paxos.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[id] = handler
}

func (m *Memory) deliver(from, to paxos.NodeID, msg paxos.Message) bool {
	m.mu.Lock()
	if m.partitioned[from] || m.partitioned[to] {
		m.mu.Unlock()
		return false
	}
	if m.profile.DropRate > 0 && m.rng.Float64() < m.profile.DropRate {
		m.mu.Unlock()
		return false
	}
	handler, ok := m.handlers[to]
	delay := m.profile.delay(m.rng)
	m.mu.Unlock()

	if !ok {
		return false
	}

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		handler(msg)
	}()
	return true
}

// Endpoint is the paxos.Transport bound to one node's identity within a
// Memory hub.
type Endpoint struct {
	self paxos.NodeID
	hub  *Memory
}

// Send implements paxos.Transport.
func (e *Endpoint) Send(to paxos.NodeID, msg paxos.Message) bool {
	return e.hub.deliver(e.self, to, msg)
}

// Broadcast implements paxos.Transport: send to every peer except self.
func (e *Endpoint) Broadcast(msg paxos.Message) int {
	e.hub.mu.Lock()
	peers := append([]paxos.NodeID(nil), e.hub.peers...)
	e.hub.mu.Unlock()

	count := 0
	for _, p := range peers {
		if p == e.self {
			continue
		}
		if e.hub.deliver(e.self, p, msg) {
			count++
		}
	}
	return count
}

// OnReceive implements paxos.Transport.
func (e *Endpoint) OnReceive(handler func(paxos.Message)) {
	e.hub.register(e.self, handler)
}

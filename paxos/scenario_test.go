package paxos_test

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lmorrow/paxos-core/paxos"
	"github.com/lmorrow/paxos-core/transport"
)

// recordingSender is a minimal paxos.Sender that remembers only the latest
// broadcast, enough to drive a Proposer by hand against a hand-picked subset
// of Acceptors instead of a full cluster's automatic fan-out.
type recordingSender struct {
	last paxos.Message
}

func (s *recordingSender) Send(to paxos.NodeID, msg paxos.Message) bool { return true }

func (s *recordingSender) Broadcast(msg paxos.Message) int {
	s.last = msg
	return 1
}

// cluster builds n nodes ("N1".."Nn") sharing one transport.Memory hub.
func cluster(n int, profile transport.Profile) (map[paxos.NodeID]*paxos.Node, *transport.Memory) {
	ids := make([]paxos.NodeID, n)
	for i := range ids {
		ids[i] = paxos.NodeID(fmt.Sprintf("N%d", i+1))
	}
	hub := transport.NewMemory(ids)
	hub.SetProfile(profile)

	nodes := make(map[paxos.NodeID]*paxos.Node, n)
	for _, id := range ids {
		ep := hub.Endpoint(id)
		nodes[id] = paxos.NewNode(paxos.Identity{Self: id, Peers: ids}, ep, nil)
	}
	return nodes, hub
}

// awaitDecision polls every node in nodes until all of them (or, if subset
// is non-empty, only those named in subset) report a decided value or the
// deadline passes.
func awaitDecision(t *testing.T, nodes map[paxos.NodeID]*paxos.Node, subset []paxos.NodeID, timeout time.Duration) {
	t.Helper()
	targets := subset
	if len(targets) == 0 {
		for id := range nodes {
			targets = append(targets, id)
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		allDecided := true
		for _, id := range targets {
			if _, ok := nodes[id].Decided(); !ok {
				allDecided = false
				break
			}
		}
		if allDecided {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %s waiting for decision on %v", timeout, targets)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Scenario 1: single proposer, no loss, 9 nodes.
func TestScenarioSingleProposerNineNodes(t *testing.T) {
	nodes, _ := cluster(9, transport.Reliable)

	if got := nodes["N4"].Propose(paxos.Value("M5")); got != paxos.Initiated {
		t.Fatalf("expected Initiated, got %v", got)
	}

	awaitDecision(t, nodes, nil, 500*time.Millisecond)
	for id, n := range nodes {
		v, _ := n.Decided()
		if string(v) != "M5" {
			t.Fatalf("node %s decided %q, want M5", id, v)
		}
	}
}

// Scenario 2: two concurrent proposers, no loss.
func TestScenarioTwoConcurrentProposers(t *testing.T) {
	nodes, _ := cluster(9, transport.Reliable)

	go nodes["N1"].Propose(paxos.Value("M1"))
	go nodes["N8"].Propose(paxos.Value("M8"))

	awaitDecision(t, nodes, nil, time.Second)

	first, _ := nodes["N1"].Decided()
	winner := string(first)
	if winner != "M1" && winner != "M8" {
		t.Fatalf("unexpected decided value %q", winner)
	}
	for id, n := range nodes {
		v, ok := n.Decided()
		if !ok || string(v) != winner {
			t.Fatalf("node %s decided %q, want %q", id, v, winner)
		}
	}
}

// Scenario 3: proposer crash after Prepare; a later higher-round proposer
// from another node still decides and acceptors upgrade correctly. A fixed
// 40ms hop delay lets N3's Prepare reach the acceptors (at ~40ms) and N3
// crash (at ~60ms) before their Promises arrive back (at ~80ms), so N3's
// round never reaches the accept phase.
func TestScenarioProposerCrashAfterPrepare(t *testing.T) {
	nodes, _ := cluster(9, transport.Profile{MinDelay: 40 * time.Millisecond, MaxDelay: 40 * time.Millisecond})

	nodes["N3"].Propose(paxos.Value("M9"))
	time.Sleep(60 * time.Millisecond)
	nodes["N3"].SimulateCrash()

	if got := nodes["N5"].Propose(paxos.Value("M9")); got != paxos.Initiated {
		t.Fatalf("expected N5's proposal to be Initiated, got %v", got)
	}

	live := make([]paxos.NodeID, 0, 8)
	for id := range nodes {
		if id != "N3" {
			live = append(live, id)
		}
	}
	awaitDecision(t, nodes, live, 500*time.Millisecond)

	for _, id := range live {
		v, _ := nodes[id].Decided()
		if string(v) != "M9" {
			t.Fatalf("node %s decided %q, want M9", id, v)
		}
	}
}

// Scenario 4: value adoption under contention. N1's AcceptRequest reaches
// only 3 of its 8 peer acceptors — short of the majority of 5 it needs to
// decide — before N2 starts a higher-round Prepare. N2's Promise quorum must
// then carry one of those 3 partial accepts, and N2 must freeze onto N1's
// value instead of its own, exactly as spec.md §8 scenario 4 describes. This
// drives real paxos.Acceptor/paxos.Proposer instances by hand against a
// chosen subset of peers — the narrower, synthetic-Promise version of the
// same adoption rule already lives in
// TestPromiseAdoptsHighestPreviouslyAcceptedValue (proposer_test.go).
func TestScenarioValueAdoptionUnderContention(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := log.WithField("test", true)

	ids := make([]paxos.NodeID, 9)
	for i := range ids {
		ids[i] = paxos.NodeID(fmt.Sprintf("N%d", i+1))
	}
	acceptors := make(map[paxos.NodeID]*paxos.Acceptor, len(ids))
	for _, id := range ids {
		acceptors[id] = paxos.NewAcceptor(id, entry)
	}
	majority := paxos.Majority(len(ids))
	others := func(self paxos.NodeID) []paxos.NodeID {
		out := make([]paxos.NodeID, 0, len(ids)-1)
		for _, id := range ids {
			if id != self {
				out = append(out, id)
			}
		}
		return out
	}

	n1Sender := &recordingSender{}
	n1 := paxos.NewProposer("N1", majority, n1Sender, func() bool { return false }, nil, entry)
	if got := n1.Propose(paxos.Value("A")); got != paxos.Initiated {
		t.Fatalf("expected Initiated, got %v", got)
	}
	prepare, ok := n1Sender.last.(paxos.Prepare)
	if !ok {
		t.Fatalf("expected a Prepare broadcast, got %T", n1Sender.last)
	}

	n1Peers := others("N1")
	for _, id := range n1Peers {
		promise, ok := acceptors[id].HandlePrepare(prepare)
		if !ok {
			t.Fatalf("acceptor %s refused N1's Prepare", id)
		}
		n1.HandlePromise(promise)
	}
	if phase, _, _ := n1.State(); phase != paxos.Accepting {
		t.Fatalf("expected N1 in Accepting after promise quorum, got %v", phase)
	}
	acceptRequest, ok := n1Sender.last.(paxos.AcceptRequest)
	if !ok {
		t.Fatalf("expected an AcceptRequest broadcast, got %T", n1Sender.last)
	}

	// Only 3 of N1's 8 peers record the accept before N2 starts its own
	// round — short of the 5 N1 needs to reach a decision. Chosen clear of
	// N2 itself, since N2's own Propose never queries its own acceptor.
	partiallyAccepted := []paxos.NodeID{"N5", "N6", "N7"}
	for _, id := range partiallyAccepted {
		if _, ok := acceptors[id].HandleAcceptRequest(acceptRequest); !ok {
			t.Fatalf("acceptor %s refused N1's AcceptRequest", id)
		}
	}
	if phase, _, _ := n1.State(); phase == paxos.Decided {
		t.Fatal("N1 should not have reached a decision with only 3 of 9 acceptors")
	}

	n2Sender := &recordingSender{}
	n2 := paxos.NewProposer("N2", majority, n2Sender, func() bool { return false }, nil, entry)
	if got := n2.Propose(paxos.Value("B")); got != paxos.Initiated {
		t.Fatalf("expected Initiated, got %v", got)
	}
	n2Prepare, ok := n2Sender.last.(paxos.Prepare)
	if !ok {
		t.Fatalf("expected a Prepare broadcast, got %T", n2Sender.last)
	}

	sawAdopted := false
	for _, id := range others("N2") {
		promise, ok := acceptors[id].HandlePrepare(n2Prepare)
		if !ok {
			t.Fatalf("acceptor %s refused N2's Prepare", id)
		}
		if promise.HasAccepted {
			sawAdopted = true
			if string(promise.AcceptedValue) != "A" {
				t.Fatalf("acceptor %s carried unexpected accepted value %q", id, promise.AcceptedValue)
			}
		}
		n2.HandlePromise(promise)
	}
	if !sawAdopted {
		t.Fatal("expected at least one Promise to N2 to carry N1's partially-accepted value")
	}

	if _, _, chosen := n2.State(); string(chosen) != "A" {
		t.Fatalf("expected N2 to freeze onto N1's value A, got %q", chosen)
	}

	n2AcceptRequest, ok := n2Sender.last.(paxos.AcceptRequest)
	if !ok {
		t.Fatalf("expected an AcceptRequest broadcast, got %T", n2Sender.last)
	}
	if string(n2AcceptRequest.Value) != "A" {
		t.Fatalf("expected N2's AcceptRequest to carry A, not B, got %q", n2AcceptRequest.Value)
	}
}

// Scenario 5: lossy network, majority survives; an external driver retries
// with strictly increasing rounds until some proposal gets through.
func TestScenarioLossyNetworkEventuallyDecides(t *testing.T) {
	nodes, _ := cluster(9, transport.Profile{DropRate: 0.3})

	deadline := time.Now().Add(2 * time.Second)
	decided := false
	for time.Now().Before(deadline) {
		nodes["N1"].Propose(paxos.Value("R"))
		time.Sleep(60 * time.Millisecond)
		if _, ok := nodes["N1"].Decided(); ok {
			decided = true
			break
		}
		nodes["N1"].Reset()
	}
	if !decided {
		t.Fatal("expected eventual decision despite 30% message loss")
	}

	v, _ := nodes["N1"].Decided()
	for id, n := range nodes {
		if dv, ok := n.Decided(); ok && string(dv) != string(v) {
			t.Fatalf("node %s decided %q, disagreeing with %q", id, dv, v)
		}
	}
}

// Scenario 6: minority partition. A proposer on the majority side decides;
// the minority side cannot; healing lets the minority catch up.
func TestScenarioMinorityPartitionHeals(t *testing.T) {
	nodes, hub := cluster(9, transport.Reliable)

	minority := []paxos.NodeID{"N6", "N7", "N8", "N9"}
	for _, id := range minority {
		hub.Partition(id)
	}

	if got := nodes["N1"].Propose(paxos.Value("P")); got != paxos.Initiated {
		t.Fatalf("expected Initiated, got %v", got)
	}

	majority := []paxos.NodeID{"N1", "N2", "N3", "N4", "N5"}
	awaitDecision(t, nodes, majority, 500*time.Millisecond)

	for _, id := range minority {
		if _, ok := nodes[id].Decided(); ok {
			t.Fatalf("minority node %s should not have decided while partitioned", id)
		}
	}

	for _, id := range minority {
		hub.Heal(id)
	}
	// The majority side's Proposer already broadcast Learn once; nothing
	// will re-send it, so directly re-announce the decision so the healed
	// minority observes it the way a late-joining node would after a
	// retried Learn/catch-up round.
	decidedValue, _ := nodes["N1"].Decided()
	nodes["N1"].Reset()
	if got := nodes["N1"].Propose(decidedValue); got != paxos.Initiated {
		t.Fatalf("expected re-announcement proposal to be Initiated, got %v", got)
	}

	awaitDecision(t, nodes, nil, 500*time.Millisecond)
	for id, n := range nodes {
		v, _ := n.Decided()
		if string(v) != "P" {
			t.Fatalf("node %s decided %q, want P", id, v)
		}
	}
}

package paxos

import "fmt"

// NodeID identifies a single participant. The zero value is never a valid
// node id; callers supply their own scheme (hostnames, small integers, ...).
type NodeID string

// ProposalNumber totally orders proposals: round first, NodeID as tie-break.
// Two distinct nodes never produce equal numbers because each round is only
// ever generated by the node whose id it carries.
type ProposalNumber struct {
	Round  uint64
	NodeID NodeID
}

func (n ProposalNumber) String() string {
	return fmt.Sprintf("%d.%s", n.Round, n.NodeID)
}

// Compare returns -1, 0, or 1 as n is less than, equal to, or greater than
// other. Rounds compare first; ties break on NodeID under Go's ordinary
// string ordering, which is fixed and network-wide as long as every node
// agrees on the NodeID namespace.
func (n ProposalNumber) Compare(other ProposalNumber) int {
	switch {
	case n.Round < other.Round:
		return -1
	case n.Round > other.Round:
		return 1
	case n.NodeID < other.NodeID:
		return -1
	case n.NodeID > other.NodeID:
		return 1
	default:
		return 0
	}
}

func (n ProposalNumber) Less(other ProposalNumber) bool    { return n.Compare(other) < 0 }
func (n ProposalNumber) Greater(other ProposalNumber) bool  { return n.Compare(other) > 0 }
func (n ProposalNumber) Equal(other ProposalNumber) bool    { return n.Compare(other) == 0 }
func (n ProposalNumber) GreaterEqual(o ProposalNumber) bool { return n.Compare(o) >= 0 }

// ComparePtr orders *ProposalNumber where nil (None) compares strictly less
// than any non-nil (Some) value, matching spec's "a None value compares
// strictly less than any Some".
func ComparePtr(a, b *ProposalNumber) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

// Counter generates fresh ProposalNumbers for a single proposer. It is not
// safe for concurrent use by itself; the Proposer serializes access to it
// under its own lock.
type Counter struct {
	value uint64
}

// Fresh increments the local counter and pairs it with nodeID. The counter
// never decreases, so no two numbers Fresh ever returns for the same nodeID
// can be equal or reused.
func (c *Counter) Fresh(nodeID NodeID) ProposalNumber {
	c.value++
	return ProposalNumber{Round: c.value, NodeID: nodeID}
}

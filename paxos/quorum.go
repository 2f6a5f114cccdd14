package paxos

// Majority returns the quorum size for a deployment of peerCount nodes
// (counting every node in the deployment, including the local one, per
// spec.md §4.6). Any two majorities of this size intersect in at least one
// node — the property that makes Paxos safe.
func Majority(peerCount int) int {
	return peerCount/2 + 1
}

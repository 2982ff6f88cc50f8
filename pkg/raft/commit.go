package raft

import "sort"

// quorumIndexForTopology implements the per-topology half of
// quorumCommitIndex() (§4.5): bucket matchIndex values, sort distinct
// values descending, and walk them accumulating a "boost" of voters
// known to be strictly ahead of the current value.
func quorumIndexForTopology(matchIndex map[string]uint64, quorumSize int) (int64, bool) {
	counts := make(map[uint64]int, len(matchIndex))
	for _, v := range matchIndex {
		counts[v]++
	}

	values := make([]uint64, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })

	var boost int
	for _, v := range values {
		confirmations := counts[v] + boost
		if confirmations >= quorumSize {
			return int64(v), true
		}
		boost += counts[v]
	}

	return -1, false
}

// quorumCommitIndex computes the highest log index replicated on a
// majority of every active topology (§4.5), intersecting across
// joint-consensus configurations when a changing topology is present.
//
// self is included in both topologies it votes in with matchIndex equal
// to the leader's own last-appended index (Invariant P3); the Leader's
// own progressTable entry, created by initialize, is never consulted here.
func (l *Leader) quorumCommitIndex() int64 {
	current := l.engine.CurrentTopology()
	changing, hasChanging := l.engine.ChangingTopology()

	lastAppended := l.lastAppendedIndex()

	currentIdx, ok := l.quorumIndexFor(current, lastAppended)
	if !ok {
		return -1
	}
	if !hasChanging {
		return currentIdx
	}

	changingIdx, ok := l.quorumIndexFor(changing, lastAppended)
	if !ok {
		return -1
	}

	if currentIdx < changingIdx {
		return currentIdx
	}
	return changingIdx
}

// quorumIndexFor resolves matchIndex for every voter in topology
// (substituting the leader's own last-appended index for self) and
// applies the bucket-and-boost algorithm.
func (l *Leader) quorumIndexFor(topology Topology, lastAppended uint64) (int64, bool) {
	others := make(map[string]struct{}, len(topology.Voters))
	selfIsVoter := false
	for id := range topology.Voters {
		if id == l.self {
			selfIsVoter = true
			continue
		}
		others[id] = struct{}{}
	}

	matchIndex := l.progress.matchIndexSnapshot(others)
	if selfIsVoter {
		matchIndex[l.self] = lastAppended
	}

	return quorumIndexForTopology(matchIndex, topology.QuorumSize)
}

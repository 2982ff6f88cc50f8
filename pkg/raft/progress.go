package raft

import "sync"

// progressEntry is one peer's replication bookkeeping. nextIndex/matchIndex
// are 1-based log indices, matching Invariant P2 (nextIndex never drops
// below 1).
type progressEntry struct {
	nextIndex  uint64
	matchIndex uint64
}

// snapshotStream is a pre-armed, not-yet-started background task. It is
// created at the moment the Replicator decides a peer needs a snapshot,
// and only invoked once the peer's CanInstallSnapshotResponse authorises
// it (§4.3 / §4.9 design note: "pre-armed but not started").
type snapshotStream struct {
	start func()
	abort func()
}

// progressTable is the Leader's single piece of owned mutable shared
// state: per-peer nextIndex/matchIndex plus the snapshot-in-flight set.
// A single mutex guards all three together (§9 design note): contention
// at cluster scale is negligible and multi-field atomicity becomes free.
type progressTable struct {
	mu        sync.Mutex
	peers     map[string]*progressEntry
	inFlight  map[string]*snapshotStream
}

func newProgressTable() *progressTable {
	return &progressTable{
		peers:    make(map[string]*progressEntry),
		inFlight: make(map[string]*snapshotStream),
	}
}

// initialize sets up the table for a fresh leadership term: every voter
// starts at nextIndex = lastLogIndex+1, matchIndex = 0 (Invariant P1/P3).
func (t *progressTable) initialize(lastLogIndex uint64, voters []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peers = make(map[string]*progressEntry, len(voters))
	t.inFlight = make(map[string]*snapshotStream, len(voters))
	for _, id := range voters {
		id = normalizeID(id)
		t.peers[id] = &progressEntry{nextIndex: lastLogIndex + 1, matchIndex: 0}
	}
}

// ensurePeer lazily adds bookkeeping for a peer that joined via a
// joint-consensus topology change after initialize.
func (t *progressTable) ensurePeer(id string, lastLogIndex uint64) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.peers[id]; !ok {
		t.peers[id] = &progressEntry{nextIndex: lastLogIndex + 1, matchIndex: 0}
	}
}

func (t *progressTable) get(id string) (progressEntry, bool) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.peers[id]
	if !ok {
		return progressEntry{}, false
	}
	return *e, true
}

// recordSuccess implements record_success(peer, lastLogIndex).
func (t *progressTable) recordSuccess(id string, lastLogIndex uint64) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.peers[id]
	if !ok {
		return
	}
	e.matchIndex = lastLogIndex
	e.nextIndex = lastLogIndex + 1
}

// recordRejection implements record_rejection(peer): decrement-by-one,
// clamped at 1 (Invariant P2). Simple and converging; an optimised
// hinted-rewind is explicitly out of scope.
func (t *progressTable) recordRejection(id string) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.peers[id]
	if !ok {
		return
	}
	if e.nextIndex >= 1 {
		if e.nextIndex > 1 {
			e.nextIndex--
		}
	}
}

// setMatchAndNext is used by the CanInstallSnapshotResponse "already past
// the snapshot" branch, which sets both indices directly from the
// follower-reported index rather than via the success/rejection deltas.
func (t *progressTable) setMatchAndNext(id string, matchIndex, nextIndex uint64) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.peers[id]
	if !ok {
		return
	}
	e.matchIndex = matchIndex
	e.nextIndex = nextIndex
}

// isSnapshotInFlight reports whether peer currently has a snapshot stream
// active (Invariant P4).
func (t *progressTable) isSnapshotInFlight(id string) bool {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.inFlight[id]
	return ok
}

// markSnapshotStarted records the pre-armed (not yet invoked) streamer
// handle for peer, entering the snapshot-in-flight set.
func (t *progressTable) markSnapshotStarted(id string, s *snapshotStream) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.inFlight[id] = s
}

// markSnapshotFinished clears peer from the snapshot-in-flight set,
// regardless of whether the streamer ever actually ran.
func (t *progressTable) markSnapshotFinished(id string) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, id)
}

// snapshotHandle returns the pre-armed streamer for peer, if any.
func (t *progressTable) snapshotHandle(id string) (*snapshotStream, bool) {
	id = normalizeID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.inFlight[id]
	return s, ok
}

// matchIndexSnapshot returns a copy of matchIndex for every peer in ids,
// used by the Commit Calculator so it never holds the table lock while
// sorting/bucketing.
func (t *progressTable) matchIndexSnapshot(ids map[string]struct{}) map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]uint64, len(ids))
	for id := range ids {
		if e, ok := t.peers[id]; ok {
			out[id] = e.matchIndex
		} else {
			out[id] = 0
		}
	}
	return out
}

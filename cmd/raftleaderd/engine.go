package main

import (
	"sync"
	"sync/atomic"

	"github.com/sidecus/raftleader/pkg/kvstore"
	"github.com/sidecus/raftleader/pkg/logstore"
	"github.com/sidecus/raftleader/pkg/raft"
	"github.com/sidecus/raftleader/pkg/util"
)

// staticEngine is an illustrative raft.Engine: it assumes a fixed
// topology and never steps down on its own (UpdateCurrentTerm only logs
// the first step-down and persists the observed term; the Leader disposes
// itself after calling it). Electing a
// leader, handling RequestVote, and multi-term lifecycle belong to the
// enclosing node implementation this repository's scope (§1 Non-goals)
// deliberately excludes; this daemon only demonstrates wiring the
// Leader core to real storage, transport and a real state machine.
type staticEngine struct {
	name       string
	timeoutMs  int64
	maxEntries int
	topology   raft.Topology

	commitIndex uint64

	log   *logstore.Store
	store *kvstore.KVStore

	mu       sync.Mutex
	steppedDown bool
}

func newStaticEngine(name string, timeoutMs int64, maxEntries int, topology raft.Topology, log *logstore.Store, store *kvstore.KVStore) *staticEngine {
	return &staticEngine{
		name:       name,
		timeoutMs:  timeoutMs,
		maxEntries: maxEntries,
		topology:   topology,
		log:        log,
		store:      store,
	}
}

func (e *staticEngine) Name() string              { return e.name }
func (e *staticEngine) MessageTimeout() int64      { return e.timeoutMs }
func (e *staticEngine) MaxEntriesPerRequest() int  { return e.maxEntries }
func (e *staticEngine) CommitIndex() uint64        { return atomic.LoadUint64(&e.commitIndex) }
func (e *staticEngine) CurrentTopology() raft.Topology { return e.topology }
func (e *staticEngine) ChangingTopology() (raft.Topology, bool) {
	return raft.Topology{}, false
}

func (e *staticEngine) UpdateCurrentTerm(term uint64, leaderID string, cause *raft.AppendEntriesResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.steppedDown {
		return
	}
	e.steppedDown = true
	util.WriteWarning("%s: stepping down, observed term %d from %s", e.name, term, leaderID)
	_ = e.log.SetCurrentTerm(term)
}

// ApplyCommits fetches (from, to] from the log and applies it to the kv
// store, then advances the locally tracked commit index.
func (e *staticEngine) ApplyCommits(from, to uint64) error {
	entries := e.log.LogEntriesAfter(from, int(to-from))
	if err := e.store.ApplyCommitted(entries); err != nil {
		return err
	}
	atomic.StoreUint64(&e.commitIndex, to)
	return nil
}

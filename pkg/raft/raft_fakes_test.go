package raft

import (
	"context"
	"io"
	"sync"
)

// fakeLog is an in-memory PersistentLog good enough to exercise the
// Leader core end-to-end in tests; it is not a specification of the
// on-disk log format (that remains out of scope, §1).
type fakeLog struct {
	mu            sync.Mutex
	entries       []LogEntry
	term          uint64
	snapshotIndex uint64
	snapshotTerm  uint64
	hasSnapshot   bool
	failAppend    error
	fatalErr      error
}

func newFakeLog(term uint64) *fakeLog {
	return &fakeLog{term: term}
}

func (f *fakeLog) LastLogEntry() (LogEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return LogEntry{}, false
	}
	return f.entries[len(f.entries)-1], true
}

func (f *fakeLog) GetLogEntry(index uint64) (LogEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index == 0 || index > uint64(len(f.entries)) {
		return LogEntry{}, false
	}
	return f.entries[index-1], true
}

func (f *fakeLog) LogEntriesAfter(index uint64, max int) []LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []LogEntry
	for _, e := range f.entries {
		if e.Index > index {
			out = append(out, e)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

func (f *fakeLog) AppendToLeaderLog(cmd Command) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAppend != nil {
		return 0, f.failAppend
	}

	idx := uint64(len(f.entries) + 1)
	f.entries = append(f.entries, LogEntry{Index: idx, Term: f.term, Payload: cmd.Payload, Kind: cmd.Kind})
	return idx, nil
}

func (f *fakeLog) GetLastSnapshot() (uint64, uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotIndex, f.snapshotTerm, f.hasSnapshot
}

func (f *fakeLog) CurrentTerm() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.term
}

func (f *fakeLog) setSnapshot(index, term uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotIndex, f.snapshotTerm, f.hasSnapshot = index, term, true
}

func (f *fakeLog) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fatalErr
}

func (f *fakeLog) setFatal(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fatalErr = err
}

// fakeStateMachine never actually needs to serve a snapshot in the
// Leader-core tests (the Replicator only reaches it through a started
// streamer, which the tests trigger explicitly where needed).
type fakeStateMachine struct{}

type fakeSnapshotWriter struct{ idx, term uint64 }

func (w *fakeSnapshotWriter) Index() uint64                  { return w.idx }
func (w *fakeSnapshotWriter) Term() uint64                   { return w.term }
func (w *fakeSnapshotWriter) WriteSnapshot(io.Writer) error { return nil }

func (fakeStateMachine) GetSnapshotWriter() (SnapshotWriter, func(), error) {
	return &fakeSnapshotWriter{}, func() {}, nil
}

// fakeTransport records every message sent to each peer.
type fakeTransport struct {
	mu       sync.Mutex
	sent     map[string][]interface{}
	failSend map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][]interface{})}
}

func (t *fakeTransport) Send(_ context.Context, peer string, message interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.failSend[peer]; err != nil {
		return err
	}
	t.sent[peer] = append(t.sent[peer], message)
	return nil
}

// setSendFailure makes every future Send to peer fail with err.
func (t *fakeTransport) setSendFailure(peer string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSend == nil {
		t.failSend = make(map[string]error)
	}
	t.failSend[peer] = err
}

func (t *fakeTransport) Stream(_ context.Context, peer string, header interface{}, bodyWriter func(io.Writer) error) error {
	t.mu.Lock()
	t.sent[peer] = append(t.sent[peer], header)
	t.mu.Unlock()
	return bodyWriter(io.Discard)
}

func (t *fakeTransport) lastSent(peer string) interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.sent[peer]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (t *fakeTransport) countSent(peer string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent[peer])
}

// fakeEngine is a minimal, mutable Engine good enough to drive the Leader
// through the scenarios in spec.md §8.
type fakeEngine struct {
	mu               sync.Mutex
	messageTimeoutMs int64
	maxEntries       int
	commitIndex      uint64
	current          Topology
	changing         Topology
	hasChanging      bool
	applied          []struct{ from, to uint64 }
	steppedDown      []struct {
		term     uint64
		leaderID string
	}
}

func newFakeEngine(voters []string) *fakeEngine {
	return &fakeEngine{
		messageTimeoutMs: 600,
		maxEntries:       64,
		current:          NewTopology(voters),
	}
}

func (e *fakeEngine) Name() string                   { return "test" }
func (e *fakeEngine) MessageTimeout() int64          { return e.messageTimeoutMs }
func (e *fakeEngine) MaxEntriesPerRequest() int      { return e.maxEntries }
func (e *fakeEngine) CommitIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitIndex
}
func (e *fakeEngine) CurrentTopology() Topology { return e.current }
func (e *fakeEngine) ChangingTopology() (Topology, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changing, e.hasChanging
}

func (e *fakeEngine) setChanging(voters []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changing = NewTopology(voters)
	e.hasChanging = true
}

func (e *fakeEngine) UpdateCurrentTerm(term uint64, leaderID string, cause *AppendEntriesResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steppedDown = append(e.steppedDown, struct {
		term     uint64
		leaderID string
	}{term, leaderID})
}

func (e *fakeEngine) ApplyCommits(from, to uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, struct{ from, to uint64 }{from, to})
	e.commitIndex = to
	return nil
}

// fakeCompletion records whether/when it was resolved.
type fakeCompletion struct {
	mu        sync.Mutex
	completed bool
}

func (c *fakeCompletion) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
}

func (c *fakeCompletion) isCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

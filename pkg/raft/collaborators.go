package raft

import (
	"context"
	"io"
)

// PersistentLog is the external, out-of-scope log store. The Leader only
// reads it (and appends through it); it never mutates entries directly.
type PersistentLog interface {
	LastLogEntry() (LogEntry, bool)
	GetLogEntry(index uint64) (LogEntry, bool)
	LogEntriesAfter(index uint64, max int) []LogEntry
	AppendToLeaderLog(cmd Command) (uint64, error)
	GetLastSnapshot() (index, term uint64, ok bool)
	CurrentTerm() uint64

	// Err reports a sticky fatal error once the store has been observed in
	// an unrecoverable state (§7 "Persistent-log read failure"); nil as
	// long as reads remain trustworthy. Checked by the Replicator after
	// assembling a batch, not on every individual read.
	Err() error
}

// SnapshotWriter streams the current state machine snapshot out; Index
// and Term identify the last entry the snapshot covers.
type SnapshotWriter interface {
	Index() uint64
	Term() uint64
	WriteSnapshot(w io.Writer) error
}

// StateMachine is the external, out-of-scope application state machine.
type StateMachine interface {
	// GetSnapshotWriter acquires a scoped snapshot writer; release is
	// called exactly once regardless of success.
	GetSnapshotWriter() (writer SnapshotWriter, release func(), err error)
}

// Transport is the external, out-of-scope wire layer.
type Transport interface {
	// Send is fire-and-forget from the caller's perspective; replies (if
	// any) arrive later as independent inbound messages routed by the
	// engine's message pump, not as a synchronous RPC reply.
	Send(ctx context.Context, peer string, message interface{}) error

	// Stream performs a blocking streaming send; bodyWriter is invoked
	// with the open stream so the caller can copy arbitrary bytes
	// (typically a snapshot reader) into it.
	Stream(ctx context.Context, peer string, header interface{}, bodyWriter func(io.Writer) error) error
}

// HeartbeatSentFunc is invoked once per heartbeat round after fan-out.
type HeartbeatSentFunc func()

// EntriesAppendedFunc is invoked once per peer after an AppendEntries
// batch (possibly empty) has been sent, mirroring what a follower would
// observe on receipt.
type EntriesAppendedFunc func(peer string, entries []LogEntry)

// FatalErrorFunc is invoked once if the Leader instance retires itself
// after a fatal persistent-log read failure (§7).
type FatalErrorFunc func(err error)

// Engine is the enclosing role machine the Leader is borrowed state from.
// Observer subscription for HeartbeatSent/EntriesAppended lives on the
// Leader itself (see Observers in leader.go), not here, so that wiring
// an Engine never requires implementing unexported methods.
type Engine interface {
	Name() string
	MessageTimeout() (millis int64)
	MaxEntriesPerRequest() int
	CommitIndex() uint64
	CurrentTopology() Topology
	ChangingTopology() (Topology, bool)

	// UpdateCurrentTerm steps the engine down to Follower, recording who
	// triggered the step-down and why.
	UpdateCurrentTerm(term uint64, leaderID string, cause *AppendEntriesResponse)

	// ApplyCommits asks the state machine to apply (from, to] and update
	// commitIndex accordingly.
	ApplyCommits(from, to uint64) error
}

package raft

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sidecus/raftleader/pkg/util"
)

var zeroEntry = LogEntry{Index: 0, Term: 0}

// FatalLogError wraps a persistent-log read failure observed while
// assembling a replication batch (§7): fatal to this Leader instance,
// unlike the transient peer-level errors replicate() otherwise returns.
type FatalLogError struct {
	Err error
}

func (e *FatalLogError) Error() string {
	return "fatal persistent log error: " + e.Err.Error()
}

func (e *FatalLogError) Unwrap() error { return e.Err }

// replicate implements the Replicator (C3) decision procedure for a
// single peer, invoked once per heartbeat round.
func (l *Leader) replicate(ctx context.Context, peer string) error {
	if l.progress.isSnapshotInFlight(peer) {
		// Invariant P4: nothing is sent while a snapshot is in flight.
		return nil
	}

	entry, hasNext := l.progress.get(peer)
	if !hasNext {
		return nil
	}
	nextIndex := entry.nextIndex

	snapshotIndex, snapshotTerm, hasSnapshot := l.log.GetLastSnapshot()

	if hasSnapshot && nextIndex < snapshotIndex {
		return l.beginSnapshot(ctx, peer, snapshotIndex, snapshotTerm)
	}

	return l.sendAppendEntries(ctx, peer, nextIndex)
}

// beginSnapshot creates the pre-armed (not yet started) streamer task and
// sends the CanInstallSnapshotRequest probe. The streamer itself is only
// invoked once the probe comes back affirmative (HandleCanInstallSnapshotResponse).
func (l *Leader) beginSnapshot(ctx context.Context, peer string, snapshotIndex, snapshotTerm uint64) error {
	stream := &snapshotStream{}
	stream.start = func() { l.runSnapshotStream(peer, snapshotIndex, snapshotTerm) }
	stream.abort = func() { l.progress.markSnapshotFinished(peer) }

	l.progress.markSnapshotStarted(peer, stream)

	req := &CanInstallSnapshotRequest{
		From:     l.self,
		LeaderID: l.self,
		Index:    snapshotIndex,
		Term:     snapshotTerm,
	}

	if err := l.transport.Send(ctx, peer, req); err != nil {
		util.WriteTrace("T%d: failed to send snapshot probe to %s: %s", l.currentTerm(), peer, err)
		// §7: a transient send failure is never surfaced; clear the
		// in-flight mark so the next heartbeat re-probes instead of
		// leaving this peer permanently suppressed by replicate's P4
		// guard with no response ever coming to clear it.
		l.progress.markSnapshotFinished(peer)
	}

	return nil
}

// runSnapshotStream is the body of the pre-armed streamer task. It opens
// a snapshot reader via the external state machine and transmits it over
// the transport's streaming primitive, clearing the in-flight flag on
// completion or failure either way.
func (l *Leader) runSnapshotStream(peer string, snapshotIndex, snapshotTerm uint64) {
	defer l.progress.markSnapshotFinished(peer)

	writer, release, err := l.stateMachine.GetSnapshotWriter()
	if err != nil {
		util.WriteWarning("T%d: snapshot streaming to %s aborted, could not acquire writer: %s", l.currentTerm(), peer, err)
		return
	}
	defer release()

	header := &InstallSnapshotRequest{
		Term:              l.currentTerm(),
		LastIncludedIndex: writer.Index(),
		LastIncludedTerm:  writer.Term(),
		From:              l.self,
	}

	ctx, cancel := context.WithCancel(l.disposeCtx)
	defer cancel()

	err = l.transport.Stream(ctx, peer, header, func(w io.Writer) error {
		return writer.WriteSnapshot(w)
	})
	if err != nil {
		util.WriteWarning("T%d: snapshot streaming to %s failed: %s", l.currentTerm(), peer, err)
	}
}

// sendAppendEntries implements the normal replication path (§4.3 step 4-6).
func (l *Leader) sendAppendEntries(ctx context.Context, peer string, nextIndex uint64) error {
	max := l.engine.MaxEntriesPerRequest()
	// §4.3 step 4: entries strictly after nextIndex[peer]. For a non-empty
	// batch prevLogEntry therefore resolves to the entry *at*
	// nextIndex[peer] itself; when nothing follows nextIndex[peer] the
	// batch is empty and goes out as a heartbeat whose prevLogEntry is the
	// last log entry.
	entries := l.log.LogEntriesAfter(nextIndex, max)

	var prevEntry LogEntry
	var havePrev bool
	if len(entries) == 0 {
		prevEntry, havePrev = l.log.LastLogEntry()
	} else {
		prevEntry, havePrev = l.log.GetLogEntry(entries[0].Index - 1)
	}
	if !havePrev {
		prevEntry = zeroEntry
	}

	if err := l.log.Err(); err != nil {
		return &FatalLogError{Err: err}
	}

	req := &AppendEntriesRequest{
		Term:         l.currentTerm(),
		LeaderID:     l.self,
		PrevLogIndex: prevEntry.Index,
		PrevLogTerm:  prevEntry.Term,
		Entries:      entries,
		LeaderCommit: l.engine.CommitIndex(),
		From:         l.self,
	}

	if err := l.transport.Send(ctx, peer, req); err != nil {
		return errors.Wrapf(err, "sending AppendEntries to %s", peer)
	}

	l.observers.fireEntriesAppended(peer, entries)

	return nil
}

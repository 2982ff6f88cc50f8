package raft

import "github.com/sidecus/raftleader/pkg/util"

// HandleAppendEntriesResponse implements §4.4's AppendEntriesResponse
// handling. It is safe to call concurrently with the heartbeat driver and
// with other response handlers.
func (l *Leader) HandleAppendEntriesResponse(r *AppendEntriesResponse) {
	if r.CurrentTerm > l.currentTerm() {
		l.stepDown(r.CurrentTerm, r.LeaderID, r)
		return
	}

	if !r.Success {
		l.progress.recordRejection(r.Source)
		return
	}

	l.progress.recordSuccess(r.Source, r.LastLogIndex)
	l.advanceCommit()
}

// HandleCanInstallSnapshotResponse implements §4.4's
// CanInstallSnapshotResponse handling.
func (l *Leader) HandleCanInstallSnapshotResponse(r *CanInstallSnapshotResponse) {
	if !r.Success {
		// Follower reports it has already progressed past this
		// snapshot (or otherwise refuses it); resume normal
		// replication from the index it reports.
		l.progress.setMatchAndNext(r.From, r.Index, r.Index+1)
		l.progress.markSnapshotFinished(r.From)
		return
	}

	if r.IsCurrentlyInstalling {
		// Follower is mid-way through installing an earlier snapshot;
		// abandon ours without starting the streamer. The next
		// heartbeat will re-probe. See SPEC_FULL.md PART F for why
		// the field, not the originating project's log string, is
		// authoritative here.
		if s, ok := l.progress.snapshotHandle(r.From); ok {
			s.abort()
		} else {
			l.progress.markSnapshotFinished(r.From)
		}
		return
	}

	// Accepted: start the previously prepared streamer.
	if s, ok := l.progress.snapshotHandle(r.From); ok {
		go s.start()
	}
}

// advanceCommit implements the commit-advance half of §4.4: compute N via
// the Commit Calculator, apply (commitIndex, N] if it moved forward, and
// drain the Pending-Command Queue in FIFO order.
func (l *Leader) advanceCommit() {
	n := l.quorumCommitIndex()
	if n < 0 {
		return
	}

	newCommit := uint64(n)
	current := l.engine.CommitIndex()
	if newCommit <= current {
		return
	}

	if err := l.engine.ApplyCommits(current, newCommit); err != nil {
		util.WriteError("T%d: failed to apply commits (%d,%d]: %s", l.currentTerm(), current, newCommit, err)
		return
	}

	l.pending.completeUpTo(newCommit)
}

// stepDown triggers the enclosing engine's role transition on higher-term
// observation (§4.4, §4.7). No further messages are emitted by this
// Leader instance afterwards; callers reach this exclusively through
// response handling, so no in-flight heartbeat round can race a fresh
// send once Dispose has been observed.
func (l *Leader) stepDown(term uint64, leaderID string, cause *AppendEntriesResponse) {
	l.engine.UpdateCurrentTerm(term, leaderID, cause)
	l.Dispose()
}

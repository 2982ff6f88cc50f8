package main

import (
	"context"
	"io"

	"github.com/sidecus/raftleader/pkg/kvstore"
	"github.com/sidecus/raftleader/pkg/raft"
	"github.com/sidecus/raftleader/pkg/transport"
	"github.com/sidecus/raftleader/pkg/util"
)

// leaderDispatcher routes inbound transport messages to the Leader's
// response handlers (§4.4). Any other message arriving through Dispatch
// (AppendEntriesRequest, CanInstallSnapshotRequest, RequestVoteRequest)
// is logged at trace level and dropped: serving them is a follower-side
// concern outside the Leader core's scope (§1 Non-goals). A snapshot
// stream arriving through DispatchSnapshot is restored into the kv store.
type leaderDispatcher struct {
	leader *raft.Leader
	store  *kvstore.KVStore
}

func (d *leaderDispatcher) Dispatch(_ context.Context, from string, message interface{}) {
	switch m := message.(type) {
	case *raft.AppendEntriesResponse:
		d.leader.HandleAppendEntriesResponse(m)
	case *raft.CanInstallSnapshotResponse:
		d.leader.HandleCanInstallSnapshotResponse(m)
	default:
		util.WriteTrace("dispatcher: ignoring unhandled message %T from %s", m, from)
	}
}

func (d *leaderDispatcher) DispatchSnapshot(_ context.Context, header *transport.RawInstallSnapshot, body io.Reader) error {
	req, ok := header.Header.(*raft.InstallSnapshotRequest)
	if !ok {
		util.WriteWarning("dispatcher: snapshot stream with unexpected header type %T", header.Header)
		return nil
	}
	return d.store.Restore(body, req.LastIncludedIndex, req.LastIncludedTerm)
}

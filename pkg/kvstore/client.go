package kvstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/sidecus/raftleader/pkg/raft"
	"github.com/sidecus/raftleader/pkg/util"
)

// syncCompletion is a raft.CompletionHandle that unblocks a waiting
// caller once its entry commits.
type syncCompletion struct {
	done chan struct{}
}

func newSyncCompletion() *syncCompletion {
	return &syncCompletion{done: make(chan struct{})}
}

func (c *syncCompletion) Complete() {
	close(c.done)
}

// Set submits a set command to leader and blocks until it commits or ctx
// is done. Each call is tagged with a uuid correlation id purely for log
// correlation across the Submit call and the eventual commit.
func Set(ctx context.Context, leader *raft.Leader, key, value string) error {
	return submit(ctx, leader, CmdData{Kind: CmdSet, Key: key, Value: value})
}

// Delete submits a delete command to leader and blocks until it commits
// or ctx is done.
func Delete(ctx context.Context, leader *raft.Leader, key string) error {
	return submit(ctx, leader, CmdData{Kind: CmdDel, Key: key})
}

func submit(ctx context.Context, leader *raft.Leader, data CmdData) error {
	correlationID := uuid.NewString()
	completion := newSyncCompletion()

	cmd, err := Encode(data, completion)
	if err != nil {
		return err
	}

	idx, err := leader.Submit(cmd)
	if err != nil {
		return err
	}
	util.WriteTrace("kvstore: submitted command %s at index %d (correlation %s)", describe(data), idx, correlationID)

	select {
	case <-completion.done:
		util.WriteTrace("kvstore: command %s committed (correlation %s)", describe(data), correlationID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func describe(data CmdData) string {
	if data.Kind == CmdSet {
		return "set " + data.Key
	}
	return "del " + data.Key
}

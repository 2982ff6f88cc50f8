package raft

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sidecus/raftleader/pkg/util"
)

// heartbeatDivisor yields roughly six heartbeats per election timeout
// (§4.2), so a follower observes activity well before its election timer
// could plausibly fire under normal conditions.
const heartbeatDivisor = 6

// runHeartbeatLoop is the single cooperative driver task (§4.2, §5). It
// fans out replication to every active voter each round, fires the
// HeartbeatSent observer notification, then sleeps for
// messageTimeout/heartbeatDivisor. Cancellation is honoured at least
// between peers so step-down is bounded by one in-flight send.
func (l *Leader) runHeartbeatLoop(ctx context.Context) {
	defer l.heartbeatDone()

	period := time.Duration(l.engine.MessageTimeout()) * time.Millisecond / heartbeatDivisor

	for {
		l.fanOut(ctx)
		l.observers.fireHeartbeatSent()

		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}
	}
}

// fanOut replicates to every peer in the current voter union, checking
// cancellation between peers.
func (l *Leader) fanOut(ctx context.Context) {
	current := l.engine.CurrentTopology()
	changing, hasChanging := l.engine.ChangingTopology()
	peers := activeVoters(current, changing, hasChanging, l.self)

	for _, peer := range peers {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.progress.ensurePeer(peer, l.lastAppendedIndex())
		if err := l.replicate(ctx, peer); err != nil {
			var fatal *FatalLogError
			if errors.As(err, &fatal) {
				l.failFatal(fatal)
				return
			}
			util.WriteTrace("T%d: replication to %s failed: %s", l.currentTerm(), peer, err)
		}
	}
}

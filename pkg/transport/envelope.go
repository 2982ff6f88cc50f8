package transport

import (
	"encoding/gob"

	"github.com/sidecus/raftleader/pkg/raft"
)

func init() {
	// gob needs every concrete type that will ever travel inside an
	// Envelope.Message interface{} field registered up front.
	gob.Register(&raft.AppendEntriesRequest{})
	gob.Register(&raft.AppendEntriesResponse{})
	gob.Register(&raft.CanInstallSnapshotRequest{})
	gob.Register(&raft.CanInstallSnapshotResponse{})
	gob.Register(&raft.InstallSnapshotRequest{})
	gob.Register(&raft.RequestVoteRequest{})
}

// Envelope is the single message shape that crosses the wire for the
// Deliver RPC; Message holds whichever concrete raft.* struct the
// Leader's Transport.Send call was given.
type Envelope struct {
	Message interface{}
}

// Ack is Deliver's response: empty, since Send is fire-and-forget from
// the Leader's perspective (replies travel back as independent inbound
// Envelopes routed by the receiving side's Dispatcher).
type Ack struct{}

// Chunk is one frame of the StreamSnapshot client stream: the first
// Chunk sent on a stream carries Header (an *raft.InstallSnapshotRequest)
// and no Data; every subsequent Chunk carries a slice of raw snapshot
// bytes in Data and a nil Header.
type Chunk struct {
	Header interface{}
	Data   []byte
}

package kvstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidecus/raftleader/pkg/raft"
)

func encodedEntry(t *testing.T, index uint64, data CmdData) raft.LogEntry {
	t.Helper()
	cmd, err := Encode(data, nil)
	require.NoError(t, err)
	return raft.LogEntry{Index: index, Term: 1, Payload: cmd.Payload, Kind: raft.EntryClient}
}

func TestKVStore_ApplyCommittedSetAndDelete(t *testing.T) {
	store := NewKVStore()

	entries := []raft.LogEntry{
		encodedEntry(t, 1, CmdData{Kind: CmdSet, Key: "a", Value: "1"}),
		encodedEntry(t, 2, CmdData{Kind: CmdSet, Key: "b", Value: "2"}),
		encodedEntry(t, 3, CmdData{Kind: CmdDel, Key: "a"}),
	}

	require.NoError(t, store.ApplyCommitted(entries))

	_, err := store.Get("a")
	assert.Error(t, err)

	v, err := store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestKVStore_ApplyCommittedSkipsNonClientEntries(t *testing.T) {
	store := NewKVStore()
	err := store.ApplyCommitted([]raft.LogEntry{{Index: 1, Term: 1, Kind: raft.EntryNop}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), store.snapshotIndex)
}

func TestKVStore_SnapshotRoundTrips(t *testing.T) {
	store := NewKVStore()
	require.NoError(t, store.ApplyCommitted([]raft.LogEntry{
		encodedEntry(t, 1, CmdData{Kind: CmdSet, Key: "k", Value: "v"}),
	}))

	writer, release, err := store.GetSnapshotWriter()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, writer.WriteSnapshot(&buf))
	release()

	restored := NewKVStore()
	require.NoError(t, restored.Restore(&buf, writer.Index(), writer.Term()))

	v, err := restored.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

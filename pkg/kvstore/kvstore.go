package kvstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/sidecus/raftleader/pkg/raft"
	"github.com/sidecus/raftleader/pkg/util"
)

// CmdKind distinguishes the two client-submitted command shapes this
// store understands, layered on top of raft.EntryClient.
type CmdKind int

const (
	// CmdSet sets a key/value pair.
	CmdSet CmdKind = iota
	// CmdDel deletes a key.
	CmdDel
)

// CmdData is what a client Command's Payload gob-encodes, for
// EntryClient entries produced by this store's Encode helper.
type CmdData struct {
	Kind  CmdKind
	Key   string
	Value string
}

// Encode gob-encodes data into a raft.Command ready for Leader.Submit.
func Encode(data CmdData, completion raft.CompletionHandle) (raft.Command, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return raft.Command{}, errors.Wrap(err, "encoding kvstore command")
	}
	return raft.Command{
		Payload:    buf.Bytes(),
		Kind:       raft.EntryClient,
		Completion: completion,
	}, nil
}

// KVStore is a concurrency-safe key/value store implementing
// raft.StateMachine: ApplyCommitted drains committed LogEntry batches
// handed to it by the enclosing engine's apply loop, and
// GetSnapshotWriter exposes a point-in-time JSON snapshot for the
// Replicator's streamer.
type KVStore struct {
	mu   sync.RWMutex
	data map[string]string

	snapshotIndex uint64
	snapshotTerm  uint64
}

// NewKVStore creates an empty kv store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

// ApplyCommitted decodes and applies every EntryClient entry in
// entries, in order; it is the engine-side half of the commit pipeline
// the Leader's ApplyCommits callback is expected to drive (§4.5).
func (store *KVStore) ApplyCommitted(entries []raft.LogEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, e := range entries {
		if e.Kind != raft.EntryClient {
			store.snapshotIndex, store.snapshotTerm = e.Index, e.Term
			continue
		}

		var data CmdData
		if err := gob.NewDecoder(bytes.NewReader(e.Payload)).Decode(&data); err != nil {
			return errors.Wrapf(err, "decoding command at index %d", e.Index)
		}

		switch data.Kind {
		case CmdSet:
			store.data[data.Key] = data.Value
		case CmdDel:
			delete(store.data, data.Key)
		default:
			util.Panicf("unexpected kvstore command kind %d", data.Kind)
		}

		store.snapshotIndex, store.snapshotTerm = e.Index, e.Term
	}

	return nil
}

// Get looks up key.
func (store *KVStore) Get(key string) (string, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if v, ok := store.data[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("key %s doesn't exist", key)
}

// GetSnapshotWriter implements raft.StateMachine. The returned writer
// holds a read lock for the duration of the snapshot stream, which is
// acceptable for this reference store's scale (§1 Non-goals).
func (store *KVStore) GetSnapshotWriter() (raft.SnapshotWriter, func(), error) {
	store.mu.RLock()
	w := &kvSnapshotWriter{store: store}
	return w, store.mu.RUnlock, nil
}

type kvSnapshotWriter struct {
	store *KVStore
}

func (w *kvSnapshotWriter) Index() uint64 { return w.store.snapshotIndex }
func (w *kvSnapshotWriter) Term() uint64  { return w.store.snapshotTerm }

func (w *kvSnapshotWriter) WriteSnapshot(writer io.Writer) error {
	return json.NewEncoder(writer).Encode(w.store.data)
}

// Restore installs a JSON snapshot produced by WriteSnapshot, replacing
// the current contents wholesale.
func (store *KVStore) Restore(reader io.Reader, index, term uint64) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	data := make(map[string]string)
	if err := json.NewDecoder(reader).Decode(&data); err != nil {
		return errors.Wrap(err, "decoding kvstore snapshot")
	}
	store.data = data
	store.snapshotIndex, store.snapshotTerm = index, term
	return nil
}

package logstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/sidecus/raftleader/pkg/raft"
)

var (
	bucketLog  = []byte("log")
	bucketMeta = []byte("meta")

	keyCurrentTerm   = []byte("currentTerm")
	keySnapshotIndex = []byte("snapshotIndex")
	keySnapshotTerm  = []byte("snapshotTerm")
)

// Store is a bbolt-backed raft.PersistentLog: every append is an
// individual durable transaction, keyed by big-endian log index so
// bbolt's ordered bucket iteration gives cheap range scans for
// LogEntriesAfter.
type Store struct {
	db *bolt.DB

	mu       sync.Mutex
	fatalErr error
}

// Open opens (creating if necessary) a bbolt log store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening log store at %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLog); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing log store buckets")
	}

	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

func encodeEntry(e raft.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (raft.LogEntry, error) {
	var e raft.LogEntry
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e)
	return e, err
}

// LastLogEntry implements raft.PersistentLog.
func (s *Store) LastLogEntry() (raft.LogEntry, bool) {
	var entry raft.LogEntry
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		e, err := decodeEntry(v)
		if err != nil {
			return err
		}
		entry, found = e, true
		return nil
	})
	if err != nil {
		s.setFatal(errors.Wrap(err, "reading last log entry"))
	}

	return entry, found
}

// GetLogEntry implements raft.PersistentLog.
func (s *Store) GetLogEntry(index uint64) (raft.LogEntry, bool) {
	var entry raft.LogEntry
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLog).Get(indexKey(index))
		if v == nil {
			return nil
		}
		e, err := decodeEntry(v)
		if err != nil {
			return err
		}
		entry, found = e, true
		return nil
	})
	if err != nil {
		s.setFatal(errors.Wrapf(err, "reading log entry %d", index))
	}

	return entry, found
}

// LogEntriesAfter implements raft.PersistentLog: entries with index
// strictly greater than index, in ascending order, capped at max.
func (s *Store) LogEntriesAfter(index uint64, max int) []raft.LogEntry {
	var out []raft.LogEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.Seek(indexKey(index + 1)); k != nil && len(out) < max; k, v = c.Next() {
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		s.setFatal(errors.Wrapf(err, "reading log entries after %d", index))
	}

	return out
}

// Err implements raft.PersistentLog: a sticky fatal error once a read has
// hit log corruption (failed gob decode) or an underlying bbolt I/O
// error, surfaced so the Replicator can retire this Leader instance
// instead of silently treating corruption as "nothing to send" (§7).
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

func (s *Store) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
}

// AppendToLeaderLog implements raft.PersistentLog: assigns the entry the
// next sequential index and the store's current term, then durably
// commits it in a single bbolt transaction.
func (s *Store) AppendToLeaderLog(cmd raft.Command) (uint64, error) {
	var assigned uint64

	err := s.db.Update(func(tx *bolt.Tx) error {
		logBucket := tx.Bucket(bucketLog)
		metaBucket := tx.Bucket(bucketMeta)

		next, err := nextIndexLocked(logBucket)
		if err != nil {
			return err
		}

		term := termLocked(metaBucket)
		entry := raft.LogEntry{Index: next, Term: term, Payload: cmd.Payload, Kind: cmd.Kind}

		data, err := encodeEntry(entry)
		if err != nil {
			return err
		}

		if err := logBucket.Put(indexKey(next), data); err != nil {
			return err
		}

		assigned = next
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "appending leader log entry")
	}

	return assigned, nil
}

func nextIndexLocked(logBucket *bolt.Bucket) (uint64, error) {
	k, _ := logBucket.Cursor().Last()
	if k == nil {
		return 1, nil
	}
	return binary.BigEndian.Uint64(k) + 1, nil
}

// GetLastSnapshot implements raft.PersistentLog.
func (s *Store) GetLastSnapshot() (index, term uint64, ok bool) {
	_ = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		idxBytes := meta.Get(keySnapshotIndex)
		if idxBytes == nil {
			return nil
		}
		index = binary.BigEndian.Uint64(idxBytes)
		if termBytes := meta.Get(keySnapshotTerm); termBytes != nil {
			term = binary.BigEndian.Uint64(termBytes)
		}
		ok = true
		return nil
	})
	return index, term, ok
}

// RecordSnapshot persists the (index, term) of a newly taken snapshot so
// GetLastSnapshot reflects it after restart. Log compaction of entries
// at or below index is intentionally left to a dedicated maintenance
// pass, not performed inline here.
func (s *Store) RecordSnapshot(index, term uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		idxBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(idxBytes, index)
		if err := meta.Put(keySnapshotIndex, idxBytes); err != nil {
			return err
		}
		termBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(termBytes, term)
		return meta.Put(keySnapshotTerm, termBytes)
	})
}

func termLocked(metaBucket *bolt.Bucket) uint64 {
	v := metaBucket.Get(keyCurrentTerm)
	if v == nil {
		return 1
	}
	return binary.BigEndian.Uint64(v)
}

// CurrentTerm implements raft.PersistentLog.
func (s *Store) CurrentTerm() uint64 {
	var term uint64
	_ = s.db.View(func(tx *bolt.Tx) error {
		term = termLocked(tx.Bucket(bucketMeta))
		return nil
	})
	return term
}

// SetCurrentTerm persists a new current term; called by the enclosing
// engine's term/election handling, which is out of this package's scope
// (§1 Non-goals) but needs somewhere durable to record the result.
func (s *Store) SetCurrentTerm(term uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		termBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(termBytes, term)
		return tx.Bucket(bucketMeta).Put(keyCurrentTerm, termBytes)
	})
}

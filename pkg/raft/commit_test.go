package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumIndexForTopology_NoMajority(t *testing.T) {
	// quorum=3 with only two voters reporting: at v=0 confirmations=2 < 3,
	// so no value reaches quorum.
	idx, ok := quorumIndexForTopology(map[string]uint64{"a": 1, "b": 0}, 3)
	assert.False(t, ok)
	assert.Equal(t, int64(-1), idx)
}

func TestQuorumIndexForTopology_BucketAndBoost(t *testing.T) {
	// quorum=2 out of 3: values {5,5,3} -> at v=5 confirmations=2 -> N=5
	idx, ok := quorumIndexForTopology(map[string]uint64{"a": 5, "b": 5, "c": 3}, 2)
	require.True(t, ok)
	assert.Equal(t, int64(5), idx)
}

func TestQuorumIndexForTopology_S4Changing(t *testing.T) {
	// changing={C,D,E} q=2, matchIndex C=10,D=4,E=4 -> expect 4
	idx, ok := quorumIndexForTopology(map[string]uint64{"c": 10, "d": 4, "e": 4}, 2)
	require.True(t, ok)
	assert.Equal(t, int64(4), idx)
}

func newLeaderForCommitTests(t *testing.T, voters []string) (*Leader, *fakeEngine, *fakeLog) {
	t.Helper()
	log := newFakeLog(1)
	engine := newFakeEngine(voters)
	engine.messageTimeoutMs = 3_600_000 // after its immediate first round, the heartbeat loop sleeps for the test duration
	l, err := New("A", engine, log, fakeStateMachine{}, newFakeTransport())
	require.NoError(t, err)
	t.Cleanup(l.Dispose)
	return l, engine, log
}

func TestQuorumCommitIndex_S1ThreeNodeMajority(t *testing.T) {
	l, _, log := newLeaderForCommitTests(t, []string{"A", "B", "C"})

	for i := 0; i < 4; i++ {
		_, err := log.AppendToLeaderLog(Command{Kind: EntryClient})
		require.NoError(t, err)
	}
	// log now has indices 1 (nop) .. 5

	l.progress.recordSuccess("B", 5)
	l.progress.recordSuccess("C", 3)

	n := l.quorumCommitIndex()
	assert.Equal(t, int64(5), n, "A and B at 5 satisfy quorum 2 of 3")
}

func TestQuorumCommitIndex_S4JointConsensus(t *testing.T) {
	l, engine, _ := newLeaderForCommitTests(t, []string{"A", "B", "C"})
	engine.setChanging([]string{"C", "D", "E"})

	l.progress.initialize(l.lastAppendedIndex(), []string{"A", "B", "C", "D", "E"})
	l.progress.setMatchAndNext("B", 10, 11)
	l.progress.setMatchAndNext("C", 10, 11)
	l.progress.setMatchAndNext("D", 4, 5)
	l.progress.setMatchAndNext("E", 4, 5)

	// self (A)'s matchIndex for the quorum calc is its own last-appended index.
	for log := l.lastAppendedIndex(); log < 10; log++ {
		_, err := l.log.AppendToLeaderLog(Command{Kind: EntryClient})
		require.NoError(t, err)
	}

	n := l.quorumCommitIndex()
	assert.Equal(t, int64(4), n, "min(current=10, changing=4) = 4")
}

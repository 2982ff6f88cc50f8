package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTable_InitializeSetsInvariants(t *testing.T) {
	pt := newProgressTable()
	pt.initialize(10, []string{"A", "B", "C"})

	for _, id := range []string{"a", "b", "c"} {
		e, ok := pt.get(id)
		require.True(t, ok, "peer %s should be initialized", id)
		assert.Equal(t, uint64(11), e.nextIndex)
		assert.Equal(t, uint64(0), e.matchIndex)
	}
}

func TestProgressTable_CaseInsensitiveLookup(t *testing.T) {
	pt := newProgressTable()
	pt.initialize(0, []string{"Node-A"})

	_, ok := pt.get("node-a")
	assert.True(t, ok)
	_, ok = pt.get("NODE-A")
	assert.True(t, ok)
}

func TestProgressTable_RecordSuccess(t *testing.T) {
	pt := newProgressTable()
	pt.initialize(0, []string{"B"})

	pt.recordSuccess("B", 5)

	e, ok := pt.get("b")
	require.True(t, ok)
	assert.Equal(t, uint64(5), e.matchIndex)
	assert.Equal(t, uint64(6), e.nextIndex)
	assert.LessOrEqual(t, e.matchIndex, e.nextIndex-1, "Invariant P1")
}

func TestProgressTable_RecordRejectionClampsAtOne(t *testing.T) {
	pt := newProgressTable()
	pt.initialize(0, []string{"B"})
	pt.peers["b"].nextIndex = 1

	pt.recordRejection("B")
	e, _ := pt.get("b")
	assert.Equal(t, uint64(1), e.nextIndex, "Invariant P2: nextIndex never drops below 1")

	// S2: nextIndex[B]=7, reject once -> 6.
	pt.peers["b"].nextIndex = 7
	pt.recordRejection("B")
	e, _ = pt.get("b")
	assert.Equal(t, uint64(6), e.nextIndex)
}

func TestProgressTable_SnapshotInFlightExclusion(t *testing.T) {
	pt := newProgressTable()
	pt.initialize(0, []string{"C"})

	assert.False(t, pt.isSnapshotInFlight("c"))

	started := false
	pt.markSnapshotStarted("c", &snapshotStream{
		start: func() { started = true },
		abort: func() {},
	})
	assert.True(t, pt.isSnapshotInFlight("c"))

	s, ok := pt.snapshotHandle("C")
	require.True(t, ok)
	s.start()
	assert.True(t, started)

	pt.markSnapshotFinished("C")
	assert.False(t, pt.isSnapshotInFlight("c"))
}

func TestProgressTable_SetMatchAndNext(t *testing.T) {
	pt := newProgressTable()
	pt.initialize(0, []string{"D"})

	pt.setMatchAndNext("D", 42, 43)
	e, _ := pt.get("d")
	assert.Equal(t, uint64(42), e.matchIndex)
	assert.Equal(t, uint64(43), e.nextIndex)
}

package raft

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sidecus/raftleader/pkg/util"
)

// Observers holds the synchronous subscriber lists for the three notification
// hooks the Leader emits: HeartbeatSent and EntriesAppended (§4.2, §4.3,
// §9 "Observer events") and FatalError (§7).
type Observers struct {
	mu                sync.Mutex
	heartbeatSent     []HeartbeatSentFunc
	entriesAppended   []EntriesAppendedFunc
	fatalError        []FatalErrorFunc
}

// OnHeartbeatSent subscribes fn to every future HeartbeatSent notification.
func (o *Observers) OnHeartbeatSent(fn HeartbeatSentFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.heartbeatSent = append(o.heartbeatSent, fn)
}

// OnEntriesAppended subscribes fn to every future EntriesAppended notification.
func (o *Observers) OnEntriesAppended(fn EntriesAppendedFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entriesAppended = append(o.entriesAppended, fn)
}

func (o *Observers) fireHeartbeatSent() {
	o.mu.Lock()
	subs := append([]HeartbeatSentFunc(nil), o.heartbeatSent...)
	o.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (o *Observers) fireEntriesAppended(peer string, entries []LogEntry) {
	o.mu.Lock()
	subs := append([]EntriesAppendedFunc(nil), o.entriesAppended...)
	o.mu.Unlock()
	for _, fn := range subs {
		fn(peer, entries)
	}
}

// OnFatalError subscribes fn to the (at most one) FatalError notification.
func (o *Observers) OnFatalError(fn FatalErrorFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fatalError = append(o.fatalError, fn)
}

func (o *Observers) fireFatalError(err error) {
	o.mu.Lock()
	subs := append([]FatalErrorFunc(nil), o.fatalError...)
	o.mu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

// Leader is the entire leadership-scoped state described by spec.md §3:
// created on transition-to-leader, destroyed on transition-away. It owns
// the Progress Table and snapshot-in-flight set; everything else
// (persistent log, state machine, transport) is borrowed from the
// Engine.
type Leader struct {
	self   string
	engine Engine
	log    PersistentLog
	stateMachine StateMachine
	transport    Transport

	progress  *progressTable
	pending   *pendingQueue
	observers *Observers

	disposeCtx context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	disposeOnce sync.Once

	heartbeatMu      sync.Mutex
	lastHeartbeatRecv time.Time
}

// New creates a Leader instance for self, transitioning it into the
// leadership-scoped lifecycle described by §3: progress is initialized
// for every current voter, a Nop entry is appended to force current-term
// commit progress, and the heartbeat driver starts.
func New(self string, engine Engine, log PersistentLog, sm StateMachine, transport Transport) (*Leader, error) {
	ctx, cancel := context.WithCancel(context.Background())

	l := &Leader{
		self:         normalizeID(self),
		engine:       engine,
		log:          log,
		stateMachine: sm,
		transport:    transport,
		progress:     newProgressTable(),
		pending:      newPendingQueue(),
		disposeCtx:   ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		observers:    &Observers{},
	}

	last, _ := log.LastLogEntry()
	current := engine.CurrentTopology()
	changing, hasChanging := engine.ChangingTopology()

	voters := activeVotersIncludingSelf(current, changing, hasChanging)
	l.progress.initialize(last.Index, voters)

	if _, err := l.appendNop(); err != nil {
		return nil, errors.Wrap(err, "appending leadership nop")
	}

	go l.runHeartbeatLoop(l.disposeCtx)

	return l, nil
}

// activeVotersIncludingSelf is like activeVoters but keeps self in the
// result, so progressTable.initialize also creates an entry for self.
// That entry is never read: the leader's own match index is derived on
// demand (see commit.go) and fanOut never replicates to self.
func activeVotersIncludingSelf(current Topology, changing Topology, hasChanging bool) []string {
	seen := make(map[string]struct{}, len(current.Voters))
	ids := make([]string, 0, len(current.Voters))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range current.Voters {
		add(id)
	}
	if hasChanging {
		for id := range changing.Voters {
			add(id)
		}
	}
	return ids
}

// appendNop appends the Raft no-op-on-leadership-start entry (§3, §4.7
// safety note, S6): it is the first log append after becoming leader and
// is only enqueued in the pending queue if it happens to carry a
// completion handle (in practice it never does).
func (l *Leader) appendNop() (uint64, error) {
	cmd := Command{Kind: EntryNop}
	idx, err := l.log.AppendToLeaderLog(cmd)
	if err != nil {
		return 0, err
	}
	cmd.AssignedIndex = idx
	l.pending.enqueue(cmd)
	return idx, nil
}

// OnHeartbeatSent subscribes fn to every future HeartbeatSent notification.
func (l *Leader) OnHeartbeatSent(fn HeartbeatSentFunc) {
	l.observers.OnHeartbeatSent(fn)
}

// OnEntriesAppended subscribes fn to every future EntriesAppended notification.
func (l *Leader) OnEntriesAppended(fn EntriesAppendedFunc) {
	l.observers.OnEntriesAppended(fn)
}

// OnFatalError subscribes fn to the fatal persistent-log-error
// notification (§7), fired at most once per Leader instance.
func (l *Leader) OnFatalError(fn FatalErrorFunc) {
	l.observers.OnFatalError(fn)
}

// Submit appends a client command to the log and, if it carries a
// completion handle, registers it on the Pending-Command Queue so it is
// resolved once its assigned index commits.
func (l *Leader) Submit(cmd Command) (uint64, error) {
	idx, err := l.log.AppendToLeaderLog(cmd)
	if err != nil {
		return 0, errors.Wrap(err, "appending client command")
	}
	cmd.AssignedIndex = idx
	l.pending.enqueue(cmd)
	return idx, nil
}

// Dispose tears down the Leader instance (§3, §5): the heartbeat driver
// is cancelled and awaited with a bounded wait of 2*messageTimeout;
// outstanding snapshot streams are left to abandon themselves; unresolved
// pending completions are left for the caller (engine/new leader) to
// decide the fate of.
func (l *Leader) Dispose() {
	l.disposeOnce.Do(func() {
		l.cancel()
		timeout := 2 * time.Duration(l.engine.MessageTimeout()) * time.Millisecond
		select {
		case <-l.done:
		case <-time.After(timeout):
			util.WriteWarning("leader dispose: heartbeat driver did not exit within %s", timeout)
		}
	})
}

func (l *Leader) heartbeatDone() {
	close(l.done)
}

// failFatal implements §7's fatal persistent-log-read policy: unlike
// transient peer errors this is never retried. It is only ever called
// from the heartbeat driver's own goroutine (via fanOut), so it cancels
// rather than calling Dispose: Dispose blocks on <-l.done, which this
// same goroutine is responsible for closing on its way out.
func (l *Leader) failFatal(err error) {
	util.WriteError("T%d: %s", l.currentTerm(), err)
	l.observers.fireFatalError(err)
	l.cancel()
}

// HandleHeartbeatTimeout is invoked by the enclosing engine's shared
// election-timeout mechanism when it fires while this instance is still
// leader (§4.7). The Leader has no election logic of its own; it merely
// stamps the time so the engine's own timeout bookkeeping doesn't mistake
// leadership for a stalled follower.
func (l *Leader) HandleHeartbeatTimeout() {
	l.heartbeatMu.Lock()
	l.lastHeartbeatRecv = time.Now()
	l.heartbeatMu.Unlock()
}

// LastHeartbeatReceived returns the last time HandleHeartbeatTimeout was
// invoked, the zero Time if never.
func (l *Leader) LastHeartbeatReceived() time.Time {
	l.heartbeatMu.Lock()
	defer l.heartbeatMu.Unlock()
	return l.lastHeartbeatRecv
}

func (l *Leader) currentTerm() uint64 {
	return l.log.CurrentTerm()
}

func (l *Leader) lastAppendedIndex() uint64 {
	last, ok := l.log.LastLogEntry()
	if !ok {
		return 0
	}
	return last.Index
}

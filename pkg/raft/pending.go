package raft

import "sync"

// pendingQueue is a FIFO of client submissions awaiting their assigned
// log index to be observed as committed. assignedIndex is strictly
// increasing across the queue because it is assigned at append time.
type pendingQueue struct {
	mu    sync.Mutex
	items []Command
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

// enqueue records cmd only if it has a completion handle to resolve;
// commands without one (e.g. the leadership Nop) are never tracked.
func (q *pendingQueue) enqueue(cmd Command) {
	if cmd.Completion == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, cmd)
}

// completeUpTo dequeues and resolves every head command whose
// assignedIndex is <= N, in strict FIFO order.
func (q *pendingQueue) completeUpTo(n uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := 0
	for i < len(q.items) && q.items[i].AssignedIndex <= n {
		q.items[i].Completion.Complete()
		i++
	}
	q.items = q.items[i:]
}

// len reports the number of unresolved pending commands (test helper).
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

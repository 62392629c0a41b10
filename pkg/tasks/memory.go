package tasks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process queue. Claimed tasks stay hidden until they
// are acked or nacked; there is no visibility timeout.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Task
	claimed map[uuid.UUID]Task
	closed  bool
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{claimed: make(map[uuid.UUID]Task)}
}

// Submit appends t.
func (q *MemoryQueue) Submit(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.check(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, t)
	return nil
}

// Claim removes the oldest pending task. Returns nil, nil if there is none.
func (q *MemoryQueue) Claim(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	t.Attempts++
	t.Status = StatusProcessing
	q.claimed[t.ID] = t
	return &t, nil
}

// Ack forgets a claimed task.
func (q *MemoryQueue) Ack(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, id)
	return nil
}

// Nack puts a claimed task back at the front of the queue.
func (q *MemoryQueue) Nack(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.claimed[id]
	if !ok {
		return nil
	}
	delete(q.claimed, id)
	t.Status = StatusQueued
	q.pending = append([]Task{t}, q.pending...)
	return nil
}

// Len returns the number of pending and claimed tasks.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.claimed), nil
}

// Tasks returns a copy of the pending tasks.
func (q *MemoryQueue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.pending...)
}

// Close rejects further submissions.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var (
	_ Queue    = (*MemoryQueue)(nil)
	_ Consumer = (*MemoryQueue)(nil)
)

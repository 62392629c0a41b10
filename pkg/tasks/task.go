// Package tasks carries deferred work out of the request path.
//
// After an update swaps a rebuilt network into place, the displaced graph is
// removed by a DELETE_NETWORK task instead of inside the swap. Queues deliver
// at least once: a task claimed by a worker that dies reappears after the
// visibility timeout, so handlers must be idempotent.
//
// Example:
//
//	q, err := tasks.OpenSQLiteQueue("./data/tasks.db", tasks.QueueOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer q.Close()
//
//	p := tasks.NewProcessor(q, tasks.ProcessorOptions{Workers: 2})
//	p.Handle(tasks.TypeDeleteNetwork, tasks.DeleteNetworkHandler(db))
//	err = p.Run(ctx)
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType names the work a task asks for.
type TaskType string

const (
	// TypeDeleteNetwork removes a network record and everything it owns.
	// Resource is the UUID the record carries.
	TypeDeleteNetwork TaskType = "DELETE_NETWORK"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Errors
var (
	ErrUnsupportedTask = errors.New("unsupported task type")
	ErrInvalidTask     = errors.New("invalid task")
	ErrQueueClosed     = errors.New("queue closed")
)

// Task is one unit of deferred work.
type Task struct {
	ID        uuid.UUID
	Type      TaskType
	Resource  string
	Status    Status
	CreatedAt time.Time
	// Attempts counts deliveries, including the current one.
	Attempts int
}

// NewTask returns a queued task with a fresh ID.
func NewTask(t TaskType, resource string) Task {
	return Task{
		ID:        uuid.New(),
		Type:      t,
		Resource:  resource,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
}

// DeleteNetworkTask asks for the removal of the network carrying id.
func DeleteNetworkTask(id uuid.UUID) Task {
	return NewTask(TypeDeleteNetwork, id.String())
}

func (t Task) String() string {
	return fmt.Sprintf("%s(%s) %s", t.Type, t.Resource, t.ID)
}

func (t *Task) check() error {
	if t.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidTask)
	}
	if t.Resource == "" {
		return fmt.Errorf("%w: missing resource", ErrInvalidTask)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.Status = StatusQueued
	return nil
}

// Queue accepts tasks. It is all the clone engine needs.
type Queue interface {
	Submit(ctx context.Context, t Task) error
}

// Consumer hands out tasks to workers.
//
// Claim returns nil, nil when nothing is visible. A claimed task must be
// acknowledged with Ack once done or returned with Nack for redelivery.
type Consumer interface {
	Claim(ctx context.Context) (*Task, error)
	Ack(ctx context.Context, id uuid.UUID) error
	Nack(ctx context.Context, id uuid.UUID) error
}

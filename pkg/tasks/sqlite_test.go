package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T, opts QueueOptions) *SQLiteQueue {
	t.Helper()
	q, err := OpenSQLiteQueue(filepath.Join(t.TempDir(), "tasks.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func taskAt(typ TaskType, resource string, created time.Time) Task {
	t := NewTask(typ, resource)
	t.CreatedAt = created
	return t
}

func TestSQLiteQueue_SubmitClaimAck(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t, QueueOptions{})

	base := time.Now().Add(-time.Minute)
	first := taskAt(TypeDeleteNetwork, uuid.NewString(), base)
	second := taskAt(TypeDeleteNetwork, uuid.NewString(), base.Add(time.Second))
	require.NoError(t, q.Submit(ctx, second))
	require.NoError(t, q.Submit(ctx, first))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID, "oldest task first")
	assert.Equal(t, TypeDeleteNetwork, claimed.Type)
	assert.Equal(t, first.Resource, claimed.Resource)
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, base.UnixMilli(), claimed.CreatedAt.UnixMilli())

	next, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID, "a claimed task is hidden")

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, q.Ack(ctx, claimed.ID))
	require.NoError(t, q.Ack(ctx, next.ID))
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteQueue_VisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t, QueueOptions{VisibilityTimeout: 50 * time.Millisecond})

	task := DeleteNetworkTask(uuid.New())
	require.NoError(t, q.Submit(ctx, task))

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	// the worker never acks; the task comes back
	time.Sleep(100 * time.Millisecond)
	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, task.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestSQLiteQueue_Nack(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t, QueueOptions{})

	task := DeleteNetworkTask(uuid.New())
	require.NoError(t, q.Submit(ctx, task))

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, q.Nack(ctx, claimed.ID))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, StatusQueued, pending[0].Status)
	assert.Equal(t, 1, pending[0].Attempts)

	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
}

func TestSQLiteQueue_InvalidTask(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t, QueueOptions{})

	assert.ErrorIs(t, q.Submit(ctx, Task{Type: TypeDeleteNetwork}), ErrInvalidTask)
	assert.ErrorIs(t, q.Submit(ctx, Task{Resource: "x"}), ErrInvalidTask)

	// ID and creation time are filled in
	require.NoError(t, q.Submit(ctx, Task{Type: TypeDeleteNetwork, Resource: "x"}))
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, uuid.Nil, pending[0].ID)
	assert.False(t, pending[0].CreatedAt.IsZero())
}

func TestSQLiteQueue_Persistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")

	q, err := OpenSQLiteQueue(path, QueueOptions{})
	require.NoError(t, err)
	task := DeleteNetworkTask(uuid.New())
	require.NoError(t, q.Submit(ctx, task))
	require.NoError(t, q.Close())

	q, err = OpenSQLiteQueue(path, QueueOptions{})
	require.NoError(t, err)
	defer q.Close()

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, task.ID, claimed.ID)
}

func TestSQLiteQueue_InMemory(t *testing.T) {
	ctx := context.Background()
	q, err := OpenSQLiteQueue(":memory:", QueueOptions{})
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Submit(ctx, NewTask("OTHER", "r")))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	a := DeleteNetworkTask(uuid.New())
	b := DeleteNetworkTask(uuid.New())
	require.NoError(t, q.Submit(ctx, a))
	require.NoError(t, q.Submit(ctx, b))

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, a.ID, claimed.ID)
	assert.Equal(t, 1, claimed.Attempts)

	n, _ := q.Len(ctx)
	assert.Equal(t, 2, n, "claimed tasks still count")
	assert.Len(t, q.Tasks(), 1)

	require.NoError(t, q.Nack(ctx, claimed.ID))
	assert.Equal(t, a.ID, q.Tasks()[0].ID, "nacked task goes to the front")

	claimed, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed.Attempts)
	require.NoError(t, q.Ack(ctx, claimed.ID))

	n, _ = q.Len(ctx)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, q.Submit(ctx, Task{}), ErrInvalidTask)
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Submit(ctx, a), ErrQueueClosed)
}

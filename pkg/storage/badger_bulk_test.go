package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSmallEngine opens an in-memory engine whose 1MB memtable caps one
// Badger transaction at roughly 1600 entries.
func newSmallEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true, MemTableSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func termNode(i int) *Node {
	return &Node{
		ID:         NodeID(fmt.Sprintf("%d", i)),
		Labels:     []string{"baseTerm"},
		Properties: map[string]any{"name": fmt.Sprintf("term-%d", i)},
	}
}

func TestBadgerTransaction_TooBig(t *testing.T) {
	engine := newSmallEngine(t)

	tx, err := engine.BeginTransaction()
	require.NoError(t, err)
	defer tx.Rollback()

	var lastErr error
	for i := 1; i <= 5000 && lastErr == nil; i++ {
		lastErr = tx.CreateNode(termNode(i))
	}
	assert.ErrorIs(t, lastErr, ErrTransactionTooBig)

	// a plain transaction never checkpoints
	committed, err := tx.Checkpoint()
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestBadgerTransaction_BulkCheckpoints(t *testing.T) {
	engine := newSmallEngine(t)

	tx, err := engine.BeginBulkTransaction()
	require.NoError(t, err)
	for i := 1; i <= 5000; i++ {
		require.NoError(t, tx.CreateNode(termNode(i)))
		_, err := tx.Checkpoint()
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	assert.Greater(t, tx.Batches(), 2)

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), count)

	terms, err := engine.FindNodes("baseTerm", nil)
	require.NoError(t, err)
	assert.Len(t, terms, 5000)
}

func TestBadgerTransaction_BulkRollbackKeepsCommittedBatches(t *testing.T) {
	engine := newSmallEngine(t)

	tx, err := engine.BeginBulkTransaction()
	require.NoError(t, err)
	i := 0
	for tx.Batches() == 0 {
		i++
		require.NoError(t, tx.CreateNode(termNode(i)))
		_, err := tx.Checkpoint()
		require.NoError(t, err)
	}
	committed := i

	// reads in the next batch see the committed ones
	got, err := tx.GetNode("1")
	require.NoError(t, err)
	assert.Equal(t, "term-1", got.Properties["name"])

	require.NoError(t, tx.CreateNode(termNode(committed+1)))
	require.NoError(t, tx.Rollback())

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(committed), count)
	_, err = engine.GetNode(NodeID(fmt.Sprintf("%d", committed+1)))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tx.Checkpoint()
	assert.ErrorIs(t, err, ErrTransactionClosed)
}

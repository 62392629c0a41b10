package storage

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBadgerEngine_NodeCRUD(t *testing.T) {
	engine := newTestEngine(t)

	node := &Node{
		ID:         "10",
		Labels:     []string{"baseTerm"},
		Properties: map[string]any{"name": "TP53"},
	}
	require.NoError(t, engine.CreateNode(node))
	assert.ErrorIs(t, engine.CreateNode(node), ErrAlreadyExists)

	got, err := engine.GetNode("10")
	require.NoError(t, err)
	assert.Equal(t, "TP53", got.Properties["name"])
	assert.True(t, got.HasLabel("BaseTerm"))
	assert.False(t, got.CreatedAt.IsZero())

	got.Properties["name"] = "MDM2"
	require.NoError(t, engine.UpdateNode(got))

	got, err = engine.GetNode("10")
	require.NoError(t, err)
	assert.Equal(t, "MDM2", got.Properties["name"])

	require.NoError(t, engine.DeleteNode("10"))
	_, err = engine.GetNode("10")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, engine.UpdateNode(&Node{ID: "99"}), ErrNotFound)
	_, err = engine.GetNode("")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestBadgerEngine_LabelIndex(t *testing.T) {
	engine := newTestEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "1", Labels: []string{"baseTerm"}, Properties: map[string]any{"name": "a"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "2", Labels: []string{"baseTerm"}, Properties: map[string]any{"name": "b"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "3", Labels: []string{"citation"}}))

	terms, err := engine.FindNodes("baseTerm", nil)
	require.NoError(t, err)
	assert.Len(t, terms, 2)

	filtered, err := engine.FindNodes("baseTerm", func(n *Node) bool { return n.Properties["name"] == "b" })
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, NodeID("2"), filtered[0].ID)

	// Relabel moves the node between indexes.
	require.NoError(t, engine.UpdateNode(&Node{ID: "1", Labels: []string{"citation"}}))
	terms, err = engine.FindNodes("baseTerm", nil)
	require.NoError(t, err)
	assert.Len(t, terms, 1)
	citations, err := engine.FindNodes("citation", nil)
	require.NoError(t, err)
	assert.Len(t, citations, 2)
}

func TestBadgerEngine_Edges(t *testing.T) {
	engine := newTestEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "1", Labels: []string{"node"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "2", Labels: []string{"baseTerm"}}))

	err := engine.CreateEdge(&Edge{ID: "100", StartNode: "1", EndNode: "404", Type: "represents"})
	assert.ErrorIs(t, err, ErrInvalidEdge)

	require.NoError(t, engine.CreateEdge(&Edge{
		ID: "100", StartNode: "1", EndNode: "2", Type: "represents",
	}))
	require.NoError(t, engine.CreateEdge(&Edge{
		ID: "101", StartNode: "1", EndNode: "2", Type: "functionParam",
		Properties: map[string]any{"position": 0},
	}))

	out, err := engine.GetOutgoingEdges("1")
	require.NoError(t, err)
	assert.Len(t, out, 2)

	in, err := engine.GetIncomingEdges("2")
	require.NoError(t, err)
	assert.Len(t, in, 2)

	err = engine.Update(func(tx *BadgerTransaction) error {
		edge, err := tx.GetEdge("101")
		require.NoError(t, err)
		assert.Equal(t, "functionParam", edge.Type)
		assert.Equal(t, json.Number("0"), edge.Properties["position"])
		return tx.DeleteEdge("100")
	})
	require.NoError(t, err)

	out, err = engine.GetOutgoingEdges("1")
	require.NoError(t, err)
	assert.Len(t, out, 1)
	in, err = engine.GetIncomingEdges("2")
	require.NoError(t, err)
	assert.Len(t, in, 1)
}

func TestBadgerEngine_DeleteNodeRemovesAttachedEdges(t *testing.T) {
	engine := newTestEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "1", Labels: []string{"node"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "2", Labels: []string{"node"}}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "10", StartNode: "1", EndNode: "2", Type: "edgeSubject"}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "11", StartNode: "2", EndNode: "1", Type: "edgeObject"}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "12", StartNode: "1", EndNode: "1", Type: "alias"}))

	require.NoError(t, engine.DeleteNode("1"))

	in, err := engine.GetIncomingEdges("2")
	require.NoError(t, err)
	assert.Empty(t, in)
	out, err := engine.GetOutgoingEdges("2")
	require.NoError(t, err)
	assert.Empty(t, out)

	err = engine.Update(func(tx *BadgerTransaction) error {
		for _, id := range []EdgeID{"10", "11", "12"} {
			_, err := tx.GetEdge(id)
			assert.ErrorIs(t, err, ErrNotFound, "edge %s", id)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBadgerTransaction_ReadYourWrites(t *testing.T) {
	engine := newTestEngine(t)

	tx, err := engine.BeginTransaction()
	require.NoError(t, err)

	require.NoError(t, tx.CreateNode(&Node{ID: "1", Labels: []string{"network"}}))
	require.NoError(t, tx.CreateNode(&Node{ID: "2", Labels: []string{"node"}}))
	require.NoError(t, tx.CreateEdge(&Edge{ID: "3", StartNode: "1", EndNode: "2", Type: "networkNodes"}))

	got, err := tx.GetNode("2")
	require.NoError(t, err)
	assert.Equal(t, NodeID("2"), got.ID)

	out, err := tx.GetOutgoingEdges("1")
	require.NoError(t, err)
	assert.Len(t, out, 1)

	nodes, err := tx.NodesByLabel("node", nil)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	// Invisible outside until commit.
	_, err = engine.GetNode("2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tx.Commit())
	assert.False(t, tx.IsActive())

	_, err = engine.GetNode("2")
	require.NoError(t, err)

	assert.ErrorIs(t, tx.Commit(), ErrTransactionClosed)
	assert.ErrorIs(t, tx.CreateNode(&Node{ID: "9"}), ErrTransactionClosed)
}

func TestBadgerTransaction_Rollback(t *testing.T) {
	engine := newTestEngine(t)

	tx, err := engine.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.CreateNode(&Node{ID: "1", Labels: []string{"network"}}))
	require.NoError(t, tx.Rollback())

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.ErrorIs(t, tx.Rollback(), ErrTransactionClosed)
}

func TestBadgerTransaction_Conflict(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.CreateNode(&Node{ID: "1", Labels: []string{"network"}, Properties: map[string]any{"isLocked": false}}))

	tx1, err := engine.BeginTransaction()
	require.NoError(t, err)
	tx2, err := engine.BeginTransaction()
	require.NoError(t, err)

	n1, err := tx1.GetNode("1")
	require.NoError(t, err)
	n2, err := tx2.GetNode("1")
	require.NoError(t, err)

	n1.Properties["isLocked"] = true
	n2.Properties["isLocked"] = true
	require.NoError(t, tx1.UpdateNode(n1))
	require.NoError(t, tx2.UpdateNode(n2))

	require.NoError(t, tx1.Commit())
	assert.ErrorIs(t, tx2.Commit(), ErrTransactionConflict)
}

func TestBadgerEngine_Persistence(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	require.NoError(t, engine.CreateNode(&Node{ID: "1", Labels: []string{"network"}, Properties: map[string]any{"name": "kept"}}))
	require.NoError(t, engine.Close())

	_, err = engine.GetNode("1")
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = engine.BeginTransaction()
	assert.ErrorIs(t, err, ErrStorageClosed)

	engine, err = NewBadgerEngine(dir)
	require.NoError(t, err)
	defer engine.Close()

	got, err := engine.GetNode("1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Properties["name"])
}

func TestSequence_NextID(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)

	seq, err := engine.Sequence("ids", 10)
	require.NoError(t, err)

	first, err := seq.NextID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	var mu sync.Mutex
	seen := map[int64]bool{first: true}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				id, err := seq.NextID()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 201)

	require.NoError(t, seq.Release())
	require.NoError(t, engine.Close())

	// Identifiers keep increasing across restarts.
	engine, err = NewBadgerEngine(dir)
	require.NoError(t, err)
	defer engine.Close()

	seq, err = engine.Sequence("ids", 10)
	require.NoError(t, err)
	defer seq.Release()

	next, err := seq.NextID()
	require.NoError(t, err)
	assert.Greater(t, next, int64(201))
}

package clone

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/storage"
	"github.com/ndexbio/ndexgraph/pkg/tasks"
)

// ringSnapshot links n nodes in a cycle. Node i represents its own base
// term and every edge shares one predicate: 3n+1 entities in all.
func ringSnapshot(n int) *model.Network {
	net := model.NewNetwork(fmt.Sprintf("ring of %d", n))
	const nodeBase, edgeBase = 1_000_000, 2_000_000
	predicate := int64(n + 1)
	net.BaseTerms[predicate] = &model.BaseTerm{ID: predicate, Name: "interacts", NamespaceID: model.NoNamespace}
	for i := int64(1); i <= int64(n); i++ {
		net.BaseTerms[i] = &model.BaseTerm{ID: i, Name: fmt.Sprintf("G%d", i), NamespaceID: model.NoNamespace}
		net.Nodes[nodeBase+i] = &model.Node{ID: nodeBase + i, Name: fmt.Sprintf("n%d", i), Represents: model.BaseTermRef(i)}
		next := i%int64(n) + 1
		net.Edges[edgeBase+i] = &model.Edge{ID: edgeBase + i, SubjectID: nodeBase + i, ObjectID: nodeBase + next, PredicateID: predicate}
	}
	return net
}

func drainDeletions(t *testing.T, db *ndexdb.DB, q *tasks.MemoryQueue) int {
	t.Helper()
	p := tasks.NewProcessor(q, tasks.ProcessorOptions{})
	p.Handle(tasks.TypeDeleteNetwork, tasks.DeleteNetworkHandler(db))
	n, err := p.Drain(context.Background())
	require.NoError(t, err)
	return n
}

func TestCloneNetwork_LargeNetworkCommitsInBatches(t *testing.T) {
	if testing.Short() {
		t.Skip("writes about 190k keys")
	}
	e, db, q := setupEngine(t)
	ctx := context.Background()

	// 21001 entities: far more writes than one Badger transaction holds
	const n = 7000
	summary, err := e.CloneNetwork(ctx, ringSnapshot(n), owner)
	require.NoError(t, err)
	assert.Equal(t, n, summary.NodeCount)
	assert.Equal(t, n, summary.EdgeCount)
	assert.True(t, summary.IsComplete)
	assert.False(t, summary.IsLocked)
	assert.Equal(t, owner, summary.Owner)

	network := networkNode(t, db, summary.ExternalID)
	assert.Len(t, related(t, db, network.ID, ndexdb.RelNetworkBaseTerms), n+1)
	assert.Len(t, related(t, db, network.ID, ndexdb.RelNetworkNodes), n)
	assert.Len(t, related(t, db, network.ID, ndexdb.RelNetworkEdges), n)

	intents, err := loadIntents(db)
	require.NoError(t, err)
	assert.Empty(t, intents)

	// the same network can be rebuilt in place and the old graph removed
	replacement := ringSnapshot(n)
	replacement.ExternalID = summary.ExternalID
	updated, err := e.UpdateNetwork(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, n, updated.NodeCount)
	assert.True(t, updated.IsComplete)

	afterUpdate := nodeCount(t, db)
	assert.Equal(t, 1, drainDeletions(t, db, q))
	assert.Equal(t, afterUpdate-int64(3*n+2), nodeCount(t, db), "old record and its entities are gone")
}

// smallDB caps one Badger transaction at about 1600 writes.
func smallDB() *ndexdb.Config {
	cfg := ndexdb.DefaultConfig()
	cfg.MemTableSize = 1 << 20
	return cfg
}

func TestCloneNetwork_FailureAfterCommittedBatchIsDiscarded(t *testing.T) {
	e, db, q := setupEngineWith(t, smallDB())
	ctx := context.Background()
	before := nodeCount(t, db)

	src := ringSnapshot(200)
	last := src.Edges[2_000_200]
	last.Properties = []model.Property{{PredicateID: 1, PredicateString: "not-G1", Value: "x"}}

	_, err := e.CloneNetwork(ctx, src, owner)
	require.ErrorIs(t, err, ErrCorruptedProperty)

	// earlier batches are on disk, marked deleted and queued
	require.Len(t, q.Tasks(), 1)
	orphan, err := uuid.Parse(q.Tasks()[0].Resource)
	require.NoError(t, err)
	partial, err := db.GetNetwork(ctx, orphan)
	require.NoError(t, err)
	assert.True(t, partial.IsDeleted)
	assert.False(t, partial.IsComplete)
	assert.False(t, partial.IsLocked)

	intents, err := loadIntents(db)
	require.NoError(t, err)
	assert.Empty(t, intents)

	assert.Equal(t, 1, drainDeletions(t, db, q))
	assert.Equal(t, before, nodeCount(t, db))
}

func TestUpdateNetwork_FailureAfterCommittedBatchUnlocks(t *testing.T) {
	e, db, q := setupEngineWith(t, smallDB())
	ctx := context.Background()

	created, err := e.CloneNetwork(ctx, tp53Snapshot(), owner)
	require.NoError(t, err)
	before := nodeCount(t, db)

	broken := ringSnapshot(200)
	broken.ExternalID = created.ExternalID
	broken.Edges[2_000_200].ObjectID = 404
	_, err = e.UpdateNetwork(ctx, broken)
	require.ErrorIs(t, err, ErrUnresolvedReference)

	live, err := db.GetNetwork(ctx, created.ExternalID)
	require.NoError(t, err)
	assert.False(t, live.IsLocked)
	assert.Equal(t, "TP53 network", live.Name)

	require.Len(t, q.Tasks(), 1)
	assert.NotEqual(t, created.ExternalID.String(), q.Tasks()[0].Resource)
	assert.Equal(t, 1, drainDeletions(t, db, q))
	assert.Equal(t, before, nodeCount(t, db))
}

func TestRecover_AbandonsInterruptedClone(t *testing.T) {
	e, db, q := setupEngine(t)
	ctx := context.Background()

	// The first batch of a clone commits, then the process dies.
	tx, err := db.BeginBulkTransaction()
	require.NoError(t, err)
	c := newCloneContext(ctx, db, tx, tp53Snapshot(), time.Now())
	in := &intent{state: IntentBuilding, created: c.now}
	require.NoError(t, c.createNetwork())
	in.targetNode = c.network
	require.NoError(t, in.create(db, tx))
	require.NoError(t, c.cloneNamespaces())
	require.NoError(t, tx.Commit())

	partial, err := db.GetNetwork(ctx, c.externalID)
	require.NoError(t, err)
	assert.True(t, partial.IsLocked)
	assert.False(t, partial.IsComplete)

	report, err := e.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Abandoned: 1}, report)

	discarded, err := db.GetNetwork(ctx, c.externalID)
	require.NoError(t, err)
	assert.True(t, discarded.IsDeleted)
	require.Len(t, q.Tasks(), 1)
	assert.Equal(t, c.externalID.String(), q.Tasks()[0].Resource)

	intents, err := loadIntents(db)
	require.NoError(t, err)
	assert.Empty(t, intents)
}

// doneOnceComplete reports itself cancelled from the moment a complete
// network named name is committed.
type doneOnceComplete struct {
	context.Context
	db   *ndexdb.DB
	name string
}

func (c doneOnceComplete) Err() error {
	nodes, err := c.db.Storage().FindNodes(ndexdb.LabelNetwork, func(n *storage.Node) bool {
		complete, _ := convert.ToBool(n.Properties[ndexdb.PropIsComplete])
		return complete && n.Properties[ndexdb.PropName] == c.name
	})
	if err == nil && len(nodes) > 0 {
		return context.Canceled
	}
	return nil
}

func TestCloneNetwork_CallerGivesUpAfterCommit(t *testing.T) {
	e, db, _ := setupEngine(t)
	ctx := doneOnceComplete{Context: context.Background(), db: db, name: "rich"}

	summary, err := e.CloneNetwork(ctx, richSnapshot(), owner)
	require.NoError(t, err)
	assert.Equal(t, "rich", summary.Name)
	assert.True(t, summary.IsComplete)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestUpdateNetwork_CallerGivesUpAfterSwap(t *testing.T) {
	e, db, q := setupEngine(t)

	created, err := e.CloneNetwork(context.Background(), tp53Snapshot(), owner)
	require.NoError(t, err)

	ctx := doneOnceComplete{Context: context.Background(), db: db, name: "rich"}
	replacement := richSnapshot()
	replacement.ExternalID = created.ExternalID
	updated, err := e.UpdateNetwork(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, "rich", updated.Name)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// the displaced record is still handed to the queue
	require.Len(t, q.Tasks(), 1)
	intents, err := loadIntents(db)
	require.NoError(t, err)
	assert.Empty(t, intents)
}

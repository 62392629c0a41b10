package ndexdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DeleteBatch = 2
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestNetwork stores a network record owning two base terms, one of
// them carrying a property.
func createTestNetwork(t *testing.T, db *DB, owner string) (storage.NodeID, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)

	var networkID storage.NodeID
	err := db.Storage().Update(func(tx *storage.BadgerTransaction) error {
		props, err := NetworkRecord(&model.NetworkSummary{
			ExternalID:       id,
			Name:             "test network",
			Visibility:       model.VisibilityPublic,
			NodeCount:        0,
			EdgeCount:        0,
			IsComplete:       true,
			URI:              db.NetworkURI(id),
			CreationTime:     now,
			ModificationTime: now,
			Annotations: model.Annotations{
				PresentationProperties: []model.SimpleProperty{{Name: "color", Value: "red"}},
			},
		})
		if err != nil {
			return err
		}
		networkID, err = db.CreateEntity(tx, LabelNetwork, props)
		if err != nil {
			return err
		}

		var terms []storage.NodeID
		for _, name := range []string{"TP53", "MDM2"} {
			term, err := db.CreateEntity(tx, LabelBaseTerm, map[string]any{PropName: name})
			if err != nil {
				return err
			}
			if err := db.Link(tx, networkID, term, RelNetworkBaseTerms, nil); err != nil {
				return err
			}
			terms = append(terms, term)
		}
		if _, err := db.AttachProperty(tx, terms[0], terms[1], model.Property{PredicateString: "MDM2", Value: "x"}); err != nil {
			return err
		}
		if _, err := db.AttachProperty(tx, networkID, terms[0], model.Property{PredicateString: "TP53", Value: "1", DataType: "integer"}); err != nil {
			return err
		}

		if owner != "" {
			account, err := db.Accounts().AccountByName(tx, owner)
			if err != nil {
				return err
			}
			return db.Link(tx, account, networkID, RelAdmin, nil)
		}
		return nil
	})
	require.NoError(t, err)
	return networkID, id
}

func TestNextID_Monotonic(t *testing.T) {
	db := openTestDB(t)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := int64(0)
			for j := 0; j < 100; j++ {
				id, err := db.NextID()
				assert.NoError(t, err)
				assert.Greater(t, id, last)
				last = id

				mu.Lock()
				assert.False(t, seen[id], "id %d allocated twice", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 400)
}

func TestAccounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Accounts().CreateAccount(ctx, "alice")
	require.NoError(t, err)

	_, err = db.Accounts().CreateAccount(ctx, "alice")
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = db.Accounts().CreateAccount(ctx, "  ")
	assert.Error(t, err)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	defer tx.Rollback()

	found, err := db.Accounts().AccountByName(tx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	_, err = db.Accounts().AccountByName(tx, "bob")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetNetwork(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.Accounts().CreateAccount(ctx, "alice")
	require.NoError(t, err)

	_, id := createTestNetwork(t, db, "alice")

	summary, err := db.GetNetwork(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, summary.ExternalID)
	assert.Equal(t, "test network", summary.Name)
	assert.Equal(t, model.VisibilityPublic, summary.Visibility)
	assert.True(t, summary.IsComplete)
	assert.False(t, summary.IsLocked)
	assert.Equal(t, "alice", summary.Owner)
	assert.Equal(t, db.NetworkURI(id), summary.URI)
	assert.False(t, summary.CreationTime.IsZero())
	assert.Equal(t, []model.SimpleProperty{{Name: "color", Value: "red"}}, summary.PresentationProperties)

	require.Len(t, summary.Properties, 1)
	assert.Equal(t, "TP53", summary.Properties[0].PredicateString)
	assert.Equal(t, "1", summary.Properties[0].Value)
	assert.Equal(t, "integer", summary.Properties[0].DataType)
	assert.Greater(t, summary.Properties[0].PredicateID, int64(0))

	_, err = db.GetNetwork(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestTryLockNetwork(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	networkID, id := createTestNetwork(t, db, "")

	locked, err := db.TryLockNetwork(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, networkID, locked)

	_, err = db.TryLockNetwork(ctx, id, nil)
	assert.ErrorIs(t, err, ErrNetworkLocked)

	unlock := func(nodeID storage.NodeID) error {
		return db.Storage().Update(func(tx *storage.BadgerTransaction) error {
			return SetNetworkLocked(tx, nodeID, false)
		})
	}
	require.NoError(t, unlock(networkID))
	_, err = db.TryLockNetwork(ctx, id, nil)
	assert.NoError(t, err)

	_, err = db.TryLockNetwork(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNetworkNotFound)

	// Unlocking a missing record is a no-op.
	assert.NoError(t, unlock("999999"))
}

func TestTryLockNetwork_WritesWithLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	networkID, id := createTestNetwork(t, db, "")

	// a failing follow-up write leaves the record unlocked
	_, err := db.TryLockNetwork(ctx, id, func(tx *storage.BadgerTransaction, network storage.NodeID) error {
		assert.Equal(t, networkID, network)
		if _, err := db.CreateEntity(tx, LabelCloneIntent, map[string]any{"state": "building"}); err != nil {
			return err
		}
		return errors.New("disk full")
	})
	require.EqualError(t, err, "disk full")
	summary, err := db.GetNetwork(ctx, id)
	require.NoError(t, err)
	assert.False(t, summary.IsLocked)
	intents, err := db.Storage().FindNodes(LabelCloneIntent, nil)
	require.NoError(t, err)
	assert.Empty(t, intents)

	// a successful one commits together with the lock
	var marker storage.NodeID
	_, err = db.TryLockNetwork(ctx, id, func(tx *storage.BadgerTransaction, network storage.NodeID) error {
		marker, err = db.CreateEntity(tx, LabelCloneIntent, map[string]any{"state": "building"})
		return err
	})
	require.NoError(t, err)
	summary, err = db.GetNetwork(ctx, id)
	require.NoError(t, err)
	assert.True(t, summary.IsLocked)
	_, err = db.Storage().GetNode(marker)
	assert.NoError(t, err)
}

func TestTryLockNetwork_Concurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, id := createTestNetwork(t, db, "")

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.TryLockNetwork(ctx, id, nil)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrNetworkLocked)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestTryLockNetwork_Deleted(t *testing.T) {
	db := openTestDB(t)
	networkID, id := createTestNetwork(t, db, "")

	err := db.Storage().Update(func(tx *storage.BadgerTransaction) error {
		node, err := tx.GetNode(networkID)
		if err != nil {
			return err
		}
		node.Properties[PropIsDeleted] = true
		return tx.UpdateNode(node)
	})
	require.NoError(t, err)

	_, err = db.TryLockNetwork(context.Background(), id, nil)
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestDeleteNetwork(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.Accounts().CreateAccount(ctx, "alice")
	require.NoError(t, err)

	before, err := db.Storage().NodeCount()
	require.NoError(t, err)

	networkID, id := createTestNetwork(t, db, "alice")

	removed, err := db.DeleteNetwork(ctx, id)
	require.NoError(t, err)
	// network + 2 terms + 2 properties
	assert.Equal(t, 5, removed)

	after, err := db.Storage().NodeCount()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = db.Storage().GetNode(networkID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The account survives its grant.
	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	_, err = db.Accounts().AccountByName(tx, "alice")
	assert.NoError(t, err)
	tx.Rollback()

	removed, err = db.DeleteNetwork(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeleteNetwork_Cancelled(t *testing.T) {
	db := openTestDB(t)
	networkID, id := createTestNetwork(t, db, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.DeleteNetwork(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)

	// The record is removed last, so it is still there.
	_, err = db.Storage().GetNode(networkID)
	assert.NoError(t, err)
}

func TestSummaryFromNode_NotNetwork(t *testing.T) {
	_, err := SummaryFromNode(&storage.Node{ID: "1", Labels: []string{LabelBaseTerm}})
	assert.Error(t, err)
}

func TestReadProperties_Order(t *testing.T) {
	db := openTestDB(t)

	var entity storage.NodeID
	err := db.Storage().Update(func(tx *storage.BadgerTransaction) error {
		var err error
		entity, err = db.CreateEntity(tx, LabelNode, nil)
		if err != nil {
			return err
		}
		predicate, err := db.CreateEntity(tx, LabelBaseTerm, map[string]any{PropName: "p"})
		if err != nil {
			return err
		}
		// Enough properties that identifiers cross a decimal digit boundary.
		for i := 0; i < 12; i++ {
			if _, err := db.AttachProperty(tx, entity, predicate, model.Property{PredicateString: "p", Value: string(rune('a' + i))}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	defer tx.Rollback()

	props, err := ReadProperties(tx, entity)
	require.NoError(t, err)
	require.Len(t, props, 12)
	for i, p := range props {
		assert.Equal(t, string(rune('a'+i)), p.Value)
	}
}

func TestReclaimSpace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InMemory = false
	cfg.DataDir = t.TempDir()
	db, err := Open(cfg)
	require.NoError(t, err)

	_, id := createTestNetwork(t, db, "")
	_, err = db.DeleteNetwork(context.Background(), id)
	require.NoError(t, err)

	// a tiny store has nothing worth rewriting
	rewritten, err := db.ReclaimSpace()
	require.NoError(t, err)
	assert.Zero(t, rewritten)

	require.NoError(t, db.Close())
	_, err = db.ReclaimSpace()
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

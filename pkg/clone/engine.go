// Package clone rebuilds NDEx networks as fresh, independently identified
// copies.
//
// CloneNetwork writes a snapshot as a new network. UpdateNetwork does the
// same for a snapshot that replaces a live network, then swaps the rebuilt
// record into the live record's UUID in a separate transaction and hands the
// displaced graph to the task queue for deletion.
//
// A build commits in batches sized to Badger's transaction limits. Until the
// last batch the new record stays locked and incomplete, and a durable intent
// record names it. A build that fails after a batch has committed is marked
// deleted and queued for deletion; Recover does the same for builds and
// updates interrupted by a crash.
//
// Remap tables, namespace caches and every other piece of per-clone state
// live in a context owned by one call. Identifier allocation is the only
// state shared between concurrent clones.
//
// Example:
//
//	engine := clone.New(db, queue)
//	summary, err := engine.CloneNetwork(ctx, snapshot, "alice")
//	if err != nil {
//		return err
//	}
//	fmt.Println(summary.ExternalID)
package clone

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/metrics"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/storage"
	"github.com/ndexbio/ndexgraph/pkg/tasks"
)

// ErrSourceGone means the live record an update was replacing no longer
// carries its UUID, so the rebuilt network cannot be swapped in.
var ErrSourceGone = errors.New("source network changed or disappeared")

// Engine clones and updates networks.
//
// Thread Safety:
//
//	CloneNetwork and UpdateNetwork are safe for concurrent use. Updates of
//	the same network are serialized by the network's lock flag. Recover must
//	not run while updates are in flight.
type Engine struct {
	db    *ndexdb.DB
	queue tasks.Queue
	now   func() time.Time
}

// New returns an engine writing to db and submitting deletions to queue.
func New(db *ndexdb.DB, queue tasks.Queue) *Engine {
	return &Engine{db: db, queue: queue, now: time.Now}
}

// CloneNetwork writes src as a new network owned by ownerAccount and returns
// its summary.
//
// The record is marked complete and unlocked only by the last batch. On
// error, batches that had already committed are marked deleted and queued
// for deletion.
func (e *Engine) CloneNetwork(ctx context.Context, src *model.Network, ownerAccount string) (summary *model.NetworkSummary, err error) {
	start := time.Now()
	defer func() { observe("clone", start, err) }()

	if err := validate(src); err != nil {
		return nil, err
	}

	tx, err := e.db.BeginBulkTransaction()
	if err != nil {
		return nil, err
	}
	c := newCloneContext(ctx, e.db, tx, src, e.now())
	in := &intent{state: IntentBuilding, created: c.now}
	if err := e.cloneInto(c, in, ownerAccount); err != nil {
		e.abandon(ctx, c, in)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		e.abandon(ctx, c, in)
		return nil, fmt.Errorf("committing clone of %q: %w", src.Name, err)
	}
	c.report("Cloned")

	// committed; report it even if ctx is done by now
	return e.db.GetNetwork(context.WithoutCancel(ctx), c.externalID)
}

// cloneInto writes the network record and an intent naming it first, so any
// early batch carries both. The final batch completes the record and drops
// the intent.
func (e *Engine) cloneInto(c *cloneContext, in *intent, ownerAccount string) error {
	if err := c.tx.SetMetadata(map[string]interface{}{"operation": "clone", "network": c.externalID.String()}); err != nil {
		return fmt.Errorf("transaction metadata: %w", err)
	}
	owner, err := e.db.Accounts().AccountByName(c.tx, ownerAccount)
	if err != nil {
		return err
	}

	if err := c.createNetwork(); err != nil {
		return fmt.Errorf("network record: %w", err)
	}
	in.targetNode = c.network
	if err := in.create(e.db, c.tx); err != nil {
		return err
	}

	if err := c.build(); err != nil {
		return err
	}
	if err := e.db.Link(c.tx, owner, c.network, ndexdb.RelAdmin, nil); err != nil {
		return err
	}

	node, err := c.tx.GetNode(c.network)
	if err != nil {
		return err
	}
	node.Properties[ndexdb.PropIsComplete] = true
	node.Properties[ndexdb.PropIsLocked] = false
	if err := c.tx.UpdateNode(node); err != nil {
		return err
	}
	return in.remove(c.tx)
}

// abandon cleans up after a failed clone. A clone that committed no batch
// left nothing behind; otherwise its partial record is discarded.
func (e *Engine) abandon(ctx context.Context, c *cloneContext, in *intent) {
	c.tx.Rollback()
	if c.tx.Batches() == 0 {
		return
	}
	if err := e.discard(ctx, in); err != nil {
		log.Printf("[Clone] Warning: discarding partial clone %s: %v (left for recovery)", c.externalID, err)
	}
}

// UpdateNetwork replaces the live network src.ExternalID with the content of
// src. The live record is locked for the duration; a second update of the
// same network fails with ndexdb.ErrNetworkLocked.
//
// On success exactly one record carries src.ExternalID: the rebuilt one,
// complete and unlocked, with the original creation time and visibility. The
// displaced record is marked deleted under a transitional UUID and queued
// for deletion.
func (e *Engine) UpdateNetwork(ctx context.Context, src *model.Network) (summary *model.NetworkSummary, err error) {
	start := time.Now()
	defer func() { observe("update", start, err) }()

	if err := validate(src); err != nil {
		return nil, err
	}
	if src.ExternalID == uuid.Nil {
		return nil, &ValidationError{Field: "externalId", Msg: "the network to replace is required"}
	}

	in, err := e.lockForUpdate(ctx, src.ExternalID)
	if err != nil {
		return nil, err
	}

	if err := e.rebuild(ctx, src, in); err != nil {
		if derr := e.discard(ctx, in); derr != nil {
			log.Printf("[Clone] Warning: abandoning update of %s: %v (left for recovery)", src.ExternalID, derr)
		}
		return nil, err
	}

	if err := e.swap(in); err != nil {
		// The rebuild is committed but will never be swapped in.
		if derr := e.discard(ctx, in); derr != nil {
			log.Printf("[Clone] Warning: discarding rebuild of %s: %v (left for recovery)", src.ExternalID, derr)
		}
		return nil, err
	}
	e.finish(ctx, in)

	return e.db.GetNetwork(context.WithoutCancel(ctx), src.ExternalID)
}

// lockForUpdate locks the live record holding source and stores a building
// intent for it in the same transaction. Recover can therefore release every
// lock an update leaves behind.
func (e *Engine) lockForUpdate(ctx context.Context, source uuid.UUID) (*intent, error) {
	in := &intent{state: IntentBuilding, source: source, created: e.now()}
	_, err := e.db.TryLockNetwork(ctx, source, func(tx *storage.BadgerTransaction, live storage.NodeID) error {
		in.sourceNode = live
		return in.create(e.db, tx)
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// rebuild writes src as a new locked, incomplete record with the live
// record's permissions and marks the intent built. The first batch stores
// the new record's ID in the intent.
func (e *Engine) rebuild(ctx context.Context, src *model.Network, in *intent) error {
	tx, err := e.db.BeginBulkTransaction()
	if err != nil {
		return err
	}
	c := newCloneContext(ctx, e.db, tx, src, e.now())

	err = func() error {
		if err := tx.SetMetadata(map[string]interface{}{"operation": "update", "network": src.ExternalID.String()}); err != nil {
			return fmt.Errorf("transaction metadata: %w", err)
		}
		if err := c.createNetwork(); err != nil {
			return fmt.Errorf("network record: %w", err)
		}
		in.targetNode = c.network
		if err := in.save(tx); err != nil {
			return err
		}
		if err := c.build(); err != nil {
			return err
		}
		if _, err := copyPermissions(e.db, tx, in.sourceNode, c.network); err != nil {
			return fmt.Errorf("copying permissions: %w", err)
		}
		in.state = IntentBuilt
		return in.save(tx)
	}()
	if err != nil {
		tx.Rollback()
		in.state = IntentBuilding
		return err
	}
	if err := tx.Commit(); err != nil {
		in.state = IntentBuilding
		return fmt.Errorf("committing rebuild of %s: %w", src.ExternalID, err)
	}
	c.report("Rebuilt")
	return nil
}

// swap moves the source UUID from the live record to the rebuilt one in one
// transaction. The live record keeps a fresh transitional UUID and is marked
// deleted.
func (e *Engine) swap(in *intent) error {
	transitional := uuid.New()
	now := e.now()

	err := e.db.Storage().Update(func(tx *storage.BadgerTransaction) error {
		old, err := tx.GetNode(in.sourceNode)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSourceGone, in.source)
		}
		if err != nil {
			return err
		}
		current, _ := convert.ToString(old.Properties[ndexdb.PropUUID])
		deleted, _ := convert.ToBool(old.Properties[ndexdb.PropIsDeleted])
		if current != in.source.String() || deleted {
			return fmt.Errorf("%w: %s", ErrSourceGone, in.source)
		}

		rebuilt, err := tx.GetNode(in.targetNode)
		if err != nil {
			return fmt.Errorf("rebuilt record %s: %w", in.targetNode, err)
		}

		old.Properties[ndexdb.PropUUID] = transitional.String()
		old.Properties[ndexdb.PropIsDeleted] = true
		old.Properties[ndexdb.PropIsLocked] = false
		if err := tx.UpdateNode(old); err != nil {
			return err
		}

		rebuilt.Properties[ndexdb.PropUUID] = in.source.String()
		rebuilt.Properties[ndexdb.PropURI] = e.db.NetworkURI(in.source)
		rebuilt.Properties[ndexdb.PropCreatedTime] = old.Properties[ndexdb.PropCreatedTime]
		rebuilt.Properties[ndexdb.PropVisibility] = old.Properties[ndexdb.PropVisibility]
		rebuilt.Properties[ndexdb.PropModifiedTime] = now.UTC().Format(time.RFC3339Nano)
		rebuilt.Properties[ndexdb.PropIsLocked] = false
		rebuilt.Properties[ndexdb.PropIsComplete] = true
		if err := tx.UpdateNode(rebuilt); err != nil {
			return err
		}

		in.state = IntentSwapped
		in.transitional = transitional
		return in.save(tx)
	})
	if err != nil {
		in.state, in.transitional = IntentBuilt, uuid.Nil
		return fmt.Errorf("swapping %s: %w", in.source, err)
	}
	log.Printf("[Clone] Swapped %s into record %s (old record now %s)", in.source, in.targetNode, transitional)
	return nil
}

// finish queues deletion of the displaced record and drops the intent. If the
// queue refuses the task the intent stays so Recover can submit it again.
func (e *Engine) finish(ctx context.Context, in *intent) {
	ctx = context.WithoutCancel(ctx)
	if err := e.queue.Submit(ctx, tasks.DeleteNetworkTask(in.transitional)); err != nil {
		log.Printf("[Clone] Warning: queueing deletion of %s: %v (left for recovery)", in.transitional, err)
		return
	}
	if err := deleteIntent(e.db, in.id); err != nil {
		log.Printf("[Clone] Warning: %v", err)
	}
}

// discard abandons a build: the record it wrote, if any batch of it
// committed, is marked deleted and queued for deletion, the live record of an
// update is unlocked and the intent dropped. It runs to the end even when ctx
// is already cancelled.
func (e *Engine) discard(ctx context.Context, in *intent) error {
	ctx = context.WithoutCancel(ctx)
	var orphan uuid.UUID
	err := e.db.Storage().Update(func(tx *storage.BadgerTransaction) error {
		if in.sourceNode != "" {
			if err := ndexdb.SetNetworkLocked(tx, in.sourceNode, false); err != nil {
				return err
			}
		}
		if in.targetNode == "" {
			return nil
		}
		node, err := tx.GetNode(in.targetNode)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		s, _ := convert.ToString(node.Properties[ndexdb.PropUUID])
		if orphan, err = uuid.Parse(s); err != nil {
			return fmt.Errorf("partial record %s: bad UUID %q: %w", in.targetNode, s, err)
		}
		node.Properties[ndexdb.PropIsDeleted] = true
		node.Properties[ndexdb.PropIsLocked] = false
		return tx.UpdateNode(node)
	})
	if err != nil {
		return err
	}

	if orphan != uuid.Nil {
		if err := e.queue.Submit(ctx, tasks.DeleteNetworkTask(orphan)); err != nil {
			return fmt.Errorf("queueing deletion of %s: %w", orphan, err)
		}
		log.Printf("[Clone] Discarded partial network %s", orphan)
	}
	return deleteIntent(e.db, in.id)
}

// observe records the outcome of one clone or update call.
func observe(operation string, start time.Time, err error) {
	metrics.CloneDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation):
		result = "validation"
	case errors.Is(err, ErrUnresolvedReference):
		result = "reference"
	case errors.Is(err, ndexdb.ErrNetworkLocked):
		result = "locked"
	default:
		result = "error"
	}
	metrics.CloneOperations.WithLabelValues(operation, result).Inc()
	if err != nil {
		log.Printf("[Clone] %s failed: %v", operation, err)
	}
}

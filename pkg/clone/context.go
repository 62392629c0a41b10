package clone

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ndexbio/ndexgraph/pkg/metrics"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// namespaceKey identifies a namespace within one clone.
type namespaceKey struct {
	prefix string
	uri    string
}

// cloneContext is the state of one clone pass. It lives for one call and is
// never shared, so concurrent clones of different networks are independent.
type cloneContext struct {
	ctx context.Context
	db  *ndexdb.DB
	tx  *storage.BadgerTransaction
	src *model.Network

	remap      *remapTables
	namespaces map[namespaceKey]storage.NodeID
	// predicates created for properties that carry no predicate ID, by name
	predicates map[string]storage.NodeID

	// networkProps are the source network properties minus sourceFormat
	networkProps []model.Property
	sourceFormat string

	network    storage.NodeID
	externalID uuid.UUID
	now        time.Time

	created map[Kind]int
}

func newCloneContext(ctx context.Context, db *ndexdb.DB, tx *storage.BadgerTransaction, src *model.Network, now time.Time) *cloneContext {
	c := &cloneContext{
		ctx:        ctx,
		db:         db,
		tx:         tx,
		src:        src,
		remap:      newRemapTables(),
		namespaces: make(map[namespaceKey]storage.NodeID),
		predicates: make(map[string]storage.NodeID),
		externalID: uuid.New(),
		now:        now,
		created:    make(map[Kind]int),
	}
	for _, p := range src.Properties {
		if p.PredicateString == ndexdb.PropSourceFormat {
			c.sourceFormat = p.Value
			continue
		}
		c.networkProps = append(c.networkProps, p)
	}
	return c
}

// checkpoint aborts the pass if the caller gave up.
func (c *cloneContext) checkpoint(phase string) error {
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("clone aborted before %s: %w", phase, err)
	}
	return nil
}

// step ends one entity's writes: the bulk transaction may commit its batch
// here.
func (c *cloneContext) step() error {
	if _, err := c.tx.Checkpoint(); err != nil {
		return err
	}
	return nil
}

// createOwned creates an entity of kind owned by the network under construction
// and records oldID -> new ID in the kind's remap table.
func (c *cloneContext) createOwned(kind Kind, oldID int64, label, ownership string, props map[string]any) (storage.NodeID, error) {
	id, err := c.db.CreateEntity(c.tx, label, props)
	if err != nil {
		return "", err
	}
	if err := c.db.Link(c.tx, c.network, id, ownership, nil); err != nil {
		return "", err
	}
	if err := c.remap.table(kind).put(oldID, id); err != nil {
		return "", err
	}
	c.created[kind]++
	return id, c.step()
}

// linkAll links from to each resolved ID of oldIDs.
func (c *cloneContext) linkAll(from storage.NodeID, oldIDs []int64, t *remapTable, relType, desc string) error {
	for _, old := range oldIDs {
		to, err := t.resolve(old, desc)
		if err != nil {
			return err
		}
		if err := c.db.Link(c.tx, from, to, relType, nil); err != nil {
			return err
		}
	}
	return nil
}

// report logs what the pass created and feeds the entity counters.
func (c *cloneContext) report(operation string) {
	total := 0
	for kind, n := range c.created {
		metrics.EntitiesCloned.WithLabelValues(string(kind)).Add(float64(n))
		total += n
	}
	log.Printf("[Clone] %s %s: %d entities (%d nodes, %d edges) in %d batch(es)",
		operation, c.externalID, total, c.created[KindNode], c.created[KindEdge], c.tx.Batches()+1)
}

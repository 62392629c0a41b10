// Package storage - BadgerDB transaction wrapper with ACID guarantees.
//
// This file implements atomic transactions for BadgerDB. Every write keeps the
// label, relationship and unique property indexes in step with the primary
// records inside the same Badger transaction.
package storage

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerTransaction wraps Badger's native transaction with index maintenance.
//
// Provides ACID guarantees:
//   - Atomicity: All operations commit together or none do
//   - Consistency: Unique indexes are checked on every write
//   - Isolation: Changes invisible until commit
//   - Durability: Badger's value log ensures persistence
//
// Reads issued through the transaction see its own pending writes.
//
// Concurrent transactions touching the same keys are resolved by Badger's
// optimistic conflict detection: the later Commit fails with
// ErrTransactionConflict.
type BadgerTransaction struct {
	mu sync.Mutex

	// Transaction identity
	ID        string
	StartTime time.Time
	Status    TransactionStatus

	// Badger's native transaction
	badgerTx *badger.Txn

	// Parent engine for schema lookups
	engine *BadgerEngine

	operations []Operation

	// Transaction metadata (for logging/debugging)
	Metadata map[string]interface{}

	// Bulk mode: Checkpoint may commit the pending writes and continue in a
	// fresh Badger transaction.
	bulk         bool
	batches      int
	pendingCount int64
	pendingSize  int64
}

// BeginTransaction starts a new Badger transaction with ACID guarantees.
func (b *BadgerEngine) BeginTransaction() (*BadgerTransaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}

	return &BadgerTransaction{
		ID:         generateTxID(),
		StartTime:  time.Now(),
		Status:     TxStatusActive,
		badgerTx:   b.db.NewTransaction(true), // Read-write transaction
		engine:     b,
		operations: make([]Operation, 0),
		Metadata:   make(map[string]interface{}),
	}, nil
}

// BeginBulkTransaction starts a transaction for writes that may outgrow one
// Badger transaction.
//
// Writes accumulate like in any transaction until Checkpoint finds the batch
// past half of Badger's limits; Checkpoint then commits it and carries on in
// a fresh Badger transaction. Atomicity therefore holds per batch only:
// Rollback discards the pending batch, never the committed ones. Callers
// must make the first batch leave a marker they can clean up from.
func (b *BadgerEngine) BeginBulkTransaction() (*BadgerTransaction, error) {
	tx, err := b.BeginTransaction()
	if err != nil {
		return nil, err
	}
	tx.bulk = true
	return tx, nil
}

// IsActive returns true if the transaction is still active.
func (tx *BadgerTransaction) IsActive() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.Status == TxStatusActive
}

// entryOverhead approximates Badger's per-entry bookkeeping in a batch.
const entryOverhead = 12

// set writes key=value, translating Badger's size limit error.
func (tx *BadgerTransaction) set(key, value []byte) error {
	if err := tx.badgerTx.Set(key, value); err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return fmt.Errorf("%w: %v", ErrTransactionTooBig, err)
		}
		return err
	}
	tx.pendingCount++
	tx.pendingSize += int64(len(key) + len(value) + entryOverhead)
	return nil
}

func (tx *BadgerTransaction) delete(key []byte) error {
	if err := tx.badgerTx.Delete(key); err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return fmt.Errorf("%w: %v", ErrTransactionTooBig, err)
		}
		return err
	}
	tx.pendingCount++
	tx.pendingSize += int64(len(key) + entryOverhead)
	return nil
}

func (tx *BadgerTransaction) record(op Operation) {
	op.Timestamp = time.Now()
	tx.operations = append(tx.operations, op)
}

// ============================================================================
// Node writes
// ============================================================================

// CreateNode adds a node to the transaction.
//
// Fails with ErrAlreadyExists if the ID is taken and with a
// ConstraintViolationError if a uniquely indexed property value is held by
// another node.
func (tx *BadgerTransaction) CreateNode(node *Node) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	_, err := tx.badgerTx.Get(nodeKey(node.ID))
	if err == nil {
		return ErrAlreadyExists
	}
	if err != badger.ErrKeyNotFound {
		return fmt.Errorf("checking node existence: %w", err)
	}

	if err := tx.checkUnique(node); err != nil {
		return err
	}

	now := time.Now()
	stored := copyNode(node)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := tx.writeNode(stored); err != nil {
		return err
	}
	for _, label := range stored.Labels {
		if err := tx.set(labelIndexKey(label, stored.ID), []byte{}); err != nil {
			return fmt.Errorf("writing label index: %w", err)
		}
	}
	if err := tx.writeUniqueEntries(stored); err != nil {
		return err
	}

	tx.record(Operation{Type: OpCreateNode, NodeID: stored.ID, Node: stored})
	return nil
}

// UpdateNode replaces the labels and properties of an existing node.
func (tx *BadgerTransaction) UpdateNode(node *Node) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	if node == nil {
		return ErrInvalidData
	}

	old, err := getNodeTxn(tx.badgerTx, node.ID)
	if err != nil {
		return err
	}

	if err := tx.checkUnique(node); err != nil {
		return err
	}

	stored := copyNode(node)
	stored.CreatedAt = old.CreatedAt
	stored.UpdatedAt = time.Now()

	for _, label := range old.Labels {
		if !hasLabel(stored.Labels, label) {
			if err := tx.delete(labelIndexKey(label, old.ID)); err != nil {
				return fmt.Errorf("removing label index: %w", err)
			}
		}
	}
	for _, label := range stored.Labels {
		if !hasLabel(old.Labels, label) {
			if err := tx.set(labelIndexKey(label, stored.ID), []byte{}); err != nil {
				return fmt.Errorf("writing label index: %w", err)
			}
		}
	}

	if err := tx.deleteUniqueEntries(old); err != nil {
		return err
	}
	if err := tx.writeUniqueEntries(stored); err != nil {
		return err
	}
	if err := tx.writeNode(stored); err != nil {
		return err
	}

	tx.record(Operation{Type: OpUpdateNode, NodeID: stored.ID, Node: stored, OldNode: old})
	return nil
}

// DeleteNode removes a node and every relationship attached to it.
func (tx *BadgerTransaction) DeleteNode(id NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	old, err := getNodeTxn(tx.badgerTx, id)
	if err != nil {
		return err
	}

	// Collect attached edges first; only one iterator may be open at a time.
	var attached []EdgeID
	for _, suffix := range scanKeySuffixes(tx.badgerTx, outgoingIndexPrefix(id)) {
		attached = append(attached, EdgeID(suffix))
	}
	for _, suffix := range scanKeySuffixes(tx.badgerTx, incomingIndexPrefix(id)) {
		attached = append(attached, EdgeID(suffix))
	}
	seen := make(map[EdgeID]struct{}, len(attached))
	for _, edgeID := range attached {
		if _, dup := seen[edgeID]; dup {
			continue // self-loop appears in both indexes
		}
		seen[edgeID] = struct{}{}
		if err := tx.deleteEdgeLocked(edgeID); err != nil && err != ErrNotFound {
			return err
		}
	}

	for _, label := range old.Labels {
		if err := tx.delete(labelIndexKey(label, id)); err != nil {
			return fmt.Errorf("removing label index: %w", err)
		}
	}
	if err := tx.deleteUniqueEntries(old); err != nil {
		return err
	}
	if err := tx.delete(nodeKey(id)); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}

	tx.record(Operation{Type: OpDeleteNode, NodeID: id, OldNode: old})
	return nil
}

func (tx *BadgerTransaction) writeNode(node *Node) error {
	data, err := encodeNode(node)
	if err != nil {
		return fmt.Errorf("serializing node: %w", err)
	}
	if err := tx.set(nodeKey(node.ID), data); err != nil {
		return fmt.Errorf("writing node to transaction: %w", err)
	}
	return nil
}

// checkUnique verifies that no other node holds any of node's uniquely
// indexed property values.
func (tx *BadgerTransaction) checkUnique(node *Node) error {
	schema := tx.engine.schema
	for _, label := range node.Labels {
		for _, prop := range schema.UniqueProperties(label) {
			value, ok := node.Properties[prop]
			if !ok || value == nil {
				continue // NULL doesn't violate uniqueness
			}
			owner, found, err := tx.uniqueOwner(label, prop, value)
			if err != nil {
				return err
			}
			if found && owner != node.ID {
				return &ConstraintViolationError{
					Type:     ConstraintUnique,
					Label:    label,
					Property: prop,
					Value:    value,
					Existing: owner,
				}
			}
		}
	}
	return nil
}

func (tx *BadgerTransaction) uniqueOwner(label, prop string, value any) (NodeID, bool, error) {
	item, err := tx.badgerTx.Get(uniqueIndexKey(label, prop, value))
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading unique index: %w", err)
	}
	owner, err := readValue(item)
	if err != nil {
		return "", false, fmt.Errorf("reading unique index value: %w", err)
	}
	return NodeID(owner), true, nil
}

func (tx *BadgerTransaction) writeUniqueEntries(node *Node) error {
	schema := tx.engine.schema
	for _, label := range node.Labels {
		for _, prop := range schema.UniqueProperties(label) {
			value, ok := node.Properties[prop]
			if !ok || value == nil {
				continue
			}
			if err := tx.set(uniqueIndexKey(label, prop, value), []byte(node.ID)); err != nil {
				return fmt.Errorf("writing unique index: %w", err)
			}
		}
	}
	return nil
}

func (tx *BadgerTransaction) deleteUniqueEntries(node *Node) error {
	schema := tx.engine.schema
	for _, label := range node.Labels {
		for _, prop := range schema.UniqueProperties(label) {
			value, ok := node.Properties[prop]
			if !ok || value == nil {
				continue
			}
			owner, found, err := tx.uniqueOwner(label, prop, value)
			if err != nil {
				return err
			}
			if !found || owner != node.ID {
				continue
			}
			if err := tx.delete(uniqueIndexKey(label, prop, value)); err != nil {
				return fmt.Errorf("removing unique index: %w", err)
			}
		}
	}
	return nil
}

// ============================================================================
// Edge writes
// ============================================================================

// CreateEdge adds a relationship between two nodes that exist in the
// transaction's view.
func (tx *BadgerTransaction) CreateEdge(edge *Edge) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	_, err := tx.badgerTx.Get(edgeKey(edge.ID))
	if err == nil {
		return ErrAlreadyExists
	}
	if err != badger.ErrKeyNotFound {
		return fmt.Errorf("checking edge existence: %w", err)
	}

	if !tx.nodeExists(edge.StartNode) || !tx.nodeExists(edge.EndNode) {
		return fmt.Errorf("%w: %s -[%s]-> %s", ErrInvalidEdge, edge.StartNode, edge.Type, edge.EndNode)
	}

	stored := copyEdge(edge)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := encodeEdge(stored)
	if err != nil {
		return fmt.Errorf("serializing edge: %w", err)
	}
	if err := tx.set(edgeKey(stored.ID), data); err != nil {
		return fmt.Errorf("writing edge to transaction: %w", err)
	}
	if err := tx.set(outgoingIndexKey(stored.StartNode, stored.ID), []byte{}); err != nil {
		return fmt.Errorf("writing outgoing index: %w", err)
	}
	if err := tx.set(incomingIndexKey(stored.EndNode, stored.ID), []byte{}); err != nil {
		return fmt.Errorf("writing incoming index: %w", err)
	}

	tx.record(Operation{Type: OpCreateEdge, EdgeID: stored.ID, Edge: stored})
	return nil
}

// DeleteEdge removes a relationship and its index entries.
func (tx *BadgerTransaction) DeleteEdge(id EdgeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	return tx.deleteEdgeLocked(id)
}

func (tx *BadgerTransaction) deleteEdgeLocked(id EdgeID) error {
	old, err := getEdgeTxn(tx.badgerTx, id)
	if err != nil {
		return err
	}

	if err := tx.delete(outgoingIndexKey(old.StartNode, id)); err != nil {
		return fmt.Errorf("removing outgoing index: %w", err)
	}
	if err := tx.delete(incomingIndexKey(old.EndNode, id)); err != nil {
		return fmt.Errorf("removing incoming index: %w", err)
	}
	if err := tx.delete(edgeKey(id)); err != nil {
		return fmt.Errorf("deleting edge: %w", err)
	}

	tx.record(Operation{Type: OpDeleteEdge, EdgeID: id, OldEdge: old})
	return nil
}

// nodeExists checks if a node exists in the transaction's view.
func (tx *BadgerTransaction) nodeExists(nodeID NodeID) bool {
	_, err := tx.badgerTx.Get(nodeKey(nodeID))
	return err == nil
}

// ============================================================================
// Reads (see pending writes)
// ============================================================================

// GetNode retrieves a node as seen by this transaction.
func (tx *BadgerTransaction) GetNode(id NodeID) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	return getNodeTxn(tx.badgerTx, id)
}

// GetEdge retrieves a relationship as seen by this transaction.
func (tx *BadgerTransaction) GetEdge(id EdgeID) (*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	return getEdgeTxn(tx.badgerTx, id)
}

// GetOutgoingEdges returns relationships starting at nodeID.
func (tx *BadgerTransaction) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	return edgesByIndexTxn(tx.badgerTx, outgoingIndexPrefix(nodeID))
}

// GetIncomingEdges returns relationships ending at nodeID.
func (tx *BadgerTransaction) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	return edgesByIndexTxn(tx.badgerTx, incomingIndexPrefix(nodeID))
}

// NodesByLabel scans the label index and returns the nodes accepted by filter.
func (tx *BadgerTransaction) NodesByLabel(label string, filter NodeFilter) ([]*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	return nodesByLabelTxn(tx.badgerTx, label, filter)
}

// FindNodeByIndex looks up the holder of value in a unique index.
func (tx *BadgerTransaction) FindNodeByIndex(label, property string, value any) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	return findByIndexTxn(tx.badgerTx, label, property, value)
}

// ============================================================================
// Commit / Rollback
// ============================================================================

// Commit applies all changes atomically.
//
// A write-write conflict with a transaction that committed first returns
// ErrTransactionConflict; nothing from this transaction is applied.
func (tx *BadgerTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	// Log metadata
	if len(tx.Metadata) > 0 {
		log.Printf("[Transaction %s] Committing %d ops with metadata: %v", tx.ID, len(tx.operations), tx.Metadata)
	}

	if err := tx.commitBatch(); err != nil {
		tx.Status = TxStatusRolledBack
		return err
	}
	tx.Status = TxStatusCommitted
	return nil
}

// commitBatch commits the Badger transaction and fsyncs. The Badger
// transaction is unusable afterwards whatever the outcome.
func (tx *BadgerTransaction) commitBatch() error {
	// Commit Badger transaction (atomic!)
	if err := tx.badgerTx.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
		}
		return fmt.Errorf("badger commit failed: %w", err)
	}

	// ACID GUARANTEE: Force fsync for explicit transactions
	// Note: In-memory mode (testing) skips fsync as there's no disk
	if !tx.engine.IsInMemory() {
		if err := tx.engine.Sync(); err != nil {
			// Transaction is committed in Badger but fsync failed
			log.Printf("[Transaction %s] Warning: fsync failed after commit: %v", tx.ID, err)
		}
	}
	return nil
}

// Checkpoint commits the pending writes of a bulk transaction once they
// reach half of Badger's batch count or size limit, and continues in a fresh
// Badger transaction. It reports whether a batch was committed.
//
// On a transaction not started with BeginBulkTransaction it does nothing. A
// failed batch commit closes the transaction.
func (tx *BadgerTransaction) Checkpoint() (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return false, ErrTransactionClosed
	}
	if !tx.bulk {
		return false, nil
	}
	db := tx.engine.db
	if tx.pendingCount*2 < db.MaxBatchCount() && tx.pendingSize*2 < db.MaxBatchSize() {
		return false, nil
	}

	if err := tx.commitBatch(); err != nil {
		tx.Status = TxStatusRolledBack
		return false, fmt.Errorf("committing batch %d: %w", tx.batches+1, err)
	}
	tx.batches++
	tx.pendingCount, tx.pendingSize = 0, 0
	tx.badgerTx = db.NewTransaction(true)
	return true, nil
}

// Batches returns how many batches a bulk transaction has committed so far.
// Writes of committed batches stay in place even if the transaction is
// rolled back afterwards.
func (tx *BadgerTransaction) Batches() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.batches
}

// Rollback discards all changes.
func (tx *BadgerTransaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	tx.badgerTx.Discard()
	tx.Status = TxStatusRolledBack
	return nil
}

// SetMetadata attaches key/value pairs that are logged on commit.
//
// The combined size of keys and formatted values is limited to 2048 chars.
func (tx *BadgerTransaction) SetMetadata(metadata map[string]interface{}) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	// Validate size
	totalSize := 0
	for k, v := range metadata {
		totalSize += len(k)
		if v != nil {
			totalSize += len(fmt.Sprint(v))
		}
	}

	if totalSize > 2048 {
		return fmt.Errorf("transaction metadata too large: %d chars (max 2048)", totalSize)
	}

	// Merge
	if tx.Metadata == nil {
		tx.Metadata = make(map[string]interface{})
	}
	for k, v := range metadata {
		tx.Metadata[k] = v
	}

	return nil
}

// GetMetadata returns transaction metadata copy.
func (tx *BadgerTransaction) GetMetadata() map[string]interface{} {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	result := make(map[string]interface{})
	for k, v := range tx.Metadata {
		result[k] = v
	}
	return result
}

// OperationCount returns the number of operations applied so far.
func (tx *BadgerTransaction) OperationCount() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.operations)
}

// Package storage - Transaction vocabulary shared by the Badger engine.
//
// # Transaction Semantics
//
// Transactions provide:
//   - Atomicity: All operations commit together or none do
//   - Isolation: Changes are invisible until commit
//   - Durability: Committed changes are persisted (Badger's value log)
//
// Inside a transaction every read sees the transaction's own pending writes
// (read-your-writes), including label and relationship scans.
//
// # ELI12 (Explain Like I'm 12)
//
// Imagine you're moving furniture in your room:
//
//	BEGIN = "I'm going to rearrange my room"
//	OPERATIONS = Moving furniture around (but not committing yet)
//	COMMIT = "Yes! I like this arrangement, keep it!"
//	ROLLBACK = "Nope, put everything back where it was"
//
// Nobody walking past the door sees the half-moved room.
package storage

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Transaction errors
var (
	ErrNoTransaction       = errors.New("no active transaction")
	ErrTransactionClosed   = errors.New("transaction already closed")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrTransactionTooBig   = errors.New("transaction too big")
)

// TransactionStatus represents the current state of a transaction.
type TransactionStatus string

const (
	TxStatusActive     TransactionStatus = "active"
	TxStatusCommitted  TransactionStatus = "committed"
	TxStatusRolledBack TransactionStatus = "rolled_back"
)

// OperationType represents the type of operation in a transaction.
type OperationType string

const (
	OpCreateNode OperationType = "create_node"
	OpUpdateNode OperationType = "update_node"
	OpDeleteNode OperationType = "delete_node"
	OpCreateEdge OperationType = "create_edge"
	OpDeleteEdge OperationType = "delete_edge"
)

// Operation represents a single operation within a transaction.
type Operation struct {
	Type      OperationType
	Timestamp time.Time

	// For node operations
	NodeID  NodeID
	Node    *Node // New state (for create/update) or nil
	OldNode *Node // Old state (for update/delete)

	// For edge operations
	EdgeID  EdgeID
	Edge    *Edge
	OldEdge *Edge
}

var txCounter atomic.Uint64

// generateTxID generates a unique transaction ID.
func generateTxID() string {
	return fmt.Sprintf("tx-%s-%d", time.Now().Format("20060102150405.000000"), txCounter.Add(1))
}

// copyNode returns a deep-enough copy of node: labels and the property map are
// duplicated, property values are shared.
func copyNode(node *Node) *Node {
	if node == nil {
		return nil
	}

	nodeCopy := &Node{
		ID:        node.ID,
		Labels:    make([]string, 0, len(node.Labels)),
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
	nodeCopy.Labels = append(nodeCopy.Labels, node.Labels...)

	if node.Properties != nil {
		nodeCopy.Properties = make(map[string]any, len(node.Properties))
		for k, v := range node.Properties {
			nodeCopy.Properties[k] = v
		}
	}

	return nodeCopy
}

// copyEdge returns a copy of edge with its own property map.
func copyEdge(edge *Edge) *Edge {
	if edge == nil {
		return nil
	}

	c := &Edge{
		ID:        edge.ID,
		StartNode: edge.StartNode,
		EndNode:   edge.EndNode,
		Type:      edge.Type,
		CreatedAt: edge.CreatedAt,
	}

	if edge.Properties != nil {
		c.Properties = make(map[string]any, len(edge.Properties))
		for k, v := range edge.Properties {
			c.Properties[k] = v
		}
	}

	return c
}

func hasLabel(labels []string, target string) bool {
	target = normalizeLabel(target)
	for _, label := range labels {
		if normalizeLabel(label) == target {
			return true
		}
	}
	return false
}

// Package storage provides the labeled property graph store behind ndexgraph.
//
// Every NDEx entity (network, term, citation, node, edge, property) is kept as a
// storage Node identified by its allocated integer ID, and every reference between
// entities is a typed, directed storage Edge. BadgerEngine is the only engine: it
// persists to disk (or RAM for tests) and exposes ACID transactions through
// BadgerTransaction.
//
// Design Principles:
//   - Property graph model (labels on nodes, a type on every relationship)
//   - All multi-entity writes go through one BadgerTransaction
//   - Thread-safe engine, single-goroutine transactions
//
// Example Usage:
//
//	engine, err := storage.NewBadgerEngineInMemory()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	tx, _ := engine.BeginTransaction()
//	tx.CreateNode(&storage.Node{
//		ID:         "17",
//		Labels:     []string{"baseTerm"},
//		Properties: map[string]any{"name": "TP53"},
//	})
//	tx.CreateNode(&storage.Node{
//		ID:         "18",
//		Labels:     []string{"namespace"},
//		Properties: map[string]any{"prefix": "hgnc"},
//	})
//	tx.CreateEdge(&storage.Edge{ID: "19", StartNode: "17", EndNode: "18", Type: "baseTermNS"})
//	if err := tx.Commit(); err != nil {
//		log.Fatal(err)
//	}
package storage

import (
	"errors"
	"strconv"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidEdge   = errors.New("invalid edge: start or end node not found")
	ErrStorageClosed = errors.New("storage closed")
)

// NodeID is a strongly-typed unique identifier for graph nodes.
//
// ndexgraph always uses the decimal form of an allocated int64, see IDFromInt64.
type NodeID string

// EdgeID is a strongly-typed unique identifier for graph relationships.
type EdgeID string

// IDFromInt64 formats an allocated identifier as a NodeID.
func IDFromInt64(id int64) NodeID {
	return NodeID(strconv.FormatInt(id, 10))
}

// EdgeIDFromInt64 formats an allocated identifier as an EdgeID.
func EdgeIDFromInt64(id int64) EdgeID {
	return EdgeID(strconv.FormatInt(id, 10))
}

// Int64 parses the NodeID back into the identifier it was created from.
func (id NodeID) Int64() (int64, error) {
	return strconv.ParseInt(string(id), 10, 64)
}

// Node represents a graph node (vertex) in the labeled property graph.
//
// Core Fields:
//   - ID: Unique identifier (must be unique across all nodes)
//   - Labels: Kind tags such as ["network"] or ["baseTerm"]
//   - Properties: Key-value data (any JSON-serializable types)
//
// Numbers read back from the store arrive as json.Number; use pkg/convert to
// read them.
//
// Thread Safety:
//
//	Node structs are NOT thread-safe. The storage engine handles concurrency.
type Node struct {
	ID         NodeID         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// HasLabel reports whether the node carries label.
func (n *Node) HasLabel(label string) bool {
	return hasLabel(n.Labels, label)
}

// Edge represents a directed graph relationship between two nodes.
//
// Relationship types in ndexgraph are the NDEx link names ("represents",
// "edgeSubject", "admin", ...). Properties are rare; function parameters store
// their argument position there.
type Edge struct {
	ID         EdgeID         `json:"id"`
	StartNode  NodeID         `json:"startNode"`
	EndNode    NodeID         `json:"endNode"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`

	CreatedAt time.Time `json:"-"`
}

// NodeFilter selects nodes during label scans. A nil filter accepts every node.
type NodeFilter func(node *Node) bool

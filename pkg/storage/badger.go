// Package storage provides storage engine implementations for ndexgraph.
//
// BadgerEngine provides persistent disk-based storage using BadgerDB.
// Multi-entity writes go through BadgerTransaction, which keeps every index
// in step with the primary records.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // nodes:nodeID -> Node
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixLabelIndex    = byte(0x03) // label:labelName:nodeID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
	prefixUniqueIndex   = byte(0x06) // unique:label:property:value -> nodeID
	prefixSequence      = byte(0x07) // sequence:name -> badger.Sequence lease
)

// normalizeLabel converts a label to lowercase for case-insensitive matching.
func normalizeLabel(label string) string {
	return strings.ToLower(label)
}

// BadgerEngine provides persistent storage using BadgerDB.
//
// Features:
//   - ACID transactions for all operations
//   - Persistent storage to disk
//   - Secondary indexes for labels, relationships and unique properties
//   - Thread-safe concurrent access
//   - Automatic crash recovery
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> JSON(Node)
//   - Edges: 0x02 + edgeID -> JSON(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Unique Index: 0x06 + label + 0x00 + property + 0x00 + value -> nodeID
//   - Sequences: 0x07 + name -> lease
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("/path/to/data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	node := &storage.Node{
//		ID:     "42",
//		Labels: []string{"account"},
//		Properties: map[string]any{"accountName": "alice"},
//	}
//	engine.CreateNode(node)
type BadgerEngine struct {
	db       *badger.DB
	schema   *SchemaManager
	mu       sync.RWMutex // Protects closed
	closed   bool
	inMemory bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging.
	// If nil, BadgerDB's internal logging is silenced.
	Logger badger.Logger

	// MemTableSize bounds Badger's memtable. A single transaction may hold
	// roughly 15% of it; bulk transactions commit before reaching half that.
	// Zero uses 64MB.
	MemTableSize int64

	// LowMemory shrinks block and index caches for constrained hosts.
	LowMemory bool
}

// NewBadgerEngine creates a new persistent storage engine with default settings.
//
// Parameters:
//   - dataDir: Directory path for storing data files. Created if it doesn't exist.
//
// Returns:
//   - *BadgerEngine on success
//   - error if database cannot be opened (e.g., permissions, disk space)
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data/graph")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
// ELI12:
//
// Think of NewBadgerEngine like setting up a filing cabinet in your room.
// You tell it "put the cabinet here" (the dataDir), and it creates folders
// and organizes everything. Even if you turn off your computer, the cabinet
// stays there with all your files inside.
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
//
// Example 1 - In-Memory Database for Testing:
//
//	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
//		InMemory: true, // All data in RAM, lost on shutdown
//	})
//
// Example 2 - Maximum Durability:
//
//	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
//		DataDir:    "./data/graph",
//		SyncWrites: true, // Force fsync after each write (slower but safer)
//	})
//
// Example 3 - Large Networks:
//
//	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
//		DataDir:      "./data/graph",
//		MemTableSize: 256 << 20, // ~38MB per transaction
//	})
//
// Configuration Trade-offs:
//   - SyncWrites=true: Slower writes (2-5x) but maximum safety
//   - LowMemory=true: Less RAM but slightly slower reads
//   - InMemory=true: Fastest but data lost on shutdown
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// nil silences Badger's own logger
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	memTable := opts.MemTableSize
	if memTable <= 0 {
		memTable = 64 << 20
	}
	badgerOpts = badgerOpts.
		WithMemTableSize(memTable).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024) // Store values > 1KB in value log

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithValueLogFileSize(64 << 20).
			WithBlockCacheSize(32 << 20).
			WithIndexCacheSize(16 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerEngine{
		db:       db,
		schema:   NewSchemaManager(),
		inMemory: opts.InMemory,
	}, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
//
// Data is not persisted and is lost when the engine is closed.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// ============================================================================
// Key encoding helpers
// ============================================================================

// nodeKey creates a key for storing a node.
func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

// edgeKey creates a key for storing an edge.
func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// labelIndexKey creates a key for the label index.
// Format: prefix + label (lowercase) + 0x00 + nodeID
func labelIndexKey(label string, nodeID NodeID) []byte {
	return append(labelIndexPrefix(label), []byte(nodeID)...)
}

// labelIndexPrefix returns the prefix for scanning all nodes with a label.
func labelIndexPrefix(label string) []byte {
	normalized := normalizeLabel(label)
	key := make([]byte, 0, 2+len(normalized))
	key = append(key, prefixLabelIndex)
	key = append(key, []byte(normalized)...)
	key = append(key, 0x00)
	return key
}

// outgoingIndexKey creates a key for the outgoing edge index.
func outgoingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return append(outgoingIndexPrefix(nodeID), []byte(edgeID)...)
}

// outgoingIndexPrefix returns the prefix for scanning outgoing edges.
func outgoingIndexPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 2+len(nodeID))
	key = append(key, prefixOutgoingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// incomingIndexKey creates a key for the incoming edge index.
func incomingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return append(incomingIndexPrefix(nodeID), []byte(edgeID)...)
}

// incomingIndexPrefix returns the prefix for scanning incoming edges.
func incomingIndexPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 2+len(nodeID))
	key = append(key, prefixIncomingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// uniqueIndexKey creates the key holding the owner of label.property=value.
func uniqueIndexKey(label, property string, value any) []byte {
	v := fmt.Sprint(value)
	normalized := normalizeLabel(label)
	key := make([]byte, 0, 3+len(normalized)+len(property)+len(v))
	key = append(key, prefixUniqueIndex)
	key = append(key, []byte(normalized)...)
	key = append(key, 0x00)
	key = append(key, []byte(property)...)
	key = append(key, 0x00)
	key = append(key, []byte(v)...)
	return key
}

// sequenceKey creates the lease key of a named sequence.
func sequenceKey(name string) []byte {
	return append([]byte{prefixSequence}, []byte(name)...)
}

// ============================================================================
// Shared read helpers (work on read-only and read-write Badger txns)
// ============================================================================

func readValue(item *badger.Item) ([]byte, error) {
	var data []byte
	err := item.Value(func(val []byte) error {
		data = append([]byte{}, val...)
		return nil
	})
	return data, err
}

func getNodeTxn(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading node: %w", err)
	}
	data, err := readValue(item)
	if err != nil {
		return nil, fmt.Errorf("reading node value: %w", err)
	}
	return decodeNode(data)
}

func getEdgeTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading edge: %w", err)
	}
	data, err := readValue(item)
	if err != nil {
		return nil, fmt.Errorf("reading edge value: %w", err)
	}
	return decodeEdge(data)
}

// scanKeySuffixes returns the key remainder after prefix for every key under it.
//
// The iterator is closed before returning: Badger allows only one live
// iterator per read-write transaction.
func scanKeySuffixes(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var suffixes [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		suffixes = append(suffixes, key[len(prefix):])
	}
	return suffixes
}

func edgesByIndexTxn(txn *badger.Txn, prefix []byte) ([]*Edge, error) {
	var edges []*Edge
	for _, suffix := range scanKeySuffixes(txn, prefix) {
		edge, err := getEdgeTxn(txn, EdgeID(suffix))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func nodesByLabelTxn(txn *badger.Txn, label string, filter NodeFilter) ([]*Node, error) {
	var nodes []*Node
	for _, suffix := range scanKeySuffixes(txn, labelIndexPrefix(label)) {
		node, err := getNodeTxn(txn, NodeID(suffix))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(node) {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func findByIndexTxn(txn *badger.Txn, label, property string, value any) (*Node, error) {
	item, err := txn.Get(uniqueIndexKey(label, property, value))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading unique index: %w", err)
	}
	owner, err := readValue(item)
	if err != nil {
		return nil, fmt.Errorf("reading unique index value: %w", err)
	}
	return getNodeTxn(txn, NodeID(owner))
}

func countPrefixTxn(txn *badger.Txn, prefix byte) int64 {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var count int64
	p := []byte{prefix}
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		count++
	}
	return count
}

// ============================================================================
// Engine operations
// ============================================================================

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// Update runs fn inside a fresh transaction and commits it if fn returns nil.
// Any error from fn rolls the transaction back.
func (b *BadgerEngine) Update(fn func(tx *BadgerTransaction) error) error {
	tx, err := b.BeginTransaction()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// view runs fn against a read-only Badger snapshot.
func (b *BadgerEngine) view(fn func(txn *badger.Txn) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.View(fn)
}

// CreateNode creates a new node in persistent storage.
func (b *BadgerEngine) CreateNode(node *Node) error {
	return b.Update(func(tx *BadgerTransaction) error { return tx.CreateNode(node) })
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var node *Node
	err := b.view(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeTxn(txn, id)
		return err
	})
	return node, err
}

// UpdateNode replaces an existing node.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	return b.Update(func(tx *BadgerTransaction) error { return tx.UpdateNode(node) })
}

// DeleteNode removes a node together with every relationship touching it.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	return b.Update(func(tx *BadgerTransaction) error { return tx.DeleteNode(id) })
}

// CreateEdge creates a relationship between two existing nodes.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	return b.Update(func(tx *BadgerTransaction) error { return tx.CreateEdge(edge) })
}

// FindNodes scans the label index and returns the nodes accepted by filter.
func (b *BadgerEngine) FindNodes(label string, filter NodeFilter) ([]*Node, error) {
	var nodes []*Node
	err := b.view(func(txn *badger.Txn) error {
		var err error
		nodes, err = nodesByLabelTxn(txn, label, filter)
		return err
	})
	return nodes, err
}

// FindNodeByIndex looks up the node holding value in a unique index.
func (b *BadgerEngine) FindNodeByIndex(label, property string, value any) (*Node, error) {
	var node *Node
	err := b.view(func(txn *badger.Txn) error {
		var err error
		node, err = findByIndexTxn(txn, label, property, value)
		return err
	})
	return node, err
}

// GetOutgoingEdges returns the relationships starting at nodeID.
func (b *BadgerEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	var edges []*Edge
	err := b.view(func(txn *badger.Txn) error {
		var err error
		edges, err = edgesByIndexTxn(txn, outgoingIndexPrefix(nodeID))
		return err
	})
	return edges, err
}

// GetIncomingEdges returns the relationships ending at nodeID.
func (b *BadgerEngine) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	var edges []*Edge
	err := b.view(func(txn *badger.Txn) error {
		var err error
		edges, err = edgesByIndexTxn(txn, incomingIndexPrefix(nodeID))
		return err
	})
	return edges, err
}

// NodeCount returns the number of stored nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	var count int64
	err := b.view(func(txn *badger.Txn) error {
		count = countPrefixTxn(txn, prefixNode)
		return nil
	})
	return count, err
}

// GetSchema returns the engine's schema manager.
func (b *BadgerEngine) GetSchema() *SchemaManager {
	return b.schema
}

// IsInMemory reports whether the engine runs without disk persistence.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// Close closes the underlying Badger database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Sync flushes pending writes to disk.
func (b *BadgerEngine) Sync() error {
	if b.inMemory {
		return nil
	}
	return b.db.Sync()
}

// RunGC runs one round of value log garbage collection and reports whether
// it rewrote a value log file.
//
// Call it after large deletions (network cleanup) to reclaim disk space. An
// in-memory engine has no value log and never rewrites.
func (b *BadgerEngine) RunGC() (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	if b.inMemory {
		return false, nil
	}
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

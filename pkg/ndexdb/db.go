// Package ndexdb is the NDEx database handle: it opens the graph store, owns the
// identifier allocator, and provides the record-level operations shared by the
// clone engine, the task processor and the CLI.
//
// Every NDEx entity lives in storage as a node labeled with its kind (see
// vocabulary.go). Identifiers come from one persistent sequence, so the storage
// NodeID of an entity is the decimal form of its int64 identifier.
//
// Example:
//
//	db, err := ndexdb.Open(ndexdb.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	owner, err := db.Accounts().CreateAccount(ctx, "alice")
package ndexdb

import (
	"fmt"
	"log"

	"github.com/dgraph-io/badger/v4"

	"github.com/ndexbio/ndexgraph/pkg/metrics"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// Config holds database settings.
type Config struct {
	// Storage
	DataDir      string `yaml:"data_dir"`
	InMemory     bool   `yaml:"in_memory"`
	SyncWrites   bool   `yaml:"sync_writes"`
	MemTableSize int64  `yaml:"memtable_size"`
	LowMemory    bool   `yaml:"low_memory"`
	LogBadger    bool   `yaml:"log_badger"`

	// Identity
	URIPrefix string `yaml:"uri_prefix"`
	IDLease   uint64 `yaml:"id_lease"`

	// DeleteBatch is the number of entities removed per deletion transaction
	DeleteBatch int `yaml:"delete_batch"`
}

// DefaultConfig returns an in-memory configuration suitable for tests.
func DefaultConfig() *Config {
	return &Config{
		InMemory:    true,
		URIPrefix:   "http://localhost:8080/v2",
		IDLease:     1000,
		DeleteBatch: 500,
	}
}

// DB is an open NDEx database.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type DB struct {
	config  *Config
	storage *storage.BadgerEngine
	ids     *storage.Sequence
}

// Open opens or creates the database described by config.
//
// Open registers the unique indexes the NDEx model relies on (network UUID and
// account name) and resumes the identifier sequence.
func Open(config *Config) (*DB, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.IDLease == 0 {
		config.IDLease = 1000
	}
	if config.DeleteBatch <= 0 {
		config.DeleteBatch = 500
	}

	opts := storage.BadgerOptions{
		DataDir:      config.DataDir,
		InMemory:     config.InMemory,
		SyncWrites:   config.SyncWrites,
		MemTableSize: config.MemTableSize,
		LowMemory:    config.LowMemory,
	}
	if config.LogBadger {
		opts.Logger = badgerLogger{}
	}

	engine, err := storage.NewBadgerEngineWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open persistent storage: %w", err)
	}

	schema := engine.GetSchema()
	if err := schema.AddUniqueConstraint("network_uuid", LabelNetwork, PropUUID); err != nil {
		engine.Close()
		return nil, err
	}
	if err := schema.AddUniqueConstraint("account_name", LabelAccount, PropAccountName); err != nil {
		engine.Close()
		return nil, err
	}

	ids, err := engine.Sequence("ndex_ids", config.IDLease)
	if err != nil {
		engine.Close()
		return nil, err
	}

	if config.InMemory {
		log.Printf("[NDEx] Using in-memory storage (data will not persist)")
	} else {
		log.Printf("[NDEx] Using persistent storage at %s", config.DataDir)
	}

	return &DB{
		config:  config,
		storage: engine,
		ids:     ids,
	}, nil
}

// Close releases the identifier lease and closes storage.
func (db *DB) Close() error {
	if err := db.ids.Release(); err != nil {
		log.Printf("[NDEx] Warning: releasing id lease: %v", err)
	}
	return db.storage.Close()
}

// Storage returns the underlying graph store.
func (db *DB) Storage() *storage.BadgerEngine {
	return db.storage
}

// Config returns the configuration the database was opened with.
func (db *DB) Config() *Config {
	return db.config
}

// NextID allocates a new entity identifier. Identifiers are strictly
// increasing for the lifetime of the store and never reused.
func (db *DB) NextID() (int64, error) {
	return db.ids.NextID()
}

// BeginTransaction starts a read-write transaction.
func (db *DB) BeginTransaction() (*storage.BadgerTransaction, error) {
	return db.storage.BeginTransaction()
}

// BeginBulkTransaction starts a transaction that commits in batches as it
// grows. See storage.BeginBulkTransaction.
func (db *DB) BeginBulkTransaction() (*storage.BadgerTransaction, error) {
	return db.storage.BeginBulkTransaction()
}

// maxGCRounds bounds one ReclaimSpace call.
const maxGCRounds = 8

// ReclaimSpace runs value log GC rounds until one rewrites nothing and
// returns how many files were rewritten.
func (db *DB) ReclaimSpace() (int, error) {
	rewritten := 0
	for rewritten < maxGCRounds {
		ok, err := db.storage.RunGC()
		if err != nil {
			metrics.ValueLogGC.WithLabelValues("error").Inc()
			return rewritten, fmt.Errorf("value log gc: %w", err)
		}
		if !ok {
			metrics.ValueLogGC.WithLabelValues("clean").Inc()
			break
		}
		metrics.ValueLogGC.WithLabelValues("rewritten").Inc()
		rewritten++
	}
	if rewritten > 0 {
		log.Printf("[NDEx] Value log GC rewrote %d file(s)", rewritten)
	}
	return rewritten, nil
}

// CreateEntity allocates an identifier and creates a node labeled label.
func (db *DB) CreateEntity(tx *storage.BadgerTransaction, label string, props map[string]any) (storage.NodeID, error) {
	id, err := db.NextID()
	if err != nil {
		return "", err
	}
	if props == nil {
		props = make(map[string]any)
	}
	nodeID := storage.IDFromInt64(id)
	if err := tx.CreateNode(&storage.Node{
		ID:         nodeID,
		Labels:     []string{label},
		Properties: props,
	}); err != nil {
		return "", fmt.Errorf("creating %s: %w", label, err)
	}
	return nodeID, nil
}

// Link creates a relationship from -> to. Relationship identifiers come from
// the same sequence as entities so repeated links between one pair stay
// distinct.
func (db *DB) Link(tx *storage.BadgerTransaction, from, to storage.NodeID, relType string, props map[string]any) error {
	id, err := db.NextID()
	if err != nil {
		return err
	}
	if err := tx.CreateEdge(&storage.Edge{
		ID:         storage.EdgeIDFromInt64(id),
		StartNode:  from,
		EndNode:    to,
		Type:       relType,
		Properties: props,
	}); err != nil {
		return fmt.Errorf("linking %s -[%s]-> %s: %w", from, relType, to, err)
	}
	return nil
}

// Related returns the end nodes of from's outgoing relationships of relType.
func Related(tx *storage.BadgerTransaction, from storage.NodeID, relType string) ([]storage.NodeID, error) {
	edges, err := tx.GetOutgoingEdges(from)
	if err != nil {
		return nil, err
	}
	var ids []storage.NodeID
	for _, e := range edges {
		if e.Type == relType {
			ids = append(ids, e.EndNode)
		}
	}
	return ids, nil
}

// badgerLogger forwards Badger's internal log lines to the process log.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[Badger] ERROR: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[Badger] WARN: "+f, v...) }
func (badgerLogger) Infof(f string, v ...interface{})    { log.Printf("[Badger] "+f, v...) }
func (badgerLogger) Debugf(string, ...interface{})       {}

var _ badger.Logger = badgerLogger{}

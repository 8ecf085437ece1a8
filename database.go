// Package ironbase is an embeddable, single-file, document-oriented storage
// engine: collections of BSON documents, secondary indexes backed by B+trees,
// a MongoDB-shaped query language, and ACID transactions durable through a
// write-ahead log. pkg/storage owns the on-disk format and commit pipeline;
// this package layers the collection-oriented API and query execution on
// top of it.
package ironbase

import (
	"github.com/ironbase/ironbase/pkg/storage"
)

// DurabilityMode selects the fsync policy a Database uses on commit.
type DurabilityMode = storage.DurabilityMode

const (
	Safe   = storage.Safe
	Batch  = storage.Batch
	Unsafe = storage.Unsafe
)

// Options configures a Database at Open/OpenMemory time.
type Options = storage.Options

// DefaultOptions returns Safe durability with a 200ms batch interval (used
// only when Durability is set to Batch).
func DefaultOptions() Options { return storage.DefaultOptions() }

// Database is the top-level handle to an IronBase file: it owns the engine
// and hands out Collection facades bound to it.
type Database struct {
	engine *storage.StorageEngine
}

// Open opens (creating if necessary) the database file at path, replaying
// every transaction a prior crash left committed in the WAL but not yet
// flushed before returning.
func Open(path string, opts Options) (*Database, error) {
	se, err := storage.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Database{engine: se}, nil
}

// OpenMemory opens an ephemeral, temp-file-backed database removed entirely
// on Close — convenient for tests and short-lived embedding.
func OpenMemory(opts Options) (*Database, error) {
	se, err := storage.OpenMemory(opts)
	if err != nil {
		return nil, err
	}
	return &Database{engine: se}, nil
}

// Close flushes metadata to disk and releases the underlying file and WAL
// handles.
func (db *Database) Close() error { return db.engine.Close() }

// Flush recomputes and writes the metadata trailer, leaving the file in a
// fully self-contained, consistent image without needing WAL replay on the
// next open.
func (db *Database) Flush() error { return db.engine.Flush() }

// Compact rewrites the file to contain only live documents, dropping
// tombstones and superseded versions, and swaps it in atomically.
func (db *Database) Compact() error { return db.engine.Compact() }

// CreateCollection idempotently registers a collection.
func (db *Database) CreateCollection(name string) error { return db.engine.CreateCollection(name) }

// Collection returns a facade over the named collection. The collection
// need not already exist on disk; it is created on first use.
func (db *Database) Collection(name string) (*Collection, error) {
	if err := db.engine.CreateCollection(name); err != nil {
		return nil, err
	}
	coll, err := db.engine.Collection(name)
	if err != nil {
		return nil, err
	}
	return &Collection{db: db, engine: db.engine, coll: coll}, nil
}

// Begin starts a new transaction. Operations staged through it become
// visible together, atomically, at Commit.
func (db *Database) Begin() *Transaction {
	return &Transaction{db: db, txn: db.engine.Begin()}
}

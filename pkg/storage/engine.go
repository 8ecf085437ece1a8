// Package storage implements IronBase's core storage engine: the
// single-file on-disk layout, the document catalog, the write-ahead log
// and crash-recovery protocol, the B+tree index subsystem, and the
// transactional commit pipeline. It is driven by the root ironbase package,
// which layers the collection-oriented API and query execution on top.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	ibErrors "github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/types"
	"github.com/ironbase/ironbase/pkg/wal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// DurabilityMode selects the fsync policy a StorageEngine uses when
// committing transactions.
type DurabilityMode int

const (
	// Safe fsyncs the WAL on every commit. The default.
	Safe DurabilityMode = iota
	// Batch fsyncs the WAL on a fixed interval rather than every commit.
	Batch
	// Unsafe never fsyncs on commit; test-only. Rollback still fsyncs its
	// Abort record.
	Unsafe
)

// Options configures a StorageEngine at Open/OpenMemory time.
type Options struct {
	Durability    DurabilityMode
	BatchInterval time.Duration
}

// DefaultOptions returns the Safe durability mode.
func DefaultOptions() Options { return Options{Durability: Safe, BatchInterval: 200 * time.Millisecond} }

func (o Options) walOptions(dir string) wal.Options {
	opts := wal.DefaultOptions()
	opts.DirPath = dir
	switch o.Durability {
	case Batch:
		opts.SyncPolicy = wal.SyncInterval
		if o.BatchInterval > 0 {
			opts.SyncIntervalDuration = o.BatchInterval
		}
	case Unsafe:
		opts.SyncPolicy = wal.SyncNever
	default:
		opts.SyncPolicy = wal.SyncEveryWrite
	}
	return opts
}

// StorageEngine owns the single on-disk file, the sibling WAL, and the
// in-memory catalogs/indexes for every collection. One process holds
// exactly one writer: mu is the engine-wide writer lock, acquired for the
// duration of a single mutating operation (never across a whole
// transaction — transaction staging lives in the Transaction's own
// buffers until commit applies it).
type StorageEngine struct {
	mu sync.Mutex

	path      string
	walPath   string
	ephemeral bool // true for OpenMemory: backing files live under a temp dir removed on Close

	file *dataFile
	wal  *wal.WALWriter
	opts Options

	collMu      sync.RWMutex
	collections map[string]*Collection

	nextTxnID  uint64
	txnMu      sync.Mutex
	activeTxns map[uint64]*Transaction
}

// storedRecord is the BSON envelope every document record carries: a
// regular write has Tombstone=false and Doc set; a delete writes
// Tombstone=true with Doc holding only _id, satisfying the catalog
// consistency invariant that a live catalog entry never points at a
// tombstone record.
type storedRecord struct {
	Tombstone bool   `bson:"tombstone"`
	Doc       bson.D `bson:"doc"`
}

func encodeRecord(doc bson.D, tombstone bool) ([]byte, error) {
	return bson.Marshal(storedRecord{Tombstone: tombstone, Doc: doc})
}

func decodeRecord(data []byte) (storedRecord, error) {
	var rec storedRecord
	err := bson.Unmarshal(data, &rec)
	return rec, err
}

// Open opens (creating if necessary) the database file at path and its
// sibling WAL, replaying every transaction the WAL records as committed
// (and discarding incomplete or aborted ones) before returning ready to
// serve.
func Open(path string, opts Options) (*StorageEngine, error) {
	walPath := path + ".wal"

	var df *dataFile
	var hdr Header
	var err error

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		df, hdr, err = createDataFile(path)
	} else {
		df, hdr, err = openDataFile(path)
	}
	if err != nil {
		return nil, err
	}

	se := &StorageEngine{
		path:        path,
		walPath:     walPath,
		file:        df,
		opts:        opts,
		collections: make(map[string]*Collection),
		activeTxns:  make(map[uint64]*Transaction),
	}

	if err := se.loadMetadata(hdr); err != nil {
		df.Close()
		return nil, err
	}

	w, err := wal.NewWALWriter(walPath, opts.walOptions(filepath.Dir(walPath)))
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("storage: open wal: %w", err)
	}
	se.wal = w

	if err := se.recover(); err != nil {
		w.Close()
		df.Close()
		return nil, err
	}

	return se, nil
}

// OpenMemory opens an ephemeral engine backed by a fresh temp directory,
// removed entirely on Close. It behaves identically to Open in every other
// respect (same file format, same WAL, same recovery path) — there is no
// separate in-memory format, only a throwaway location.
func OpenMemory(opts Options) (*StorageEngine, error) {
	dir, err := os.MkdirTemp("", "ironbase-mem-*")
	if err != nil {
		return nil, fmt.Errorf("storage: create memory dir: %w", err)
	}
	se, err := Open(filepath.Join(dir, "ironbase.db"), opts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	se.ephemeral = true
	return se, nil
}

// Close flushes and releases the file handle and WAL. For an ephemeral
// engine, the backing temp directory is removed afterward.
//
// A successful flush makes every committed transaction's effects durable
// in the main file's catalog and indexes, so the WAL is reset afterward —
// mirroring recover()'s own end-of-replay reset — to keep the two in sync.
// Without this, a clean reopen would both load the flushed catalog/indexes
// and then replay the same still-present WAL records against them, and a
// unique index's replay insert would collide with the entry it itself
// already produced.
func (se *StorageEngine) Close() error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.flushLocked(); err != nil {
		return err
	}
	if err := se.wal.Reset(); err != nil {
		return err
	}
	if err := se.wal.Close(); err != nil {
		return err
	}
	if err := se.file.Close(); err != nil {
		return err
	}
	if se.ephemeral {
		os.RemoveAll(filepath.Dir(se.path))
	}
	return nil
}

// CreateCollection idempotently registers a collection. It does not flush
// metadata, per the lazy-flush policy — durability comes from the WAL.
func (se *StorageEngine) CreateCollection(name string) error {
	se.collMu.Lock()
	defer se.collMu.Unlock()
	if _, exists := se.collections[name]; exists {
		return nil
	}
	se.collections[name] = NewCollection(name)
	return nil
}

// Collection returns the named collection's in-memory state.
func (se *StorageEngine) Collection(name string) (*Collection, error) {
	se.collMu.RLock()
	defer se.collMu.RUnlock()
	c, ok := se.collections[name]
	if !ok {
		return nil, &ibErrors.CollectionNotFoundError{Name: name}
	}
	return c, nil
}

// Collections returns every registered collection, in no particular order.
func (se *StorageEngine) Collections() []*Collection {
	se.collMu.RLock()
	defer se.collMu.RUnlock()
	out := make([]*Collection, 0, len(se.collections))
	for _, c := range se.collections {
		out = append(out, c)
	}
	return out
}

// writeDocument appends doc's record to the file and updates coll's
// catalog entry for id to point at the new offset. Callers are responsible
// for index maintenance; this only handles the physical write + catalog
// update pairing.
func (se *StorageEngine) writeDocument(coll *Collection, id types.DocID, doc bson.D) (uint64, error) {
	payload, err := encodeRecord(doc, false)
	if err != nil {
		return 0, fmt.Errorf("storage: encode document: %w", err)
	}
	offset, err := se.file.WriteDocument(payload)
	if err != nil {
		return 0, &ibErrors.IoError{Op: "write_document", Err: err}
	}
	coll.Catalog.Set(id, offset)
	return offset, nil
}

// writeTombstone appends a tombstone record and removes id from coll's
// catalog.
func (se *StorageEngine) writeTombstone(coll *Collection, id types.DocID) error {
	payload, err := encodeRecord(bson.D{{Key: "_id", Value: idToAny(id)}}, true)
	if err != nil {
		return fmt.Errorf("storage: encode tombstone: %w", err)
	}
	if _, err := se.file.WriteDocument(payload); err != nil {
		return &ibErrors.IoError{Op: "write_tombstone", Err: err}
	}
	coll.Catalog.Delete(id)
	return nil
}

func idToAny(id types.DocID) any {
	switch id.Kind {
	case types.DocIDInt:
		return id.Int
	case types.DocIDString:
		return id.Str
	default:
		return id.String()
	}
}

// ReadDocument resolves id's current offset in coll's catalog and reads
// the live document there. Fails if id has no catalog entry.
func (se *StorageEngine) ReadDocument(coll *Collection, id types.DocID) (bson.D, error) {
	offset, ok := coll.Catalog.Get(id)
	if !ok {
		return nil, &ibErrors.InvalidDocumentError{Collection: coll.Name, Reason: "no such document"}
	}
	return se.readDocumentAt(offset)
}

func (se *StorageEngine) readDocumentAt(offset uint64) (bson.D, error) {
	payload, err := se.file.ReadDocumentAt(offset)
	if err != nil {
		return nil, &ibErrors.IoError{Op: "read_document_at", Err: err}
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, &ibErrors.CorruptionError{Location: fmt.Sprintf("offset %d", offset), Reason: err.Error()}
	}
	if rec.Tombstone {
		return nil, fmt.Errorf("storage: record at offset %d is a tombstone", offset)
	}
	return rec.Doc, nil
}

// allocateTxnID returns a fresh, strictly increasing transaction id.
func (se *StorageEngine) allocateTxnID() uint64 {
	return atomic.AddUint64(&se.nextTxnID, 1)
}

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironbase/ironbase/pkg/types"
	"github.com/ironbase/ironbase/pkg/wal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// TestRecoveryToleratesTruncatedWALTail simulates a crash mid-write of a
// transaction's WAL record: a committed transaction is followed by a
// second transaction's entry that gets cut off partway through its bytes.
// Recovery must replay the first transaction and silently stop at the
// corrupt tail rather than failing the whole open.
func TestRecoveryToleratesTruncatedWALTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ironbase.db")
	se, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	se.CreateCollection("users")
	coll, _ := se.Collection("users")
	insertOne(t, se, coll, bson.D{{Key: "_id", Value: int64(1)}, {Key: "name", Value: "Alice"}})

	op, changes, err := se.PrepareInsert(coll, bson.D{{Key: "_id", Value: int64(2)}, {Key: "name", Value: "Bob"}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	txn := se.Begin()
	if err := txn.AddOperation(op, changes); err != nil {
		t.Fatalf("add op: %v", err)
	}
	// Write a second transaction's Begin entry to the WAL but never
	// Prepare/Commit it, then truncate a few bytes off the very end
	// of the file to emulate a process dying mid-write of the next record.
	se.mu.Lock()
	if err := se.writeEntry(txn.ID, wal.EntryBegin, nil); err != nil {
		se.mu.Unlock()
		t.Fatalf("write begin: %v", err)
	}
	se.mu.Unlock()

	walPath := path + ".wal"
	info, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}
	if err := os.Truncate(walPath, info.Size()-3); err != nil {
		t.Fatalf("truncate wal: %v", err)
	}
	// Simulate the crash: release the handles without Close's flush and WAL
	// reset, so the reopen below has to recover from the truncated log.
	se.wal.Close()
	se.file.Close()

	se2, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen after truncated tail: %v", err)
	}
	defer se2.Close()

	coll2, err := se2.Collection("users")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if coll2.Catalog.Len() != 1 {
		t.Fatalf("expected only the committed document to survive, got %d", coll2.Catalog.Len())
	}
	if _, ok := coll2.Catalog.Get(types.NewIntDocID(1)); !ok {
		t.Fatalf("expected document 1 to be present")
	}
	if _, ok := coll2.Catalog.Get(types.NewIntDocID(2)); ok {
		t.Fatalf("expected the uncommitted document 2 to not be present")
	}
}

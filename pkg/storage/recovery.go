package storage

import (
	"errors"
	"fmt"
	"io"

	ibErrors "github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/wal"
)

// txnLog accumulates one transaction's records during the WAL scan before
// recovery decides whether to replay or discard it.
type txnLog struct {
	ops       []Operation
	changes   []IndexChange
	committed bool
	aborted   bool
}

// recover runs the crash-recovery protocol on Open: scan the WAL front to
// back tolerating a corrupt tail (a never-committed transaction's
// truncated trailing bytes), group records by transaction id, replay every
// committed transaction's effects against storage, and truncate the WAL
// once recovery has been durably reflected in the main file.
func (se *StorageEngine) recover() error {
	r, err := wal.NewWALReader(se.walPath)
	if err != nil {
		return nil // no WAL yet (fresh database); nothing to recover
	}
	defer r.Close()

	txns := make(map[uint64]*txnLog)
	var order []uint64

	for {
		entry, err := r.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTailCorruption(err) {
				fmt.Printf("storage: recovery: stopping at corrupt WAL tail: %v\n", err)
				break
			}
			return &ibErrors.CorruptionError{Location: se.walPath, Reason: err.Error()}
		}

		txnID := entry.Header.TxnID
		log, ok := txns[txnID]
		if !ok {
			log = &txnLog{}
			txns[txnID] = log
			order = append(order, txnID)
		}

		switch entry.Header.EntryType {
		case wal.EntryBegin, wal.EntryPrepare:
			// no state to record beyond grouping
		case wal.EntryOperation:
			op, err := decodeOperation(entry.Payload)
			if err != nil {
				return &ibErrors.CorruptionError{Location: se.walPath, Reason: err.Error()}
			}
			log.ops = append(log.ops, op)
		case wal.EntryIndexChange:
			ch, err := decodeIndexChange(entry.Payload)
			if err != nil {
				return &ibErrors.CorruptionError{Location: se.walPath, Reason: err.Error()}
			}
			log.changes = append(log.changes, ch)
		case wal.EntryCommit:
			log.committed = true
		case wal.EntryAbort:
			log.aborted = true
		}
		wal.ReleaseEntry(entry)
	}

	replayed := 0
	for _, txnID := range order {
		log := txns[txnID]
		if !log.committed || log.aborted {
			continue // incomplete or aborted: discarded, matching atomicity
		}
		// A collection created in the crashed session is never WAL-logged
		// (CreateCollection is metadata-only, lazily flushed); re-register
		// it here so replaying a committed insert into it doesn't fail
		// with CollectionNotFound after a restart that lost the in-memory
		// registration but not the WAL-durable commit.
		for _, op := range log.ops {
			se.CreateCollection(op.Collection)
		}
		if err := se.replayTxn(log); err != nil {
			return fmt.Errorf("storage: recovery: replay txn %d: %w", txnID, err)
		}
		replayed++
	}

	if replayed > 0 {
		fmt.Printf("storage: recovery: replayed %d committed transaction(s)\n", replayed)
		if err := se.flushLocked(); err != nil {
			return fmt.Errorf("storage: recovery: flush after replay: %w", err)
		}
	}

	return se.wal.Reset()
}

// replayTxn re-applies one committed transaction's operations and index
// changes. Document writes are append-only and catalog updates are plain
// overwrites, so replaying those twice is harmless — but a unique index's
// Insert is not idempotent, which is why recover() (and Close, on a clean
// shutdown) always resets the WAL once a transaction's effects are
// durably reflected in the main file: replay must only ever see
// transactions not yet applied, never re-see ones it already has.
func (se *StorageEngine) replayTxn(log *txnLog) error {
	return se.applyOperations(log.ops, log.changes)
}

// isTailCorruption reports whether err represents a WAL read failure
// consistent with "the writer died mid-record" (truncated length/payload
// or a failed checksum on the final, partially-written record) rather than
// a structurally invalid log. Recovery stops scanning at the first such
// error, wherever it occurs, and treats the rest of the log as the tail.
func isTailCorruption(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, wal.ErrChecksumMismatch) ||
		errors.Is(err, wal.ErrInvalidPayloadLen)
}

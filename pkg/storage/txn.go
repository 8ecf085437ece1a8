package storage

import (
	"fmt"
	"sync"

	"github.com/ironbase/ironbase/pkg/document"
	ibErrors "github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/types"
	"github.com/ironbase/ironbase/pkg/wal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// TxnStatus is a transaction's lifecycle state.
type TxnStatus int

const (
	TxnActive TxnStatus = iota
	TxnPrepared
	TxnCommitted
	TxnAborted
)

// OpKind is the kind of mutation one Operation stages.
type OpKind int32

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

// Operation is one staged document mutation within a transaction.
type Operation struct {
	Kind       OpKind
	Collection string
	ID         types.DocID
	Document   bson.D // unused for OpDelete
}

// IndexChangeKind is the kind of mutation one IndexChange stages.
type IndexChangeKind int32

const (
	IdxInsert IndexChangeKind = iota
	IdxDelete
)

// IndexChange is one staged index mutation, derived alongside an Operation
// so data and index updates apply together within the same commit.
type IndexChange struct {
	Kind       IndexChangeKind
	Collection string
	Index      string
	Fields     types.KeyTuple
	ID         types.DocID
}

// Transaction holds a transaction's staged operations and index changes in
// private, in-memory buffers. Nothing here is visible to other readers
// until Commit applies it — isolation comes from staged state living only
// in this struct until then.
type Transaction struct {
	mu           sync.Mutex
	ID           uint64
	Status       TxnStatus
	Operations   []Operation
	IndexChanges []IndexChange
}

// Begin allocates a monotonically increasing transaction id and registers
// it Active. O(1): nothing is written to the WAL until Commit.
func (se *StorageEngine) Begin() *Transaction {
	txn := &Transaction{ID: se.allocateTxnID(), Status: TxnActive}
	se.txnMu.Lock()
	se.activeTxns[txn.ID] = txn
	se.txnMu.Unlock()
	return txn
}

// AddOperation appends op (and its induced index changes) to txn's staged
// state. Fails if txn is not Active.
func (txn *Transaction) AddOperation(op Operation, changes []IndexChange) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.Status != TxnActive {
		return &ibErrors.TransactionError{TxnID: txn.ID, Reason: "transaction is not active"}
	}
	txn.Operations = append(txn.Operations, op)
	txn.IndexChanges = append(txn.IndexChanges, changes...)
	return nil
}

// lookupTxn returns the active transaction for id, or TransactionError.
func (se *StorageEngine) lookupTxn(id uint64) (*Transaction, error) {
	se.txnMu.Lock()
	defer se.txnMu.Unlock()
	txn, ok := se.activeTxns[id]
	if !ok {
		return nil, &ibErrors.TransactionError{TxnID: id, Reason: "unknown transaction id"}
	}
	return txn, nil
}

func (se *StorageEngine) forgetTxn(id uint64) {
	se.txnMu.Lock()
	delete(se.activeTxns, id)
	se.txnMu.Unlock()
}

// Commit performs the two-phase apply: write Begin and every
// Operation/IndexChange to the WAL, write Prepare and fsync (the
// durability point before any storage mutation), apply the operations and
// index changes to storage, then write Commit and fsync — the single
// atomicity decision point recovery keys off. Both fsyncs happen only in
// Safe mode; Batch leaves them to the WAL's interval sync and Unsafe skips
// them.
func (se *StorageEngine) Commit(txn *Transaction) error {
	if _, err := se.lookupTxn(txn.ID); err != nil {
		return err
	}

	txn.mu.Lock()
	if txn.Status != TxnActive {
		status := txn.Status
		txn.mu.Unlock()
		if status == TxnCommitted {
			return &ibErrors.TransactionError{TxnID: txn.ID, Reason: "transaction already committed"}
		}
		return &ibErrors.TransactionError{TxnID: txn.ID, Reason: "transaction is not active"}
	}
	ops := append([]Operation{}, txn.Operations...)
	changes := append([]IndexChange{}, txn.IndexChanges...)
	txn.mu.Unlock()

	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.writeEntry(txn.ID, wal.EntryBegin, nil); err != nil {
		return se.abortAfterWALFailure(txn, err)
	}
	for _, op := range ops {
		payload, err := encodeOperation(op)
		if err != nil {
			return se.abortAfterWALFailure(txn, err)
		}
		if err := se.writeEntry(txn.ID, wal.EntryOperation, payload); err != nil {
			return se.abortAfterWALFailure(txn, err)
		}
	}
	for _, ch := range changes {
		payload, err := encodeIndexChange(ch)
		if err != nil {
			return se.abortAfterWALFailure(txn, err)
		}
		if err := se.writeEntry(txn.ID, wal.EntryIndexChange, payload); err != nil {
			return se.abortAfterWALFailure(txn, err)
		}
	}

	if err := se.writeEntry(txn.ID, wal.EntryPrepare, nil); err != nil {
		return se.abortAfterWALFailure(txn, err)
	}
	if se.opts.Durability == Safe {
		if err := se.wal.Sync(); err != nil {
			return se.abortAfterWALFailure(txn, &ibErrors.IoError{Op: "wal_sync_prepare", Err: err})
		}
	}

	txn.mu.Lock()
	txn.Status = TxnPrepared
	txn.mu.Unlock()

	if err := se.applyOperations(ops, changes); err != nil {
		// Storage/index application failed after Prepare: the
		// transaction rolls into Aborted and the cause surfaces, rather
		// than silently discarding — the WAL already durably records
		// Prepare, so recovery must see an Abort to resolve it.
		se.writeEntry(txn.ID, wal.EntryAbort, nil)
		se.wal.Sync()
		txn.mu.Lock()
		txn.Status = TxnAborted
		txn.mu.Unlock()
		se.forgetTxn(txn.ID)
		return &ibErrors.TransactionError{TxnID: txn.ID, Reason: fmt.Sprintf("apply failed after prepare: %v", err)}
	}

	if err := se.writeEntry(txn.ID, wal.EntryCommit, nil); err != nil {
		return &ibErrors.IoError{Op: "wal_commit", Err: err}
	}
	if se.opts.Durability == Safe {
		if err := se.wal.Sync(); err != nil {
			return &ibErrors.IoError{Op: "wal_sync_commit", Err: err}
		}
	}

	txn.mu.Lock()
	txn.Status = TxnCommitted
	txn.mu.Unlock()
	se.forgetTxn(txn.ID)
	return nil
}

// abortAfterWALFailure handles any failure before Prepare/Commit: since no
// Commit record was written, discarding the staged buffers suffices (the
// storage file and catalog were never touched).
func (se *StorageEngine) abortAfterWALFailure(txn *Transaction, cause error) error {
	txn.mu.Lock()
	txn.Status = TxnAborted
	txn.mu.Unlock()
	se.forgetTxn(txn.ID)
	return &ibErrors.TransactionError{TxnID: txn.ID, Reason: fmt.Sprintf("commit failed before prepare: %v", cause)}
}

// Rollback discards txn's staged state and writes an Abort record. Always
// succeeds for an Active or Prepared transaction; fails for one already
// Committed (double-commit/rollback-after-commit is forbidden).
func (se *StorageEngine) Rollback(txn *Transaction) error {
	txn.mu.Lock()
	if txn.Status == TxnCommitted {
		txn.mu.Unlock()
		return &ibErrors.TransactionError{TxnID: txn.ID, Reason: "cannot roll back a committed transaction"}
	}
	txn.Status = TxnAborted
	txn.mu.Unlock()

	se.mu.Lock()
	err := se.writeEntry(txn.ID, wal.EntryAbort, nil)
	if err == nil {
		err = se.wal.Sync()
	}
	se.mu.Unlock()

	se.forgetTxn(txn.ID)
	if err != nil {
		return &ibErrors.IoError{Op: "wal_abort", Err: err}
	}
	return nil
}

// applyOperations writes every staged document mutation to the file and
// every staged index change to its tree, in submission order.
func (se *StorageEngine) applyOperations(ops []Operation, changes []IndexChange) error {
	for _, op := range ops {
		coll, err := se.Collection(op.Collection)
		if err != nil {
			return err
		}
		coll.Lock()
		var applyErr error
		switch op.Kind {
		case OpInsert, OpUpdate:
			_, applyErr = se.writeDocument(coll, op.ID, op.Document)
		case OpDelete:
			applyErr = se.writeTombstone(coll, op.ID)
		}
		coll.Unlock()
		if applyErr != nil {
			return applyErr
		}
	}

	for _, ch := range changes {
		coll, err := se.Collection(ch.Collection)
		if err != nil {
			return err
		}
		coll.Lock()
		idx, err := coll.GetIndex(ch.Index)
		if err != nil {
			coll.Unlock()
			return err
		}
		key := idx.entryKey(ch.Fields, ch.ID)
		switch ch.Kind {
		case IdxInsert:
			if insErr := idx.tree.Insert(key, ch.ID); insErr != nil {
				coll.Unlock()
				return &ibErrors.DuplicateKeyError{Collection: ch.Collection, Index: ch.Index, Key: formatKeyTuple(ch.Fields)}
			}
		case IdxDelete:
			idx.tree.Delete(key)
		}
		coll.Unlock()
	}
	return nil
}

// writeEntry builds and appends one WAL record of kind with payload.
func (se *StorageEngine) writeEntry(txnID uint64, kind wal.EntryType, payload []byte) error {
	entry := wal.AcquireEntry()
	defer wal.ReleaseEntry(entry)
	entry.Header = wal.WALHeader{Magic: wal.WALMagic, Version: wal.WALVersion, EntryType: kind, TxnID: txnID}
	entry.Payload = append(entry.Payload[:0], payload...)
	if err := se.wal.WriteEntry(entry); err != nil {
		return &ibErrors.IoError{Op: "wal_write", Err: err}
	}
	return nil
}

// --- WAL payload encoding ---

type walOperationPayload struct {
	Collection string        `bson:"collection"`
	Kind       int32         `bson:"kind"`
	IDTag      string        `bson:"id_tag"`
	IDText     string        `bson:"id_text"`
	Document   []byte        `bson:"document"`
}

func encodeOperation(op Operation) ([]byte, error) {
	t := docIDToTriple(op.ID, 0)
	var docBytes []byte
	if op.Kind != OpDelete {
		raw, err := bson.Marshal(op.Document)
		if err != nil {
			return nil, fmt.Errorf("storage: encode operation document: %w", err)
		}
		docBytes = raw
	}
	return bson.Marshal(walOperationPayload{
		Collection: op.Collection,
		Kind:       int32(op.Kind),
		IDTag:      t.Tag,
		IDText:     t.Text,
		Document:   docBytes,
	})
}

func decodeOperation(payload []byte) (Operation, error) {
	var p walOperationPayload
	if err := bson.Unmarshal(payload, &p); err != nil {
		return Operation{}, err
	}
	id, _, err := tripleToDocID(catalogTriple{Tag: p.IDTag, Text: p.IDText})
	if err != nil {
		return Operation{}, err
	}
	op := Operation{Kind: OpKind(p.Kind), Collection: p.Collection, ID: id}
	if len(p.Document) > 0 {
		var doc bson.D
		if err := bson.Unmarshal(p.Document, &doc); err != nil {
			return Operation{}, err
		}
		op.Document = doc
	}
	return op, nil
}

type walFieldValue struct {
	Tag  byte   `bson:"tag"`
	Text string `bson:"text"`
}

type walIndexChangePayload struct {
	Collection string          `bson:"collection"`
	Index      string          `bson:"index"`
	Kind       int32           `bson:"kind"`
	IDTag      string          `bson:"id_tag"`
	IDText     string          `bson:"id_text"`
	Fields     []walFieldValue `bson:"fields"`
}

func encodeIndexChange(ch IndexChange) ([]byte, error) {
	t := docIDToTriple(ch.ID, 0)
	fields := make([]walFieldValue, 0, len(ch.Fields))
	for _, f := range ch.Fields {
		tag, err := fieldTag(f)
		if err != nil {
			return nil, err
		}
		fields = append(fields, walFieldValue{Tag: tag, Text: fieldText(f)})
	}
	return bson.Marshal(walIndexChangePayload{
		Collection: ch.Collection,
		Index:      ch.Index,
		Kind:       int32(ch.Kind),
		IDTag:      t.Tag,
		IDText:     t.Text,
		Fields:     fields,
	})
}

func decodeIndexChange(payload []byte) (IndexChange, error) {
	var p walIndexChangePayload
	if err := bson.Unmarshal(payload, &p); err != nil {
		return IndexChange{}, err
	}
	id, _, err := tripleToDocID(catalogTriple{Tag: p.IDTag, Text: p.IDText})
	if err != nil {
		return IndexChange{}, err
	}
	fields := make(types.KeyTuple, 0, len(p.Fields))
	for _, f := range p.Fields {
		v, err := fieldFromTag(f.Tag, f.Text)
		if err != nil {
			return IndexChange{}, err
		}
		fields = append(fields, v)
	}
	return IndexChange{
		Collection: p.Collection,
		Index:      p.Index,
		Kind:       IndexChangeKind(p.Kind),
		ID:         id,
		Fields:     fields,
	}, nil
}

// fieldTag/fieldText/fieldFromTag reuse the document package's catalog
// value tagging so a KeyTuple round-trips through the WAL exactly.
func fieldTag(v types.Comparable) (byte, error) {
	return document.TagOf(v)
}

func fieldText(v types.Comparable) string {
	return document.FormatForCatalog(v)
}

func fieldFromTag(tag byte, text string) (types.Comparable, error) {
	return document.ParseCatalogValue(tag, text)
}

package ironbase

import (
	"github.com/ironbase/ironbase/pkg/storage"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Transaction stages a sequence of writes across one or more collections
// for atomic commit. Staged operations are invisible to every other reader
// until Commit applies and durably logs them; Rollback discards them
// without ever touching storage.
type Transaction struct {
	db  *Database
	txn *storage.Transaction
}

// ID returns the transaction's monotonically increasing begin-order id.
func (tx *Transaction) ID() uint64 { return tx.txn.ID }

// InsertOne stages an insert of doc into collName within this transaction.
func (tx *Transaction) InsertOne(collName string, doc bson.D) error {
	coll, err := tx.db.engine.Collection(collName)
	if err != nil {
		return err
	}
	op, changes, err := tx.db.engine.PrepareInsert(coll, doc)
	if err != nil {
		return err
	}
	return tx.txn.AddOperation(op, changes)
}

// UpdateOne stages a full-document replacement of id's document.
func (tx *Transaction) UpdateOne(collName string, id interface{}, newDoc bson.D) error {
	coll, err := tx.db.engine.Collection(collName)
	if err != nil {
		return err
	}
	docID, err := coerceDocID(id)
	if err != nil {
		return err
	}
	op, changes, err := tx.db.engine.PrepareUpdate(coll, docID, newDoc)
	if err != nil {
		return err
	}
	return tx.txn.AddOperation(op, changes)
}

// DeleteOne stages the removal of id's document.
func (tx *Transaction) DeleteOne(collName string, id interface{}) error {
	coll, err := tx.db.engine.Collection(collName)
	if err != nil {
		return err
	}
	docID, err := coerceDocID(id)
	if err != nil {
		return err
	}
	op, changes, err := tx.db.engine.PrepareDelete(coll, docID)
	if err != nil {
		return err
	}
	return tx.txn.AddOperation(op, changes)
}

// Commit performs the two-phase WAL-then-apply commit described in the
// engine's transaction manager, making every staged operation visible
// atomically.
func (tx *Transaction) Commit() error { return tx.db.engine.Commit(tx.txn) }

// Rollback discards every staged operation; storage was never touched.
func (tx *Transaction) Rollback() error { return tx.db.engine.Rollback(tx.txn) }

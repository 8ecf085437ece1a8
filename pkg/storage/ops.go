package storage

import (
	"github.com/ironbase/ironbase/pkg/document"
	ibErrors "github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// PrepareInsert assigns an _id if doc doesn't carry one, validates every
// unique index (including the implicit _id index) would not be violated,
// and returns the Operation/IndexChange pair Commit needs to apply and
// durably log the insert. No WAL or storage mutation happens here — this
// is purely the staging/validation step transactions and the
// single-operation convenience path share.
func (se *StorageEngine) PrepareInsert(coll *Collection, doc bson.D) (Operation, []IndexChange, error) {
	id, err := document.ExtractID(doc)
	if err != nil {
		id = types.NewOpaqueDocID()
		doc = document.WithID(doc, id)
	}

	coll.RLock()
	defer coll.RUnlock()

	if _, exists := coll.Catalog.Get(id); exists {
		return Operation{}, nil, &ibErrors.DuplicateKeyError{Collection: coll.Name, Index: idIndexName, Key: id.String()}
	}

	changes := make([]IndexChange, 0, len(coll.Indexes))
	for _, idx := range coll.Indexes {
		fields, ok, err := idx.keyFor(doc)
		if err != nil {
			return Operation{}, nil, err
		}
		if !ok {
			continue
		}
		if idx.WouldConflict(fields, id) {
			return Operation{}, nil, &ibErrors.DuplicateKeyError{Collection: coll.Name, Index: idx.Name, Key: formatKeyTuple(fields)}
		}
		changes = append(changes, IndexChange{Kind: IdxInsert, Collection: coll.Name, Index: idx.Name, Fields: fields, ID: id})
	}

	return Operation{Kind: OpInsert, Collection: coll.Name, ID: id, Document: doc}, changes, nil
}

// PrepareUpdate validates the replacement document against every unique
// index (excluding this document's own existing entries) and returns the
// Operation/IndexChange pair that swaps the old document version for the
// new one: for every index, the old entry is removed before the new one is
// inserted, so an index change list always orders a given index's delete
// ahead of its insert.
func (se *StorageEngine) PrepareUpdate(coll *Collection, id types.DocID, newDoc bson.D) (Operation, []IndexChange, error) {
	coll.RLock()
	defer coll.RUnlock()

	oldDoc, err := se.ReadDocument(coll, id)
	if err != nil {
		return Operation{}, nil, err
	}
	newDoc = document.WithID(newDoc, id)

	changes := make([]IndexChange, 0, len(coll.Indexes)*2)
	for _, idx := range coll.Indexes {
		oldFields, oldOK, err := idx.keyFor(oldDoc)
		if err != nil {
			return Operation{}, nil, err
		}
		newFields, newOK, err := idx.keyFor(newDoc)
		if err != nil {
			return Operation{}, nil, err
		}

		if newOK && idx.WouldConflict(newFields, id) {
			return Operation{}, nil, &ibErrors.DuplicateKeyError{Collection: coll.Name, Index: idx.Name, Key: formatKeyTuple(newFields)}
		}

		if oldOK {
			changes = append(changes, IndexChange{Kind: IdxDelete, Collection: coll.Name, Index: idx.Name, Fields: oldFields, ID: id})
		}
		if newOK {
			changes = append(changes, IndexChange{Kind: IdxInsert, Collection: coll.Name, Index: idx.Name, Fields: newFields, ID: id})
		}
	}

	return Operation{Kind: OpUpdate, Collection: coll.Name, ID: id, Document: newDoc}, changes, nil
}

// PrepareDelete returns the Operation/IndexChange pair that removes id:
// every index entry it currently holds, plus the tombstone write itself.
func (se *StorageEngine) PrepareDelete(coll *Collection, id types.DocID) (Operation, []IndexChange, error) {
	coll.RLock()
	defer coll.RUnlock()

	doc, err := se.ReadDocument(coll, id)
	if err != nil {
		return Operation{}, nil, err
	}

	changes := make([]IndexChange, 0, len(coll.Indexes))
	for _, idx := range coll.Indexes {
		fields, ok, err := idx.keyFor(doc)
		if err != nil {
			return Operation{}, nil, err
		}
		if !ok {
			continue
		}
		changes = append(changes, IndexChange{Kind: IdxDelete, Collection: coll.Name, Index: idx.Name, Fields: fields, ID: id})
	}

	return Operation{Kind: OpDelete, Collection: coll.Name, ID: id}, changes, nil
}

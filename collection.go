package ironbase

import (
	"github.com/ironbase/ironbase/pkg/document"
	"github.com/ironbase/ironbase/pkg/query"
	"github.com/ironbase/ironbase/pkg/storage"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection is a facade over one named collection, implementing the
// document CRUD and query surface on top of the storage engine's staging
// and execution primitives. A call not wrapped in an explicit Transaction
// runs as its own single-operation transaction, so every Collection method
// is independently atomic and durable per the configured durability mode.
type Collection struct {
	db     *Database
	engine *storage.StorageEngine
	coll   *storage.Collection
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.coll.Name }

// InsertOne inserts doc, synthesizing an opaque _id if doc has none, and
// returns the id actually stored.
func (c *Collection) InsertOne(doc bson.D) (any, error) {
	txn := c.db.Begin()
	op, changes, err := c.engine.PrepareInsert(c.coll, doc)
	if err != nil {
		return nil, err
	}
	if err := txn.txn.AddOperation(op, changes); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return docIDToUser(op.ID), nil
}

// InsertMany inserts every document in docs as a single atomic transaction,
// returning the stored id for each in order.
func (c *Collection) InsertMany(docs []bson.D) ([]any, error) {
	txn := c.db.Begin()
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		op, changes, err := c.engine.PrepareInsert(c.coll, doc)
		if err != nil {
			txn.Rollback()
			return nil, err
		}
		if err := txn.txn.AddOperation(op, changes); err != nil {
			txn.Rollback()
			return nil, err
		}
		ids = append(ids, docIDToUser(op.ID))
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Find returns every document matching predicate, after applying opts'
// projection/sort/skip/limit. The planner picks an index automatically;
// use FindWithHint to force one.
func (c *Collection) Find(predicate *query.Predicate, opts *FindOptions) ([]bson.D, error) {
	plan := c.engine.Plan(c.coll, predicate, describePredicate(predicate))
	docs, _, err := c.engine.Execute(c.coll, plan, predicate)
	if err != nil {
		return nil, err
	}
	return applyFindOptions(docs, opts), nil
}

// FindWithHint runs predicate forcing indexName's index, falling back to a
// CollectionScan if that index cannot serve the predicate at all. Used to
// validate planner correctness: its result set must always equal Find's.
func (c *Collection) FindWithHint(predicate *query.Predicate, indexName string, opts *FindOptions) ([]bson.D, error) {
	plan, err := c.engine.PlanWithHint(c.coll, predicate, indexName, describePredicate(predicate))
	if err != nil {
		return nil, err
	}
	docs, _, err := c.engine.Execute(c.coll, plan, predicate)
	if err != nil {
		return nil, err
	}
	return applyFindOptions(docs, opts), nil
}

// FindOne returns the first matching document, or (nil, nil) if none match.
func (c *Collection) FindOne(predicate *query.Predicate) (bson.D, error) {
	docs, err := c.Find(predicate, &FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Count returns the number of documents matching predicate.
func (c *Collection) Count(predicate *query.Predicate) (int, error) {
	docs, err := c.Find(predicate, nil)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// UpdateOne replaces the first document matching predicate with newDoc
// (its _id is preserved). Returns (false, nil) if nothing matched.
func (c *Collection) UpdateOne(predicate *query.Predicate, newDoc bson.D) (bool, error) {
	old, err := c.FindOne(predicate)
	if err != nil || old == nil {
		return false, err
	}
	id, err := document.ExtractID(old)
	if err != nil {
		return false, err
	}
	txn := c.db.Begin()
	op, changes, err := c.engine.PrepareUpdate(c.coll, id, newDoc)
	if err != nil {
		return false, err
	}
	if err := txn.txn.AddOperation(op, changes); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateMany applies the same replacement document's non-_id fields to
// every document matching predicate, as one atomic transaction. Returns the
// number of documents updated.
//
// Each match's update is staged against the live index state before the
// batch's transaction starts, so two matches that would only collide with
// each other under a unique key (neither conflicts with anything already
// committed) both pass staging and the conflict only surfaces once Commit
// applies the batch.
func (c *Collection) UpdateMany(predicate *query.Predicate, newDoc bson.D) (int, error) {
	docs, err := c.Find(predicate, nil)
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	txn := c.db.Begin()
	for _, old := range docs {
		id, err := document.ExtractID(old)
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		op, changes, err := c.engine.PrepareUpdate(c.coll, id, newDoc)
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		if err := txn.txn.AddOperation(op, changes); err != nil {
			txn.Rollback()
			return 0, err
		}
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// DeleteOne removes the first document matching predicate. Returns
// (false, nil) if nothing matched.
func (c *Collection) DeleteOne(predicate *query.Predicate) (bool, error) {
	old, err := c.FindOne(predicate)
	if err != nil || old == nil {
		return false, err
	}
	id, err := document.ExtractID(old)
	if err != nil {
		return false, err
	}
	txn := c.db.Begin()
	op, changes, err := c.engine.PrepareDelete(c.coll, id)
	if err != nil {
		return false, err
	}
	if err := txn.txn.AddOperation(op, changes); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteMany removes every document matching predicate as one atomic
// transaction, returning the number of documents removed.
func (c *Collection) DeleteMany(predicate *query.Predicate) (int, error) {
	docs, err := c.Find(predicate, nil)
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	txn := c.db.Begin()
	for _, old := range docs {
		id, err := document.ExtractID(old)
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		op, changes, err := c.engine.PrepareDelete(c.coll, id)
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		if err := txn.txn.AddOperation(op, changes); err != nil {
			txn.Rollback()
			return 0, err
		}
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// CreateIndex builds a new single-field index, backfilling it from every
// document currently in the collection.
func (c *Collection) CreateIndex(name, path string, unique bool) error {
	c.coll.Lock()
	defer c.coll.Unlock()
	_, err := c.coll.CreateIndex(name, path, unique, c.docReader())
	return err
}

// CreateCompoundIndex builds a new multi-field index over paths, in order,
// backfilling it the same way CreateIndex does.
func (c *Collection) CreateCompoundIndex(name string, paths []string, unique bool) error {
	c.coll.Lock()
	defer c.coll.Unlock()
	_, err := c.coll.CreateCompoundIndex(name, paths, unique, c.docReader())
	return err
}

func (c *Collection) docReader() func(types.DocID) (bson.D, error) {
	return func(id types.DocID) (bson.D, error) { return c.engine.ReadDocument(c.coll, id) }
}

// ListIndexes returns every index currently registered on the collection,
// in name order.
func (c *Collection) ListIndexes() []query.IndexDescriptor {
	c.coll.RLock()
	defer c.coll.RUnlock()
	return c.coll.ListIndexes()
}

// DropIndex removes a previously created index. The implicit _id index
// cannot be dropped.
func (c *Collection) DropIndex(name string) error {
	c.coll.Lock()
	defer c.coll.Unlock()
	return c.coll.DropIndex(name)
}

// ExplainResult is explain()'s non-executing description of the plan
// Find would choose for predicate.
type ExplainResult struct {
	Plan  string
	Index string
	Cost  string
	Query string
}

// Explain reports the plan Find would use for predicate, without running
// it.
func (c *Collection) Explain(predicate *query.Predicate) ExplainResult {
	plan := c.engine.Plan(c.coll, predicate, describePredicate(predicate))
	return ExplainResult{
		Plan:  plan.Kind.String(),
		Index: plan.Index,
		Cost:  string(plan.Cost),
		Query: plan.Query,
	}
}

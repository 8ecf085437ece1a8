package storage

import (
	"github.com/ironbase/ironbase/pkg/document"
	"github.com/ironbase/ironbase/pkg/query"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Plan chooses an execution plan for predicate over coll's current index
// set, without running anything — the same logic Find and Explain share.
func (se *StorageEngine) Plan(coll *Collection, predicate *query.Predicate, queryText string) *query.Plan {
	coll.RLock()
	descs := coll.ListIndexes()
	coll.RUnlock()
	return query.ChoosePlan(predicate, descs, queryText)
}

// PlanWithHint forces the named index, building an IndexScan/
// IndexRangeScan plan from whatever equality/range bindings predicate
// supplies for that index's fields, or CollectionScan if the index can't
// serve the predicate at all (find_with_hint's contract: compare its
// result to find's own choice for the soundness property).
func (se *StorageEngine) PlanWithHint(coll *Collection, predicate *query.Predicate, indexName, queryText string) (*query.Plan, error) {
	coll.RLock()
	idx, err := coll.GetIndex(indexName)
	coll.RUnlock()
	if err != nil {
		return nil, err
	}
	desc := idx.Descriptor()
	p := query.ChoosePlan(predicate, []query.IndexDescriptor{desc}, queryText)
	return p, nil
}

// Execute runs plan against coll, re-validating the full predicate on
// every candidate document (an index only guarantees a subset match), and
// returns the matching documents paired with their doc ids.
func (se *StorageEngine) Execute(coll *Collection, plan *query.Plan, predicate *query.Predicate) ([]bson.D, []types.DocID, error) {
	switch plan.Kind {
	case query.IndexScan, query.IndexRangeScan:
		return se.executeIndexed(coll, plan, predicate)
	default:
		return se.executeCollectionScan(coll, predicate)
	}
}

func (se *StorageEngine) executeCollectionScan(coll *Collection, predicate *query.Predicate) ([]bson.D, []types.DocID, error) {
	coll.RLock()
	snap := coll.Catalog.Snapshot()
	coll.RUnlock()

	var docs []bson.D
	var ids []types.DocID
	for id, offset := range snap {
		doc, err := se.readDocumentAt(offset)
		if err != nil {
			return nil, nil, err
		}
		if predicate.Matches(doc) {
			docs = append(docs, doc)
			ids = append(ids, id)
		}
	}
	return docs, ids, nil
}

func (se *StorageEngine) executeIndexed(coll *Collection, plan *query.Plan, predicate *query.Predicate) ([]bson.D, []types.DocID, error) {
	coll.RLock()
	idx, err := coll.GetIndex(plan.Index)
	if err != nil {
		coll.RUnlock()
		return nil, nil, err
	}

	prefix, err := canonicalizeValues(plan.EqualityPrefix)
	if err != nil {
		coll.RUnlock()
		return nil, nil, err
	}

	var candidates []types.DocID
	if plan.Kind == query.IndexScan {
		candidates = idx.PointLookup(prefix)
	} else {
		lo, hi, loInc, hiInc, rerr := rangeKeys(prefix, plan)
		if rerr != nil {
			coll.RUnlock()
			return nil, nil, rerr
		}
		candidates = idx.RangeScan(lo, hi, loInc, hiInc)
	}
	coll.RUnlock()

	var docs []bson.D
	var ids []types.DocID
	for _, id := range candidates {
		offset, ok := coll.Catalog.Get(id)
		if !ok {
			continue // entry was concurrently removed; skip rather than error
		}
		doc, err := se.readDocumentAt(offset)
		if err != nil {
			return nil, nil, err
		}
		if predicate.Matches(doc) {
			docs = append(docs, doc)
			ids = append(ids, id)
		}
	}
	return docs, ids, nil
}

func canonicalizeValues(values []any) (types.KeyTuple, error) {
	out := make(types.KeyTuple, 0, len(values))
	for _, v := range values {
		c, err := document.Canonicalize(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// rangeKeys builds the lo/hi KeyTuple bounds for an IndexRangeScan: the
// equality prefix plus the range field's lower/upper bound appended, if
// the direction has one (an open-ended lo/hi on that side).
func rangeKeys(prefix types.KeyTuple, plan *query.Plan) (lo, hi types.KeyTuple, loInclusive, hiInclusive bool, err error) {
	loInclusive, hiInclusive = true, true

	if plan.RangeLower != nil {
		v, cErr := document.Canonicalize(plan.RangeLower.Value)
		if cErr != nil {
			return nil, nil, false, false, cErr
		}
		lo = append(append(types.KeyTuple{}, prefix...), v)
		loInclusive = plan.RangeLower.Inclusive
	} else if len(prefix) > 0 {
		lo = prefix
	}

	if plan.RangeUpper != nil {
		v, cErr := document.Canonicalize(plan.RangeUpper.Value)
		if cErr != nil {
			return nil, nil, false, false, cErr
		}
		hi = append(append(types.KeyTuple{}, prefix...), v)
		hiInclusive = plan.RangeUpper.Inclusive
	} else if len(prefix) > 0 {
		hi = prefix
	}

	return lo, hi, loInclusive, hiInclusive, nil
}

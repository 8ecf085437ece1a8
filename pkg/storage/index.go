package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ironbase/ironbase/pkg/btree"
	"github.com/ironbase/ironbase/pkg/document"
	"github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/query"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// btreeOrder is the B+tree order the index subsystem uses: order 32 means
// T (the btree package's minimum-degree parameter) is 16, giving up to
// 2T-1 = 31 keys and 2T = 32 children per internal node.
const btreeOrder = 16

// Index is one collection's secondary (or primary _id) index: a descriptor
// plus the B+tree backing it. The tree's own per-node locks give
// finer-grained concurrency than the descriptor's lock, which only guards
// metadata (name/paths/unique) that never changes after creation.
type Index struct {
	mu     sync.RWMutex
	Name   string
	Paths  []string
	Unique bool
	tree   *btree.BPlusTree
}

func newIndex(name string, paths []string, unique bool) *Index {
	var tree *btree.BPlusTree
	if unique {
		tree = btree.NewUniqueTree(btreeOrder)
	} else {
		tree = btree.NewTree(btreeOrder)
	}
	return &Index{Name: name, Paths: append([]string{}, paths...), Unique: unique, tree: tree}
}

// Descriptor returns the planner-facing view of this index.
func (idx *Index) Descriptor() query.IndexDescriptor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return query.IndexDescriptor{Name: idx.Name, Paths: append([]string{}, idx.Paths...), Unique: idx.Unique}
}

// keyFor canonicalizes doc's indexed fields into the tree key shape
// (KeyTuple for a single field already wrapped, so compound and
// single-field indexes share one code path). Returns ok=false if any
// indexed path is absent on doc (the entry is simply not indexed, matching
// a partial/sparse-index-like behavior for missing fields).
func (idx *Index) keyFor(doc bson.D) (types.KeyTuple, bool, error) {
	tuple := make(types.KeyTuple, 0, len(idx.Paths))
	for _, p := range idx.Paths {
		v, err := document.CanonicalizePath(doc, p)
		if err != nil {
			return nil, false, nil
		}
		tuple = append(tuple, v)
	}
	return tuple, true, nil
}

// entryKey builds the actual B+tree key: the raw KeyTuple for a unique
// index, or the tuple plus the doc id tiebreaker for a non-unique one so
// repeated field values still produce distinct tree entries.
func (idx *Index) entryKey(fields types.KeyTuple, id types.DocID) types.Comparable {
	if idx.Unique {
		return fields
	}
	return types.IndexEntryKey{Fields: fields, ID: id}
}

// Insert adds doc's entry for id into the index, if doc has a value at
// every indexed path.
func (idx *Index) Insert(doc bson.D, id types.DocID) error {
	fields, ok, err := idx.keyFor(doc)
	if err != nil || !ok {
		return err
	}
	key := idx.entryKey(fields, id)
	if err := idx.tree.Insert(key, id); err != nil {
		return &errors.DuplicateKeyError{Index: idx.Name, Key: formatKeyTuple(fields)}
	}
	return nil
}

func formatKeyTuple(fields types.KeyTuple) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if s, ok := f.(fmt.Stringer); ok {
			parts[i] = s.String()
		} else {
			parts[i] = fmt.Sprintf("%v", f)
		}
	}
	return strings.Join(parts, ",")
}

// Remove deletes doc's entry for id from the index, if it has one.
func (idx *Index) Remove(doc bson.D, id types.DocID) {
	fields, ok, err := idx.keyFor(doc)
	if err != nil || !ok {
		return
	}
	idx.tree.Delete(idx.entryKey(fields, id))
}

// WouldConflict reports whether inserting fields under excluding's doc id
// would violate this index's uniqueness (i.e. some other document already
// holds fields). Used to validate a staged insert/update before it is
// ever written to the WAL: per-key uniqueness is checked during staging
// so commit does not fail on a duplicate key.
func (idx *Index) WouldConflict(fields types.KeyTuple, excluding types.DocID) bool {
	if !idx.Unique {
		return false
	}
	existing, ok := idx.tree.Get(fields)
	return ok && existing.Compare(excluding) != 0
}

// PointLookup returns every doc id stored for an equality match on fields.
func (idx *Index) PointLookup(fields types.KeyTuple) []types.DocID {
	if idx.Unique {
		if id, ok := idx.tree.Get(fields); ok {
			return []types.DocID{id}
		}
		return nil
	}

	var out []types.DocID
	c := btree.NewCursor(idx.tree)
	c.Seek(types.LowBound(fields))
	defer c.Close()
	for c.Valid() {
		k := c.Key().(types.IndexEntryKey)
		if k.Fields.ComparePrefix(fields) != 0 {
			break
		}
		out = append(out, c.Value())
		if !c.Next() {
			break
		}
	}
	return out
}

// RangeScan walks doc ids whose field tuple falls within [lo, hi]
// (inclusive bounds per loInclusive/hiInclusive), in key order. A nil lo
// means "from the start"; a nil hi means "to the end".
func (idx *Index) RangeScan(lo, hi types.KeyTuple, loInclusive, hiInclusive bool) []types.DocID {
	var out []types.DocID
	c := btree.NewCursor(idx.tree)
	defer c.Close()

	var seekKey types.Comparable
	if lo != nil {
		if idx.Unique {
			seekKey = lo
		} else {
			seekKey = types.LowBound(lo)
		}
		c.Seek(seekKey)
		if !idx.Unique && !loInclusive {
			// LowBound already sits at-or-after an equal prefix; skip
			// exact-equal entries when the lower bound is exclusive.
			for c.Valid() {
				k := c.Key().(types.IndexEntryKey)
				if k.Fields.ComparePrefix(lo) != 0 {
					break
				}
				if !c.Next() {
					break
				}
			}
		}
	} else {
		c.Seek(nil)
	}

	for c.Valid() {
		var fields types.KeyTuple
		var id types.DocID
		switch k := c.Key().(type) {
		case types.IndexEntryKey:
			fields = k.Fields
			id = k.ID
		case types.KeyTuple:
			fields = k
			id = c.Value()
		}

		if hi != nil {
			cmp := fields.ComparePrefix(hi)
			if cmp > 0 || (cmp == 0 && !hiInclusive && len(hi) == len(fields)) {
				break
			}
		}
		if lo != nil && idx.Unique {
			cmp := fields.ComparePrefix(lo)
			if cmp < 0 || (cmp == 0 && !loInclusive && len(lo) == len(fields)) {
				if !c.Next() {
					break
				}
				continue
			}
		}

		out = append(out, id)
		if !c.Next() {
			break
		}
	}
	return out
}

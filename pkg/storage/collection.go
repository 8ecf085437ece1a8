package storage

import (
	"sort"
	"sync"

	"github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/query"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// idIndexName is the name of every collection's implicit, non-droppable
// unique index on _id.
const idIndexName = "_id_"

// Collection is the engine's in-memory state for one named collection: its
// document catalog, its index set (including the mandatory _id index),
// and the per-collection read/write lock guarding both. Locks are held for
// the duration of a single operation, never across a whole transaction —
// transaction staging lives in the transaction's own private buffers.
type Collection struct {
	mu      sync.RWMutex
	Name    string
	Catalog *Catalog
	Indexes map[string]*Index
}

// NewCollection returns a freshly created collection with only its
// implicit _id index.
func NewCollection(name string) *Collection {
	return &Collection{
		Name:    name,
		Catalog: NewCatalog(),
		Indexes: map[string]*Index{
			idIndexName: newIndex(idIndexName, []string{"_id"}, true),
		},
	}
}

// RLock/RUnlock/Lock/Unlock expose the collection's lock directly to
// callers that need to span a read-modify-write (e.g. unique-key staging
// checks inside a transaction).
func (c *Collection) RLock()   { c.mu.RLock() }
func (c *Collection) RUnlock() { c.mu.RUnlock() }
func (c *Collection) Lock()    { c.mu.Lock() }
func (c *Collection) Unlock()  { c.mu.Unlock() }

// GetIndex returns the named index, or IndexNotFoundError.
func (c *Collection) GetIndex(name string) (*Index, error) {
	idx, ok := c.Indexes[name]
	if !ok {
		return nil, &errors.IndexNotFoundError{Collection: c.Name, Name: name}
	}
	return idx, nil
}

// IDIndex returns the collection's implicit unique _id index.
func (c *Collection) IDIndex() *Index { return c.Indexes[idIndexName] }

// ListIndexes returns index descriptors in name order, for deterministic
// output.
func (c *Collection) ListIndexes() []query.IndexDescriptor {
	out := make([]query.IndexDescriptor, 0, len(c.Indexes))
	for _, idx := range c.Indexes {
		out = append(out, idx.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateIndex registers a new single-field index. Fails with
// IndexAlreadyExistsError if the name is taken. docs resolves a doc id to
// its current document, used to backfill the new index from the catalog.
func (c *Collection) CreateIndex(name, path string, unique bool, docs func(types.DocID) (bson.D, error)) (*Index, error) {
	return c.CreateCompoundIndex(name, []string{path}, unique, docs)
}

// CreateCompoundIndex registers a new (possibly multi-field) index and
// backfills it from every live document in the catalog, matching the
// rebuild-on-open persistence design (an index is always built by scanning
// existing documents, whether at open time or at creation time).
func (c *Collection) CreateCompoundIndex(name string, paths []string, unique bool, docs func(types.DocID) (bson.D, error)) (*Index, error) {
	if _, exists := c.Indexes[name]; exists {
		return nil, &errors.IndexAlreadyExistsError{Collection: c.Name, Name: name}
	}
	idx := newIndex(name, paths, unique)

	for id := range c.Catalog.Snapshot() {
		doc, err := docs(id)
		if err != nil {
			return nil, err
		}
		if err := idx.Insert(doc, id); err != nil {
			if dupErr, ok := err.(*errors.DuplicateKeyError); ok {
				dupErr.Collection = c.Name
			}
			return nil, err
		}
	}

	c.Indexes[name] = idx
	return idx, nil
}

// DropIndex removes a non-_id index.
func (c *Collection) DropIndex(name string) error {
	if name == idIndexName {
		return &errors.QueryError{Reason: "the _id index cannot be dropped"}
	}
	if _, ok := c.Indexes[name]; !ok {
		return &errors.IndexNotFoundError{Collection: c.Name, Name: name}
	}
	delete(c.Indexes, name)
	return nil
}

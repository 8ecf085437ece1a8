package storage

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/ironbase/ironbase/pkg/types"
)

// Catalog is a single collection's document id -> file offset mapping: the
// authoritative answer to "where on disk is the live version of document
// d right now". It holds no back-pointers into indexes; the indirection
// goes the other way (index -> doc id -> catalog -> offset), per the
// cyclic-ownership design note.
type Catalog struct {
	mu      sync.RWMutex
	entries map[types.DocID]uint64
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[types.DocID]uint64)}
}

// Get returns the offset for id, if a live entry exists.
func (c *Catalog) Get(id types.DocID) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	off, ok := c.entries[id]
	return off, ok
}

// Set records (or overwrites) id's current offset. The previous offset, if
// any, is simply dropped — the record it pointed at becomes dead space
// until compaction, never overwritten in place.
func (c *Catalog) Set(id types.DocID, offset uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = offset
}

// Delete removes id's entry, e.g. after a tombstone record is applied.
func (c *Catalog) Delete(id types.DocID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len returns the number of live documents tracked.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the current id->offset pairs, safe to range
// over without holding the catalog's lock.
func (c *Catalog) Snapshot() map[types.DocID]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[types.DocID]uint64, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// catalogTriple is the [type-tag, value-text, offset] encoding of one
// catalog entry: the tag disambiguates which DocID variant the text
// represents, since serializing a tagged-variant key directly into text
// would lose type information (integer 2 vs string "2").
type catalogTriple struct {
	Tag    string `bson:"tag"`
	Text   string `bson:"text"`
	Offset uint64 `bson:"offset"`
}

func docIDToTriple(id types.DocID, offset uint64) catalogTriple {
	switch id.Kind {
	case types.DocIDInt:
		return catalogTriple{Tag: "i", Text: strconv.FormatInt(id.Int, 10), Offset: offset}
	case types.DocIDString:
		return catalogTriple{Tag: "s", Text: id.Str, Offset: offset}
	default:
		return catalogTriple{Tag: "o", Text: id.Opaque.String(), Offset: offset}
	}
}

func tripleToDocID(t catalogTriple) (types.DocID, uint64, error) {
	switch t.Tag {
	case "i":
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return types.DocID{}, 0, fmt.Errorf("storage: catalog triple: bad int %q: %w", t.Text, err)
		}
		return types.NewIntDocID(n), t.Offset, nil
	case "s":
		return types.NewStringDocID(t.Text), t.Offset, nil
	case "o":
		u, err := uuid.Parse(t.Text)
		if err != nil {
			return types.DocID{}, 0, fmt.Errorf("storage: catalog triple: bad opaque id %q: %w", t.Text, err)
		}
		return types.DocID{Kind: types.DocIDOpaque, Opaque: u}, t.Offset, nil
	default:
		return types.DocID{}, 0, fmt.Errorf("storage: catalog triple: unknown type tag %q", t.Tag)
	}
}

// toTriples serializes the catalog to its persisted triple form.
func (c *Catalog) toTriples() []catalogTriple {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]catalogTriple, 0, len(c.entries))
	for id, off := range c.entries {
		out = append(out, docIDToTriple(id, off))
	}
	return out
}

// catalogFromTriples reconstructs a Catalog from its persisted triples,
// reconstructing each typed key exactly.
func catalogFromTriples(triples []catalogTriple) (*Catalog, error) {
	c := NewCatalog()
	for _, t := range triples {
		id, off, err := tripleToDocID(t)
		if err != nil {
			return nil, err
		}
		c.entries[id] = off
	}
	return c, nil
}

package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ironbase/ironbase/pkg/types"
)

func TestCatalogSetGetDelete(t *testing.T) {
	c := NewCatalog()
	id := types.NewIntDocID(7)
	if _, ok := c.Get(id); ok {
		t.Fatalf("expected no entry before Set")
	}
	c.Set(id, 1024)
	off, ok := c.Get(id)
	if !ok || off != 1024 {
		t.Fatalf("expected offset 1024, got %d (ok=%v)", off, ok)
	}
	c.Delete(id)
	if _, ok := c.Get(id); ok {
		t.Fatalf("expected entry to be gone after Delete")
	}
	if c.Len() != 0 {
		t.Fatalf("expected an empty catalog, got length %d", c.Len())
	}
}

// TestCatalogPreservesTypeFidelity reproduces the scenario where an
// integer id and its string spelling coexist in the same collection and
// must round-trip through the persisted triple form as distinct keys.
func TestCatalogPreservesTypeFidelity(t *testing.T) {
	c := NewCatalog()
	intID := types.NewIntDocID(2)
	strID := types.NewStringDocID("2")
	opaqueID := types.DocID{Kind: types.DocIDOpaque, Opaque: uuid.New()}

	c.Set(intID, 10)
	c.Set(strID, 20)
	c.Set(opaqueID, 30)
	if c.Len() != 3 {
		t.Fatalf("expected 3 distinct entries, got %d", c.Len())
	}

	restored, err := catalogFromTriples(c.toTriples())
	if err != nil {
		t.Fatalf("from triples: %v", err)
	}
	if restored.Len() != 3 {
		t.Fatalf("expected 3 entries after round trip, got %d", restored.Len())
	}
	if off, ok := restored.Get(intID); !ok || off != 10 {
		t.Fatalf("expected int id 2 -> 10, got %d (ok=%v)", off, ok)
	}
	if off, ok := restored.Get(strID); !ok || off != 20 {
		t.Fatalf("expected string id \"2\" -> 20, got %d (ok=%v)", off, ok)
	}
	if off, ok := restored.Get(opaqueID); !ok || off != 30 {
		t.Fatalf("expected opaque id -> 30, got %d (ok=%v)", off, ok)
	}
}

func TestTripleToDocIDRejectsUnknownTag(t *testing.T) {
	if _, _, err := tripleToDocID(catalogTriple{Tag: "?", Text: "x"}); err == nil {
		t.Fatalf("expected an error for an unrecognized tag")
	}
}

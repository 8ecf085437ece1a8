package storage

import (
	"testing"

	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func docWithEmail(email string) bson.D { return bson.D{{Key: "email", Value: email}} }
func docWithAge(age int) bson.D        { return bson.D{{Key: "age", Value: age}} }

func TestUniqueIndexInsertLookupRemove(t *testing.T) {
	idx := newIndex("email_idx", []string{"email"}, true)
	id1 := types.NewIntDocID(1)
	if err := idx.Insert(docWithEmail("a@x"), id1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	hits := idx.PointLookup(types.KeyTuple{types.VarcharKey("a@x")})
	if len(hits) != 1 || hits[0].Compare(id1) != 0 {
		t.Fatalf("expected a single hit for id1, got %v", hits)
	}

	id2 := types.NewIntDocID(2)
	if err := idx.Insert(docWithEmail("a@x"), id2); err == nil {
		t.Fatalf("expected a duplicate key error inserting a second document under the same email")
	}

	idx.Remove(docWithEmail("a@x"), id1)
	if hits := idx.PointLookup(types.KeyTuple{types.VarcharKey("a@x")}); len(hits) != 0 {
		t.Fatalf("expected no hits after removal, got %v", hits)
	}
	if err := idx.Insert(docWithEmail("a@x"), id2); err != nil {
		t.Fatalf("expected id2 to now insert cleanly, got %v", err)
	}
}

func TestUniqueIndexWouldConflict(t *testing.T) {
	idx := newIndex("email_idx", []string{"email"}, true)
	id1 := types.NewIntDocID(1)
	idx.Insert(docWithEmail("a@x"), id1)

	if idx.WouldConflict(types.KeyTuple{types.VarcharKey("a@x")}, id1) {
		t.Fatalf("expected no conflict when excluding the owning document itself (an update)")
	}
	if !idx.WouldConflict(types.KeyTuple{types.VarcharKey("a@x")}, types.NewIntDocID(2)) {
		t.Fatalf("expected a conflict for a different document claiming the same key")
	}
}

func TestNonUniqueIndexAllowsRepeatedKeys(t *testing.T) {
	idx := newIndex("age_idx", []string{"age"}, false)
	ids := []types.DocID{types.NewIntDocID(1), types.NewIntDocID(2), types.NewIntDocID(3)}
	for _, id := range ids {
		if err := idx.Insert(docWithAge(30), id); err != nil {
			t.Fatalf("insert %v: %v", id, err)
		}
	}
	hits := idx.PointLookup(types.KeyTuple{types.IntKey(30)})
	if len(hits) != 3 {
		t.Fatalf("expected 3 entries sharing the same key, got %d", len(hits))
	}

	idx.Remove(docWithAge(30), ids[1])
	hits = idx.PointLookup(types.KeyTuple{types.IntKey(30)})
	if len(hits) != 2 {
		t.Fatalf("expected 2 entries after removing one, got %d", len(hits))
	}
}

func TestIndexRangeScan(t *testing.T) {
	idx := newIndex("age_idx", []string{"age"}, false)
	for age := 0; age < 10; age++ {
		idx.Insert(docWithAge(age), types.NewIntDocID(int64(age)))
	}
	lo := types.KeyTuple{types.IntKey(3)}
	hi := types.KeyTuple{types.IntKey(6)}
	hits := idx.RangeScan(lo, hi, true, false)
	if len(hits) != 3 {
		t.Fatalf("expected ages [3,6) to yield 3 entries, got %d: %v", len(hits), hits)
	}
	for _, id := range hits {
		if id.Int < 3 || id.Int >= 6 {
			t.Fatalf("unexpected id %v outside [3,6)", id)
		}
	}
}

func TestIndexRangeScanOpenEnded(t *testing.T) {
	idx := newIndex("age_idx", []string{"age"}, false)
	for age := 0; age < 5; age++ {
		idx.Insert(docWithAge(age), types.NewIntDocID(int64(age)))
	}
	hits := idx.RangeScan(types.KeyTuple{types.IntKey(2)}, nil, true, false)
	if len(hits) != 3 {
		t.Fatalf("expected ages >= 2 to yield 3 entries, got %d", len(hits))
	}
}

func TestKeyForSkipsDocumentsMissingAnIndexedPath(t *testing.T) {
	idx := newIndex("email_idx", []string{"email"}, true)
	_, ok, err := idx.keyFor(bson.D{{Key: "name", Value: "no email here"}})
	if err != nil {
		t.Fatalf("keyFor: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a document missing the indexed field")
	}
}

func TestCompoundIndexPartialPrefixLookup(t *testing.T) {
	idx := newIndex("country_city_idx", []string{"country", "city"}, false)
	type row struct {
		country, city string
		id            int64
	}
	rows := []row{
		{"us", "austin", 1},
		{"us", "nyc", 2},
		{"us", "reno", 3},
		{"ca", "toronto", 4},
	}
	for _, r := range rows {
		doc := bson.D{{Key: "country", Value: r.country}, {Key: "city", Value: r.city}}
		if err := idx.Insert(doc, types.NewIntDocID(r.id)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	prefix := types.KeyTuple{types.VarcharKey("us")}
	hits := idx.PointLookup(prefix)
	if len(hits) != 3 {
		t.Fatalf("expected 3 docs with country=us, got %d: %v", len(hits), hits)
	}
}

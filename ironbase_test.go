package ironbase

import (
	"path/filepath"
	"testing"

	"github.com/ironbase/ironbase/pkg/query"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ironbase.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fieldOf(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestInsertFindUpdateDeleteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	users, err := db.Collection("users")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}

	id, err := users.InsertOne(bson.D{{Key: "name", Value: "Alice"}, {Key: "age", Value: 30}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	docs, err := users.Find(query.Eq("name", "Alice"), nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 match, got %d", len(docs))
	}
	if v, _ := fieldOf(docs[0], "age"); v != int32(30) {
		t.Fatalf("expected age 30, got %v", v)
	}

	updated, err := users.UpdateOne(query.Eq("name", "Alice"), bson.D{{Key: "_id", Value: id}, {Key: "name", Value: "Alice"}, {Key: "age", Value: 31}})
	if err != nil || !updated {
		t.Fatalf("update: updated=%v err=%v", updated, err)
	}
	doc, err := users.FindOne(query.Eq("name", "Alice"))
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if v, _ := fieldOf(doc, "age"); v != int32(31) {
		t.Fatalf("expected age 31 after update, got %v", v)
	}

	deleted, err := users.DeleteOne(query.Eq("name", "Alice"))
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	count, err := users.Count(nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 documents after delete, got %d", count)
	}
}

// TestUniqueIndexRejectsDuplicateAndLeavesIndexesIntact mirrors the
// boundary scenario where a duplicate insert under a unique index fails
// cleanly and list_indexes remains unchanged.
func TestUniqueIndexRejectsDuplicateAndLeavesIndexesIntact(t *testing.T) {
	db := openTestDB(t)
	users, _ := db.Collection("users")
	if err := users.CreateIndex("email_idx", "email", true); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if _, err := users.InsertOne(bson.D{{Key: "email", Value: "a@x.com"}}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := users.InsertOne(bson.D{{Key: "email", Value: "a@x.com"}}); err == nil {
		t.Fatalf("expected a duplicate-key error on the second insert")
	}
	indexes := users.ListIndexes()
	found := false
	for _, idx := range indexes {
		if idx.Name == "email_idx" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected email_idx to still be registered after the failed insert")
	}
}

// TestExplainReportsIndexRangeScanOverAWideDataset mirrors the scenario
// where a range query over an indexed field is served by an
// IndexRangeScan at O(log n + k) cost and returns the expected slice.
func TestExplainReportsIndexRangeScanOverAWideDataset(t *testing.T) {
	db := openTestDB(t)
	users, _ := db.Collection("users")
	if err := users.CreateIndex("age_idx", "age", false); err != nil {
		t.Fatalf("create index: %v", err)
	}
	docs := make([]bson.D, 0, 1000)
	for i := 0; i < 1000; i++ {
		docs = append(docs, bson.D{{Key: "age", Value: i}})
	}
	if _, err := users.InsertMany(docs); err != nil {
		t.Fatalf("insert many: %v", err)
	}

	predicate := query.And(query.Gte("age", 100), query.Lt("age", 200))
	explain := users.Explain(predicate)
	if explain.Plan != "IndexRangeScan" {
		t.Fatalf("expected IndexRangeScan, got %s", explain.Plan)
	}
	if explain.Index != "age_idx" {
		t.Fatalf("expected age_idx to be chosen, got %s", explain.Index)
	}
	if explain.Cost != "O(log n + k)" {
		t.Fatalf("expected O(log n + k) cost, got %s", explain.Cost)
	}

	matches, err := users.Find(predicate, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 100 {
		t.Fatalf("expected 100 matches for age in [100,200), got %d", len(matches))
	}
}

// TestCatalogDistinguishesIntAndStringIDsInTheSameCollection reproduces
// the type-fidelity scenario: an integer id and its string spelling must
// coexist as distinct documents, each retrievable by its own type.
func TestCatalogDistinguishesIntAndStringIDsInTheSameCollection(t *testing.T) {
	db := openTestDB(t)
	users, _ := db.Collection("users")

	if _, err := users.InsertOne(bson.D{{Key: "_id", Value: int64(2)}, {Key: "label", Value: "int-two"}}); err != nil {
		t.Fatalf("insert int id: %v", err)
	}
	if _, err := users.InsertOne(bson.D{{Key: "_id", Value: "2"}, {Key: "label", Value: "string-two"}}); err != nil {
		t.Fatalf("insert string id: %v", err)
	}

	count, err := users.Count(nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both the int and string id '2' to exist as distinct documents, got %d", count)
	}
}

func TestTransactionCommitIsAtomicAcrossCollections(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Collection("accounts"); err != nil {
		t.Fatalf("collection: %v", err)
	}

	txn := db.Begin()
	if err := txn.InsertOne("accounts", bson.D{{Key: "_id", Value: int64(1)}, {Key: "balance", Value: 100}}); err != nil {
		t.Fatalf("stage insert: %v", err)
	}
	if err := txn.InsertOne("accounts", bson.D{{Key: "_id", Value: int64(2)}, {Key: "balance", Value: 0}}); err != nil {
		t.Fatalf("stage insert: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	accounts, _ := db.Collection("accounts")
	count, err := accounts.Count(nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both staged inserts to be visible after commit, got %d", count)
	}
}

func TestTransactionRollbackLeavesNoTrace(t *testing.T) {
	db := openTestDB(t)
	accounts, _ := db.Collection("accounts")

	txn := db.Begin()
	if err := txn.InsertOne("accounts", bson.D{{Key: "_id", Value: int64(1)}, {Key: "balance", Value: 100}}); err != nil {
		t.Fatalf("stage insert: %v", err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	count, err := accounts.Count(nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected a rolled-back transaction to leave no documents, got %d", count)
	}
}

func TestAggregatePipelineMatchGroupSort(t *testing.T) {
	db := openTestDB(t)
	sales, _ := db.Collection("sales")
	rows := []bson.D{
		{{Key: "region", Value: "east"}, {Key: "amount", Value: 10}},
		{{Key: "region", Value: "east"}, {Key: "amount", Value: 20}},
		{{Key: "region", Value: "west"}, {Key: "amount", Value: 5}},
	}
	if _, err := sales.InsertMany(rows); err != nil {
		t.Fatalf("insert many: %v", err)
	}

	out, err := sales.Aggregate([]bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$region"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}}}},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(out))
	}
	if v, _ := fieldOf(out[0], "_id"); v != "east" {
		t.Fatalf("expected the east region (total 30) to sort first, got %v", v)
	}
	if v, _ := fieldOf(out[0], "total"); v != 30.0 {
		t.Fatalf("expected east's total to be 30, got %v", v)
	}
}

func TestFindWithHintMatchesFindsResultSet(t *testing.T) {
	db := openTestDB(t)
	users, _ := db.Collection("users")
	if err := users.CreateIndex("age_idx", "age", false); err != nil {
		t.Fatalf("create index: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := users.InsertOne(bson.D{{Key: "age", Value: i}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	predicate := query.Gte("age", 10)
	want, err := users.Find(predicate, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got, err := users.FindWithHint(predicate, "age_idx", nil)
	if err != nil {
		t.Fatalf("find with hint: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected find_with_hint to agree with find's result size: got %d, want %d", len(got), len(want))
	}
}

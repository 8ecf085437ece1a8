package ironbase

import (
	"fmt"

	"github.com/ironbase/ironbase/pkg/document"
	ibErrors "github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/query"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Aggregate runs a pipeline of stages over every document in the collection,
// each stage consuming the previous stage's output. Supported stages are
// $match, $sort, $skip, $limit, $project, $count, and $group with the
// $sum/$avg/$min/$max/$count accumulators — the subset of the aggregation
// language that composes with the rest of the query engine's predicate and
// canonicalization machinery rather than a separate expression evaluator.
func (c *Collection) Aggregate(pipeline []bson.D) ([]bson.D, error) {
	docs, _, err := c.engine.Execute(c.coll, &query.Plan{Kind: query.CollectionScan}, nil)
	if err != nil {
		return nil, err
	}

	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, &ibErrors.QueryError{Reason: "each aggregation stage must have exactly one operator"}
		}
		op, arg := stage[0].Key, stage[0].Value
		var err error
		docs, err = runStage(docs, op, arg)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func runStage(docs []bson.D, op string, arg any) ([]bson.D, error) {
	switch op {
	case "$match":
		filter, ok := arg.(bson.D)
		if !ok {
			return nil, &ibErrors.QueryError{Reason: "$match requires a document argument"}
		}
		pred, err := matchDocToPredicate(filter)
		if err != nil {
			return nil, err
		}
		out := docs[:0:0]
		for _, d := range docs {
			if pred.Matches(d) {
				out = append(out, d)
			}
		}
		return out, nil

	case "$sort":
		spec, ok := arg.(bson.D)
		if !ok {
			return nil, &ibErrors.QueryError{Reason: "$sort requires a document argument"}
		}
		fields := make([]SortField, 0, len(spec))
		for _, e := range spec {
			desc := false
			if n, ok := toInt(e.Value); ok && n < 0 {
				desc = true
			}
			fields = append(fields, SortField{Path: e.Key, Descending: desc})
		}
		out := append([]bson.D{}, docs...)
		sortDocs(out, fields)
		return out, nil

	case "$skip":
		n, ok := toInt(arg)
		if !ok || n < 0 {
			return nil, &ibErrors.QueryError{Reason: "$skip requires a non-negative integer"}
		}
		if int(n) >= len(docs) {
			return nil, nil
		}
		return docs[n:], nil

	case "$limit":
		n, ok := toInt(arg)
		if !ok || n < 0 {
			return nil, &ibErrors.QueryError{Reason: "$limit requires a non-negative integer"}
		}
		if int(n) > len(docs) {
			n = int64(len(docs))
		}
		return docs[:n], nil

	case "$project":
		spec, ok := arg.(bson.D)
		if !ok {
			return nil, &ibErrors.QueryError{Reason: "$project requires a document argument"}
		}
		var fields []string
		for _, e := range spec {
			if truthy(e.Value) {
				fields = append(fields, e.Key)
			}
		}
		return projectDocs(docs, fields), nil

	case "$count":
		name, ok := arg.(string)
		if !ok || name == "" {
			return nil, &ibErrors.QueryError{Reason: "$count requires a non-empty field name"}
		}
		return []bson.D{{{Key: name, Value: int64(len(docs))}}}, nil

	case "$group":
		spec, ok := arg.(bson.D)
		if !ok {
			return nil, &ibErrors.QueryError{Reason: "$group requires a document argument"}
		}
		return runGroup(docs, spec)

	default:
		return nil, &ibErrors.QueryError{Reason: fmt.Sprintf("unsupported aggregation stage %q", op)}
	}
}

// matchDocToPredicate turns a $match filter document into a Predicate:
// each top-level field is either an equality value, or an operator
// document ({$gt:5}, {$lt:10}, ...), combined with implicit AND.
func matchDocToPredicate(filter bson.D) (*query.Predicate, error) {
	var conjuncts []*query.Predicate
	for _, e := range filter {
		if opDoc, ok := e.Value.(bson.D); ok && len(opDoc) > 0 && isOperatorDoc(opDoc) {
			for _, o := range opDoc {
				p, err := fieldOpPredicate(e.Key, o.Key, o.Value)
				if err != nil {
					return nil, err
				}
				conjuncts = append(conjuncts, p)
			}
			continue
		}
		conjuncts = append(conjuncts, query.Eq(e.Key, e.Value))
	}
	return query.And(conjuncts...), nil
}

func isOperatorDoc(d bson.D) bool {
	for _, e := range d {
		if len(e.Key) == 0 || e.Key[0] != '$' {
			return false
		}
	}
	return true
}

func fieldOpPredicate(path, op string, value any) (*query.Predicate, error) {
	switch op {
	case "$eq":
		return query.Eq(path, value), nil
	case "$ne":
		return query.Ne(path, value), nil
	case "$gt":
		return query.Gt(path, value), nil
	case "$gte":
		return query.Gte(path, value), nil
	case "$lt":
		return query.Lt(path, value), nil
	case "$lte":
		return query.Lte(path, value), nil
	default:
		return nil, &ibErrors.QueryError{Reason: fmt.Sprintf("unsupported $match operator %q", op)}
	}
}

// groupAccumulator holds one output field's running state across a group's
// member documents.
type groupAccumulator struct {
	key     string
	kind    string // "sum", "avg", "min", "max", "count"
	expr    string // source field path ("$field"), or "" when literal is used instead
	literal any    // the accumulator's raw argument when it isn't a "$field" path
	sum     float64
	count   int64
	min     types.Comparable
	max     types.Comparable
	minRaw  any
	maxRaw  any
}

func runGroup(docs []bson.D, spec bson.D) ([]bson.D, error) {
	var idExpr any
	accs := make([]groupAccumulator, 0, len(spec))
	for _, e := range spec {
		if e.Key == "_id" {
			idExpr = e.Value
			continue
		}
		accDoc, ok := e.Value.(bson.D)
		if !ok || len(accDoc) != 1 {
			return nil, &ibErrors.QueryError{Reason: fmt.Sprintf("$group field %q needs a single accumulator", e.Key)}
		}
		op, arg := accDoc[0].Key, accDoc[0].Value
		kind := ""
		switch op {
		case "$sum":
			kind = "sum"
		case "$avg":
			kind = "avg"
		case "$min":
			kind = "min"
		case "$max":
			kind = "max"
		case "$count":
			kind = "count"
		default:
			return nil, &ibErrors.QueryError{Reason: fmt.Sprintf("unsupported $group accumulator %q", op)}
		}
		expr, isFieldPath := arg.(string)
		var literal any
		if !isFieldPath || len(expr) == 0 || expr[0] != '$' {
			literal = arg
			expr = ""
		}
		accs = append(accs, groupAccumulator{key: e.Key, kind: kind, expr: expr, literal: literal})
	}

	order := []any{}
	groups := map[any][]groupAccumulator{}
	for _, d := range docs {
		key := evalGroupKey(d, idExpr)
		cur, seen := groups[key]
		if !seen {
			cur = cloneAccumulators(accs)
			order = append(order, key)
		}
		for i := range cur {
			applyAccumulator(&cur[i], d)
		}
		groups[key] = cur
	}

	out := make([]bson.D, 0, len(order))
	for _, key := range order {
		cur := groups[key]
		doc := bson.D{{Key: "_id", Value: key}}
		for _, a := range cur {
			doc = append(doc, bson.E{Key: a.key, Value: a.result()})
		}
		out = append(out, doc)
	}
	return out, nil
}

func cloneAccumulators(accs []groupAccumulator) []groupAccumulator {
	out := make([]groupAccumulator, len(accs))
	copy(out, accs)
	return out
}

func evalGroupKey(d bson.D, idExpr any) any {
	path, ok := idExpr.(string)
	if !ok || len(path) == 0 || path[0] != '$' {
		return idExpr // a literal grouping key (e.g. nil for a single group)
	}
	v, _ := document.Get(d, path[1:])
	return v
}

func applyAccumulator(a *groupAccumulator, d bson.D) {
	a.count++
	if a.kind == "count" {
		return
	}
	var v any
	if len(a.expr) > 0 && a.expr[0] == '$' {
		v, _ = document.Get(d, a.expr[1:])
	} else {
		v = a.literal
	}
	f, isNum := toFloat(v)
	switch a.kind {
	case "sum", "avg":
		if isNum {
			a.sum += f
		}
	case "min":
		if c, err := document.Canonicalize(v); err == nil && (a.min == nil || c.Compare(a.min) < 0) {
			a.min, a.minRaw = c, v
		}
	case "max":
		if c, err := document.Canonicalize(v); err == nil && (a.max == nil || c.Compare(a.max) > 0) {
			a.max, a.maxRaw = c, v
		}
	}
}

func (a groupAccumulator) result() any {
	switch a.kind {
	case "sum":
		return a.sum
	case "avg":
		if a.count == 0 {
			return 0.0
		}
		return a.sum / float64(a.count)
	case "min":
		return a.minRaw
	case "max":
		return a.maxRaw
	default: // count
		return a.count
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case int:
		return n != 0
	case int32:
		return n != 0
	case int64:
		return n != 0
	case float64:
		return n != 0
	default:
		return true
	}
}

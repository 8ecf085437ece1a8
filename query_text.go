package ironbase

import (
	"fmt"
	"strings"

	"github.com/ironbase/ironbase/pkg/query"
)

// describePredicate renders a predicate tree as a compact, human-readable
// query string for explain() output and diagnostics — not meant to be
// parsed back, only read.
func describePredicate(p *query.Predicate) string {
	if p == nil {
		return "{}"
	}
	switch {
	case p.Field != nil:
		return describeField(p.Field)
	case p.Not != nil:
		return "$not(" + describePredicate(p.Not) + ")"
	case p.Or != nil:
		return "$or(" + joinPredicates(p.Or) + ")"
	default:
		return "$and(" + joinPredicates(p.And) + ")"
	}
}

func joinPredicates(preds []*query.Predicate) string {
	parts := make([]string, len(preds))
	for i, c := range preds {
		parts[i] = describePredicate(c)
	}
	return strings.Join(parts, ", ")
}

func describeField(fc *query.FieldCondition) string {
	switch fc.Op {
	case query.OpExists:
		return fmt.Sprintf("%s:{$exists:%t}", fc.Path, fc.Exists)
	case query.OpType:
		return fmt.Sprintf("%s:{$type:%q}", fc.Path, fc.Type)
	case query.OpIn:
		return fmt.Sprintf("%s:{$in:%v}", fc.Path, fc.Values)
	case query.OpRegex:
		return fmt.Sprintf("%s:{$regex:%q}", fc.Path, fc.Pattern.String())
	case query.OpSize:
		return fmt.Sprintf("%s:{$size:%v}", fc.Path, fc.Value)
	case query.OpElemMatch:
		return fmt.Sprintf("%s:{$elemMatch:%s}", fc.Path, describePredicate(fc.Sub))
	default:
		return fmt.Sprintf("%s:{%s:%v}", fc.Path, fc.Op, fc.Value)
	}
}

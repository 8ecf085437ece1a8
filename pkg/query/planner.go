package query

import (
	"sort"

	"github.com/ironbase/ironbase/pkg/types"
)

// PlanKind names the shape of an execution plan.
type PlanKind int

const (
	CollectionScan PlanKind = iota
	IndexScan
	IndexRangeScan
)

func (k PlanKind) String() string {
	switch k {
	case IndexScan:
		return "IndexScan"
	case IndexRangeScan:
		return "IndexRangeScan"
	default:
		return "CollectionScan"
	}
}

// CostClass is the estimated asymptotic cost of a plan, reported by
// Explain without running the query.
type CostClass string

const (
	CostLogN      CostClass = "O(log n)"
	CostLogNPlusK CostClass = "O(log n + k)"
	CostLinear    CostClass = "O(n)"
)

// IndexDescriptor is the planner's view of a registered index: enough to
// decide whether it can serve a predicate, without any reference to the
// concrete B+tree backing it (pkg/storage supplies that at execution time).
type IndexDescriptor struct {
	Name   string
	Paths  []string // ordered fields; len==1 for a single-field index
	Unique bool
}

// Plan is the output of planning: which strategy to execute, which index
// (if any) it uses, the bindings needed to drive that index, and the
// estimated cost class. Plan never touches storage; pkg/storage consumes a
// Plan's fields to actually drive a B+tree or catalog scan.
type Plan struct {
	Kind  PlanKind
	Index string
	Cost  CostClass
	Query string

	// EqualityPrefix holds, in index field order, the bound equality
	// values an IndexScan/IndexRangeScan descends on.
	EqualityPrefix []any

	// RangeField/RangeLower/RangeUpper describe the trailing range bound a
	// IndexRangeScan adds after the equality prefix, if any.
	RangeField string
	RangeLower *types.RangeBound
	RangeUpper *types.RangeBound
}

// ChoosePlan selects an execution plan for predicate over the given
// candidate indexes, per the prefix-matching rules in the planner design:
// leading conjuncts of a compound index must be bound by equality; the
// first non-equality conjunct may be served as a trailing range; fields
// after that are not used. Ties break by longest prefix served, then
// presence of a range bound, then index name for determinism.
func ChoosePlan(predicate *Predicate, indexes []IndexDescriptor, queryText string) *Plan {
	if predicate == nil {
		return &Plan{Kind: CollectionScan, Cost: CostLinear, Query: queryText}
	}

	eqBindings := predicate.EqualityBindings()

	var best *planCandidate

	sorted := make([]IndexDescriptor, len(indexes))
	copy(sorted, indexes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, idx := range sorted {
		matchedEq := 0
		prefix := make([]any, 0, len(idx.Paths))
		for _, f := range idx.Paths {
			v, ok := eqBindings[f]
			if !ok {
				break
			}
			prefix = append(prefix, v)
			matchedEq++
		}

		var rangeField string
		var lower, upper *types.RangeBound
		hasRange := false
		if matchedEq < len(idx.Paths) {
			nextField := idx.Paths[matchedEq]
			lo, up, ok := predicate.RangeBinding(nextField)
			if ok {
				rangeField = nextField
				lower, upper = lo, up
				hasRange = true
			}
		}

		served := matchedEq
		if hasRange {
			served++
		}
		if served == 0 {
			continue // this index serves no conjunct of the predicate
		}

		kind := IndexScan
		cost := CostLogN
		if hasRange {
			kind = IndexRangeScan
			cost = CostLogNPlusK
		}

		cand := &planCandidate{
			plan: Plan{
				Kind:           kind,
				Index:          idx.Name,
				Cost:           cost,
				Query:          queryText,
				EqualityPrefix: prefix,
				RangeField:     rangeField,
				RangeLower:     lower,
				RangeUpper:     upper,
			},
			served:   served,
			hasRange: hasRange,
		}

		if best == nil || better(cand, best) {
			best = cand
		}
	}

	if best == nil {
		return &Plan{Kind: CollectionScan, Cost: CostLinear, Query: queryText}
	}
	return &best.plan
}

// planCandidate is an index's scored fit for a predicate, used only while
// ChoosePlan picks the winner.
type planCandidate struct {
	plan     Plan
	served   int
	hasRange bool
}

func better(a, b *planCandidate) bool {
	if a.served != b.served {
		return a.served > b.served
	}
	if a.hasRange != b.hasRange {
		return a.hasRange
	}
	return a.plan.Index < b.plan.Index
}

// Package query implements the predicate language, the index/collection
// scan planner, and an explain view over query plans. It has no dependency
// on pkg/storage: a Predicate is evaluated purely against an in-memory BSON
// document, and a Plan names an index by descriptor, not by concrete tree —
// pkg/storage supplies the actual catalog/B+tree access when it executes a
// Plan this package produces.
package query

import (
	"fmt"
	"regexp"

	"github.com/ironbase/ironbase/pkg/document"
	"github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// FieldOp is one of the operators a field-level condition can apply.
type FieldOp int

const (
	OpEq FieldOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpExists
	OpType
	OpRegex
	OpSize
	OpElemMatch
)

func (op FieldOp) String() string {
	switch op {
	case OpEq:
		return "$eq"
	case OpNe:
		return "$ne"
	case OpGt:
		return "$gt"
	case OpGte:
		return "$gte"
	case OpLt:
		return "$lt"
	case OpLte:
		return "$lte"
	case OpIn:
		return "$in"
	case OpExists:
		return "$exists"
	case OpType:
		return "$type"
	case OpRegex:
		return "$regex"
	case OpSize:
		return "$size"
	case OpElemMatch:
		return "$elemMatch"
	default:
		return "$unknown"
	}
}

// FieldCondition is a single operator applied to one dot-path field.
type FieldCondition struct {
	Path    string
	Op      FieldOp
	Value   any            // Eq/Ne/Gt/Gte/Lt/Lte/Size
	Values  []any          // In
	Exists  bool           // Exists
	Type    string         // Type — see document.TypeName
	Pattern *regexp.Regexp // Regex
	Sub     *Predicate     // ElemMatch: predicate each array element must satisfy
}

// Predicate is a boolean combination of field conditions. A Predicate with
// a non-nil Field is a leaf; And/Or/Not combine child predicates. Exactly
// one of Field, And, Or, Not is set on any given node.
type Predicate struct {
	Field *FieldCondition
	And   []*Predicate
	Or    []*Predicate
	Not   *Predicate
}

// Eq, Ne, ... build leaf predicates for their operator.
func Eq(path string, value any) *Predicate { return leaf(&FieldCondition{Path: path, Op: OpEq, Value: value}) }
func Ne(path string, value any) *Predicate { return leaf(&FieldCondition{Path: path, Op: OpNe, Value: value}) }
func Gt(path string, value any) *Predicate { return leaf(&FieldCondition{Path: path, Op: OpGt, Value: value}) }
func Gte(path string, value any) *Predicate {
	return leaf(&FieldCondition{Path: path, Op: OpGte, Value: value})
}
func Lt(path string, value any) *Predicate { return leaf(&FieldCondition{Path: path, Op: OpLt, Value: value}) }
func Lte(path string, value any) *Predicate {
	return leaf(&FieldCondition{Path: path, Op: OpLte, Value: value})
}
func In(path string, values ...any) *Predicate {
	return leaf(&FieldCondition{Path: path, Op: OpIn, Values: values})
}
func ExistsOp(path string, exists bool) *Predicate {
	return leaf(&FieldCondition{Path: path, Op: OpExists, Exists: exists})
}
func TypeIs(path, typeName string) *Predicate {
	return leaf(&FieldCondition{Path: path, Op: OpType, Type: typeName})
}
func Size(path string, n int) *Predicate { return leaf(&FieldCondition{Path: path, Op: OpSize, Value: n}) }
func ElemMatch(path string, sub *Predicate) *Predicate {
	return leaf(&FieldCondition{Path: path, Op: OpElemMatch, Sub: sub})
}

// Regex builds a $regex condition; it returns a QueryError if pattern
// doesn't compile.
func Regex(path, pattern string) (*Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &errors.QueryError{Reason: fmt.Sprintf("invalid regex %q: %v", pattern, err)}
	}
	return leaf(&FieldCondition{Path: path, Op: OpRegex, Pattern: re}), nil
}

func leaf(fc *FieldCondition) *Predicate { return &Predicate{Field: fc} }

// And, Or combine child predicates; Not negates one.
func And(preds ...*Predicate) *Predicate { return &Predicate{And: preds} }
func Or(preds ...*Predicate) *Predicate  { return &Predicate{Or: preds} }
func Not(p *Predicate) *Predicate        { return &Predicate{Not: p} }

// Matches evaluates the predicate against doc.
func (p *Predicate) Matches(doc bson.D) bool {
	if p == nil {
		return true
	}
	switch {
	case p.Field != nil:
		return matchField(doc, p.Field)
	case p.Not != nil:
		return !p.Not.Matches(doc)
	case p.Or != nil:
		for _, c := range p.Or {
			if c.Matches(doc) {
				return true
			}
		}
		return false
	default: // And, including the empty/zero predicate (vacuously true)
		for _, c := range p.And {
			if !c.Matches(doc) {
				return false
			}
		}
		return true
	}
}

func matchField(doc bson.D, fc *FieldCondition) bool {
	val, present := document.Get(doc, fc.Path)

	switch fc.Op {
	case OpExists:
		return present == fc.Exists
	case OpType:
		if !present {
			return fc.Type == "null"
		}
		return document.TypeName(val) == fc.Type
	}

	if !present {
		return fc.Op == OpNe
	}

	switch fc.Op {
	case OpEq:
		return compareValues(val, fc.Value) == 0
	case OpNe:
		return compareValues(val, fc.Value) != 0
	case OpGt:
		return compareValues(val, fc.Value) > 0
	case OpGte:
		return compareValues(val, fc.Value) >= 0
	case OpLt:
		return compareValues(val, fc.Value) < 0
	case OpLte:
		return compareValues(val, fc.Value) <= 0
	case OpIn:
		for _, v := range fc.Values {
			if compareValues(val, v) == 0 {
				return true
			}
		}
		return false
	case OpRegex:
		s, ok := val.(string)
		return ok && fc.Pattern.MatchString(s)
	case OpSize:
		n, ok := fc.Value.(int)
		if !ok {
			return false
		}
		return arrayLen(val) == n
	case OpElemMatch:
		arr, ok := asArray(val)
		if !ok {
			return false
		}
		for _, elem := range arr {
			sub, ok := elem.(bson.D)
			if !ok {
				sub = wrapScalar(elem)
			}
			if fc.Sub.Matches(sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// wrapScalar lets ElemMatch run scalar-array-element predicates (e.g. Eq on
// path "") by exposing the element as a single-field document.
func wrapScalar(v any) bson.D { return bson.D{{Key: "", Value: v}} }

func arrayLen(v any) int {
	arr, ok := asArray(v)
	if !ok {
		return -1
	}
	return len(arr)
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return []any(a), true
	case []any:
		return a, true
	default:
		return nil, false
	}
}

func compareValues(a, b any) int {
	ca, err := document.Canonicalize(a)
	if err != nil {
		return 0
	}
	cb, err := document.Canonicalize(b)
	if err != nil {
		return 0
	}
	return ca.Compare(cb)
}

// EqualityBindings walks the top level of an And predicate (or a single
// leaf) and returns the set of fields that are pinned to an exact value by
// an $eq condition — the planner uses this to test compound index prefix
// matches. Conditions inside Or/Not are never treated as equality
// bindings since they don't guarantee every matching document shares the
// value.
func (p *Predicate) EqualityBindings() map[string]any {
	out := map[string]any{}
	var conjuncts []*Predicate
	if p.Field != nil {
		conjuncts = []*Predicate{p}
	} else if p.And != nil {
		conjuncts = p.And
	} else {
		return out
	}
	for _, c := range conjuncts {
		if c.Field != nil && c.Field.Op == OpEq {
			out[c.Field.Path] = c.Field.Value
		}
	}
	return out
}

// RangeBinding returns a usable (field, lower, upper) range for path if the
// top-level conjuncts contain Gt/Gte/Lt/Lte conditions on it. ok is false
// if there's no usable range for that field.
func (p *Predicate) RangeBinding(path string) (lower, upper *types.RangeBound, ok bool) {
	var conjuncts []*Predicate
	if p.Field != nil {
		conjuncts = []*Predicate{p}
	} else if p.And != nil {
		conjuncts = p.And
	} else {
		return nil, nil, false
	}
	for _, c := range conjuncts {
		if c.Field == nil || c.Field.Path != path {
			continue
		}
		switch c.Field.Op {
		case OpGt:
			lower = &types.RangeBound{Value: c.Field.Value, Inclusive: false}
			ok = true
		case OpGte:
			lower = &types.RangeBound{Value: c.Field.Value, Inclusive: true}
			ok = true
		case OpLt:
			upper = &types.RangeBound{Value: c.Field.Value, Inclusive: false}
			ok = true
		case OpLte:
			upper = &types.RangeBound{Value: c.Field.Value, Inclusive: true}
			ok = true
		}
	}
	return lower, upper, ok
}

// Package types defines the key types the B+tree index and document catalog
// operate on: a small family of typed comparables plus the composite key
// shapes (compound index tuples, document ids, non-unique tiebreakers) the
// storage engine builds on top of them.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Comparable is the interface every index key and key component implements.
// Compare returns -1/0/1 the way sort.Interface-adjacent code expects.
type Comparable interface {
	Compare(other Comparable) int
}

// typeRank orders values of different concrete types when a compound or
// heterogeneous comparison can't fall back to a same-type comparison. Lower
// ranks sort first. This mirrors BSON's cross-type ordering in spirit: it
// only needs to be total and stable, not match any external standard.
func typeRank(v Comparable) int {
	switch v.(type) {
	case IntKey:
		return 0
	case FloatKey:
		return 1
	case VarcharKey:
		return 2
	case BoolKey:
		return 3
	case DateKey:
		return 4
	case DocID:
		return 5
	default:
		return 6
	}
}

func crossTypeCompare(a, b Comparable) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra < rb {
		return -1
	}
	if ra > rb {
		return 1
	}
	return 0
}

// IntKey is an integer-valued key.
type IntKey int64

func (k IntKey) Compare(other Comparable) int {
	o, ok := other.(IntKey)
	if !ok {
		return crossTypeCompare(k, other)
	}
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

func (k IntKey) String() string { return fmt.Sprintf("%d", int64(k)) }

// VarcharKey is a string-valued key.
type VarcharKey string

func (k VarcharKey) Compare(other Comparable) int {
	o, ok := other.(VarcharKey)
	if !ok {
		return crossTypeCompare(k, other)
	}
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

func (k VarcharKey) String() string { return string(k) }

// FloatKey is a float64-valued key.
type FloatKey float64

func (k FloatKey) Compare(other Comparable) int {
	o, ok := other.(FloatKey)
	if !ok {
		return crossTypeCompare(k, other)
	}
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

func (k FloatKey) String() string { return fmt.Sprintf("%g", float64(k)) }

// BoolKey is a boolean-valued key; false sorts before true.
type BoolKey bool

func (k BoolKey) Compare(other Comparable) int {
	o, ok := other.(BoolKey)
	if !ok {
		return crossTypeCompare(k, other)
	}
	if k == o {
		return 0
	}
	if !k && o {
		return -1
	}
	return 1
}

func (k BoolKey) String() string { return fmt.Sprintf("%t", bool(k)) }

// DateKey is a time.Time-valued key.
type DateKey time.Time

func (k DateKey) Compare(other Comparable) int {
	o, ok := other.(DateKey)
	if !ok {
		return crossTypeCompare(k, other)
	}
	t, ot := time.Time(k), time.Time(o)
	switch {
	case t.Before(ot):
		return -1
	case t.After(ot):
		return 1
	default:
		return 0
	}
}

func (k DateKey) String() string { return time.Time(k).Format(time.RFC3339Nano) }

// DocIDKind tags which concrete representation a DocID carries.
type DocIDKind uint8

const (
	DocIDInt DocIDKind = iota + 1
	DocIDString
	DocIDOpaque
)

// DocID is the tagged-variant document identifier described in the data
// model: an integer, a string, or a 128-bit opaque id (a UUIDv7). It is both
// the value type stored in every B+tree leaf and the key type of the
// per-collection document catalog.
type DocID struct {
	Kind   DocIDKind
	Int    int64
	Str    string
	Opaque uuid.UUID
}

func NewIntDocID(v int64) DocID     { return DocID{Kind: DocIDInt, Int: v} }
func NewStringDocID(v string) DocID { return DocID{Kind: DocIDString, Str: v} }

// NewOpaqueDocID allocates a fresh time-ordered opaque id.
func NewOpaqueDocID() DocID {
	return DocID{Kind: DocIDOpaque, Opaque: uuid.Must(uuid.NewV7())}
}

func (d DocID) Compare(other Comparable) int {
	o, ok := other.(DocID)
	if !ok {
		return crossTypeCompare(d, other)
	}
	if d.Kind != o.Kind {
		if d.Kind < o.Kind {
			return -1
		}
		return 1
	}
	switch d.Kind {
	case DocIDInt:
		switch {
		case d.Int < o.Int:
			return -1
		case d.Int > o.Int:
			return 1
		default:
			return 0
		}
	case DocIDString:
		switch {
		case d.Str < o.Str:
			return -1
		case d.Str > o.Str:
			return 1
		default:
			return 0
		}
	default: // DocIDOpaque
		for i := range d.Opaque {
			if d.Opaque[i] != o.Opaque[i] {
				if d.Opaque[i] < o.Opaque[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
}

// String renders a type-tagged text form: a one-letter tag, a colon, then
// the value, so ParseDocID can read it back without ambiguity between, say,
// the string "7" and the integer 7.
func (d DocID) String() string {
	switch d.Kind {
	case DocIDInt:
		return fmt.Sprintf("i:%d", d.Int)
	case DocIDString:
		return "s:" + d.Str
	default:
		return "o:" + d.Opaque.String()
	}
}

// ParseDocID parses the String() form back into a DocID.
func ParseDocID(s string) (DocID, error) {
	if len(s) < 2 || s[1] != ':' {
		return DocID{}, fmt.Errorf("types: malformed doc id %q", s)
	}
	switch s[0] {
	case 'i':
		var v int64
		if _, err := fmt.Sscanf(s[2:], "%d", &v); err != nil {
			return DocID{}, fmt.Errorf("types: malformed int doc id %q: %w", s, err)
		}
		return NewIntDocID(v), nil
	case 's':
		return NewStringDocID(s[2:]), nil
	case 'o':
		u, err := uuid.Parse(s[2:])
		if err != nil {
			return DocID{}, fmt.Errorf("types: malformed opaque doc id %q: %w", s, err)
		}
		return DocID{Kind: DocIDOpaque, Opaque: u}, nil
	default:
		return DocID{}, fmt.Errorf("types: unknown doc id tag in %q", s)
	}
}

// KeyTuple is an ordered sequence of Comparable field values, used as the
// key shape for both single-field and compound indexes. Two tuples of
// differing length compare the common prefix first, shorter-is-less on a
// matching prefix (only relevant for prefix range scans on compound trees).
type KeyTuple []Comparable

func (t KeyTuple) Compare(other Comparable) int {
	o, ok := other.(KeyTuple)
	if !ok {
		return crossTypeCompare(t[0], other)
	}
	n := len(t)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if c := t[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(o):
		return -1
	case len(t) > len(o):
		return 1
	default:
		return 0
	}
}

// ComparePrefix compares t against bound over bound's length only. Unlike
// Compare, a bound shorter than t that matches every shared element counts
// as equal rather than "less" — the distinction Compare's length tie-break
// makes for tree ordering is exactly what a boundary check over a partial
// equality prefix (a compound-index query binding only a leading subset of
// the indexed fields) must ignore.
func (t KeyTuple) ComparePrefix(bound KeyTuple) int {
	n := len(bound)
	if len(t) < n {
		n = len(t)
	}
	for i := 0; i < n; i++ {
		if c := t[i].Compare(bound[i]); c != 0 {
			return c
		}
	}
	return 0
}

// IndexEntryKey is the actual key type stored in a non-unique index's
// B+tree: the field value tuple followed by the owning document's id as a
// tiebreaker, so repeated field values still produce distinct, ordered tree
// keys ("non-unique indexes may hold many entries per key").
type IndexEntryKey struct {
	Fields KeyTuple
	ID     DocID
}

func (k IndexEntryKey) Compare(other Comparable) int {
	o, ok := other.(IndexEntryKey)
	if !ok {
		return crossTypeCompare(k.Fields[0], other)
	}
	if c := k.Fields.Compare(o.Fields); c != 0 {
		return c
	}
	return k.ID.Compare(o.ID)
}

// LowBound and HighBound build IndexEntryKey range endpoints that compare
// below/above every real entry sharing the same leading field values: the
// sentinel DocID kinds (0 and 255) sit outside every real DocIDKind, so
// DocID.Compare's kind check alone makes the bound resolve correctly.
func LowBound(fields KeyTuple) IndexEntryKey  { return IndexEntryKey{Fields: fields, ID: minDocID} }
func HighBound(fields KeyTuple) IndexEntryKey { return IndexEntryKey{Fields: fields, ID: maxDocID} }

var (
	minDocID = DocID{Kind: 0}
	maxDocID = DocID{Kind: 255}
)

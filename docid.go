package ironbase

import (
	"fmt"

	"github.com/ironbase/ironbase/pkg/types"
)

// coerceDocID accepts the Go types a caller would naturally pass for an
// `_id` value — a types.DocID already, any integer kind, or a string (which
// may itself be the tagged String() form of a DocID) — and normalizes it
// into a types.DocID. This mirrors document.ExtractID's acceptance of any
// tagged _id variant, for callers that identify a document by id directly
// rather than via its whole document.
func coerceDocID(id any) (types.DocID, error) {
	switch v := id.(type) {
	case types.DocID:
		return v, nil
	case int:
		return types.NewIntDocID(int64(v)), nil
	case int32:
		return types.NewIntDocID(int64(v)), nil
	case int64:
		return types.NewIntDocID(v), nil
	case string:
		if parsed, err := types.ParseDocID(v); err == nil {
			return parsed, nil
		}
		return types.NewStringDocID(v), nil
	default:
		return types.DocID{}, fmt.Errorf("ironbase: unsupported _id value type %T", id)
	}
}

// docIDToUser converts a types.DocID back to the plain Go value a caller
// gave InsertOne/InsertMany, or would naturally compare against: an int64
// for an integer id, a string for a string id, and the tagged String() form
// for an opaque id (there being no simpler native Go type for it).
func docIDToUser(id types.DocID) any {
	switch id.Kind {
	case types.DocIDInt:
		return id.Int
	case types.DocIDString:
		return id.Str
	default:
		return id.String()
	}
}

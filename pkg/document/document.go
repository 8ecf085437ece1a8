// Package document handles the document representation IronBase stores and
// indexes: BSON-backed ordered documents, JSON conversion for client input,
// dot-separated nested field addressing, and canonicalization of a field's
// value into the types.Comparable the B+tree indexes operate on.
package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ironbase/ironbase/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Marshal/Unmarshal wrap the BSON codec for the on-disk payload form.
func Marshal(doc bson.D) ([]byte, error) { return bson.Marshal(doc) }

func Unmarshal(data []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document: unmarshal: %w", err)
	}
	return doc, nil
}

// FromJSON parses a client-facing JSON document into BSON using Extended
// JSON's canonical (strict) mode, so typed values ($numberLong, $date, ...)
// round-trip precisely.
func FromJSON(jsonStr string) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(jsonStr), true, &doc); err != nil {
		return nil, fmt.Errorf("document: parse json: %w", err)
	}
	return doc, nil
}

// ToJSON renders a document as relaxed Extended JSON for display.
func ToJSON(doc bson.D) (string, error) {
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Get resolves a dot-separated path (e.g. "address.city") against a
// document, descending through nested bson.D/bson.M values. It reports
// whether the path resolved to a value at all.
func Get(doc bson.D, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		switch v := cur.(type) {
		case bson.D:
			val, ok := fieldOf(v, part)
			if !ok {
				return nil, false
			}
			cur = val
		case bson.M:
			val, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = val
		case map[string]any:
			val, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = val
		default:
			return nil, false
		}
	}
	return cur, true
}

func fieldOf(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Exists reports whether path resolves to any value, including an explicit
// null.
func Exists(doc bson.D, path string) bool {
	_, ok := Get(doc, path)
	return ok
}

// Canonicalize converts a raw Go value (as decoded from BSON) into the
// types.Comparable the index/query layers operate on. Cross-type ordering
// among the returned concrete types is handled by types.Comparable.Compare.
func Canonicalize(value any) (types.Comparable, error) {
	switch v := value.(type) {
	case int:
		return types.IntKey(v), nil
	case int32:
		return types.IntKey(v), nil
	case int64:
		return types.IntKey(v), nil
	case float32:
		return types.FloatKey(v), nil
	case float64:
		return types.FloatKey(v), nil
	case string:
		return types.VarcharKey(v), nil
	case bool:
		return types.BoolKey(v), nil
	case time.Time:
		return types.DateKey(v), nil
	case bson.DateTime:
		return types.DateKey(v.Time()), nil
	case nil:
		return nil, fmt.Errorf("document: cannot canonicalize a null value")
	default:
		return nil, fmt.Errorf("document: unsupported field value type %T for indexing", value)
	}
}

// CanonicalizePath resolves path against doc and canonicalizes the result.
func CanonicalizePath(doc bson.D, path string) (types.Comparable, error) {
	v, ok := Get(doc, path)
	if !ok {
		return nil, fmt.Errorf("document: field %q not present", path)
	}
	return Canonicalize(v)
}

// ExtractID returns the document's _id as a types.DocID, accepting any of
// the tagged variants the data model allows (integer, string, opaque).
func ExtractID(doc bson.D) (types.DocID, error) {
	v, ok := fieldOf(doc, "_id")
	if !ok {
		return types.DocID{}, fmt.Errorf("document: missing _id")
	}
	switch id := v.(type) {
	case int:
		return types.NewIntDocID(int64(id)), nil
	case int32:
		return types.NewIntDocID(int64(id)), nil
	case int64:
		return types.NewIntDocID(id), nil
	case string:
		if parsed, err := types.ParseDocID(id); err == nil {
			return parsed, nil
		}
		return types.NewStringDocID(id), nil
	default:
		return types.DocID{}, fmt.Errorf("document: unsupported _id type %T", v)
	}
}

// WithID returns a copy of doc with _id set (inserted at the front if
// absent, replaced in place if present).
func WithID(doc bson.D, id types.DocID) bson.D {
	idValue := idToBSONValue(id)
	for i, e := range doc {
		if e.Key == "_id" {
			out := append(bson.D{}, doc...)
			out[i].Value = idValue
			return out
		}
	}
	out := make(bson.D, 0, len(doc)+1)
	out = append(out, bson.E{Key: "_id", Value: idValue})
	out = append(out, doc...)
	return out
}

func idToBSONValue(id types.DocID) any {
	switch id.Kind {
	case types.DocIDInt:
		return id.Int
	case types.DocIDString:
		return id.Str
	default:
		return id.String()
	}
}

// Set returns a copy of doc with path's top-level field set to value,
// appending it if absent. Only top-level paths are supported for writes;
// key is used as a literal field name, not split on dots.
func Set(doc bson.D, key string, value any) bson.D {
	for i, e := range doc {
		if e.Key == key {
			out := append(bson.D{}, doc...)
			out[i].Value = value
			return out
		}
	}
	out := append(bson.D{}, doc...)
	return append(out, bson.E{Key: key, Value: value})
}

// Unset returns a copy of doc with key removed, if present.
func Unset(doc bson.D, key string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// TypeName returns the query-language type name ($type) for a decoded BSON
// value: "int", "long", "double", "string", "bool", "date", "object",
// "array", "null", or "unknown".
func TypeName(value any) string {
	switch value.(type) {
	case int32:
		return "int"
	case int, int64:
		return "long"
	case float32, float64:
		return "double"
	case string:
		return "string"
	case bool:
		return "bool"
	case time.Time, bson.DateTime:
		return "date"
	case bson.D, bson.M, map[string]any:
		return "object"
	case bson.A, []any:
		return "array"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

// formatForCatalog renders a canonical value's text form for the tagged
// field-value encoding pkg/storage's WAL index-change records use (see
// pkg/storage/txn.go).
func formatForCatalog(v types.Comparable) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// FormatForCatalog is exported for pkg/storage's WAL index-change encoder.
func FormatForCatalog(v types.Comparable) string { return formatForCatalog(v) }

// ParseCatalogValue parses a type-tag byte plus text back into a
// types.Comparable, the inverse of FormatForCatalog for each tag.
func ParseCatalogValue(tag byte, text string) (types.Comparable, error) {
	switch tag {
	case TagInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("document: parse int catalog value %q: %w", text, err)
		}
		return types.IntKey(n), nil
	case TagVarchar:
		return types.VarcharKey(text), nil
	case TagBool:
		return types.BoolKey(text == "true"), nil
	case TagFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("document: parse float catalog value %q: %w", text, err)
		}
		return types.FloatKey(f), nil
	case TagDate:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, fmt.Errorf("document: parse date catalog value %q: %w", text, err)
		}
		return types.DateKey(t), nil
	default:
		return nil, fmt.Errorf("document: unknown catalog value tag %d", tag)
	}
}

// Type tags for indexed field values in WAL index-change records. The
// document catalog tags DocIDs with its own "i"/"s"/"o" letters instead.
const (
	TagInt     byte = 1
	TagVarchar byte = 2
	TagBool    byte = 3
	TagFloat   byte = 4
	TagDate    byte = 5
)

// TagOf returns the field-value type tag for a canonicalized value.
func TagOf(v types.Comparable) (byte, error) {
	switch v.(type) {
	case types.IntKey:
		return TagInt, nil
	case types.VarcharKey:
		return TagVarchar, nil
	case types.BoolKey:
		return TagBool, nil
	case types.FloatKey:
		return TagFloat, nil
	case types.DateKey:
		return TagDate, nil
	default:
		return 0, fmt.Errorf("document: no catalog tag for comparable type %T", v)
	}
}

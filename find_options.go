package ironbase

import (
	"sort"

	"github.com/ironbase/ironbase/pkg/document"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// SortField orders results by Path, ascending unless Descending is set.
type SortField struct {
	Path       string
	Descending bool
}

// FindOptions controls post-match processing: sort, skip, limit, and then
// projection, applied in that order.
type FindOptions struct {
	Projection []string // field names to keep (plus _id); nil means every field
	Sort       []SortField
	Skip       int
	Limit      int // 0 means unlimited
}

func applyFindOptions(docs []bson.D, opts *FindOptions) []bson.D {
	if opts == nil {
		return docs
	}
	if len(opts.Sort) > 0 {
		sortDocs(docs, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(docs) {
			docs = nil
		} else {
			docs = docs[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}
	if len(opts.Projection) > 0 {
		docs = projectDocs(docs, opts.Projection)
	}
	return docs
}

func sortDocs(docs []bson.D, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			vi, _ := document.Get(docs[i], f.Path)
			vj, _ := document.Get(docs[j], f.Path)
			ci, erri := document.Canonicalize(vi)
			cj, errj := document.Canonicalize(vj)
			if erri != nil || errj != nil {
				continue
			}
			cmp := ci.Compare(cj)
			if cmp == 0 {
				continue
			}
			if f.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func projectDocs(docs []bson.D, fields []string) []bson.D {
	keep := make(map[string]bool, len(fields)+1)
	keep["_id"] = true
	for _, f := range fields {
		keep[f] = true
	}
	out := make([]bson.D, len(docs))
	for i, doc := range docs {
		var projected bson.D
		for _, e := range doc {
			if keep[e.Key] {
				projected = append(projected, e)
			}
		}
		out[i] = projected
	}
	return out
}

package storage

import (
	"fmt"

	ibErrors "github.com/ironbase/ironbase/pkg/errors"
	"github.com/ironbase/ironbase/pkg/query"
)

// Flush scans every collection's catalog to determine the highest live
// offset (plus that record's own length), truncates the file to that
// point, appends a freshly serialized metadata trailer there, and updates
// the header — the only operation that leaves the file in a fully
// consistent, self-contained image. It recomputes live extent from the
// catalogs rather than trusting a running write cursor, so a file is always
// truncated back to exactly its live content plus trailer even if earlier
// writes left dead space behind.
func (se *StorageEngine) Flush() error {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.flushLocked()
}

func (se *StorageEngine) flushLocked() error {
	docEnd := uint64(HeaderSize)
	metas := make([]collectionMetaDoc, 0, len(se.collections))

	se.collMu.RLock()
	for name, coll := range se.collections {
		coll.RLock()
		snap := coll.Catalog.Snapshot()
		for _, offset := range snap {
			length, err := se.file.RecordLength(offset)
			if err != nil {
				coll.RUnlock()
				se.collMu.RUnlock()
				return &ibErrors.IoError{Op: "flush: record length", Err: err}
			}
			end := offset + 4 + uint64(length)
			if end > docEnd {
				docEnd = end
			}
		}
		meta := collectionMetaDoc{
			Name:          name,
			DocumentCount: uint64(len(snap)),
			DataOffset:    HeaderSize,
			Catalog:       coll.Catalog.toTriples(),
		}
		for _, idx := range coll.Indexes {
			meta.Indexes = append(meta.Indexes, indexDescDoc{Name: idx.Name, Paths: idx.Paths, Unique: idx.Unique})
		}
		coll.RUnlock()
		metas = append(metas, meta)
	}
	se.collMu.RUnlock()

	se.file.SetDocEnd(docEnd)

	blob, err := encodeMetadata(metas)
	if err != nil {
		return fmt.Errorf("storage: flush: %w", err)
	}

	if err := se.file.Truncate(docEnd); err != nil {
		return &ibErrors.IoError{Op: "flush: truncate", Err: err}
	}

	metaOffset, err := se.file.WriteMetadataTrailer(blob)
	if err != nil {
		return &ibErrors.IoError{Op: "flush: write trailer", Err: err}
	}

	hdr := Header{
		Version:         HeaderVersion2,
		MetadataOffset:  metaOffset,
		MetadataSize:    uint64(len(blob)),
		CollectionCount: uint32(len(metas)),
	}
	if err := se.file.WriteHeader(hdr); err != nil {
		return &ibErrors.IoError{Op: "flush: write header", Err: err}
	}
	if err := se.file.Sync(); err != nil {
		return &ibErrors.IoError{Op: "flush: sync", Err: err}
	}
	return nil
}

// loadMetadata reads the trailer named by hdr and reconstructs every
// collection's catalog and indexes, rebuilding each index by iterating the
// catalog and reading each document back — no B+tree page is ever
// persisted.
func (se *StorageEngine) loadMetadata(hdr Header) error {
	if hdr.MetadataSize == 0 {
		return nil
	}
	blob, err := se.file.ReadMetadataTrailer(hdr.MetadataOffset, hdr.MetadataSize)
	if err != nil {
		return &ibErrors.CorruptionError{Location: se.path, Reason: err.Error()}
	}
	metas, err := decodeMetadata(blob)
	if err != nil {
		return &ibErrors.CorruptionError{Location: se.path, Reason: err.Error()}
	}

	for _, m := range metas {
		cat, err := catalogFromTriples(m.Catalog)
		if err != nil {
			return &ibErrors.CorruptionError{Location: se.path, Reason: err.Error()}
		}
		coll := &Collection{
			Name:    m.Name,
			Catalog: cat,
			Indexes: make(map[string]*Index, len(m.Indexes)+1),
		}
		for _, id := range m.Indexes {
			idx := newIndex(id.Name, id.Paths, id.Unique)
			coll.Indexes[id.Name] = idx
		}
		if _, ok := coll.Indexes[idIndexName]; !ok {
			coll.Indexes[idIndexName] = newIndex(idIndexName, []string{"_id"}, true)
		}

		for id, offset := range cat.Snapshot() {
			doc, err := se.readDocumentAt(offset)
			if err != nil {
				return &ibErrors.CorruptionError{Location: se.path, Reason: err.Error()}
			}
			for _, idx := range coll.Indexes {
				if err := idx.Insert(doc, id); err != nil {
					return err
				}
			}
		}

		se.collections[m.Name] = coll
	}
	return nil
}

// indexDescriptors returns coll's indexes as planner-facing descriptors.
func indexDescriptors(coll *Collection) []query.IndexDescriptor {
	return coll.ListIndexes()
}

package storage

import (
	"fmt"
	"os"

	ibErrors "github.com/ironbase/ironbase/pkg/errors"
)

// Compact rewrites the main file into a new file containing only live
// documents, dropping tombstones and every dead (superseded) document
// version, then swaps it in atomically via rename. Per the conservative
// resolution of the concurrency open question, Compact takes the engine's
// writer lock for its entire duration — no reader or writer proceeds
// concurrently with a compaction.
func (se *StorageEngine) Compact() error {
	se.mu.Lock()
	defer se.mu.Unlock()

	tmpPath := se.path + ".compact.tmp"
	os.Remove(tmpPath)

	newFile, _, err := createDataFile(tmpPath)
	if err != nil {
		return &ibErrors.IoError{Op: "compact: create temp file", Err: err}
	}

	se.collMu.RLock()
	names := make([]string, 0, len(se.collections))
	for name := range se.collections {
		names = append(names, name)
	}
	se.collMu.RUnlock()

	newCatalogs := make(map[string]*Catalog, len(names))

	for _, name := range names {
		coll, err := se.Collection(name)
		if err != nil {
			newFile.Close()
			os.Remove(tmpPath)
			return err
		}
		coll.RLock()
		snap := coll.Catalog.Snapshot()
		newCat := NewCatalog()
		for id, offset := range snap {
			doc, err := se.readDocumentAt(offset)
			if err != nil {
				coll.RUnlock()
				newFile.Close()
				os.Remove(tmpPath)
				return fmt.Errorf("storage: compact: read %q doc: %w", name, err)
			}
			payload, err := encodeRecord(doc, false)
			if err != nil {
				coll.RUnlock()
				newFile.Close()
				os.Remove(tmpPath)
				return fmt.Errorf("storage: compact: encode %q doc: %w", name, err)
			}
			newOffset, err := newFile.WriteDocument(payload)
			if err != nil {
				coll.RUnlock()
				newFile.Close()
				os.Remove(tmpPath)
				return &ibErrors.IoError{Op: "compact: write document", Err: err}
			}
			newCat.Set(id, newOffset)
		}
		coll.RUnlock()
		newCatalogs[name] = newCat
	}

	// Build and write the metadata trailer for the compacted file.
	metas := make([]collectionMetaDoc, 0, len(names))
	se.collMu.RLock()
	for _, name := range names {
		coll := se.collections[name]
		meta := collectionMetaDoc{
			Name:          name,
			DocumentCount: uint64(newCatalogs[name].Len()),
			DataOffset:    HeaderSize,
			Catalog:       newCatalogs[name].toTriples(),
		}
		for _, idx := range coll.Indexes {
			meta.Indexes = append(meta.Indexes, indexDescDoc{Name: idx.Name, Paths: idx.Paths, Unique: idx.Unique})
		}
		metas = append(metas, meta)
	}
	se.collMu.RUnlock()

	blob, err := encodeMetadata(metas)
	if err != nil {
		newFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: compact: encode metadata: %w", err)
	}
	metaOffset, err := newFile.WriteMetadataTrailer(blob)
	if err != nil {
		newFile.Close()
		os.Remove(tmpPath)
		return &ibErrors.IoError{Op: "compact: write trailer", Err: err}
	}
	hdr := Header{
		Version:         HeaderVersion2,
		MetadataOffset:  metaOffset,
		MetadataSize:    uint64(len(blob)),
		CollectionCount: uint32(len(metas)),
	}
	if err := newFile.WriteHeader(hdr); err != nil {
		newFile.Close()
		os.Remove(tmpPath)
		return &ibErrors.IoError{Op: "compact: write header", Err: err}
	}
	if err := newFile.Sync(); err != nil {
		newFile.Close()
		os.Remove(tmpPath)
		return &ibErrors.IoError{Op: "compact: sync", Err: err}
	}
	if err := newFile.Close(); err != nil {
		os.Remove(tmpPath)
		return &ibErrors.IoError{Op: "compact: close temp file", Err: err}
	}

	if err := se.file.Close(); err != nil {
		return &ibErrors.IoError{Op: "compact: close old file", Err: err}
	}
	if err := os.Rename(tmpPath, se.path); err != nil {
		return &ibErrors.IoError{Op: "compact: rename", Err: err}
	}

	reopened, _, err := openDataFile(se.path)
	if err != nil {
		return &ibErrors.IoError{Op: "compact: reopen", Err: err}
	}
	se.file = reopened

	se.collMu.Lock()
	for _, name := range names {
		se.collections[name].Catalog = newCatalogs[name]
	}
	se.collMu.Unlock()

	return nil
}

package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	ironbaseErrors "github.com/ironbase/ironbase/pkg/errors"
)

// maxDocumentRecordLen bounds a document record's length prefix so a
// corrupt or truncated file can't make a read try to allocate an absurd
// buffer.
const maxDocumentRecordLen = 256 * 1024 * 1024

// dataFile wraps the single on-disk file: a fixed header, an append-only
// document region, and a metadata trailer written at flush time. docEnd
// tracks the next append position for documents — the same position the
// metadata trailer currently occupies, since a document write always
// overwrites whatever trailer is sitting there and Flush rewrites the
// trailer at the new docEnd afterward.
type dataFile struct {
	f      *os.File
	docEnd uint64
}

// createDataFile creates path fresh with a version-2 header and no
// documents or collections.
func createDataFile(path string) (*dataFile, Header, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, Header{}, fmt.Errorf("storage: create %s: %w", path, err)
	}
	h := NewHeader()
	buf := h.Encode()
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("storage: write header: %w", err)
	}
	return &dataFile{f: f, docEnd: HeaderSize}, h, nil
}

// openDataFile opens an existing file, validates its header, and seeds
// docEnd at the header's recorded metadata offset (the document region's
// end as of the last flush).
func openDataFile(path string) (*dataFile, Header, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, Header{}, fmt.Errorf("storage: open %s: %w", path, err)
	}
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		f.Close()
		return nil, Header{}, &ironbaseErrors.CorruptionError{Location: path, Reason: fmt.Sprintf("short header: %v", err)}
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		f.Close()
		return nil, Header{}, &ironbaseErrors.CorruptionError{Location: path, Reason: err.Error()}
	}
	docEnd := h.MetadataOffset
	if docEnd < HeaderSize {
		docEnd = HeaderSize
	}
	return &dataFile{f: f, docEnd: docEnd}, h, nil
}

// WriteDocument appends a length-prefixed record at the current document
// cursor and advances it. Returns the offset the record was written at.
func (df *dataFile) WriteDocument(payload []byte) (uint64, error) {
	offset := df.docEnd
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := df.f.WriteAt(lenBuf[:], int64(offset)); err != nil {
		return 0, fmt.Errorf("storage: write document length: %w", err)
	}
	if _, err := df.f.WriteAt(payload, int64(offset)+4); err != nil {
		return 0, fmt.Errorf("storage: write document payload: %w", err)
	}
	df.docEnd = offset + 4 + uint64(len(payload))
	return offset, nil
}

// RecordLength reads just the 4-byte length prefix at offset, used by
// Flush to recompute the true document-region end from live catalog
// entries without reading full payloads.
func (df *dataFile) RecordLength(offset uint64) (uint32, error) {
	var lenBuf [4]byte
	if _, err := df.f.ReadAt(lenBuf[:], int64(offset)); err != nil {
		return 0, fmt.Errorf("storage: read document length at %d: %w", offset, err)
	}
	return binary.LittleEndian.Uint32(lenBuf[:]), nil
}

// ReadDocumentAt reads the length-prefixed record at offset.
func (df *dataFile) ReadDocumentAt(offset uint64) ([]byte, error) {
	if offset < HeaderSize {
		return nil, fmt.Errorf("storage: offset %d is outside the document region", offset)
	}
	length, err := df.RecordLength(offset)
	if err != nil {
		return nil, err
	}
	if length > maxDocumentRecordLen {
		return nil, &ironbaseErrors.CorruptionError{Location: fmt.Sprintf("offset %d", offset), Reason: "implausible record length"}
	}
	payload := make([]byte, length)
	if _, err := df.f.ReadAt(payload, int64(offset)+4); err != nil {
		return nil, fmt.Errorf("storage: read document payload at %d: %w", offset, err)
	}
	return payload, nil
}

// WriteMetadataTrailer writes blob at the current document-region end
// (without moving docEnd — the trailer isn't a document) and returns the
// offset it was written at.
func (df *dataFile) WriteMetadataTrailer(blob []byte) (uint64, error) {
	offset := df.docEnd
	if _, err := df.f.WriteAt(blob, int64(offset)); err != nil {
		return 0, fmt.Errorf("storage: write metadata trailer: %w", err)
	}
	return offset, nil
}

// WriteHeader overwrites the fixed header at offset 0.
func (df *dataFile) WriteHeader(h Header) error {
	buf := h.Encode()
	_, err := df.f.WriteAt(buf[:], 0)
	return err
}

// ReadMetadataTrailer reads size bytes at offset.
func (df *dataFile) ReadMetadataTrailer(offset, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if _, err := df.f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("storage: read metadata trailer: %w", err)
	}
	return buf, nil
}

// Truncate sets the file length, dropping anything past size (used after a
// flush to drop a previous, now-stale trailer).
func (df *dataFile) Truncate(size uint64) error {
	return df.f.Truncate(int64(size))
}

// Sync fsyncs the file.
func (df *dataFile) Sync() error { return df.f.Sync() }

// Close closes the underlying file.
func (df *dataFile) Close() error { return df.f.Close() }

// SetDocEnd overrides the tracked document-region end, used by Flush after
// recomputing the true end from live catalog entries.
func (df *dataFile) SetDocEnd(end uint64) { df.docEnd = end }

// DocEnd returns the current document-region end.
func (df *dataFile) DocEnd() uint64 { return df.docEnd }

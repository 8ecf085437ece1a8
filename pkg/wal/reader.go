package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrInvalidMagic      = errors.New("wal: invalid magic number")
	ErrChecksumMismatch  = errors.New("wal: checksum mismatch")
	ErrInvalidPayloadLen = errors.New("wal: invalid or excessive payload length")
)

// WALReader reads entries back sequentially. It reports precise errors;
// callers that need to tolerate a crashed mid-write tail (recovery) decide
// that policy themselves, since the reader alone can't distinguish
// "corrupt" from "the writer died here" with certainty. Recovery stops
// scanning at the first such error and ignores everything after it.
type WALReader struct {
	file   *os.File
	offset int64
}

// NewWALReader opens an existing log file for sequential reading.
func NewWALReader(path string) (*WALReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &WALReader{file: f}, nil
}

// Offset returns the byte offset of the next record to be read.
func (r *WALReader) Offset() int64 { return r.offset }

// ReadEntry reads the next record. It returns io.EOF when the log is
// exhausted cleanly.
func (r *WALReader) ReadEntry() (*WALEntry, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	var header WALHeader
	header.Decode(headerBuf)

	if header.Magic != WALMagic {
		return nil, ErrInvalidMagic
	}

	if header.PayloadLen > 1024*1024*1024 {
		return nil, ErrInvalidPayloadLen
	}

	entry := AcquireEntry()
	entry.Header = header

	if uint32(cap(entry.Payload)) < header.PayloadLen {
		entry.Payload = make([]byte, header.PayloadLen)
	} else {
		entry.Payload = entry.Payload[:header.PayloadLen]
	}

	n, err = io.ReadFull(r.file, entry.Payload)
	if err != nil {
		ReleaseEntry(entry)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("wal: read payload: %w", err)
	}

	sum := CalculateCRC32(append(append([]byte{}, headerBuf[0:20]...), entry.Payload...))
	if sum != header.CRC32 {
		ReleaseEntry(entry)
		return nil, ErrChecksumMismatch
	}

	r.offset += int64(HeaderSize) + int64(header.PayloadLen)
	return entry, nil
}

// Close closes the underlying file.
func (r *WALReader) Close() error {
	return r.file.Close()
}

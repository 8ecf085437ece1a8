package wal

import (
	"encoding/binary"
	"io"
)

// HeaderSize is the fixed size, in bytes, of every WAL record header.
const (
	HeaderSize = 24
	WALVersion = 1

	// WALMagic guards against reading a non-WAL file as a log.
	WALMagic = 0xDEADBEEF
)

// EntryType tags what kind of record a WAL entry carries. The set follows
// the two-phase commit protocol the transaction manager drives: a
// transaction writes Begin, then one Operation/IndexChange record per
// mutation, then Prepare once every record has been appended and fsynced,
// then Commit (or Abort) as the single decision point recovery replays on.
type EntryType uint8

const (
	EntryBegin EntryType = iota + 1
	EntryOperation
	EntryIndexChange
	EntryPrepare
	EntryCommit
	EntryAbort
)

// WALHeader is the 24-byte fixed header prefixing every record's payload.
type WALHeader struct {
	Magic      uint32
	Version    uint8
	EntryType  EntryType
	Reserved   uint16
	TxnID      uint64
	PayloadLen uint32
	CRC32      uint32
}

// WALEntry is one complete on-disk record.
type WALEntry struct {
	Header  WALHeader
	Payload []byte
}

// Encode serializes the header, CRC field included, into buf.
func (h *WALHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = byte(h.EntryType)
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.TxnID)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

// Decode parses a 24-byte buffer into the header.
func (h *WALHeader) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EntryType = EntryType(buf[5])
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.TxnID = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// crcCoveredBytes returns the header bytes the CRC is computed over: every
// field except the CRC itself.
func (h *WALHeader) crcCoveredBytes(buf []byte) []byte { return buf[0:20] }

// WriteTo writes header then payload to w, filling in the CRC first.
func (e *WALEntry) WriteTo(w io.Writer) (int64, error) {
	e.Header.PayloadLen = uint32(len(e.Payload))

	var headerBuf [HeaderSize]byte
	e.Header.Encode(headerBuf[:])
	e.Header.CRC32 = CalculateCRC32(append(append([]byte{}, e.Header.crcCoveredBytes(headerBuf[:])...), e.Payload...))
	binary.LittleEndian.PutUint32(headerBuf[20:24], e.Header.CRC32)

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(e.Payload)
	return int64(n + m), err
}

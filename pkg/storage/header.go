package storage

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size, in bytes, of the file header that opens
// every IronBase database file.
const HeaderSize = 256

// Magic is the 8-byte identifier every IronBase file starts with.
var Magic = [8]byte{'M', 'O', 'N', 'G', 'O', 'L', 'T', 'E'}

// Header versions. Version1 is the legacy fixed-metadata-offset layout;
// Version2 writes metadata at the current end of file on every flush so a
// small database pays for only its documents plus a small trailer. Files
// are always upgraded to Version2 on their next flush after being opened.
const (
	HeaderVersion1 uint32 = 1
	HeaderVersion2 uint32 = 2
)

// Header is the on-disk, fixed-size structure at offset 0 of every file.
type Header struct {
	Version         uint32
	Flags           uint32
	MetadataOffset  uint64
	MetadataSize    uint64
	CollectionCount uint32
	LastID          uint64
}

// NewHeader returns the header for a freshly created, empty database file:
// version 2, no collections yet, documents begin right after the header.
func NewHeader() Header {
	return Header{
		Version:        HeaderVersion2,
		MetadataOffset: HeaderSize,
		MetadataSize:   0,
	}
}

// Encode serializes h into the fixed 256-byte on-disk form, zero-padded.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint64(buf[16:24], h.MetadataOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.MetadataSize)
	binary.LittleEndian.PutUint32(buf[32:36], h.CollectionCount)
	binary.LittleEndian.PutUint64(buf[36:44], h.LastID)
	return buf
}

// DecodeHeader parses the fixed 256-byte header form, validating the magic.
func DecodeHeader(buf [HeaderSize]byte) (Header, error) {
	var magic [8]byte
	copy(magic[:], buf[0:8])
	if magic != Magic {
		return Header{}, fmt.Errorf("storage: bad header magic %q", magic)
	}
	h := Header{
		Version:         binary.LittleEndian.Uint32(buf[8:12]),
		Flags:           binary.LittleEndian.Uint32(buf[12:16]),
		MetadataOffset:  binary.LittleEndian.Uint64(buf[16:24]),
		MetadataSize:    binary.LittleEndian.Uint64(buf[24:32]),
		CollectionCount: binary.LittleEndian.Uint32(buf[32:36]),
		LastID:          binary.LittleEndian.Uint64(buf[36:44]),
	}
	if h.Version != HeaderVersion1 && h.Version != HeaderVersion2 {
		return Header{}, fmt.Errorf("storage: unsupported header version %d", h.Version)
	}
	return h, nil
}

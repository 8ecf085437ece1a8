package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// indexDescDoc is the persisted form of an index descriptor: enough to
// recreate the B+tree (and re-derive its entries from the catalog) on
// open, per the rebuild-on-open design (no B+tree pages are ever
// persisted).
type indexDescDoc struct {
	Name   string   `bson:"name"`
	Paths  []string `bson:"paths"`
	Unique bool     `bson:"unique"`
}

// collectionMetaDoc is one collection's trailer record: its name, live
// document count, last-assigned synthesized id counter, its full catalog
// (as type-tagged triples), and its index descriptors.
type collectionMetaDoc struct {
	Name          string          `bson:"name"`
	DocumentCount uint64          `bson:"document_count"`
	DataOffset    uint64          `bson:"data_offset"`
	LastID        int64           `bson:"last_id"`
	Catalog       []catalogTriple `bson:"catalog"`
	Indexes       []indexDescDoc  `bson:"indexes"`
}

// encodeMetadata serializes the trailer blob: a u32 collection count
// followed by each collection's BSON record, length-prefixed.
func encodeMetadata(collections []collectionMetaDoc) ([]byte, error) {
	var out []byte
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(collections)))
	out = append(out, countBuf[:]...)

	for _, c := range collections {
		raw, err := bson.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("storage: marshal collection metadata for %q: %w", c.Name, err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		out = append(out, lenBuf[:]...)
		out = append(out, raw...)
	}
	return out, nil
}

// decodeMetadata parses the trailer blob produced by encodeMetadata.
func decodeMetadata(data []byte) ([]collectionMetaDoc, error) {
	if len(data) < 4 {
		if len(data) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: metadata blob too short")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	pos := 4
	out := make([]collectionMetaDoc, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		recLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+recLen > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		var c collectionMetaDoc
		if err := bson.Unmarshal(data[pos:pos+recLen], &c); err != nil {
			return nil, fmt.Errorf("storage: unmarshal collection metadata #%d: %w", i, err)
		}
		pos += recLen
		out = append(out, c)
	}
	return out, nil
}

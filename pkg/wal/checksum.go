package wal

import "hash/crc32"

// castagnoliTable is the Castagnoli CRC32 table, the variant with hardware
// acceleration on modern CPUs (SSE4.2's CRC32 instruction).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 checksums data.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data matches the expected checksum.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}

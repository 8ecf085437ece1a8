package wal

import "time"

// SyncPolicy selects the durability/throughput tradeoff for WAL writes.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every record: the Safe durability mode.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval fsyncs on a background ticker: the Batch durability mode.
	SyncInterval

	// SyncBatch fsyncs once the accumulated unsynced byte count crosses a
	// threshold, an alternative shape of the Batch durability mode.
	SyncBatch

	// SyncNever never fsyncs on its own; only an explicit Sync() call or
	// Close() flushes to disk. This backs the Unsafe durability mode and is
	// only appropriate for throwaway/in-memory-like use.
	SyncNever
)

// Options configures a WALWriter.
type Options struct {
	DirPath string

	// BufferSize is the bufio buffer size placed in front of the file.
	BufferSize int

	SyncPolicy SyncPolicy

	// SyncIntervalDuration is the ticker period for SyncInterval.
	SyncIntervalDuration time.Duration

	// SyncBatchBytes is the accumulated-bytes threshold for SyncBatch.
	SyncBatchBytes int64
}

// DefaultOptions returns the Safe durability mode's configuration.
func DefaultOptions() Options {
	return Options{
		DirPath:              "./wal_data",
		BufferSize:           64 * 1024,
		SyncPolicy:           SyncEveryWrite,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024,
	}
}

// BatchOptions returns the Batch durability mode's configuration: fsync on
// a fixed interval rather than after every write.
func BatchOptions() Options {
	o := DefaultOptions()
	o.SyncPolicy = SyncInterval
	return o
}

// UnsafeOptions returns the Unsafe durability mode's configuration: no
// automatic fsync at all.
func UnsafeOptions() Options {
	o := DefaultOptions()
	o.SyncPolicy = SyncNever
	return o
}

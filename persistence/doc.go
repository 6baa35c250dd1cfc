// Package persistence implements the cold snapshot format for shmtree
// regions: a fixed binary header, a roaring bitmap of live slots, and the
// region bytes under optional zstd or lz4 compression, all guarded by a
// CRC32 checksum.
//
// Snapshots exist for backup, replication and host bootstrap. The live
// container never depends on them; shared memory remains the system of
// record.
package persistence

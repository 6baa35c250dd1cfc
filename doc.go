// Package shmtree provides a fixed-capacity ordered associative container
// whose entire state lives in a single flat byte region, so it can be placed
// in a shared-memory segment and reattached by other processes.
//
// A Tree combines a red-black tree over preallocated node slots with an
// intrusive list threading the same slots in insertion order. With LRU mode
// enabled, lookups move matched elements to the tail of that list, turning
// the head into the eviction candidate.
//
// Node slots are addressed by uint32 indices, never pointers, and all
// bookkeeping fields are fixed-offset little-endian integers inside the
// region. Payloads are fixed-width, encoded through a caller-supplied
// codec.Payload.
//
// Trees perform no locking; concurrent access to a shared region requires
// external mutual exclusion.
package shmtree

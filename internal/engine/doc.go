// Package engine implements the log-structured merge engine that ties the
// write buffer, the static segments and the manifest together.
//
// # Levels
//
// Level l holds at most one segment and has a target capacity of
// BufferCapacity * GrowthFactor^l points. Every level is EMPTY, OCCUPIED or
// MERGING. Inserts go to the active buffer; a full buffer is frozen (still
// queryable) and merged into the levels:
//
//	total := live(frozen buffer)
//	for l := 0; ; l++ {
//	    total += live(level l)           // if occupied
//	    if total <= capacity(l) { target = l; break }
//	}
//
// All inputs are read, tombstoned values dropped, duplicates resolved in
// favour of the newest copy, and a single segment is bulk loaded and written
// to a fresh blob. Only after the blob is complete and the manifest naming
// it is saved are the input levels swapped to EMPTY and the target to
// OCCUPIED. Any failure reverts MERGING levels to their previous state; the
// frozen buffer stays queryable and the merge is retried later.
//
// # Deletes
//
// Deleting a value removes it from the active buffer in place. Copies in
// frozen buffers or segments are tombstoned per source; tombstones are
// consulted by queries and purged when a merge consumes their source.
//
// # Queries
//
// Query captures a snapshot (a clone of the active buffer, the frozen
// buffers, reference-counted segments and frozen tombstone sets) and
// returns a Cursor over it. Segments replaced by a later merge stay readable
// until every cursor holding them is closed.
package engine

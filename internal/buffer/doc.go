// Package buffer implements the memory-resident write buffer: an implicit
// kd-tree stored in a flat slot array.
//
// The root lives in slot 0 and the children of slot i are 2i+1 (strictly
// less on the splitting axis) and 2i+2 (greater or equal). The splitting
// axis of a slot is its depth modulo the number of dimensions. Empty slots
// are nil.
//
// A Buffer is not safe for concurrent use; the engine serializes access and
// hands out clones to readers.
package buffer

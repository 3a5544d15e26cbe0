// Package model defines core types used throughout bkdgo.
//
// # Identity Types
//
//   - Value: Caller-supplied 64-bit identifier attached to a point (uint64)
//   - SegmentID: Unique identifier for a segment or buffer generation (uint64)
//
// # Data Types
//
//   - Point: Fixed-dimension tuple of int64 coordinates
//   - Entry: A point together with its value
//   - Range, Box: Inclusive axis-aligned query bounds
//
// Points are treated as immutable once handed to the index; components that
// retain a point store a private copy.
package model

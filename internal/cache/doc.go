// Package cache provides an LRU cache for immutable segment data.
//
// Segment pages never change after they are written, so cached bytes stay
// valid until the segment is reclaimed; the engine invalidates a segment's
// entries when its last reference is dropped. Retained bytes are accounted
// against a resource.Controller when one is supplied.
package cache

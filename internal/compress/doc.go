// Package compress implements the block codecs used for segment value-index
// chunks and tombstone files.
//
// Every encoded block starts with an 8 byte header
//
//	[uncompressed size u32][stored size u32, 0 = raw][data...]
//
// so a reader can size its output buffer up front. Blocks that do not shrink
// by at least 10% are stored raw regardless of the configured codec.
package compress

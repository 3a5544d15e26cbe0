// Package resource governs the memory, background concurrency and IO bandwidth
// used by flushes and merges.
//
//   - Memory: merges reserve the size of the entries they materialize before
//     bulk loading (fail-fast, non-blocking), and the block cache reserves the
//     pages it retains.
//   - Background workers: a weighted semaphore bounds concurrent merges.
//   - IO: a token bucket throttles segment writes so that a large cascade does
//     not starve foreground queries of disk bandwidth.
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   1 << 30,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//	w := resource.NewRateLimitedWriter(ctx, blob, rc)
//
// A nil *Controller is valid and imposes no limits.
package resource

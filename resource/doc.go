// Package resource governs the process-wide resources store opens consume.
//
// A Controller manages three kinds of budget:
//
//   - Memory: bytes of store files mapped into memory (fail-fast TryAcquire)
//   - Fetches: concurrent downloads of remote store files
//   - IO: a token bucket limiting download throughput
//
// # Memory
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if !rc.TryAcquireMemory(size) {
//	    // open the store without mapping it
//	}
//	defer rc.ReleaseMemory(size)
//
// # IO Rate Limiting
//
//	r := resource.NewRateLimitedReader(ctx, body, rc)
//	_, err := io.Copy(dst, r)
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource

// Package cache provides a small thread-safe LRU used to memoize compiled
// shader programs.
//
//	c := cache.New[string, []uint32](64)
//	words, err := c.GetOrCompute(src, func() ([]uint32, error) {
//		return compile(src)
//	})
//
// Failed computations are not cached, so a later call retries them.
package cache

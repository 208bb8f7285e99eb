package probehosts

// CacheStats reports lightweight decision cache metrics.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// Stats reports the matcher's configured host count and cache metrics.
type Stats struct {
	Hosts int
	Cache CacheStats
}

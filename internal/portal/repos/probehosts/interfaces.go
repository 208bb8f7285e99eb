// Package probehosts decides whether an HTTP Host header belongs to one of
// the connectivity-check domains operating systems contact to detect a
// captive network.
package probehosts

// Matcher answers whether a host is a known probe host. A host matches when
// it equals a configured domain or is a subdomain of one. The walk towards
// the apex stops at the registrable domain, so a configured public suffix
// such as "com" never matches anything but itself.
type Matcher interface {
	Match(host string) bool
	Hosts() []string
	Stats() Stats
}

// BloomFilter is a probabilistic set used to skip the exact lookup for
// names that were never configured.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a capacity and false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// BloomSizer computes the bit count (m) and hash count (k) for a filter.
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// DecisionCache memoizes match decisions per canonical host name.
type DecisionCache interface {
	Get(name string) (match bool, ok bool)
	Put(name string, match bool)
	Len() int
	Purge()
	Stats() CacheStats
}

package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-portal/internal/portal/repos/probehosts"
)

// factory implements probehosts.BloomFactory using the package sizer.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() probehosts.BloomFactory { return factory{} }

// New constructs a filter sized for capacity entries at fpRate.
func (factory) New(capacity uint64, fpRate float64) probehosts.BloomFilter {
	m, k := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

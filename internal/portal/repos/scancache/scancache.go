// Package scancache keeps the result of the last Wi-Fi scan for a short
// time, so every page load of the portal does not trigger a new scan.
package scancache

import (
	"slices"
	"strings"
	"time"

	"github.com/haukened/rr-portal/internal/portal/common/clock"
)

// Scanner lists the SSIDs currently visible to the radio.
type Scanner interface {
	Scan() ([]string, error)
}

// StaticScanner reports a fixed list of SSIDs.
type StaticScanner []string

func (s StaticScanner) Scan() ([]string, error) { return slices.Clone(s), nil }

// Cache is a TTL cache in front of a Scanner.
type Cache struct {
	scanner Scanner
	ttl     time.Duration
	clock   clock.Clock

	ssids   []string
	expires time.Time
	scanned bool
	scans   int
}

// New returns a Cache. A ttl <= 0 scans on every call.
func New(scanner Scanner, ttl time.Duration, clk clock.Clock) *Cache {
	return &Cache{scanner: scanner, ttl: ttl, clock: clk}
}

// SSIDs returns the unique, sorted, non-empty SSIDs of the latest scan. When
// a scan fails the previous result is returned alongside the error and the
// next call retries.
func (c *Cache) SSIDs() ([]string, error) {
	now := c.clock.Now()
	if c.scanned && now.Before(c.expires) {
		return slices.Clone(c.ssids), nil
	}
	raw, err := c.scanner.Scan()
	c.scans++
	if err != nil {
		return slices.Clone(c.ssids), err
	}
	c.ssids = normalize(raw)
	c.expires = now.Add(c.ttl)
	c.scanned = true
	return slices.Clone(c.ssids), nil
}

// Scans returns how many times the underlying scanner was called.
func (c *Cache) Scans() int { return c.scans }

func normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

package probehosts

import (
	"net"
	"slices"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultFPRate is the bloom false-positive target used by the portal.
const DefaultFPRate = 0.01

// matcher composes an exact host set, a bloom pre-filter and a decision
// cache. It is owned by the poll loop and is not safe for concurrent use.
type matcher struct {
	hosts map[string]struct{}
	bloom BloomFilter
	cache DecisionCache
}

// NewMatcher builds a Matcher over hosts. Entries are canonicalized; empty
// entries are skipped.
func NewMatcher(hosts []string, cache DecisionCache, factory BloomFactory, fpRate float64) Matcher {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if cn := Canonical(h); cn != "" {
			set[cn] = struct{}{}
		}
	}
	bf := factory.New(uint64(len(set)), fpRate)
	for cn := range set {
		bf.Add([]byte(cn))
	}
	return &matcher{hosts: set, bloom: bf, cache: cache}
}

// Canonical lower-cases a host, strips any port and brackets, and removes
// the trailing root dot.
func Canonical(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}

// Match reports whether host is a configured probe host or a subdomain of
// one.
func (m *matcher) Match(host string) bool {
	cn := Canonical(host)
	if cn == "" || len(m.hosts) == 0 {
		return false
	}
	if hit, ok := m.cache.Get(cn); ok {
		return hit
	}
	hit := m.walk(cn)
	m.cache.Put(cn, hit)
	return hit
}

// walk tests cn and each parent label down to the registrable domain.
// Names without a registrable domain (IP literals, single labels) are only
// compared exactly.
func (m *matcher) walk(cn string) bool {
	apex, err := publicsuffix.EffectiveTLDPlusOne(cn)
	if err != nil {
		apex = cn
	}
	for name := cn; ; {
		if m.contains(name) {
			return true
		}
		if name == apex {
			return false
		}
		i := strings.IndexByte(name, '.')
		if i < 0 {
			return false
		}
		name = name[i+1:]
	}
}

func (m *matcher) contains(name string) bool {
	if !m.bloom.MightContain([]byte(name)) {
		return false
	}
	_, ok := m.hosts[name]
	return ok
}

// Hosts returns the configured hosts in sorted order.
func (m *matcher) Hosts() []string {
	out := make([]string, 0, len(m.hosts))
	for h := range m.hosts {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func (m *matcher) Stats() Stats {
	return Stats{Hosts: len(m.hosts), Cache: m.cache.Stats()}
}

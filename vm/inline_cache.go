package vm

import (
	"github.com/chazu/cilemu/metadata"
)

// Call-site caches for callvirt
//
// A callvirt site remembers which implementation each receiver type
// resolved to, so FindMethodImplementation walks the hierarchy once per
// (site, receiver type). A site that sees more than MaxSiteTypes receiver
// types stops caching. Caches belong to one machine and are not
// synchronized.

// CacheState describes how many receiver types a call site has seen.
type CacheState uint8

const (
	CacheEmpty CacheState = iota
	CacheMonomorphic
	CachePolymorphic
	CacheMegamorphic
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	case CacheMegamorphic:
		return "megamorphic"
	}
	return "invalid"
}

// MaxSiteTypes is the number of receiver types a site caches before it
// turns megamorphic.
const MaxSiteTypes = 6

// CachedTarget is one receiver type and the implementation it resolved to.
type CachedTarget struct {
	Receiver *metadata.TypeDef
	Method   *metadata.MethodDef
}

// InlineCache is the cache of one callvirt site.
type InlineCache struct {
	targets     []CachedTarget
	megamorphic bool
	hits        uint64
	misses      uint64
}

// State reports the cache's state from the number of cached targets.
func (ic *InlineCache) State() CacheState {
	switch {
	case ic.megamorphic:
		return CacheMegamorphic
	case len(ic.targets) == 0:
		return CacheEmpty
	case len(ic.targets) == 1:
		return CacheMonomorphic
	}
	return CachePolymorphic
}

// Targets returns the cached resolutions in the order they were added.
func (ic *InlineCache) Targets() []CachedTarget {
	return append([]CachedTarget(nil), ic.targets...)
}

// Lookup returns the implementation cached for receiver, or nil.
func (ic *InlineCache) Lookup(receiver *metadata.TypeDef) *metadata.MethodDef {
	for _, target := range ic.targets {
		if target.Receiver == receiver {
			ic.hits++
			return target.Method
		}
	}
	ic.misses++
	return nil
}

// Update caches method as the implementation for receiver. A nil method
// (a failed resolution) is never cached.
func (ic *InlineCache) Update(receiver *metadata.TypeDef, method *metadata.MethodDef) {
	if method == nil || ic.megamorphic {
		return
	}
	for _, target := range ic.targets {
		if target.Receiver == receiver {
			return
		}
	}
	if len(ic.targets) == MaxSiteTypes {
		ic.megamorphic = true
		ic.targets = nil
		return
	}
	ic.targets = append(ic.targets, CachedTarget{Receiver: receiver, Method: method})
}

// Hits returns the number of lookups answered from the cache.
func (ic *InlineCache) Hits() uint64 { return ic.hits }

// Misses returns the number of lookups that fell through to a hierarchy walk.
func (ic *InlineCache) Misses() uint64 { return ic.misses }

// HitRate returns hits as a percentage of all lookups.
func (ic *InlineCache) HitRate() float64 {
	return percent(ic.hits, ic.hits+ic.misses)
}

// Reset forgets every cached target and counter.
func (ic *InlineCache) Reset() {
	*ic = InlineCache{}
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// ---------------------------------------------------------------------------
// Per-machine table of call-site caches
// ---------------------------------------------------------------------------

// CallSite identifies a call instruction.
type CallSite struct {
	Method *metadata.MethodDef
	Offset int
}

// InlineCacheTable holds the caches of every callvirt site a machine has
// executed.
type InlineCacheTable struct {
	caches map[CallSite]*InlineCache
}

// NewInlineCacheTable creates an empty table.
func NewInlineCacheTable() *InlineCacheTable {
	return &InlineCacheTable{caches: make(map[CallSite]*InlineCache)}
}

// GetOrCreate returns the cache for site, creating one if needed.
func (t *InlineCacheTable) GetOrCreate(site CallSite) *InlineCache {
	ic, ok := t.caches[site]
	if !ok {
		ic = &InlineCache{}
		t.caches[site] = ic
	}
	return ic
}

// Get returns the cache for site, or nil if the site never ran.
func (t *InlineCacheTable) Get(site CallSite) *InlineCache {
	return t.caches[site]
}

// CacheStats summarizes every call site in a table.
type CacheStats struct {
	CallSites   int
	Empty       int
	Monomorphic int
	Polymorphic int
	Megamorphic int
	Hits        uint64
	Misses      uint64
}

// HitRate returns hits as a percentage of all lookups.
func (s CacheStats) HitRate() float64 {
	return percent(s.Hits, s.Hits+s.Misses)
}

// MonomorphicRate returns the share of resolved sites that saw a single
// receiver type, as a percentage.
func (s CacheStats) MonomorphicRate() float64 {
	return percent(uint64(s.Monomorphic), uint64(s.CallSites-s.Empty))
}

// Stats gathers statistics over every call site in the table.
func (t *InlineCacheTable) Stats() CacheStats {
	stats := CacheStats{CallSites: len(t.caches)}
	for _, ic := range t.caches {
		switch ic.State() {
		case CacheEmpty:
			stats.Empty++
		case CacheMonomorphic:
			stats.Monomorphic++
		case CachePolymorphic:
			stats.Polymorphic++
		case CacheMegamorphic:
			stats.Megamorphic++
		}
		stats.Hits += ic.hits
		stats.Misses += ic.misses
	}
	return stats
}

// Reset clears every cache in the table.
func (t *InlineCacheTable) Reset() {
	for _, ic := range t.caches {
		ic.Reset()
	}
}

package datacenter

import (
	"sort"
	"sync"
)

// Salt is one entry of a datacenter's server-salt pool, valid over
// [ValidSince, ValidUntil) (§3 Datacenter, §8 "salt pool ordered by
// valid_since").
type Salt struct {
	ValidSince int32
	ValidUntil int32
	Value      int64
}

// SaltPool holds the known server salts for a datacenter, strictly
// ordered by ValidSince with no two entries sharing an identical
// (ValidSince, Value) pair (§8).
type SaltPool struct {
	mu    sync.Mutex
	salts []Salt
}

// NewSaltPool returns an empty pool.
func NewSaltPool() *SaltPool {
	return &SaltPool{}
}

// Add inserts s into the pool in ValidSince order, skipping exact
// duplicates already present.
func (p *SaltPool) Add(s Salt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLocked(s)
}

func (p *SaltPool) addLocked(s Salt) {
	for _, existing := range p.salts {
		if existing.ValidSince == s.ValidSince && existing.Value == s.Value {
			return
		}
	}
	p.salts = append(p.salts, s)
	sort.Slice(p.salts, func(i, j int) bool {
		return p.salts[i].ValidSince < p.salts[j].ValidSince
	})
}

// Merge adds every salt in fresh to the pool, deduplicating as Add does.
// Used when a future_salts response arrives (§4.G dispatch).
func (p *SaltPool) Merge(fresh []Salt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range fresh {
		p.addLocked(s)
	}
}

// Clear empties the pool, used when a datacenter's auth key is discarded
// and its salts are no longer meaningful.
func (p *SaltPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.salts = nil
}

// Current returns the salt valid at unixTime, or the zero Salt and false
// if none covers it.
func (p *SaltPool) Current(unixTime int32) (Salt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Salts are sorted by ValidSince; the current one is the last whose
	// window has started and not yet ended.
	var best Salt
	found := false
	for _, s := range p.salts {
		if s.ValidSince <= unixTime && unixTime < s.ValidUntil {
			best = s
			found = true
		}
	}
	return best, found
}

// PruneExpired drops every salt whose ValidUntil has passed unixTime,
// keeping the pool from growing unbounded across long-lived sessions.
func (p *SaltPool) PruneExpired(unixTime int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.salts[:0:0]
	for _, s := range p.salts {
		if s.ValidUntil > unixTime {
			kept = append(kept, s)
		}
	}
	p.salts = kept
}

// Len returns the number of salts currently held.
func (p *SaltPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.salts)
}

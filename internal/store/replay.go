// Package store provides the replay guard and the saved-correction store.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ReplayGuard remembers recently scrobbled song fingerprints so a page that
// replays a track without a new load is not reported twice. Bloom filter for
// the cheap negative path, exact map behind it, LRU for eviction order.
type ReplayGuard struct {
	fingerprints      map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewReplayGuard creates a replay guard with the specified capacity and
// bloom false positive rate.
func NewReplayGuard(capacity int, falsePositiveRate float64) *ReplayGuard {
	lruCache, _ := lru.New[string, struct{}](capacity)

	if capacity < 0 || capacity > int(^uint(0)>>1) {
		panic("capacity value out of range for uint conversion")
	}
	bloomFilter := bloom.NewWithEstimates(uint(capacity), falsePositiveRate)

	return &ReplayGuard{
		fingerprints:      make(map[string]struct{}),
		bloom:             bloomFilter,
		lru:               lruCache,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Seen checks whether a fingerprint was recently remembered.
func (rg *ReplayGuard) Seen(fingerprint string) bool {
	rg.mutex.RLock()
	defer rg.mutex.RUnlock()

	if !rg.bloom.TestString(fingerprint) {
		return false
	}

	_, exists := rg.fingerprints[fingerprint]
	return exists
}

// Remember records a fingerprint.
func (rg *ReplayGuard) Remember(fingerprint string) {
	rg.mutex.Lock()
	defer rg.mutex.Unlock()

	if _, exists := rg.fingerprints[fingerprint]; exists {
		rg.lru.Add(fingerprint, struct{}{}) // refresh recency
		return
	}

	rg.fingerprints[fingerprint] = struct{}{}
	rg.bloom.AddString(fingerprint)
	rg.lru.Add(fingerprint, struct{}{})

	if len(rg.fingerprints) > rg.capacity {
		rg.evictOldest()
	}
}

// Forget drops a fingerprint, used when a user correction changes a song's
// identity. The bloom filter cannot unlearn; the exact map keeps Seen honest.
func (rg *ReplayGuard) Forget(fingerprint string) {
	rg.mutex.Lock()
	defer rg.mutex.Unlock()

	if _, exists := rg.fingerprints[fingerprint]; !exists {
		return
	}

	delete(rg.fingerprints, fingerprint)
	rg.lru.Remove(fingerprint)
}

// Size returns the number of remembered fingerprints.
func (rg *ReplayGuard) Size() int {
	rg.mutex.RLock()
	defer rg.mutex.RUnlock()
	return len(rg.fingerprints)
}

// Clear removes all remembered fingerprints.
func (rg *ReplayGuard) Clear() {
	rg.mutex.Lock()
	defer rg.mutex.Unlock()

	rg.fingerprints = make(map[string]struct{})
	if rg.capacity < 0 || rg.capacity > int(^uint(0)>>1) {
		panic("capacity value out of range for uint conversion")
	}
	rg.bloom = bloom.NewWithEstimates(uint(rg.capacity), rg.falsePositiveRate)
	rg.lru.Purge()
}

func (rg *ReplayGuard) evictOldest() {
	if rg.lru.Len() == 0 {
		return
	}

	oldestKey, _, ok := rg.lru.GetOldest()
	if !ok {
		return
	}

	delete(rg.fingerprints, oldestKey)
	rg.lru.Remove(oldestKey)
}

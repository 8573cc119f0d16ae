package buffer

import (
	"sync"
)

// DefaultK is the look-back window used by the replacer unless the engine
// config overrides it.
const DefaultK = 2

const infiniteBackwardDistance = ^uint64(0)

// frameHistory tracks the K most recent access timestamps for one frame,
// oldest first. A frame with fewer than K recorded accesses has an
// infinite backward k-distance and is always preferred for eviction over
// one that has seen K or more.
type frameHistory struct {
	stamps    []uint64 // oldest first, capped at k entries
	evictable bool
}

func (h *frameHistory) record(k int, now uint64) {
	h.stamps = append(h.stamps, now)
	if len(h.stamps) > k {
		h.stamps = h.stamps[len(h.stamps)-k:]
	}
}

// kDistance returns the backward k-distance: the gap between now and the
// k-th most recent access, or infiniteBackwardDistance if there have been
// fewer than k accesses.
func (h *frameHistory) kDistance(k int, now uint64) uint64 {
	if len(h.stamps) < k {
		return infiniteBackwardDistance
	}
	oldestOfK := h.stamps[len(h.stamps)-k]
	return now - oldestOfK
}

func (h *frameHistory) earliest() uint64 {
	if len(h.stamps) == 0 {
		return 0
	}
	return h.stamps[0]
}

// Replacer selects which evictable frame to reclaim using LRU-K: frames
// with fewer than K accesses are evicted classic-LRU (earliest access
// wins); among frames with K or more accesses, the one with the largest
// backward k-distance wins, with ties broken by earliest overall access.
// This defeats sequential-scan flooding, where CLOCK/LRU-1 would otherwise
// evict hot pages in favor of a one-pass scan.
type Replacer struct {
	k int

	mu      sync.Mutex
	clock   uint64
	history map[int]*frameHistory // frame index -> history
}

// NewReplacer returns a Replacer tracking up to k accesses per frame.
func NewReplacer(k int) *Replacer {
	if k <= 0 {
		k = DefaultK
	}
	return &Replacer{k: k, history: make(map[int]*frameHistory)}
}

// RecordAccess records a new access to frameIdx, creating its history entry
// if this is the first time it's seen.
func (r *Replacer) RecordAccess(frameIdx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock++
	h, ok := r.history[frameIdx]
	if !ok {
		h = &frameHistory{}
		r.history[frameIdx] = h
	}
	h.record(r.k, r.clock)
}

// SetEvictable marks frameIdx as eligible (or ineligible) for eviction.
// The buffer pool calls this with false while a frame is pinned and true
// once its pin count returns to zero.
func (r *Replacer) SetEvictable(frameIdx int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.history[frameIdx]
	if !ok {
		h = &frameHistory{}
		r.history[frameIdx] = h
	}
	h.evictable = evictable
}

// Evict selects and removes the best eviction victim among evictable
// frames, returning its index and true, or (0, false) if none qualify.
func (r *Replacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		victim       int
		found        bool
		victimDist   uint64
		victimEarly  uint64
	)

	for idx, h := range r.history {
		if !h.evictable {
			continue
		}
		dist := h.kDistance(r.k, r.clock)
		early := h.earliest()

		if !found {
			victim, victimDist, victimEarly, found = idx, dist, early, true
			continue
		}

		if dist > victimDist || (dist == victimDist && early < victimEarly) {
			victim, victimDist, victimEarly = idx, dist, early
		}
	}

	if !found {
		return 0, false
	}
	delete(r.history, victim)
	return victim, true
}

// Remove drops all history for frameIdx, used when a frame is explicitly
// deleted rather than evicted (e.g. DeletePage).
func (r *Replacer) Remove(frameIdx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, frameIdx)
}

// Size reports how many frames are currently evictable.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, h := range r.history {
		if h.evictable {
			n++
		}
	}
	return n
}

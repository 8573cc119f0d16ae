package heap

import (
	"sync"

	"github.com/crio-db/crio/internal/pageid"
)

// FreeSpaceMap is a best-effort, in-memory index of how much free space
// each table page last reported, used to pick an insert target without
// walking the whole page chain. It's advisory only: a page's real free
// space (read from the page itself) is always the source of truth, and a
// stale FSM entry just costs a retry, never correctness.
type FreeSpaceMap struct {
	mu   sync.Mutex
	free map[pageid.PageID]int
}

// NewFreeSpaceMap returns an empty map.
func NewFreeSpaceMap() *FreeSpaceMap {
	return &FreeSpaceMap{free: make(map[pageid.PageID]int)}
}

// Update records id's free space as observed after some operation.
func (m *FreeSpaceMap) Update(id pageid.PageID, freeBytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free[id] = freeBytes
}

// Forget drops id's entry, e.g. when the page is removed from the chain.
func (m *FreeSpaceMap) Forget(id pageid.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.free, id)
}

// PickForInsert returns a page believed to have at least minFree bytes
// free, or (0, false) if none is known to qualify. Callers still must
// confirm the page actually has room once it's latched, since the FSM can
// be stale under concurrent writers.
func (m *FreeSpaceMap) PickForInsert(minFree int) (pageid.PageID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, free := range m.free {
		if free >= minFree {
			return id, true
		}
	}
	return 0, false
}

package buffer

import (
	"fmt"
	"sync"

	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/disk"
	"github.com/crio-db/crio/internal/pageid"
)

// Pool is the Buffer Pool Manager: a fixed-size array of frames, a page
// table mapping resident PageIDs to frame indices, a free list of frames
// that hold no page (never used, deleted, or freed after a failed load),
// and an LRU-K replacer for everything else.
// All page I/O is funneled through a disk.Scheduler so reads/writes stay
// serialized and ordered exactly as the engine issued them.
type Pool struct {
	sched    *disk.Scheduler
	mgr      *disk.Manager
	replacer *Replacer
	tracker  *AccessTracker

	mu        sync.Mutex
	frames    []*Frame
	pageTable map[pageid.PageID]int   // PageID -> frame index
	freeList  []int
	loading   map[int]*sync.WaitGroup // frame index -> in-flight disk I/O for a miss/prefetch
}

// NewPool allocates poolSize frames and wires them to sched, using an
// LRU-K replacer with the given k and an access tracker with the given
// sequential-scan parameters.
func NewPool(mgr *disk.Manager, sched *disk.Scheduler, poolSize, k, seqThreshold, prefetchLookahead int) *Pool {
	frames := make([]*Frame, poolSize)
	free := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(i)
		free[i] = i
	}

	return &Pool{
		sched:     sched,
		mgr:       mgr,
		replacer:  NewReplacer(k),
		tracker:   NewAccessTracker(seqThreshold, prefetchLookahead),
		frames:    frames,
		pageTable: make(map[pageid.PageID]int),
		freeList:  free,
		loading:   make(map[int]*sync.WaitGroup),
	}
}

// Size returns the number of frames in the pool.
func (p *Pool) Size() int { return len(p.frames) }

// findVictim locates a frame to reuse, preferring the free list over
// eviction. Caller must hold p.mu.
func (p *Pool) findVictim() (int, bool) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, true
	}
	return p.replacer.Evict()
}

// flushFrameLocked writes a dirty frame back to disk. Caller must hold
// p.mu and the frame must not be concurrently written.
func (p *Pool) flushFrameLocked(f *Frame) error {
	if !f.IsDirty() {
		return nil
	}
	if err := p.sched.ScheduleWrite(f.PageID(), f.Buf()); err != nil {
		return err
	}
	f.ClearDirty()
	return nil
}

// reserveVictimLocked picks a frame to reuse (free list first, then the
// replacer) and detaches it from whatever page it used to hold, returning
// it still bearing that old page's id/dirty bit so the caller can flush it
// after releasing p.mu. Caller must hold p.mu; the frame is not yet
// associated with any new page id or present in p.loading.
func (p *Pool) reserveVictimLocked() (int, *Frame, error) {
	idx, ok := p.findVictim()
	if !ok {
		return 0, nil, common.ErrNoFreeFrame
	}
	f := p.frames[idx]
	if f.PinCount() != 0 {
		return 0, nil, fmt.Errorf("buffer: invariant violated: evicted frame %d has pin count %d", idx, f.PinCount())
	}
	// A frame from the free list may still carry a stale id (the zero
	// value, or a deleted page's id) that now maps to a different frame.
	if cur, ok := p.pageTable[f.PageID()]; ok && cur == idx {
		delete(p.pageTable, f.PageID())
	}
	p.replacer.Remove(idx)
	return idx, f, nil
}

// performLoadIO does the actual disk I/O for a miss: writing back the
// victim frame's old contents if they were dirty, then either zero-filling
// it (fresh) or reading the new page's bytes in. Called with p.mu NOT
// held — this is the only I/O on the miss and prefetch paths, and it never
// happens while the page-table/free-list latch is held. (FlushPage and
// FlushAll are the exception: they write while holding p.mu.)
func (p *Pool) performLoadIO(f *Frame, id, oldID pageid.PageID, wasDirty, fresh bool) error {
	if wasDirty {
		if err := p.sched.ScheduleWrite(oldID, f.Buf()); err != nil {
			return err
		}
	}
	f.reset(id)
	if fresh {
		f.MarkDirty()
		return nil
	}
	return p.sched.ScheduleRead(id, f.Buf())
}

// fetch is the shared path for FetchPageRead/FetchPageWrite: find id in
// the page table, or load it into a fresh frame, then pin it and record
// the access for eviction/prefetch purposes. When fresh is true the frame
// is zero-filled and marked dirty instead of read from disk, for pages
// that AllocatePage just reserved and that have never been written.
//
// The page-table/free-list latch p.mu is never held across disk I/O: on a
// miss, the victim frame is reserved and its new page id installed as
// "loading" in the same critical section as the miss check (so no second
// fetch can reserve a different frame for the same id), p.mu is released
// for the actual read/write-back, then re-taken only to install the
// result. A concurrent fetch() that observes the loading marker waits on
// its WaitGroup instead of racing a load of its own.
func (p *Pool) fetch(id pageid.PageID, fresh bool) (*Frame, error) {
	for {
		p.mu.Lock()
		if idx, ok := p.pageTable[id]; ok {
			if wg, loading := p.loading[idx]; loading {
				p.mu.Unlock()
				wg.Wait()
				continue
			}
			f := p.frames[idx]
			f.Pin()
			p.replacer.RecordAccess(idx)
			p.replacer.SetEvictable(idx, false)
			p.mu.Unlock()
			return f, nil
		}

		idx, f, err := p.reserveVictimLocked()
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		p.pageTable[id] = idx
		p.loading[idx] = wg
		oldID, wasDirty := f.PageID(), f.IsDirty()
		p.mu.Unlock()

		ioErr := p.performLoadIO(f, id, oldID, wasDirty, fresh)

		p.mu.Lock()
		delete(p.loading, idx)
		if ioErr != nil {
			delete(p.pageTable, id)
			p.freeList = append(p.freeList, idx)
			p.mu.Unlock()
			wg.Done()
			return nil, ioErr
		}
		f.Pin()
		p.replacer.RecordAccess(idx)
		p.replacer.SetEvictable(idx, false)
		p.mu.Unlock()
		wg.Done()

		if !fresh {
			p.maybePrefetch(id)
		}
		return f, nil
	}
}

// maybePrefetch asks the access tracker whether this fetch continues a
// sequential run and, if so, speculatively loads the hinted pages into
// evictable (unpinned) frames. Best-effort: prefetch failures are
// swallowed since they must never fail the caller's actual fetch. Like
// fetch, it reserves the victim and installs the loading marker in the
// same critical section as the cached-hint check, and never holds p.mu
// across the disk I/O itself.
func (p *Pool) maybePrefetch(id pageid.PageID) {
	hints := p.tracker.Observe(id)
	for _, hint := range hints {
		p.mu.Lock()
		if _, ok := p.pageTable[hint]; ok {
			p.mu.Unlock()
			continue
		}
		idx, f, err := p.reserveVictimLocked()
		if err != nil {
			p.mu.Unlock()
			continue
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		p.pageTable[hint] = idx
		p.loading[idx] = wg
		oldID, wasDirty := f.PageID(), f.IsDirty()
		p.mu.Unlock()

		ioErr := p.performLoadIO(f, hint, oldID, wasDirty, false)

		p.mu.Lock()
		delete(p.loading, idx)
		if ioErr != nil {
			delete(p.pageTable, hint)
			p.freeList = append(p.freeList, idx)
			p.mu.Unlock()
			wg.Done()
			continue
		}
		p.replacer.RecordAccess(idx)
		p.replacer.SetEvictable(idx, true) // unpinned: eligible immediately
		p.mu.Unlock()
		wg.Done()
	}
}

// FetchPageRead pins id and returns a guard holding a shared latch on it.
func (p *Pool) FetchPageRead(id pageid.PageID) (*ReadPageGuard, error) {
	f, err := p.fetch(id, false)
	if err != nil {
		return nil, err
	}
	f.RLock()
	return &ReadPageGuard{pool: p, frame: f}, nil
}

// FetchPageWrite pins id and returns a guard holding an exclusive latch
// on it. The frame is marked dirty immediately, on acquisition, not on the
// guard's release: a flush that races an open write guard must still see
// it as dirty and flush it.
func (p *Pool) FetchPageWrite(id pageid.PageID) (*WritePageGuard, error) {
	f, err := p.fetch(id, false)
	if err != nil {
		return nil, err
	}
	f.Lock()
	f.MarkDirty()
	return &WritePageGuard{pool: p, frame: f}, nil
}

// FetchPageWriteFresh pins id and returns a write guard over it without
// reading its current contents from disk: on a miss the frame is
// zero-filled and marked dirty instead; if id is already cached, the
// cached frame is returned with its contents as they are. Used for pages at a fixed, well-known id (like the
// Page Directory's page 0) that may not have been written yet, where an
// ordinary FetchPageWrite would fail with a missing-file or short-read
// error on a brand new database.
func (p *Pool) FetchPageWriteFresh(id pageid.PageID) (*WritePageGuard, error) {
	f, err := p.fetch(id, true)
	if err != nil {
		return nil, err
	}
	f.Lock()
	f.MarkDirty()
	return &WritePageGuard{pool: p, frame: f}, nil
}

// NewPage allocates a fresh page on disk and returns a write guard over
// it, already pinned.
func (p *Pool) NewPage() (*WritePageGuard, error) {
	id, err := p.mgr.AllocatePage()
	if err != nil {
		return nil, err
	}
	f, err := p.fetch(id, true)
	if err != nil {
		return nil, err
	}
	f.Lock()
	return &WritePageGuard{pool: p, frame: f}, nil
}

// unpin is called by guards on release.
func (p *Pool) unpin(f *Frame, dirtied bool) {
	if dirtied {
		f.MarkDirty()
	}
	n := f.Unpin()
	if n == 0 {
		p.mu.Lock()
		p.replacer.SetEvictable(f.Index, true)
		p.mu.Unlock()
	}
}

// FlushPage forces a dirty frame holding id to disk, if resident.
func (p *Pool) FlushPage(id pageid.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return nil
	}
	return p.flushFrameLocked(p.frames[idx])
}

// FlushAll forces every dirty resident frame to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, idx := range p.pageTable {
		if err := p.flushFrameLocked(p.frames[idx]); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes id from the pool without writing it back, returning
// its frame to the free list. Fails if the page is currently pinned.
func (p *Pool) DeletePage(id pageid.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if f.PinCount() != 0 {
		return fmt.Errorf("buffer: cannot delete pinned page %s", id)
	}
	delete(p.pageTable, id)
	p.replacer.Remove(idx)
	f.ClearDirty()
	p.freeList = append(p.freeList, idx)
	return nil
}

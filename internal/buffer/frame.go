// Package buffer implements the Buffer Pool Manager: frames, page guards,
// the LRU-K replacer, and the sequential-access tracker that drives
// prefetch hints.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"

	"github.com/crio-db/crio/internal/common"
	locking "github.com/crio-db/crio/internal/lock"
	"github.com/crio-db/crio/internal/pageid"
)

// Frame is one slot of the buffer pool: a fixed page_size byte buffer plus
// the bookkeeping needed to know whether it's in use, dirty, and which page
// it currently holds.
type Frame struct {
	// Index is this frame's fixed position in the pool's frame array; it
	// never changes once allocated.
	Index int

	mu   sync.RWMutex
	page pageid.PageID
	buf  []byte

	pin   *locking.PinCount
	dirty atomic.Bool
}

// newFrame allocates a frame whose buffer comes from directio.AlignedBlock
// rather than a plain make([]byte, ...): LocalFileSet opens segments with
// O_DIRECT, which on Linux rejects reads/writes into a buffer that isn't
// aligned to the device's block size. common.PageSize equals
// directio.AlignSize, so every frame buffer is exactly one aligned block.
func newFrame(index int) *Frame {
	return &Frame{
		Index: index,
		buf:   directio.AlignedBlock(common.PageSize),
		pin:   locking.NewPinCount(),
	}
}

// PageID returns the page currently held by this frame.
func (f *Frame) PageID() pageid.PageID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.page
}

// Buf returns the frame's backing buffer. Callers must hold the
// appropriate guard before reading or writing through it.
func (f *Frame) Buf() []byte { return f.buf }

// Pin increments the frame's pin count.
func (f *Frame) Pin() int32 { return f.pin.Inc() }

// Unpin decrements the frame's pin count. Panics if it would go negative,
// which indicates a double-unpin bug upstream.
func (f *Frame) Unpin() int32 { return f.pin.Dec() }

// PinCount reports the current pin count.
func (f *Frame) PinCount() int32 { return f.pin.Load() }

// MarkDirty sets the frame's dirty flag.
func (f *Frame) MarkDirty() { f.dirty.Store(true) }

// ClearDirty clears the frame's dirty flag, used after a successful flush.
func (f *Frame) ClearDirty() { f.dirty.Store(false) }

// IsDirty reports the frame's dirty flag.
func (f *Frame) IsDirty() bool { return f.dirty.Load() }

// reset reassigns the frame to a new page and clears its transient state.
// It is called without the pool's latch, on a frame the pool has already
// reserved (marked loading) so no other caller can reach it; the frame
// must have a pin count of zero before this is called.
func (f *Frame) reset(id pageid.PageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = id
	f.dirty.Store(false)
	for i := range f.buf {
		f.buf[i] = 0
	}
}

// RLock / RUnlock / Lock / Unlock expose the frame's rwlock directly so
// ReadPageGuard/WritePageGuard can serialize concurrent access to its
// buffer independently of the pool's own latch.
func (f *Frame) RLock()   { f.mu.RLock() }
func (f *Frame) RUnlock() { f.mu.RUnlock() }
func (f *Frame) Lock()    { f.mu.Lock() }
func (f *Frame) Unlock()  { f.mu.Unlock() }

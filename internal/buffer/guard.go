package buffer

import (
	"sync"

	"github.com/crio-db/crio/internal/pageid"
)

// ReadPageGuard holds a shared latch on a frame's contents and keeps it
// pinned for as long as the guard is alive. Callers must call Release (or
// use WithReadPage) exactly once.
type ReadPageGuard struct {
	pool     *Pool
	frame    *Frame
	released sync.Once
}

// PageID returns the guarded page's id.
func (g *ReadPageGuard) PageID() pageid.PageID { return g.frame.PageID() }

// Data returns the frame's buffer for reading. The returned slice must not
// be retained past Release.
func (g *ReadPageGuard) Data() []byte { return g.frame.Buf() }

// Release unpins the frame and drops the read latch. Safe to call more
// than once; only the first call has an effect.
func (g *ReadPageGuard) Release() {
	g.released.Do(func() {
		g.frame.RUnlock()
		g.pool.unpin(g.frame, false)
	})
}

// WritePageGuard holds an exclusive latch on a frame's contents, marks it
// dirty on acquisition (the assumption being that a writer always intends
// to change the page; this also means a FlushPage/FlushAll racing an open
// write guard still observes it as dirty and flushes it), and keeps it
// pinned for as long as the guard is alive.
type WritePageGuard struct {
	pool     *Pool
	frame    *Frame
	released sync.Once
}

// PageID returns the guarded page's id. The guard already holds the
// frame's exclusive latch, so the id is read directly rather than through
// Frame.PageID, which would block on that same latch.
func (g *WritePageGuard) PageID() pageid.PageID { return g.frame.page }

// Data returns the frame's buffer for reading and writing. The returned
// slice must not be retained past Release.
func (g *WritePageGuard) Data() []byte { return g.frame.Buf() }

// Release unpins the frame and drops the write latch. Safe to call more
// than once; only the first call has an effect. The frame was already
// marked dirty when the guard was acquired.
func (g *WritePageGuard) Release() {
	g.released.Do(func() {
		g.frame.Unlock()
		g.pool.unpin(g.frame, true)
	})
}

// WithReadPage fetches id for reading, invokes fn with its bytes, and
// releases the guard before returning, regardless of whether fn panics.
func WithReadPage(p *Pool, id pageid.PageID, fn func([]byte) error) error {
	g, err := p.FetchPageRead(id)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g.Data())
}

// WithWritePage fetches id for writing, invokes fn with its bytes, and
// releases the guard before returning, regardless of whether fn panics.
func WithWritePage(p *Pool, id pageid.PageID, fn func([]byte) error) error {
	g, err := p.FetchPageWrite(id)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g.Data())
}

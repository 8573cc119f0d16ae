package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
)

// ErrTableClosed is returned by any operation on a Table after Close.
var ErrTableClosed = errors.New("heap: table is closed")

// Table is a heap file: an unordered, doubly-linked chain of table pages
// all tagged with the same table_id, storing opaque tuple bytes. It has no
// notion of columns or types; that belongs to a layer above this one.
type Table struct {
	TableID uint32
	Pool    *buffer.Pool
	FSM     *FreeSpaceMap

	mu         sync.Mutex
	firstPage  pageid.PageID
	lastPage   pageid.PageID
	hasPages   bool
	closed     atomic.Bool
}

// NewTable creates an empty table with the given id, allocating its first
// page immediately.
func NewTable(tableID uint32, pool *buffer.Pool) (*Table, error) {
	t := &Table{
		TableID: tableID,
		Pool:    pool,
		FSM:     NewFreeSpaceMap(),
	}
	if err := t.allocateFirstPage(); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenTable wraps an existing table whose first page is already known
// (typically looked up via the Page Directory).
func OpenTable(tableID uint32, firstPage pageid.PageID, pool *buffer.Pool) *Table {
	return &Table{
		TableID:   tableID,
		Pool:      pool,
		FSM:       NewFreeSpaceMap(),
		firstPage: firstPage,
		lastPage:  firstPage,
		hasPages:  true,
	}
}

// FirstPageID returns the head of the table's page chain, for recording in
// the Page Directory.
func (t *Table) FirstPageID() pageid.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstPage
}

func (t *Table) allocateFirstPage() error {
	wg, err := t.Pool.NewPage()
	if err != nil {
		return err
	}
	id := wg.PageID()
	tp := NewTablePage(wg.Data(), id, t.TableID)
	wg.Release()

	t.mu.Lock()
	t.firstPage = id
	t.lastPage = id
	t.hasPages = true
	t.mu.Unlock()

	t.FSM.Update(id, tp.FreeSpace())
	return nil
}

func (t *Table) ensureOpen() error {
	if t.closed.Load() {
		return ErrTableClosed
	}
	return nil
}

// growChain appends a fresh table page after the current tail and returns
// its id.
func (t *Table) growChain() (pageid.PageID, error) {
	t.mu.Lock()
	tail := t.lastPage
	t.mu.Unlock()

	wg, err := t.Pool.NewPage()
	if err != nil {
		return 0, err
	}
	newID := wg.PageID()
	newTP := NewTablePage(wg.Data(), newID, t.TableID)
	newTP.SetPrevPageID(tail)
	wg.Release()

	if err := buffer.WithWritePage(t.Pool, tail, func(buf []byte) error {
		LoadTablePage(buf).SetNextPageID(newID)
		return nil
	}); err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.lastPage = newID
	t.mu.Unlock()
	t.FSM.Update(newID, common.PageSize-common.HeaderSize-tableHeaderExtra)
	return newID, nil
}

// Insert stores tup somewhere in the table's page chain, preferring a page
// the free space map believes has room, and growing the chain if none do.
func (t *Table) Insert(tup []byte) (RecordID, error) {
	if err := t.ensureOpen(); err != nil {
		return RecordID{}, err
	}

	needed := len(tup) + 4 // tuple bytes + a fresh slot entry, worst case

	for {
		target, ok := t.FSM.PickForInsert(needed)
		if !ok {
			t.mu.Lock()
			target = t.lastPage
			t.mu.Unlock()
		}

		var (
			rid    RecordID
			full   bool
		)
		err := buffer.WithWritePage(t.Pool, target, func(buf []byte) error {
			tp := LoadTablePage(buf)
			slotID, err := tp.Insert(tup)
			if errors.Is(err, common.ErrPageFull) {
				full = true
				t.FSM.Update(target, tp.FreeSpace())
				return nil
			}
			if err != nil {
				return err
			}
			rid = RecordID{PageID: target, SlotID: uint16(slotID)}
			t.FSM.Update(target, tp.FreeSpace())
			return nil
		})
		if err != nil {
			return RecordID{}, err
		}
		if !full {
			return rid, nil
		}

		if _, err := t.growChain(); err != nil {
			return RecordID{}, err
		}
	}
}

// Get reads the tuple at id.
func (t *Table) Get(id RecordID) ([]byte, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}

	var out []byte
	err := buffer.WithReadPage(t.Pool, id.PageID, func(buf []byte) error {
		tp := LoadTablePage(buf)
		tup, err := tp.Get(int(id.SlotID))
		if err != nil {
			return err
		}
		out = append([]byte(nil), tup...)
		return nil
	})
	return out, err
}

// Update overwrites the tuple at id in place.
func (t *Table) Update(id RecordID, tup []byte) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	return buffer.WithWritePage(t.Pool, id.PageID, func(buf []byte) error {
		tp := LoadTablePage(buf)
		if err := tp.Update(int(id.SlotID), tup); err != nil {
			return err
		}
		t.FSM.Update(id.PageID, tp.FreeSpace())
		return nil
	})
}

// Delete tombstones the tuple at id.
func (t *Table) Delete(id RecordID) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	return buffer.WithWritePage(t.Pool, id.PageID, func(buf []byte) error {
		tp := LoadTablePage(buf)
		if err := tp.Delete(int(id.SlotID)); err != nil {
			return err
		}
		t.FSM.Update(id.PageID, tp.FreeSpace())
		return nil
	})
}

// Scan walks every live tuple in the table's page chain in chain order,
// invoking fn for each. Returning an error from fn stops the scan early.
func (t *Table) Scan(fn func(RecordID, []byte) error) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	t.mu.Lock()
	cur := t.firstPage
	hasPages := t.hasPages
	t.mu.Unlock()
	if !hasPages {
		return nil
	}

	for {
		var next pageid.PageID
		stop := false
		err := buffer.WithReadPage(t.Pool, cur, func(buf []byte) error {
			tp := LoadTablePage(buf)
			for slot := 0; slot < tp.SlotCount(); slot++ {
				tup, err := tp.Get(slot)
				if errors.Is(err, common.ErrSlotDeleted) {
					continue
				}
				if err != nil {
					return err
				}
				id := RecordID{PageID: cur, SlotID: uint16(slot)}
				if err := fn(id, tup); err != nil {
					stop = true
					return err
				}
			}
			next = tp.NextPageID()
			return nil
		})
		if err != nil {
			if stop {
				return nil
			}
			return err
		}
		if next == NoPage {
			return nil
		}
		cur = next
	}
}

// Close flushes the table's pages. Idempotent.
func (t *Table) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if err := t.Pool.FlushAll(); err != nil {
		return fmt.Errorf("heap: close table %d: %w", t.TableID, err)
	}
	slog.Debug("heap.Table.Close", "table_id", t.TableID)
	return nil
}

// Package slotted implements the generic slotted page layout shared by
// every page type: a small header, a slot array that grows downward from
// the header, and tuple bytes that grow upward from the end of the page.
// It knows nothing about what a tuple means; callers above this layer
// (heap pages, B+ tree nodes) give it opaque []byte payloads.
package slotted

import (
	"fmt"

	"github.com/crio-db/crio/internal/bx"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
)

// A slot's offset of 0 marks it as unused/deleted: offset 0 falls inside
// the page header, so no live tuple can ever legitimately start there.
const slotDeleted = 0

// Page is a common.PageSize-byte buffer interpreted as a slotted page.
// Page does not own buf; it's a thin view, the same way the teacher's
// storage.Page wraps a []byte without copying it. base is where the slot
// array begins: common.HeaderSize for a page with no extra fields, or
// common.HeaderSize+N for a page type (like a table page) that reserves N
// bytes right after the generic header for its own fixed fields.
type Page struct {
	Buf  []byte
	base int
}

// New formats buf (which must be exactly common.PageSize bytes) as a fresh,
// empty page of the given type, with no extra header fields.
func New(buf []byte, id pageid.PageID, pageType common.PageType) Page {
	return NewWithExtraHeader(buf, id, pageType, 0)
}

// NewWithExtraHeader is like New but reserves extraHeaderBytes between the
// generic header and the slot array for the caller's own fixed fields.
func NewWithExtraHeader(buf []byte, id pageid.PageID, pageType common.PageType, extraHeaderBytes int) Page {
	p := Page{Buf: buf, base: common.HeaderSize + extraHeaderBytes}
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	bx.PutU32At(p.Buf, common.OffPageID, id.Uint32())
	bx.PutU64At(p.Buf, common.OffLSN, 0)
	p.Buf[common.OffPageType] = byte(pageType)
	bx.PutU16At(p.Buf, common.OffSlotCount, 0)
	bx.PutU16At(p.Buf, common.OffFreeSpaceOff, uint16(common.PageSize))
	return p
}

// Load wraps an existing on-disk buffer without reinitializing it, with no
// extra header fields.
func Load(buf []byte) Page { return Page{Buf: buf, base: common.HeaderSize} }

// LoadWithExtraHeader is like Load but accounts for a caller-reserved
// fixed-field region between the generic header and the slot array.
func LoadWithExtraHeader(buf []byte, extraHeaderBytes int) Page {
	return Page{Buf: buf, base: common.HeaderSize + extraHeaderBytes}
}

func (p Page) PageID() pageid.PageID {
	return pageid.PageID(bx.U32At(p.Buf, common.OffPageID))
}

func (p Page) LSN() uint64 { return bx.U64At(p.Buf, common.OffLSN) }
func (p Page) SetLSN(v uint64) { bx.PutU64At(p.Buf, common.OffLSN, v) }

func (p Page) Type() common.PageType { return common.PageType(p.Buf[common.OffPageType]) }

func (p Page) SlotCount() int { return int(bx.U16At(p.Buf, common.OffSlotCount)) }

func (p Page) setSlotCount(n int) { bx.PutU16At(p.Buf, common.OffSlotCount, uint16(n)) }

// freeSpaceOffset is the low-water mark of the tuple area: bytes from here
// to the end of the page are occupied by tuple data, growing downward as
// tuples are added.
func (p Page) freeSpaceOffset() int { return int(bx.U16At(p.Buf, common.OffFreeSpaceOff)) }

func (p Page) setFreeSpaceOffset(v int) { bx.PutU16At(p.Buf, common.OffFreeSpaceOff, uint16(v)) }

func (p Page) slotOffset(slotID int) int {
	return p.base + slotID*common.SlotSize
}

// slotEntry returns (tupleOffset, tupleLength) for slotID.
func (p Page) slotEntry(slotID int) (int, int) {
	o := p.slotOffset(slotID)
	return int(bx.U16At(p.Buf, o)), int(bx.U16At(p.Buf, o+2))
}

func (p Page) putSlotEntry(slotID, tupleOffset, tupleLength int) {
	o := p.slotOffset(slotID)
	bx.PutU16At(p.Buf, o, uint16(tupleOffset))
	bx.PutU16At(p.Buf, o+2, uint16(tupleLength))
}

// slotArrayEnd is the first byte past the slot array.
func (p Page) slotArrayEnd() int {
	return p.base + p.SlotCount()*common.SlotSize
}

// HeaderExtra returns the byte range between the end of the generic header
// and the start of the slot array, for callers (like a table page wrapper)
// that store their own fixed fields there.
func (p Page) HeaderExtra() []byte {
	return p.Buf[common.HeaderSize:p.base]
}

// FreeSpace returns the number of unused bytes between the slot array and
// the tuple area.
func (p Page) FreeSpace() int {
	return p.freeSpaceOffset() - p.slotArrayEnd()
}

// findFreeSlot returns the lowest-numbered deleted slot, or -1 if none.
// Reusing deleted slots keeps the slot array from growing without bound
// under a delete/insert churn workload.
func (p Page) findFreeSlot() int {
	for i := 0; i < p.SlotCount(); i++ {
		offset, _ := p.slotEntry(i)
		if offset == slotDeleted {
			return i
		}
	}
	return -1
}

// Insert places tup in the page and returns the slot id it was assigned.
// Slot ids are never reused for a different logical row once handed out
// except through this free-slot mechanism, and never renumbered: callers
// that hold a RecordId remain valid until the tuple is explicitly deleted.
func (p Page) Insert(tup []byte) (int, error) {
	needed := len(tup)
	slotID := p.findFreeSlot()
	newSlotNeeded := slotID < 0

	spaceNeeded := needed
	if newSlotNeeded {
		spaceNeeded += common.SlotSize
	}
	if p.FreeSpace() < spaceNeeded {
		return 0, common.ErrPageFull
	}

	newOffset := p.freeSpaceOffset() - needed
	copy(p.Buf[newOffset:newOffset+needed], tup)
	p.setFreeSpaceOffset(newOffset)

	if newSlotNeeded {
		slotID = p.SlotCount()
		p.setSlotCount(slotID + 1)
	}
	p.putSlotEntry(slotID, newOffset, needed)
	return slotID, nil
}

// Get returns the tuple bytes stored at slotID. The returned slice aliases
// the page buffer; callers that need to keep it past the guard's release
// must copy it.
func (p Page) Get(slotID int) ([]byte, error) {
	if slotID < 0 || slotID >= p.SlotCount() {
		return nil, common.ErrSlotNotFound
	}
	offset, length := p.slotEntry(slotID)
	if offset == slotDeleted {
		return nil, common.ErrSlotDeleted
	}
	return p.Buf[offset : offset+length], nil
}

// Update overwrites slotID's tuple. If the new value is no larger than the
// space already reserved in place, it's written in place; otherwise the
// old bytes are freed (left for the next Compact) and a new home is
// allocated for it, keeping the same slot id so RecordIds stay valid.
func (p Page) Update(slotID int, tup []byte) error {
	if slotID < 0 || slotID >= p.SlotCount() {
		return common.ErrSlotNotFound
	}
	offset, length := p.slotEntry(slotID)
	if offset == slotDeleted {
		return common.ErrSlotDeleted
	}

	if len(tup) <= length {
		copy(p.Buf[offset:offset+len(tup)], tup)
		p.putSlotEntry(slotID, offset, len(tup))
		return nil
	}

	if p.FreeSpace() < len(tup) {
		return common.ErrPageFull
	}
	newOffset := p.freeSpaceOffset() - len(tup)
	copy(p.Buf[newOffset:newOffset+len(tup)], tup)
	p.setFreeSpaceOffset(newOffset)
	p.putSlotEntry(slotID, newOffset, len(tup))
	return nil
}

// Delete tombstones slotID: its RecordId becomes invalid but the slot
// itself is retained (and may be handed back out by a later Insert) so
// that other slots' ids never shift.
func (p Page) Delete(slotID int) error {
	if slotID < 0 || slotID >= p.SlotCount() {
		return common.ErrSlotNotFound
	}
	offset, _ := p.slotEntry(slotID)
	if offset == slotDeleted {
		return common.ErrSlotDeleted
	}
	p.putSlotEntry(slotID, slotDeleted, 0)
	return nil
}

// Compact reclaims space left behind by deletes and in-place grows by
// rewriting the tuple area densely, without changing any slot id or the
// offset/length of any slot relative to its own tuple. Only the gaps
// between tuples are removed.
func (p Page) Compact() {
	type live struct {
		slotID int
		data   []byte
	}
	var tuples []live
	for i := 0; i < p.SlotCount(); i++ {
		offset, length := p.slotEntry(i)
		if offset == slotDeleted {
			continue
		}
		buf := make([]byte, length)
		copy(buf, p.Buf[offset:offset+length])
		tuples = append(tuples, live{slotID: i, data: buf})
	}

	cursor := common.PageSize
	for _, t := range tuples {
		cursor -= len(t.data)
		copy(p.Buf[cursor:cursor+len(t.data)], t.data)
		p.putSlotEntry(t.slotID, cursor, len(t.data))
	}
	p.setFreeSpaceOffset(cursor)
}

// Validate returns an error if the page's header invariants look corrupt,
// useful right after a disk read.
func (p Page) Validate() error {
	if len(p.Buf) != common.PageSize {
		return fmt.Errorf("slotted: buffer is %d bytes, want %d", len(p.Buf), common.PageSize)
	}
	if p.slotArrayEnd() > p.freeSpaceOffset() {
		return fmt.Errorf("slotted: slot array (end %d) overlaps tuple area (starts %d)", p.slotArrayEnd(), p.freeSpaceOffset())
	}
	return nil
}

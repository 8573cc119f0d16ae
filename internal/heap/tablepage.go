package heap

import (
	"github.com/crio-db/crio/internal/bx"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
	"github.com/crio-db/crio/internal/slotted"
)

// tableHeaderExtra is the number of bytes a table page reserves right
// after the generic page header for table_id/prev_page_id/next_page_id,
// ahead of where the slot array begins.
const tableHeaderExtra = 12

const (
	extraOffTableID = 0
	extraOffPrev    = 4
	extraOffNext    = 8
)

// TablePage is a slotted page extended with the fields needed to form a
// doubly-linked heap-file page chain: which table it belongs to, and its
// neighbors in insertion order.
type TablePage struct {
	slotted.Page
}

// NoPage is the sentinel PageID used for a chain end.
const NoPage = pageid.Invalid

// NewTablePage formats buf as a fresh table page belonging to tableID,
// with no chain neighbors yet.
func NewTablePage(buf []byte, id pageid.PageID, tableID uint32) TablePage {
	tp := TablePage{Page: slotted.NewWithExtraHeader(buf, id, common.PageTable, tableHeaderExtra)}
	tp.SetTableID(tableID)
	tp.SetPrevPageID(NoPage)
	tp.SetNextPageID(NoPage)
	return tp
}

// LoadTablePage wraps an existing on-disk table page buffer.
func LoadTablePage(buf []byte) TablePage {
	return TablePage{Page: slotted.LoadWithExtraHeader(buf, tableHeaderExtra)}
}

func (tp TablePage) TableID() uint32 {
	return bx.U32(tp.HeaderExtra()[extraOffTableID:])
}

func (tp TablePage) SetTableID(id uint32) {
	bx.PutU32(tp.HeaderExtra()[extraOffTableID:], id)
}

func (tp TablePage) PrevPageID() pageid.PageID {
	return pageid.PageID(bx.U32(tp.HeaderExtra()[extraOffPrev:]))
}

func (tp TablePage) SetPrevPageID(id pageid.PageID) {
	bx.PutU32(tp.HeaderExtra()[extraOffPrev:], id.Uint32())
}

func (tp TablePage) NextPageID() pageid.PageID {
	return pageid.PageID(bx.U32(tp.HeaderExtra()[extraOffNext:]))
}

func (tp TablePage) SetNextPageID(id pageid.PageID) {
	bx.PutU32(tp.HeaderExtra()[extraOffNext:], id.Uint32())
}

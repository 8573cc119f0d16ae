// Package heap implements table pages (a slotted page plus a heap-file
// page chain) and the Table type that drives row storage through the
// buffer pool.
package heap

import (
	"fmt"

	"github.com/crio-db/crio/internal/pageid"
)

// RecordID identifies one row: the page holding it and its slot within
// that page. It stays stable across page compaction, since slotted pages
// never renumber slots.
type RecordID struct {
	PageID pageid.PageID
	SlotID uint16
}

func (r RecordID) String() string {
	return fmt.Sprintf("%s/%d", r.PageID, r.SlotID)
}

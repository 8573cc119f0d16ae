// Package pageid implements the PageID codec: packing a (file_id, offset)
// pair into the 32-bit identifier used everywhere else in the engine.
package pageid

import (
	"fmt"

	"github.com/crio-db/crio/internal/common"
)

// PageID is a packed 32-bit identifier: the high 8 bits are the segment
// file_id (0-255), the low 24 bits are the page offset within that file
// (0-16,777,215). Offset 0 in file 0 is reserved for the Page Directory;
// offset 0 in any other file is reserved for that file's header.
type PageID uint32

// Invalid is the zero value's file-0/offset-0 slot is actually valid (the
// Page Directory lives there); callers that need an explicit "no page"
// sentinel use this instead.
const Invalid PageID = 0xFFFFFFFF

const fileIDShift = 24
const offsetMask = (1 << fileIDShift) - 1

// New packs a (file_id, offset) pair into a PageID. It rejects offsets that
// do not fit in 24 bits.
func New(fileID uint8, offset uint32) (PageID, error) {
	if offset >= common.MaxPagesPerFile {
		return 0, fmt.Errorf("%w: offset %d exceeds %d pages per file", common.ErrInvalidPageID, offset, common.MaxPagesPerFile)
	}
	return PageID(uint32(fileID)<<fileIDShift | offset), nil
}

// FileID extracts the high 8 bits.
func (p PageID) FileID() uint8 {
	return uint8(uint32(p) >> fileIDShift)
}

// Offset extracts the low 24 bits.
func (p PageID) Offset() uint32 {
	return uint32(p) & offsetMask
}

// Uint32 returns the packed representation.
func (p PageID) Uint32() uint32 {
	return uint32(p)
}

func (p PageID) String() string {
	return fmt.Sprintf("%d:%d", p.FileID(), p.Offset())
}

// Less orders PageIDs by their packed value, which is equivalent to
// ordering first by file_id then by offset.
func (p PageID) Less(other PageID) bool {
	return p < other
}

// Package btree implements a disk-backed B+ tree index: int32 keys, leaf
// payloads pointing at heap RecordIDs, internal payloads pointing at child
// pages, and latch-crabbing descent through the buffer pool.
package btree

import (
	"github.com/crio-db/crio/internal/bx"
	"github.com/crio-db/crio/internal/heap"
	"github.com/crio-db/crio/internal/pageid"
)

// Key is the only key type this index supports: a 4-byte signed integer.
type Key = int32

const (
	// LeafEntrySize is key(4) + PageID(4) + SlotID(2).
	LeafEntrySize = 4 + 4 + 2
	// InternalEntrySize is key(4) + child PageID(4).
	InternalEntrySize = 4 + 4
)

// EncodeLeafEntry packs (key, rid) into a fixed-size tuple for storage in a
// leaf's slotted page.
func EncodeLeafEntry(key Key, rid heap.RecordID) []byte {
	buf := make([]byte, LeafEntrySize)
	bx.PutI32At(buf, 0, key)
	bx.PutU32At(buf, 4, rid.PageID.Uint32())
	bx.PutU16At(buf, 8, rid.SlotID)
	return buf
}

// DecodeLeafEntry reverses EncodeLeafEntry.
func DecodeLeafEntry(b []byte) (Key, heap.RecordID) {
	key := bx.I32At(b, 0)
	rid := heap.RecordID{
		PageID: pageid.PageID(bx.U32At(b, 4)),
		SlotID: bx.U16At(b, 8),
	}
	return key, rid
}

// EncodeInternalEntry packs (separatorKey, child) for an internal node.
// The entry at index 0 has no meaningful separator (it covers everything
// less than entry 1's key) but still reserves the bytes for uniform sizing.
func EncodeInternalEntry(key Key, child pageid.PageID) []byte {
	buf := make([]byte, InternalEntrySize)
	bx.PutI32At(buf, 0, key)
	bx.PutU32At(buf, 4, child.Uint32())
	return buf
}

// DecodeInternalEntry reverses EncodeInternalEntry.
func DecodeInternalEntry(b []byte) (Key, pageid.PageID) {
	key := bx.I32At(b, 0)
	child := pageid.PageID(bx.U32At(b, 4))
	return key, child
}

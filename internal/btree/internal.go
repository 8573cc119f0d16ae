package btree

import (
	"sort"

	"github.com/crio-db/crio/internal/bx"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
	"github.com/crio-db/crio/internal/slotted"
)

// InternalNode wraps a slotted page holding (separatorKey, childPageID)
// entries in ascending key order. Entry 0's key is a don't-care sentinel:
// it covers every key less than entry 1's separator. findChild walks the
// entries to find the last one whose separator is <= the search key.
type InternalNode struct {
	Page slotted.Page
}

// NewInternalNode formats buf as an empty internal node.
func NewInternalNode(buf []byte, id pageid.PageID) InternalNode {
	n := InternalNode{Page: slotted.NewWithExtraHeader(buf, id, common.PageBTreeInternal, nodeHeaderExtra)}
	n.SetParent(pageid.Invalid)
	return n
}

// LoadInternalNode wraps an existing on-disk internal page buffer.
func LoadInternalNode(buf []byte) InternalNode {
	return InternalNode{Page: slotted.LoadWithExtraHeader(buf, nodeHeaderExtra)}
}

func (n InternalNode) NumEntries() int { return n.Page.SlotCount() }

// Parent returns the id of this node's parent internal node, or
// pageid.Invalid for the root.
func (n InternalNode) Parent() pageid.PageID {
	return pageid.PageID(bx.U32(n.Page.HeaderExtra()[nodeOffParent:]))
}

func (n InternalNode) SetParent(id pageid.PageID) {
	bx.PutU32(n.Page.HeaderExtra()[nodeOffParent:], id.Uint32())
}

type internalEntry struct {
	key   Key
	child pageid.PageID
}

func (n InternalNode) entries() ([]internalEntry, error) {
	out := make([]internalEntry, 0, n.NumEntries())
	for i := 0; i < n.NumEntries(); i++ {
		data, err := n.Page.Get(i)
		if err != nil {
			continue
		}
		k, c := DecodeInternalEntry(data)
		out = append(out, internalEntry{key: k, child: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}

// findChild returns the child page to descend into for key, and that
// child's index among this node's entries.
func (n InternalNode) findChild(key Key) (pageid.PageID, int, error) {
	entries, err := n.entries()
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 0, common.ErrKeyNotFound
	}
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].key > key }) - 1
	if idx < 0 {
		idx = 0
	}
	return entries[idx].child, idx, nil
}

// rebuildInternal reformats buf as a fresh internal node (id) containing
// exactly entries, in order.
func rebuildInternal(buf []byte, id pageid.PageID, entries []internalEntry) (InternalNode, error) {
	fresh := NewInternalNode(buf, id)
	for _, e := range entries {
		if _, err := fresh.Page.Insert(EncodeInternalEntry(e.key, e.child)); err != nil {
			return InternalNode{}, err
		}
	}
	return fresh, nil
}

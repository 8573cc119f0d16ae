package btree

import (
	"sort"

	"github.com/crio-db/crio/internal/bx"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/heap"
	"github.com/crio-db/crio/internal/pageid"
	"github.com/crio-db/crio/internal/slotted"
)

// nodeHeaderExtra is the fixed-field region every B+ tree node page (leaf
// or internal) reserves right after the generic page header: parent(4),
// prev_leaf(4), next_leaf(4). Internal nodes carry the same three fields
// for header uniformity even though only Parent is meaningful for them;
// prev_leaf/next_leaf stay at their zero value (pageid.Invalid).
const nodeHeaderExtra = 12

const (
	nodeOffParent   = 0
	nodeOffPrevLeaf = 4
	nodeOffNextLeaf = 8
)

// LeafNode wraps a slotted page holding (key, RecordID) entries. Entries
// are rebuilt in sorted order on every insert rather than kept sorted
// incrementally in place, trading a little write amplification for much
// simpler split code; a delete only tombstones its slot.
type LeafNode struct {
	Page slotted.Page
}

// NewLeafNode formats buf as an empty leaf with no linked siblings yet.
func NewLeafNode(buf []byte, id pageid.PageID) LeafNode {
	n := LeafNode{Page: slotted.NewWithExtraHeader(buf, id, common.PageBTreeLeaf, nodeHeaderExtra)}
	n.SetParent(pageid.Invalid)
	n.SetPrevLeaf(pageid.Invalid)
	n.SetNextLeaf(pageid.Invalid)
	return n
}

// LoadLeafNode wraps an existing on-disk leaf page buffer.
func LoadLeafNode(buf []byte) LeafNode {
	return LeafNode{Page: slotted.LoadWithExtraHeader(buf, nodeHeaderExtra)}
}

func (n LeafNode) NumEntries() int { return n.Page.SlotCount() }

func (n LeafNode) Parent() pageid.PageID {
	return pageid.PageID(bx.U32(n.Page.HeaderExtra()[nodeOffParent:]))
}

func (n LeafNode) SetParent(id pageid.PageID) {
	bx.PutU32(n.Page.HeaderExtra()[nodeOffParent:], id.Uint32())
}

// PrevLeaf returns the previous leaf in key order, or pageid.Invalid if
// this is the first leaf.
func (n LeafNode) PrevLeaf() pageid.PageID {
	return pageid.PageID(bx.U32(n.Page.HeaderExtra()[nodeOffPrevLeaf:]))
}

func (n LeafNode) SetPrevLeaf(id pageid.PageID) {
	bx.PutU32(n.Page.HeaderExtra()[nodeOffPrevLeaf:], id.Uint32())
}

// NextLeaf returns the next leaf in key order, or pageid.Invalid if this
// is the last leaf.
func (n LeafNode) NextLeaf() pageid.PageID {
	return pageid.PageID(bx.U32(n.Page.HeaderExtra()[nodeOffNextLeaf:]))
}

func (n LeafNode) SetNextLeaf(id pageid.PageID) {
	bx.PutU32(n.Page.HeaderExtra()[nodeOffNextLeaf:], id.Uint32())
}

type leafEntry struct {
	key Key
	rid heap.RecordID
}

// entriesSorted reads every live entry and returns them ordered by key.
func (n LeafNode) entriesSorted() ([]leafEntry, error) {
	out := make([]leafEntry, 0, n.NumEntries())
	for i := 0; i < n.NumEntries(); i++ {
		data, err := n.Page.Get(i)
		if err != nil {
			continue // tombstoned slot
		}
		k, rid := DecodeLeafEntry(data)
		out = append(out, leafEntry{key: k, rid: rid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}

// rebuildLeaf reformats buf as a fresh leaf (id) containing exactly
// entries, in order. It's used both for an ordinary in-place insert
// rewrite and for populating one half of a split onto a new page.
func rebuildLeaf(buf []byte, id pageid.PageID, entries []leafEntry) (LeafNode, error) {
	fresh := NewLeafNode(buf, id)
	for _, e := range entries {
		if _, err := fresh.Page.Insert(EncodeLeafEntry(e.key, e.rid)); err != nil {
			return LeafNode{}, err
		}
	}
	return fresh, nil
}

func lowerBound(entries []leafEntry, key Key) int {
	return sort.Search(len(entries), func(i int) bool { return entries[i].key >= key })
}

// FindEqual returns every RecordID stored under key.
func (n LeafNode) FindEqual(key Key) ([]heap.RecordID, error) {
	entries, err := n.entriesSorted()
	if err != nil {
		return nil, err
	}
	var out []heap.RecordID
	for i := lowerBound(entries, key); i < len(entries) && entries[i].key == key; i++ {
		out = append(out, entries[i].rid)
	}
	return out, nil
}

// DeleteKey tombstones the first slot holding key. It leaves the slot
// array otherwise untouched, per the slot-id stability invariant: no other
// entry's slot id or offset shifts.
func (n LeafNode) DeleteKey(key Key) error {
	for i := 0; i < n.NumEntries(); i++ {
		data, err := n.Page.Get(i)
		if err != nil {
			continue
		}
		k, _ := DecodeLeafEntry(data)
		if k == key {
			return n.Page.Delete(i)
		}
	}
	return common.ErrKeyNotFound
}

// Range returns every RecordID with minKey <= key <= maxKey.
func (n LeafNode) Range(minKey, maxKey Key) ([]heap.RecordID, error) {
	if minKey > maxKey {
		return nil, nil
	}
	entries, err := n.entriesSorted()
	if err != nil {
		return nil, err
	}
	var out []heap.RecordID
	for i := lowerBound(entries, minKey); i < len(entries) && entries[i].key <= maxKey; i++ {
		out = append(out, entries[i].rid)
	}
	return out, nil
}

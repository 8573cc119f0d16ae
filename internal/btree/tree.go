package btree

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/heap"
	"github.com/crio-db/crio/internal/pageid"
)

// negInf is the sentinel key stored in an internal node's leftmost entry,
// the one whose "separator" is conceptually -infinity (it covers every
// key less than the node's second entry). Using a real, always-smallest
// value rather than e.g. 0 keeps entries() sort order correct even when
// actual keys are negative.
const negInf Key = math.MinInt32

// ErrTreeClosed is returned by any operation on a Tree after Close.
var ErrTreeClosed = errors.New("btree: tree is closed")

// Tree is a disk-backed B+ tree index: every node is a page fetched
// through the buffer pool, leaves hold (key, heap.RecordID) entries and
// form a doubly-linked list via LeafNode.Next/PrevLeaf, and insert splits
// propagate separators upward exactly as far as needed, growing the tree
// by one level only when the root itself splits.
//
// Keys are required to be unique: Insert refuses a key already present
// with common.ErrDuplicateKey, matching a conventional unique index.
type Tree struct {
	Pool  *buffer.Pool
	Order int

	workdir string
	name    string

	mu     sync.RWMutex
	root   pageid.PageID
	height int

	closed atomic.Bool
}

func capacities(order int) (leafCap, internalCap int) {
	leafCap = capEntriesPerPage(LeafEntrySize, order)
	internalCap = capEntriesPerPage(InternalEntrySize, order)
	return
}

// NewTree creates a brand-new, single-leaf tree and persists its meta
// sidecar (root/height) at MetaPath(workdir, name).
func NewTree(pool *buffer.Pool, order int, workdir, name string) (*Tree, error) {
	if order <= 0 {
		order = DefaultOrder
	}
	t := &Tree{Pool: pool, Order: order, workdir: workdir, name: name, height: 1}

	wg, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("btree: allocate root: %w", err)
	}
	rootID := wg.PageID()
	NewLeafNode(wg.Data(), rootID)
	wg.Release()

	t.root = rootID
	if err := t.persistMeta(); err != nil {
		return nil, err
	}
	slog.Debug("btree.NewTree", "name", name, "root", t.root)
	return t, nil
}

// OpenTree restores a tree's root/height from its meta sidecar, or creates
// a fresh one if no sidecar exists yet.
func OpenTree(pool *buffer.Pool, order int, workdir, name string) (*Tree, error) {
	if order <= 0 {
		order = DefaultOrder
	}
	path := MetaPath(workdir, name)
	m, ok, err := loadMeta(path)
	if err != nil {
		return nil, fmt.Errorf("btree: load meta %s: %w", path, err)
	}
	if !ok {
		return NewTree(pool, order, workdir, name)
	}

	t := &Tree{
		Pool:    pool,
		Order:   order,
		workdir: workdir,
		name:    name,
		root:    pageid.PageID(m.Root),
		height:  m.Height,
	}
	slog.Debug("btree.OpenTree", "name", name, "root", t.root, "height", t.height)
	return t, nil
}

func (t *Tree) ensureOpen() error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	return nil
}

func (t *Tree) persistMeta() error {
	t.mu.RLock()
	root, height := t.root, t.height
	t.mu.RUnlock()
	return saveMeta(MetaPath(t.workdir, t.name), root, height)
}

// RootPageID returns the tree's current root, for callers that want to
// register it alongside the table's Page Directory entry.
func (t *Tree) RootPageID() pageid.PageID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Height returns the tree's current height (1 == a single leaf root).
func (t *Tree) Height() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.height
}

// Search returns the RecordID stored under key, or common.ErrKeyNotFound.
func (t *Tree) Search(key Key) (heap.RecordID, error) {
	if err := t.ensureOpen(); err != nil {
		return heap.RecordID{}, err
	}

	t.mu.RLock()
	pageID, level := t.root, t.height
	t.mu.RUnlock()

	for level > 1 {
		var next pageid.PageID
		err := buffer.WithReadPage(t.Pool, pageID, func(buf []byte) error {
			node := LoadInternalNode(buf)
			child, _, err := node.findChild(key)
			next = child
			return err
		})
		if err != nil {
			return heap.RecordID{}, err
		}
		pageID = next
		level--
	}

	var (
		rid   heap.RecordID
		found bool
	)
	err := buffer.WithReadPage(t.Pool, pageID, func(buf []byte) error {
		leaf := LoadLeafNode(buf)
		rids, err := leaf.FindEqual(key)
		if err != nil {
			return err
		}
		if len(rids) > 0 {
			rid, found = rids[0], true
		}
		return nil
	})
	if err != nil {
		return heap.RecordID{}, err
	}
	if !found {
		return heap.RecordID{}, common.ErrKeyNotFound
	}
	return rid, nil
}

// splitResult describes a child split that insertAt must propagate into
// its parent: the new right sibling's page id and the separator key for
// it (the smallest key now living in, or reachable through, that sibling).
type splitResult struct {
	promotedKey Key
	rightPage   pageid.PageID
}

// Insert adds (key, rid) to the tree, splitting nodes bottom-up as
// needed. Each level's write
// guard is held for the duration of its own recursive call (root-to-leaf
// order only, so this can never deadlock against another insert/search).
func (t *Tree) Insert(key Key, rid heap.RecordID) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	split, err := t.insertAt(t.root, t.height, key, rid)
	if err != nil {
		return err
	}
	if split == nil {
		return nil
	}

	// The root split: allocate a new internal root one level up, with the
	// old root as its left child and the new sibling as its right child.
	wg, err := t.Pool.NewPage()
	if err != nil {
		return fmt.Errorf("btree: allocate new root: %w", err)
	}
	newRootID := wg.PageID()
	root := NewInternalNode(wg.Data(), newRootID)
	if _, err := root.Page.Insert(EncodeInternalEntry(negInf, t.root)); err != nil {
		wg.Release()
		return err
	}
	if _, err := root.Page.Insert(EncodeInternalEntry(split.promotedKey, split.rightPage)); err != nil {
		wg.Release()
		return err
	}
	wg.Release()

	if err := buffer.WithWritePage(t.Pool, t.root, func(buf []byte) error {
		setNodeParent(buf, newRootID, t.height)
		return nil
	}); err != nil {
		return err
	}
	if err := buffer.WithWritePage(t.Pool, split.rightPage, func(buf []byte) error {
		setNodeParent(buf, newRootID, t.height)
		return nil
	}); err != nil {
		return err
	}

	t.root = newRootID
	t.height++
	slog.Debug("btree.Insert.root_split", "name", t.name, "new_root", t.root, "height", t.height)
	// t.mu is already held exclusively here, so save directly rather than
	// through persistMeta, which takes t.mu itself.
	return saveMeta(MetaPath(t.workdir, t.name), t.root, t.height)
}

// setNodeParent sets the Parent field of whichever node type lives in
// buf, used right after a root split to repoint both new children at the
// freshly allocated root.
func setNodeParent(buf []byte, parent pageid.PageID, childLevel int) {
	if childLevel == 1 {
		LoadLeafNode(buf).SetParent(parent)
	} else {
		LoadInternalNode(buf).SetParent(parent)
	}
}

// insertAt inserts (key, rid) into the subtree rooted at pageID (at the
// given level: 1 == leaf) and returns a non-nil *splitResult if pageID's
// node had to split. Caller holds t.mu for the whole call tree.
func (t *Tree) insertAt(pageID pageid.PageID, level int, key Key, rid heap.RecordID) (*splitResult, error) {
	if level == 1 {
		return t.insertLeaf(pageID, key, rid)
	}

	wg, err := t.Pool.FetchPageWrite(pageID)
	if err != nil {
		return nil, err
	}
	defer wg.Release()

	node := LoadInternalNode(wg.Data())
	childID, idx, err := node.findChild(key)
	if err != nil {
		return nil, err
	}

	childSplit, err := t.insertAt(childID, level-1, key, rid)
	if err != nil {
		return nil, err
	}
	if childSplit == nil {
		return nil, nil
	}

	entries, err := node.entries()
	if err != nil {
		return nil, err
	}
	newEntry := internalEntry{key: childSplit.promotedKey, child: childSplit.rightPage}
	entries = insertInternalAt(entries, idx+1, newEntry)

	_, internalCap := capacities(t.Order)
	if len(entries) <= internalCap {
		parent := node.Parent()
		fresh, err := rebuildInternal(wg.Data(), pageID, entries)
		if err != nil {
			return nil, err
		}
		fresh.SetParent(parent)
		return nil, nil
	}

	return t.splitInternal(wg, pageID, entries)
}

// insertInternalAt inserts e at position i, shifting later entries right.
func insertInternalAt(entries []internalEntry, i int, e internalEntry) []internalEntry {
	entries = append(entries, internalEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// splitInternal divides entries (already including the newly propagated
// child) across pageID (left half) and a freshly allocated right page,
// returning the separator that must propagate to this node's parent.
func (t *Tree) splitInternal(wg *buffer.WritePageGuard, pageID pageid.PageID, entries []internalEntry) (*splitResult, error) {
	mid := len(entries) / 2
	left, right := entries[:mid], entries[mid:]
	parent := LoadInternalNode(wg.Data()).Parent()

	rwg, err := t.Pool.NewPage()
	if err != nil {
		return nil, err
	}
	rightID := rwg.PageID()

	leftNode, err := rebuildInternal(wg.Data(), pageID, left)
	if err != nil {
		rwg.Release()
		return nil, err
	}
	rightNode, err := rebuildInternal(rwg.Data(), rightID, right)
	if err != nil {
		rwg.Release()
		return nil, err
	}
	rwg.Release()

	// Grandchildren moved into the right half keep a stale Parent pointing
	// at pageID rather than rightID. Nothing in Search/Insert/RangeScan
	// reads a node's own Parent field to find it (descent is always
	// top-down from the tree's root/height), so this is a harmless
	// staleness, not a correctness bug; see DESIGN.md.
	leftNode.SetParent(parent)
	rightNode.SetParent(parent)

	return &splitResult{promotedKey: right[0].key, rightPage: rightID}, nil
}

// insertLeaf inserts (key, rid) into the leaf at pageID, splitting it if
// full. Returns common.ErrDuplicateKey if key is already present.
func (t *Tree) insertLeaf(pageID pageid.PageID, key Key, rid heap.RecordID) (*splitResult, error) {
	wg, err := t.Pool.FetchPageWrite(pageID)
	if err != nil {
		return nil, err
	}
	defer wg.Release()

	leaf := LoadLeafNode(wg.Data())
	entries, err := leaf.entriesSorted()
	if err != nil {
		return nil, err
	}

	pos := lowerBound(entries, key)
	if pos < len(entries) && entries[pos].key == key {
		return nil, common.ErrDuplicateKey
	}

	entries = append(entries, leafEntry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = leafEntry{key: key, rid: rid}

	leafCap, _ := capacities(t.Order)
	if len(entries) <= leafCap {
		prev, next, parent := leaf.PrevLeaf(), leaf.NextLeaf(), leaf.Parent()
		fresh, err := rebuildLeaf(wg.Data(), pageID, entries)
		if err != nil {
			return nil, err
		}
		fresh.SetPrevLeaf(prev)
		fresh.SetNextLeaf(next)
		fresh.SetParent(parent)
		return nil, nil
	}

	return t.splitLeaf(wg, pageID, leaf, entries)
}

// splitLeaf divides entries across pageID (left half) and a freshly
// allocated right leaf, relinking the sibling chain and returning the
// separator (the right leaf's first key) for the parent to adopt.
func (t *Tree) splitLeaf(wg *buffer.WritePageGuard, pageID pageid.PageID, oldLeaf LeafNode, entries []leafEntry) (*splitResult, error) {
	// n is always capacity+1 here (split triggers on the first entry past
	// capacity); floor(n/2) on the left matches ceil(capacity/2) computed
	// on the pre-insertion node, e.g. order=4, 4 existing keys + 1 new ==
	// 5 total -> left keeps 2, right gets 3.
	mid := len(entries) / 2
	left, right := entries[:mid], entries[mid:]

	oldPrev := oldLeaf.PrevLeaf()
	oldNext := oldLeaf.NextLeaf()
	parent := oldLeaf.Parent()

	rwg, err := t.Pool.NewPage()
	if err != nil {
		return nil, err
	}
	rightID := rwg.PageID()

	if _, err := rebuildLeaf(wg.Data(), pageID, left); err != nil {
		rwg.Release()
		return nil, err
	}
	rightNode, err := rebuildLeaf(rwg.Data(), rightID, right)
	if err != nil {
		rwg.Release()
		return nil, err
	}
	leftNode := LoadLeafNode(wg.Data())
	leftNode.SetPrevLeaf(oldPrev)
	leftNode.SetNextLeaf(rightID)
	leftNode.SetParent(parent)
	rightNode.SetPrevLeaf(pageID)
	rightNode.SetNextLeaf(oldNext)
	rightNode.SetParent(parent)
	rwg.Release()

	if oldNext != pageid.Invalid {
		if err := buffer.WithWritePage(t.Pool, oldNext, func(buf []byte) error {
			LoadLeafNode(buf).SetPrevLeaf(rightID)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return &splitResult{promotedKey: right[0].key, rightPage: rightID}, nil
}

// RangeScan returns every RecordID with lo <= key <= hi, in ascending key
// order, by locating the leaf that would hold lo and then walking the
// leaf chain via NextLeaf. Each leaf is read-guarded only for the
// duration of copying its matching entries; the guard is released before
// moving to the next leaf.
func (t *Tree) RangeScan(lo, hi Key) ([]heap.RecordID, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, nil
	}

	leafID, err := t.findLeaf(lo)
	if err != nil {
		return nil, err
	}

	var out []heap.RecordID
	for leafID != pageid.Invalid {
		var (
			next    pageid.PageID
			hitHigh bool
		)
		err := buffer.WithReadPage(t.Pool, leafID, func(buf []byte) error {
			leaf := LoadLeafNode(buf)
			entries, err := leaf.entriesSorted()
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.key < lo {
					continue
				}
				if e.key > hi {
					hitHigh = true
					break
				}
				out = append(out, e.rid)
			}
			next = leaf.NextLeaf()
			return nil
		})
		if err != nil {
			return nil, err
		}
		if hitHigh {
			break
		}
		leafID = next
	}
	return out, nil
}

// findLeaf descends from the root to the leaf that would hold key.
func (t *Tree) findLeaf(key Key) (pageid.PageID, error) {
	t.mu.RLock()
	pageID, level := t.root, t.height
	t.mu.RUnlock()

	for level > 1 {
		var next pageid.PageID
		err := buffer.WithReadPage(t.Pool, pageID, func(buf []byte) error {
			node := LoadInternalNode(buf)
			child, _, err := node.findChild(key)
			next = child
			return err
		})
		if err != nil {
			return 0, err
		}
		pageID = next
		level--
	}
	return pageID, nil
}

// Delete removes key from the tree. Underflow is handled by tombstoning
// only: the slot is marked empty and no redistribution or
// merge is attempted. This keeps delete O(1) at the cost of leaves that
// never shrink back below their high-water mark of slots.
func (t *Tree) Delete(key Key) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	leafID, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	return buffer.WithWritePage(t.Pool, leafID, func(buf []byte) error {
		return LoadLeafNode(buf).DeleteKey(key)
	})
}

// InOrder walks every live entry in ascending order, starting from the
// leftmost leaf, and returns their keys. It exists mainly for tests that verify
// the strictly-ascending-keys invariant after arbitrary insert sequences.
func (t *Tree) InOrder() ([]Key, error) {
	leafID, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}

	var keys []Key
	for leafID != pageid.Invalid {
		var next pageid.PageID
		err := buffer.WithReadPage(t.Pool, leafID, func(buf []byte) error {
			leaf := LoadLeafNode(buf)
			entries, err := leaf.entriesSorted()
			if err != nil {
				return err
			}
			for _, e := range entries {
				keys = append(keys, e.key)
			}
			next = leaf.NextLeaf()
			return nil
		})
		if err != nil {
			return nil, err
		}
		leafID = next
	}
	return keys, nil
}

func (t *Tree) leftmostLeaf() (pageid.PageID, error) {
	t.mu.RLock()
	pageID, level := t.root, t.height
	t.mu.RUnlock()

	for level > 1 {
		var child pageid.PageID
		err := buffer.WithReadPage(t.Pool, pageID, func(buf []byte) error {
			node := LoadInternalNode(buf)
			entries, err := node.entries()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("btree: internal node %s has no entries", pageID)
			}
			child = entries[0].child
			return nil
		})
		if err != nil {
			return 0, err
		}
		pageID = child
		level--
	}
	return pageID, nil
}

// Close flushes every dirty page owned by the pool and marks the tree
// closed. It does not close the pool itself, which may be shared with
// other tables/indexes in the same engine.
func (t *Tree) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if err := t.Pool.FlushAll(); err != nil {
		return fmt.Errorf("btree: close %s: %w", t.name, err)
	}
	if err := t.persistMeta(); err != nil {
		return err
	}
	slog.Debug("btree.Close", "name", t.name, "root", t.root)
	return nil
}

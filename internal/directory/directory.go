// Package directory implements the Page Directory: the persistent table_id
// -> first_page_id mapping that lets the engine find a table's heap chain
// again after a restart, stored on page 0 of file 0.
package directory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/bx"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
)

// magic identifies a well-formed Page Directory page, distinguishing it
// from an uninitialized or corrupt page 0.
var magic = [4]byte{'C', 'R', 'I', 'O'}

const version uint16 = 1

// Layout of the directory page. Unlike every other page in the engine,
// page 0 of file 0 carries no generic page header at all (page_id, lsn,
// page_type, slot_count): it starts directly at byte 0 with its own magic,
// version, and entry count.
//
//	magic(4) version(2) entryCount(2) entries[entryCount]{table_id(4) first_page_id(4)}
const (
	offMagic      = 0
	offVersion    = offMagic + 4
	offEntryCount = offVersion + 2
	offEntries    = offEntryCount + 2
	entrySize     = 8
)

// maxEntries bounds how many tables a single directory page can describe.
const maxEntries = (common.PageSize - offEntries) / entrySize

// Directory is the in-memory view of the Page Directory, kept in sync
// with its on-disk page through the buffer pool.
type Directory struct {
	pool *buffer.Pool

	mu      sync.RWMutex
	entries map[uint32]pageid.PageID
}

// Load reads the Page Directory from its fixed location (file 0, page 0)
// through pool. If the page has never been initialized (wrong magic), it
// is formatted as an empty directory.
func Load(pool *buffer.Pool) (*Directory, error) {
	d := &Directory{pool: pool, entries: make(map[uint32]pageid.PageID)}

	id, err := pageid.New(0, common.DirectoryPageID)
	if err != nil {
		return nil, err
	}

	var needInit bool
	err = buffer.WithReadPage(pool, id, func(buf []byte) error {
		if !hasMagic(buf) {
			needInit = true
			return nil
		}
		return d.decode(buf)
	})
	if err != nil {
		// A brand new database has no file 0 yet, or file 0 is shorter
		// than one page: both mean the Page Directory has never been
		// written, not a real I/O failure.
		if errors.Is(err, common.ErrMissingFile) || errors.Is(err, common.ErrShortRead) {
			needInit = true
		} else {
			return nil, err
		}
	}

	if needInit {
		if err := d.initialize(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func hasMagic(buf []byte) bool {
	for i, b := range magic {
		if buf[offMagic+i] != b {
			return false
		}
	}
	return true
}

func (d *Directory) decode(buf []byte) error {
	v := bx.U16At(buf, offVersion)
	if v != version {
		return fmt.Errorf("directory: unsupported version %d", v)
	}
	count := int(bx.U16At(buf, offEntryCount))
	for i := 0; i < count; i++ {
		o := offEntries + i*entrySize
		tableID := bx.U32At(buf, o)
		first := pageid.PageID(bx.U32At(buf, o+4))
		d.entries[tableID] = first
	}
	return nil
}

func (d *Directory) initialize() error {
	id, err := pageid.New(0, common.DirectoryPageID)
	if err != nil {
		return err
	}
	g, err := d.pool.FetchPageWriteFresh(id)
	if err != nil {
		return err
	}
	defer g.Release()

	buf := g.Data()
	copy(buf[offMagic:], magic[:])
	bx.PutU16At(buf, offVersion, version)
	bx.PutU16At(buf, offEntryCount, 0)
	return nil
}

// Lookup returns the first page of tableID's heap chain.
func (d *Directory) Lookup(tableID uint32) (pageid.PageID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.entries[tableID]
	return id, ok
}

// Register records tableID's first page and persists the directory.
func (d *Directory) Register(tableID uint32, firstPage pageid.PageID) error {
	d.mu.Lock()
	if _, exists := d.entries[tableID]; exists {
		d.mu.Unlock()
		return fmt.Errorf("directory: table %d already registered", tableID)
	}
	if len(d.entries) >= maxEntries {
		d.mu.Unlock()
		return fmt.Errorf("directory: page directory full (max %d tables)", maxEntries)
	}
	d.entries[tableID] = firstPage
	d.mu.Unlock()

	return d.persist()
}

// Forget removes tableID from the directory (e.g. a dropped table) and
// persists the change.
func (d *Directory) Forget(tableID uint32) error {
	d.mu.Lock()
	delete(d.entries, tableID)
	d.mu.Unlock()
	return d.persist()
}

// Tables returns every registered table_id, in no particular order.
func (d *Directory) Tables() []uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]uint32, 0, len(d.entries))
	for id := range d.entries {
		out = append(out, id)
	}
	return out
}

func (d *Directory) persist() error {
	id, err := pageid.New(0, common.DirectoryPageID)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return buffer.WithWritePage(d.pool, id, func(buf []byte) error {
		copy(buf[offMagic:], magic[:])
		bx.PutU16At(buf, offVersion, version)
		bx.PutU16At(buf, offEntryCount, uint16(len(d.entries)))
		i := 0
		for tableID, first := range d.entries {
			o := offEntries + i*entrySize
			bx.PutU32At(buf, o, tableID)
			bx.PutU32At(buf, o+4, first.Uint32())
			i++
		}
		return nil
	})
}

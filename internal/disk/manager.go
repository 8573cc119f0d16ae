package disk

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
)

// Manager turns PageID-addressed reads and writes into positioned I/O
// against a FileSet. It also owns page allocation: each file has an
// append-only cursor that advances one page at a time and rolls over to the
// next file_id once 2^24 pages have been handed out.
type Manager struct {
	files FileSet

	mu      sync.Mutex
	cursors map[uint8]uint32 // fileID -> next unused offset
	curFile uint8            // file_id currently being filled by AllocatePage
}

// NewManager wraps a FileSet. File 0, offset 0 is reserved for the Page
// Directory, so allocation starts at offset 1.
func NewManager(files FileSet) *Manager {
	return &Manager{
		files:   files,
		cursors: map[uint8]uint32{0: 1},
		curFile: 0,
	}
}

// ReadPage fills dst (which must be exactly common.PageSize bytes) with the
// contents of id.
func (m *Manager) ReadPage(id pageid.PageID, dst []byte) error {
	if len(dst) != common.PageSize {
		return fmt.Errorf("disk: read buffer must be %d bytes, got %d", common.PageSize, len(dst))
	}
	if !m.files.Exists(id.FileID()) {
		return fmt.Errorf("disk: read %s: %w", id, common.ErrMissingFile)
	}
	seg, err := m.files.OpenSegment(id.FileID())
	if err != nil {
		return err
	}
	n, err := seg.ReadAt(dst, int64(id.Offset())*common.PageSize)
	if n == common.PageSize {
		return nil
	}
	// io.ReaderAt reports a read that stops at end of file as io.EOF.
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("disk: read %s: %w: got %d bytes", id, common.ErrShortRead, n)
	}
	return fmt.Errorf("disk: read %s: %w: %v", id, common.ErrIOFailed, err)
}

// WritePage writes src (exactly common.PageSize bytes) to id.
func (m *Manager) WritePage(id pageid.PageID, src []byte) error {
	if len(src) != common.PageSize {
		return fmt.Errorf("disk: write buffer must be %d bytes, got %d", common.PageSize, len(src))
	}
	seg, err := m.files.OpenSegment(id.FileID())
	if err != nil {
		return err
	}
	n, err := seg.WriteAt(src, int64(id.Offset())*common.PageSize)
	if err != nil {
		return fmt.Errorf("disk: write %s: %w: %v", id, common.ErrIOFailed, err)
	}
	if n != common.PageSize {
		return fmt.Errorf("disk: write %s: %w: wrote %d bytes", id, common.ErrShortRead, n)
	}
	return nil
}

// AllocatePage reserves the next free page, rolling to a new file_id once
// the current one is full, and returns its id. The caller is responsible
// for writing the page's initial contents.
func (m *Manager) AllocatePage() (pageid.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := m.cursors[m.curFile]
	if offset >= common.MaxPagesPerFile {
		if m.curFile == common.MaxFileID {
			return 0, fmt.Errorf("disk: allocate page: %w: address space exhausted", common.ErrIOFailed)
		}
		m.curFile++
		offset = m.cursors[m.curFile]
		if offset == 0 {
			offset = 1 // offset 0 of every file is reserved for its header
		}
	}

	id, err := pageid.New(m.curFile, offset)
	if err != nil {
		return 0, err
	}
	m.cursors[m.curFile] = offset + 1
	return id, nil
}

// Flush forces any durable-flush support the underlying segment offers.
// MemFileSet segments don't support it and Flush treats that as a no-op,
// matching the engine's behavior when run against in-memory test doubles.
func (m *Manager) Flush(fileID uint8) error {
	if !m.files.Exists(fileID) {
		return nil
	}
	seg, err := m.files.OpenSegment(fileID)
	if err != nil {
		return err
	}
	if s, ok := seg.(syncer); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("disk: flush file %d: %w: %v", fileID, common.ErrIOFailed, err)
		}
	}
	return nil
}

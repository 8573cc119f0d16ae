// Package disk implements the Disk Manager and Disk Scheduler: routing page
// reads/writes to segment files and serializing that I/O on a background
// worker.
package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"
)

// SegmentFile is the minimal surface the disk manager needs from a segment:
// positioned reads/writes and a way to close it. *os.File satisfies this
// trivially; it also lets tests swap in an in-memory double.
type SegmentFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

// syncer is implemented by segment files that can force a durable flush.
// MemFileSet's in-memory segments don't implement it; Flush treats that as
// a no-op rather than an error.
type syncer interface {
	Sync() error
}

// FileSet discovers and opens the numbered segment files (data.<N>) of one
// database directory.
type FileSet interface {
	// OpenSegment opens (creating if necessary) the segment file for the
	// given file_id.
	OpenSegment(fileID uint8) (SegmentFile, error)
	// Exists reports whether the segment file has been created yet, without
	// creating it.
	Exists(fileID uint8) bool
}

// segmentName returns the on-disk name of a segment file.
func segmentName(fileID uint8) string {
	return fmt.Sprintf("data.%d", fileID)
}

// LocalFileSet backs segments with real files opened for direct I/O
// (O_DIRECT via github.com/ncw/directio), matching the "no buffered-write
// path" requirement: every read/write lands straight on the page cache-free
// device block, which the engine's own buffer pool substitutes for.
type LocalFileSet struct {
	Dir string

	mu    sync.Mutex
	cache map[uint8]*os.File
}

// NewLocalFileSet returns a FileSet rooted at dir, creating dir if needed.
func NewLocalFileSet(dir string) (*LocalFileSet, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: create directory %s: %w", dir, err)
	}
	return &LocalFileSet{Dir: dir, cache: make(map[uint8]*os.File)}, nil
}

func (fs *LocalFileSet) path(fileID uint8) string {
	return filepath.Join(fs.Dir, segmentName(fileID))
}

func (fs *LocalFileSet) Exists(fileID uint8) bool {
	_, err := os.Stat(fs.path(fileID))
	return err == nil
}

func (fs *LocalFileSet) OpenSegment(fileID uint8) (SegmentFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if f, ok := fs.cache[fileID]; ok {
		return f, nil
	}

	f, err := directio.OpenFile(fs.path(fileID), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open segment %d: %w", fileID, err)
	}
	fs.cache[fileID] = f
	return f, nil
}

// Close closes every segment file opened so far.
func (fs *LocalFileSet) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var firstErr error
	for id, f := range fs.cache {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(fs.cache, id)
	}
	return firstErr
}

// MemFileSet backs segments with in-memory buffers (github.com/dsnet/golib
// /memfile) instead of real files. It exists purely for tests: it exercises
// the exact same disk.Manager / disk.Scheduler / buffer.Pool code paths
// without needing a filesystem that supports O_DIRECT alignment, which many
// CI sandboxes and tmpfs mounts don't.
type MemFileSet struct {
	mu    sync.Mutex
	files map[uint8]*memfile.File
}

// NewMemFileSet returns an empty in-memory FileSet.
func NewMemFileSet() *MemFileSet {
	return &MemFileSet{files: make(map[uint8]*memfile.File)}
}

func (fs *MemFileSet) Exists(fileID uint8) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.files[fileID]
	return ok
}

func (fs *MemFileSet) OpenSegment(fileID uint8) (SegmentFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[fileID]
	if !ok {
		f = memfile.New(nil)
		fs.files[fileID] = f
	}
	return f, nil
}

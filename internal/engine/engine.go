// Package engine wires the disk manager, scheduler, buffer pool, and Page
// Directory into the single handle a caller opens, the way the teacher's
// internal/engine.Database wires a StorageManager and per-table buffer
// pools. Crio generalizes this one step further: table/index identity
// comes from the on-disk Page Directory and per-index meta sidecars
// instead of a JSON meta file per table.
package engine

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"

	"github.com/crio-db/crio/internal/btree"
	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/config"
	"github.com/crio-db/crio/internal/directory"
	"github.com/crio-db/crio/internal/disk"
	"github.com/crio-db/crio/internal/heap"
)

// ErrClosed is returned by any Engine operation after Close.
var ErrClosed = errors.New("engine: closed")

// ErrTableExists is returned by CreateTable for a name already registered.
var ErrTableExists = errors.New("engine: table already exists")

// ErrTableNotFound is returned by OpenTable for an unregistered name.
var ErrTableNotFound = errors.New("engine: table not found")

// Engine is the storage substrate's single entry point: one FileSet, one
// disk.Manager, one disk.Scheduler, one buffer.Pool, and the Page
// Directory, shared by every table and index opened through it.
type Engine struct {
	Cfg   *config.EngineConfig
	Files disk.FileSet
	Disk  *disk.Manager
	Sched *disk.Scheduler
	Pool  *buffer.Pool
	Dir   *directory.Directory

	closed atomic.Bool
}

// Open creates (or reopens) an engine rooted at cfg.Workdir, backed by
// real O_DIRECT segment files.
func Open(cfg *config.EngineConfig) (*Engine, error) {
	files, err := disk.NewLocalFileSet(cfg.Workdir)
	if err != nil {
		return nil, err
	}
	return openWith(cfg, files)
}

// OpenMem creates an engine backed by in-memory segments
// (disk.MemFileSet), for tests that want the full Engine facade without
// touching the filesystem or requiring O_DIRECT support.
func OpenMem(cfg *config.EngineConfig) (*Engine, error) {
	return openWith(cfg, disk.NewMemFileSet())
}

func openWith(cfg *config.EngineConfig, files disk.FileSet) (*Engine, error) {
	mgr := disk.NewManager(files)
	sched := disk.NewScheduler(mgr)
	pool := buffer.NewPool(mgr, sched, cfg.PoolSize, cfg.K, cfg.SequentialThreshold, cfg.PrefetchLookahead)

	dir, err := directory.Load(pool)
	if err != nil {
		sched.Shutdown()
		return nil, fmt.Errorf("engine: load page directory: %w", err)
	}

	e := &Engine{Cfg: cfg, Files: files, Disk: mgr, Sched: sched, Pool: pool, Dir: dir}
	slog.Debug("engine.Open", "workdir", cfg.Workdir, "pool_size", cfg.PoolSize)
	return e, nil
}

func tableIDFor(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

func (e *Engine) ensureOpen() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

// CreateTable allocates a new table's first page, registers it in the
// Page Directory under name's hash, and returns a handle to it.
func (e *Engine) CreateTable(name string) (*heap.Table, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}

	id := tableIDFor(name)
	if _, exists := e.Dir.Lookup(id); exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	tbl, err := heap.NewTable(id, e.Pool)
	if err != nil {
		return nil, err
	}
	if err := e.Dir.Register(id, tbl.FirstPageID()); err != nil {
		return nil, err
	}
	slog.Debug("engine.CreateTable", "name", name, "table_id", id)
	return tbl, nil
}

// OpenTable looks up name in the Page Directory and returns a handle to
// its existing heap chain.
func (e *Engine) OpenTable(name string) (*heap.Table, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}

	id := tableIDFor(name)
	first, exists := e.Dir.Lookup(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return heap.OpenTable(id, first, e.Pool), nil
}

// CreateIndex allocates a new, empty B+ tree index named name, persisting
// its meta sidecar under Cfg.Workdir.
func (e *Engine) CreateIndex(name string) (*btree.Tree, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	return btree.NewTree(e.Pool, e.Cfg.BtreeOrder, e.Cfg.Workdir, name)
}

// OpenIndex reopens an existing index by name, restoring its root/height
// from its meta sidecar.
func (e *Engine) OpenIndex(name string) (*btree.Tree, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	return btree.OpenTree(e.Pool, e.Cfg.BtreeOrder, e.Cfg.Workdir, name)
}

// Tables lists every registered table name's id (the Page Directory only
// persists hashed ids, not the original names: callers that need the
// name back are responsible for keeping their own name->id mapping, e.g.
// the crioshell CLI does this in memory for its session).
func (e *Engine) Tables() []uint32 {
	return e.Dir.Tables()
}

// FlushAll forces every dirty cached page to disk.
func (e *Engine) FlushAll() error {
	if err := e.ensureOpen(); err != nil {
		return err
	}
	return e.Pool.FlushAll()
}

// Close performs the engine's shutdown sequence: flush everything, drain and
// join the disk scheduler, then close the segment files. Subsequent
// operations fail with ErrClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := e.Pool.FlushAll(); err != nil {
		return fmt.Errorf("engine: flush on close: %w", err)
	}
	e.Sched.Shutdown()
	if closer, ok := e.Files.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("engine: close segment files: %w", err)
		}
	}
	slog.Debug("engine.Close", "workdir", e.Cfg.Workdir)
	return nil
}

package btree

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/crio-db/crio/internal/pageid"
)

const (
	metaFileSuffix = ".btree.meta.json"
	metaVersion    = 1
)

type diskMeta struct {
	Version int    `json:"version"`
	Root    uint32 `json:"root"`
	Height  int    `json:"height"`
}

// loadMeta reads a tree's persisted root/height, if a meta file exists at
// path. A missing file is not an error: it means the tree has never been
// saved before.
func loadMeta(path string) (diskMeta, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return diskMeta{}, false, nil
		}
		return diskMeta{}, false, err
	}
	var m diskMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return diskMeta{}, false, err
	}
	return m, true, nil
}

// saveMeta persists the tree's current root/height atomically, so a crash
// mid-write never leaves a torn meta file.
func saveMeta(path string, root pageid.PageID, height int) error {
	m := diskMeta{Version: metaVersion, Root: root.Uint32(), Height: height}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return err
	}
	slog.Debug("btree.meta.saved", "path", path, "root", m.Root, "height", m.Height)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("btree: atomic rename: %w", err)
	}
	ok = true
	return nil
}

// MetaPath returns the conventional meta sidecar path for an index named
// name inside workdir.
func MetaPath(workdir, name string) string {
	return filepath.Join(workdir, name+metaFileSuffix)
}

package disk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// isEntry reports whether d is a committed cache file. In-flight temporary
// files are neither counted nor pruned.
func isEntry(d fs.DirEntry) bool {
	return d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".tmp-")
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !isEntry(d) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return total, err
}

// pruneDir removes the oldest files under root until at most targetBytes
// remain. Files are ordered by modification time, then path.
func pruneDir(root string, targetBytes int64) (freed int64, remaining int64, err error) {
	if targetBytes < 0 {
		targetBytes = 0
	}

	entries := make([]cacheEntry, 0)
	var total int64

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !isEntry(d) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		size := info.Size()
		total += size
		entries = append(entries, cacheEntry{
			path:    path,
			size:    size,
			modTime: info.ModTime(),
		})
		return nil
	})
	if errors.Is(walkErr, os.ErrNotExist) {
		return 0, 0, nil
	}
	if walkErr != nil {
		return 0, 0, walkErr
	}

	remaining = total
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})

	for _, entry := range entries {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(entry.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				remaining -= entry.size
				continue
			}
			return freed, remaining, err
		}
		remaining -= entry.size
		freed += entry.size
	}

	return freed, remaining, nil
}

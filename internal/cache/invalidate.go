package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// sideFiles are the SQLite companions that live next to a store file.
var sideFiles = []string{"-journal", "-wal", "-shm"}

// RemoveStore deletes a module store file and its SQLite side files. A missing
// file is not an error. The store must not be open.
func RemoveStore(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("empty path")
	}
	for _, p := range append([]string{path}, withSuffixes(path, sideFiles)...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ClearDir removes every module store under dir and leaves dir itself in
// place. Files that are not stores are left alone.
func ClearDir(dir string) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, errors.New("empty dir")
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != StoreExt {
			continue
		}
		if err := RemoveStore(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// PurgeByAge opens the store described by cfg, removes entries older than
// maxAge and closes it again. A missing store file purges nothing.
func PurgeByAge(ctx context.Context, cfg Config, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	if _, err := os.Stat(cfg.Path()); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	s, err := OpenStore(ctx, cfg.Path(), cfg.StoreOptions())
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return s.PurgeOlderThan(ctx, maxAge)
}

// StatsFor reports the contents of the store described by cfg. A missing
// store file reports zero entries without creating one.
func StatsFor(ctx context.Context, cfg Config) (Stats, error) {
	if _, err := os.Stat(cfg.Path()); errors.Is(err, fs.ErrNotExist) {
		return Stats{Path: cfg.Path(), CapacityBytes: cfg.CapacityBytes()}, nil
	}
	s, err := OpenStore(ctx, cfg.Path(), cfg.StoreOptions())
	if err != nil {
		return Stats{}, err
	}
	defer s.Close()
	return s.Stats(ctx)
}

func withSuffixes(path string, suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, path+s)
	}
	return out
}

// processing/cleanup.go
package processing

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Cleanup removes the given files and then prunes directories under root that
// the removals left empty. Missing files are not an error.
func Cleanup(root string, paths []string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		log.Printf("Processing: removed %s", filepath.Base(path))
	}
	return pruneEmptyDirs(root)
}

// PruneProcessed removes raw archives whose extracted twin exists and
// extracted files whose converted twin exists, then prunes the emptied
// directories. Files still waiting for a later stage are untouched.
func PruneProcessed(downloadPath, extractedPath, convertedPath string) error {
	stale, err := processedFiles(downloadPath, ".bz2", func(rel string) string {
		return filepath.Join(extractedPath, strings.TrimSuffix(rel, ".bz2"))
	})
	if err != nil {
		return err
	}
	if err := Cleanup(downloadPath, stale); err != nil {
		return err
	}

	stale, err = processedFiles(extractedPath, ".grib2", func(rel string) string {
		return filepath.Join(convertedPath, strings.TrimSuffix(rel, ".grib2")+".csv")
	})
	if err != nil {
		return err
	}
	return Cleanup(extractedPath, stale)
}

// processedFiles collects files under root with the given suffix whose
// successor (per the twin mapping of the relative path) already exists.
func processedFiles(root, suffix string, twin func(rel string) string) ([]string, error) {
	var stale []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(twin(rel)); err == nil {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return stale, nil
}

// pruneEmptyDirs deletes empty directories below root, deepest first. The
// root itself stays.
func pruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			log.Printf("Processing: pruned empty directory %s", dir)
		}
	}
	return nil
}

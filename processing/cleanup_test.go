// processing/cleanup_test.go
package processing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanupRemovesFilesAndEmptyDirs(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "relhum", "keep.csv")
	gone := filepath.Join(root, "t_2m", "gone.csv")
	for _, path := range []string{keep, gone} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := Cleanup(root, []string{gone, filepath.Join(root, "missing.csv")}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(gone); !os.IsNotExist(err) {
		t.Error("processed file not removed")
	}
	if _, err := os.Stat(filepath.Dir(gone)); !os.IsNotExist(err) {
		t.Error("emptied directory not pruned")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("unrelated file must survive")
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("root directory must survive")
	}
}

func TestPruneProcessedKeepsPendingFiles(t *testing.T) {
	downloadDir := t.TempDir()
	extractedDir := t.TempDir()
	convertedDir := t.TempDir()

	write := func(path string) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	extractedArchive := filepath.Join(downloadDir, "relhum", "a_000_relhum.grib2.bz2")
	pendingArchive := filepath.Join(downloadDir, "relhum", "a_001_relhum.grib2.bz2")
	convertedGrib := filepath.Join(extractedDir, "relhum", "a_000_relhum.grib2")
	write(extractedArchive)
	write(pendingArchive)
	write(convertedGrib)
	write(filepath.Join(convertedDir, "relhum", "a_000_relhum.csv"))

	if err := PruneProcessed(downloadDir, extractedDir, convertedDir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(extractedArchive); !os.IsNotExist(err) {
		t.Error("archive with extracted twin must be removed")
	}
	if _, err := os.Stat(pendingArchive); err != nil {
		t.Error("archive without extracted twin must survive")
	}
	if _, err := os.Stat(convertedGrib); !os.IsNotExist(err) {
		t.Error("extracted file with converted twin must be removed")
	}
}

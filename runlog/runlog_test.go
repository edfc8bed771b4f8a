// runlog/runlog_test.go
package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndPath(t *testing.T) {
	dir := t.TempDir()
	stamp := time.Date(2024, time.September, 1, 3, 12, 0, 0, time.UTC)

	path := Path(dir, "downloader", "failed", "relhum", stamp)
	if filepath.Base(path) != "downloader_failed_relhum_2024_09_01_03_12.log" {
		t.Errorf("unexpected artifact name: %s", filepath.Base(path))
	}

	if err := Write(path, []string{"a.grib2.bz2", "b.grib2.bz2"}); err != nil {
		t.Fatal(err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "a.grib2.bz2\nb.grib2.bz2\n" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestWriteEmptyList(t *testing.T) {
	path := Path(t.TempDir(), "downloader", "failed", "", time.Now())
	if err := Write(path, nil); err != nil {
		t.Fatal(err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("empty runs must still leave an artifact: %v", err)
	}
	if string(body) != "\n" {
		t.Errorf("unexpected body for empty run: %q", body)
	}
}

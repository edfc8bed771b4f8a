// scraper/downloader_test.go
package scraper

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dwdown/dwdown/filter"
)

// flakyHandler serves five files; file3 fails a configurable number of times
// before succeeding.
type flakyHandler struct {
	mu        sync.Mutex
	failures  int
	file3Hits int
}

func (h *flakyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Path)
	if name == "file3.grib2.bz2" {
		h.mu.Lock()
		h.file3Hits++
		fail := h.file3Hits <= h.failures
		h.mu.Unlock()
		if fail {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
	}
	fmt.Fprintf(w, "payload of %s", name)
}

func testLinks(baseURL string) []string {
	links := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		links = append(links, fmt.Sprintf("%s/file%d.grib2.bz2", baseURL, i))
	}
	return links
}

func TestDownloadAllRecoversViaRetries(t *testing.T) {
	handler := &flakyHandler{failures: 2}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	d := NewDownloader(srv.URL+"/", t.TempDir(), "")
	d.Client = srv.Client()
	d.Workers = 3
	d.Retries = 2
	d.LogDownloads = false

	result := d.DownloadAll(testLinks(srv.URL), false)
	if len(result.Succeeded) != 5 {
		t.Errorf("expected all 5 to succeed, got %d (%v failed)", len(result.Succeeded), result.Failed)
	}
	if len(result.Failed) != 0 {
		t.Errorf("expected no failures, got %v", result.Failed)
	}
	// Content landed on disk.
	body, err := os.ReadFile(filepath.Join(d.DownloadPath, "file3.grib2.bz2"))
	if err != nil || string(body) != "payload of file3.grib2.bz2" {
		t.Errorf("file3 content wrong: %q, %v", body, err)
	}
}

func TestDownloadAllExhaustsRetries(t *testing.T) {
	handler := &flakyHandler{failures: 2}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	d := NewDownloader(srv.URL+"/", t.TempDir(), "")
	d.Client = srv.Client()
	d.Retries = 1
	d.LogDownloads = false

	result := d.DownloadAll(testLinks(srv.URL), false)
	if len(result.Succeeded) != 4 {
		t.Errorf("expected 4 successes, got %d", len(result.Succeeded))
	}
	if len(result.Failed) != 1 || filepath.Base(result.Failed[0]) != "file3.grib2.bz2" {
		t.Errorf("expected file3 to fail, got %v", result.Failed)
	}
}

func TestDownloadAllSkipsExisting(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "fresh")
	}))
	defer srv.Close()

	dir := t.TempDir()
	existing := filepath.Join(dir, "file1.grib2.bz2")
	if err := os.WriteFile(existing, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	d := NewDownloader(srv.URL+"/", dir, "")
	d.Client = srv.Client()
	d.LogDownloads = false

	result := d.DownloadAll([]string{srv.URL + "/file1.grib2.bz2"}, true)
	if len(result.Succeeded) != 1 {
		t.Errorf("existing file counts as success, got %+v", result)
	}
	if hits != 0 {
		t.Errorf("server should not have been hit, got %d requests", hits)
	}
	body, _ := os.ReadFile(existing)
	if string(body) != "stale" {
		t.Errorf("existing file must not be overwritten, got %q", body)
	}
}

// truncatingHandler declares a full body but drops the connection early for
// the first N requests.
type truncatingHandler struct {
	mu        sync.Mutex
	truncates int
}

func (h *truncatingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	truncate := h.truncates > 0
	if truncate {
		h.truncates--
	}
	h.mu.Unlock()
	if truncate {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("partial"))
		return
	}
	fmt.Fprintf(w, "payload of %s", filepath.Base(r.URL.Path))
}

func TestDownloadAllRemovesTruncatedFiles(t *testing.T) {
	srv := httptest.NewServer(&truncatingHandler{truncates: 100})
	defer srv.Close()

	d := NewDownloader(srv.URL+"/", t.TempDir(), "")
	d.Client = srv.Client()
	d.Retries = 1
	d.LogDownloads = false

	link := srv.URL + "/file1.grib2.bz2"
	result := d.DownloadAll([]string{link}, true)
	if len(result.Failed) != 1 {
		t.Fatalf("truncated transfer must fail, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(d.DownloadPath, "file1.grib2.bz2")); err == nil {
		t.Error("truncated file must not remain on disk")
	}
}

func TestDownloadAllRetriesTruncatedBody(t *testing.T) {
	srv := httptest.NewServer(&truncatingHandler{truncates: 1})
	defer srv.Close()

	d := NewDownloader(srv.URL+"/", t.TempDir(), "")
	d.Client = srv.Client()
	d.Retries = 2
	d.LogDownloads = false

	link := srv.URL + "/file1.grib2.bz2"
	// checkExisting true: the retry must re-download, not trust the
	// remains of the broken attempt.
	result := d.DownloadAll([]string{link}, true)
	if len(result.Succeeded) != 1 || len(result.Failed) != 0 {
		t.Fatalf("expected recovery via retry, got %+v", result)
	}
	body, err := os.ReadFile(filepath.Join(d.DownloadPath, "file1.grib2.bz2"))
	if err != nil || string(body) != "payload of file1.grib2.bz2" {
		t.Errorf("file content wrong after retry: %q, %v", body, err)
	}
}

func TestFetchAppliesCriteria(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(indexPage))
			return
		}
		fmt.Fprint(w, "grib bytes")
	}))
	defer srv.Close()

	d := NewDownloader(srv.URL+"/", t.TempDir(), "")
	d.Client = srv.Client()
	d.LogDownloads = false

	result, err := d.Fetch(filter.Criteria{
		Prefix:    "icon-d2",
		Suffix:    ".grib2.bz2",
		Timesteps: []string{"_000_"},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Succeeded) != 1 {
		t.Fatalf("expected exactly the _000_ file, got %+v", result)
	}
	if filepath.Base(result.Succeeded[0]) != "icon-d2_germany_regular-lat-lon_single-level_2024090100_000_relhum.grib2.bz2" {
		t.Errorf("wrong file fetched: %v", result.Succeeded)
	}
}

func TestVariableFromLink(t *testing.T) {
	link := "https://opendata.dwd.de/weather/nwp/icon-d2/grib/00/relhum/icon-d2_x_000_relhum.grib2.bz2"
	if got := variableFromLink(link); got != "relhum" {
		t.Errorf("variableFromLink = %q, want relhum", got)
	}
	if got := variableFromLink("https://example.org/no/match"); got != "" {
		t.Errorf("expected empty variable, got %q", got)
	}
}

// scraper/downloader.go
package scraper

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/dwdown/dwdown/filter"
	"github.com/dwdown/dwdown/models"
	"github.com/dwdown/dwdown/runlog"
)

// Regex matching the variable directory in a DWD link, e.g. ".../00/relhum/".
var linkVariableRegex = regexp.MustCompile(`/\d{2}/([^/]+)/`)

// Downloader fetches files from an HTML directory listing. Transfers run on
// a bounded worker pool; failures are retried sequentially after the
// concurrent pass and only then recorded as final.
type Downloader struct {
	BaseURL      string
	Client       *http.Client
	DownloadPath string
	LogPath      string

	Workers      int
	Delay        time.Duration // applied between sequential retries only
	Retries      int
	LogDownloads bool
}

// NewDownloader wires a Downloader with sane defaults matching the original
// tool: one worker, 30s timeout, three retries.
func NewDownloader(baseURL, downloadPath, logPath string) *Downloader {
	return &Downloader{
		BaseURL:      baseURL,
		Client:       &http.Client{Timeout: 30 * time.Second},
		DownloadPath: downloadPath,
		LogPath:      logPath,
		Workers:      1,
		Retries:      3,
		LogDownloads: true,
	}
}

// Links discovers the listing, filters the filenames and returns full
// download URLs in listing order.
func (d *Downloader) Links(criteria filter.Criteria) ([]string, error) {
	filenames, err := FetchFilenames(d.Client, d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filenames from %s: %w", d.BaseURL, err)
	}
	filtered := filter.Filter(filenames, criteria)

	links := make([]string, 0, len(filtered))
	for _, name := range filtered {
		links = append(links, d.BaseURL+name)
	}
	return links, nil
}

// Fetch is the whole pipeline: discover, filter, download.
func (d *Downloader) Fetch(criteria filter.Criteria, checkExisting bool) (models.FetchResult, error) {
	links, err := d.Links(criteria)
	if err != nil {
		return models.FetchResult{}, err
	}
	return d.DownloadAll(links, checkExisting), nil
}

// DownloadAll downloads every link. A failed transfer is retried up to
// Retries times after the concurrent pass completes; a transfer that still
// fails is recorded in Failed and the batch continues. No single failure
// aborts the batch.
func (d *Downloader) DownloadAll(links []string, checkExisting bool) models.FetchResult {
	if len(links) == 0 {
		log.Println("Downloader: no files to download, fetch links first.")
		return models.FetchResult{}
	}
	if err := os.MkdirAll(d.DownloadPath, 0755); err != nil {
		log.Printf("Downloader: cannot create %s: %v", d.DownloadPath, err)
		result := models.FetchResult{Failed: append([]string(nil), links...)}
		d.writeLogs(result, links)
		return result
	}

	collector := &models.FetchCollector{}
	jobs := make(chan string)
	var wg sync.WaitGroup

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range jobs {
				if err := d.downloadOne(link, checkExisting); err != nil {
					log.Printf("Downloader: failed to download %s: %v", link, err)
					collector.Fail(link)
				} else {
					collector.Success(link)
				}
			}
		}()
	}
	for _, link := range links {
		jobs <- link
	}
	close(jobs)
	wg.Wait()

	initial := collector.Result()
	log.Printf("Downloader: downloaded %d files successfully.", len(initial.Succeeded))
	if len(initial.Failed) > 0 {
		log.Printf("Downloader: %d downloads failed initially, retrying up to %d times...",
			len(initial.Failed), d.Retries)
	}

	// Sequential retry pass on the calling goroutine. The inter-request
	// delay applies here, not in the pool.
	result := models.FetchResult{Succeeded: initial.Succeeded}
	for _, link := range initial.Failed {
		var err error
		recovered := false
		for attempt := 1; attempt <= d.Retries; attempt++ {
			if d.Delay > 0 {
				time.Sleep(d.Delay)
			}
			if err = d.downloadOne(link, checkExisting); err == nil {
				recovered = true
				break
			}
			log.Printf("Downloader: retry %d failed for %s: %v", attempt, link, err)
		}
		if recovered {
			result.Succeeded = append(result.Succeeded, link)
		} else {
			result.Failed = append(result.Failed, link)
		}
	}

	if len(result.Failed) > 0 {
		log.Printf("Downloader: failed to download %d files after %d retries.",
			len(result.Failed), d.Retries)
	} else {
		log.Println("Downloader: all downloads completed successfully.")
	}

	d.writeLogs(result, links)
	return result
}

func (d *Downloader) downloadOne(link string, checkExisting bool) error {
	filename := path.Base(link)
	localPath := filepath.Join(d.DownloadPath, filename)

	if checkExisting {
		if _, err := os.Stat(localPath); err == nil {
			log.Printf("Downloader: skipping %s, file already exists.", filename)
			return nil
		}
	}

	resp, err := d.Client.Get(link)
	if err != nil {
		return fmt.Errorf("failed to make GET request to %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: received status code %d", link, resp.StatusCode)
	}

	outFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		// A truncated file would pass the existence check on the next
		// attempt, so it must not survive.
		outFile.Close()
		os.Remove(localPath)
		return fmt.Errorf("failed to copy downloaded content to %s: %w", localPath, err)
	}

	log.Printf("Downloader: downloaded %s", filename)
	return nil
}

func (d *Downloader) writeLogs(result models.FetchResult, links []string) {
	if !d.LogDownloads || d.LogPath == "" {
		return
	}
	variable := ""
	if len(links) > 0 {
		variable = variableFromLink(links[0])
	}
	now := time.Now()
	if err := runlog.Write(runlog.Path(d.LogPath, "downloader", "downloaded", variable, now), result.Succeeded); err != nil {
		log.Printf("Downloader: %v", err)
	}
	if err := runlog.Write(runlog.Path(d.LogPath, "downloader", "failed", variable, now), result.Failed); err != nil {
		log.Printf("Downloader: %v", err)
	}
}

// variableFromLink pulls the variable directory out of a DWD open-data link,
// e.g. ".../icon-d2/grib/00/relhum/file.grib2.bz2" yields "relhum".
func variableFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	m := linkVariableRegex.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}

// storage/downloader.go
package storage

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dwdown/dwdown/filter"
	"github.com/dwdown/dwdown/models"
	"github.com/dwdown/dwdown/reconcile"
	"github.com/dwdown/dwdown/runlog"
)

// BucketDownloader mirrors a bucket (or prefix) into a local root. Remote
// paths are reproduced under FilesPath; files whose local MD5 already equals
// the remote ETag are skipped; a hash mismatch after transfer lands the file
// in Corrupted, not Failed, and is not retried.
type BucketDownloader struct {
	Store     ObjectStore
	Bucket    string
	FilesPath string
	LogPath   string

	Workers      int
	Delay        time.Duration // applied between sequential retries only
	Retries      int
	LogDownloads bool
}

// Download lists the bucket, filters object keys, reconciles against local
// state and transfers what is missing. checkIntegrity selects between
// existence-only and hash-verified skipping.
func (d *BucketDownloader) Download(
	ctx context.Context,
	criteria filter.Criteria,
	remotePrefix string,
	checkIntegrity bool,
) (models.FetchResult, error) {
	if err := d.Store.EnsureBucket(ctx, d.Bucket); err != nil {
		return models.FetchResult{}, err
	}

	records, err := d.Store.List(ctx, d.Bucket, remotePrefix)
	if err != nil {
		return models.FetchResult{}, err
	}
	if len(records) == 0 {
		log.Printf("Storage: no files found in bucket %q with prefix %q.", d.Bucket, remotePrefix)
		return models.FetchResult{}, nil
	}

	filtered := filterRecords(records, criteria)

	plan, err := reconcile.PlanDownload(
		filtered, d.FilesPath, reconcile.FileExists, reconcile.FileMD5, checkIntegrity)
	if err != nil {
		return models.FetchResult{}, err
	}
	if len(plan) == 0 {
		log.Println("Storage: all files are already downloaded and verified.")
		return models.FetchResult{}, nil
	}
	log.Printf("Storage: starting download of %d files...", len(plan))

	collector := &models.FetchCollector{}
	jobs := make(chan models.TransferPlanEntry)
	var wg sync.WaitGroup

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				d.transfer(ctx, entry, collector)
			}
		}()
	}
	for _, entry := range plan {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	initial := collector.Result()

	// Sequential retry pass for transfer failures. Corrupted files are left
	// alone: the bytes arrived, they just did not match.
	result := models.FetchResult{Succeeded: initial.Succeeded, Corrupted: initial.Corrupted}
	retryByPath := planByRemotePath(plan)
	for _, remotePath := range initial.Failed {
		entry := retryByPath[remotePath]
		final := &models.FetchCollector{}
		recovered := false
		for attempt := 1; attempt <= d.Retries; attempt++ {
			if d.Delay > 0 {
				time.Sleep(d.Delay)
			}
			d.transfer(ctx, entry, final)
			r := final.Result()
			if len(r.Succeeded) > 0 {
				recovered = true
				break
			}
			if len(r.Corrupted) > 0 {
				break
			}
			log.Printf("Storage: retry %d failed for %s", attempt, remotePath)
		}
		r := final.Result()
		switch {
		case recovered:
			result.Succeeded = append(result.Succeeded, remotePath)
		case len(r.Corrupted) > 0:
			result.Corrupted = append(result.Corrupted, remotePath)
		default:
			result.Failed = append(result.Failed, remotePath)
		}
	}

	log.Printf("Storage: downloaded %d files successfully.", len(result.Succeeded))
	if len(result.Corrupted) > 0 {
		log.Printf("Storage: %d files may be corrupted.", len(result.Corrupted))
	}
	d.writeLogs(result)
	return result, nil
}

// transfer moves a single file and verifies its digest against the expected
// remote hash. Outcomes: Success, Fail (transfer error) or Corrupt (hash
// mismatch).
func (d *BucketDownloader) transfer(ctx context.Context, entry models.TransferPlanEntry, collector *models.FetchCollector) {
	if err := os.MkdirAll(filepath.Dir(entry.LocalPath), 0755); err != nil {
		log.Printf("Storage: cannot create directory for %s: %v", entry.LocalPath, err)
		collector.Fail(entry.RemotePath)
		return
	}
	if err := d.Store.Download(ctx, d.Bucket, entry.RemotePath, entry.LocalPath); err != nil {
		log.Printf("Storage: failed to download %s: %v", entry.RemotePath, err)
		collector.Fail(entry.RemotePath)
		return
	}

	localHash, err := reconcile.FileMD5(entry.LocalPath)
	if err != nil {
		log.Printf("Storage: failed to hash %s: %v", entry.LocalPath, err)
		collector.Fail(entry.RemotePath)
		return
	}
	if entry.RemoteHash != "" && localHash != entry.RemoteHash {
		log.Printf("Storage: hash mismatch for %s (possible corruption).", entry.RemotePath)
		collector.Corrupt(entry.RemotePath)
		return
	}
	log.Printf("Storage: successfully downloaded %s", entry.RemotePath)
	collector.Success(entry.RemotePath)
}

func (d *BucketDownloader) writeLogs(result models.FetchResult) {
	if !d.LogDownloads || d.LogPath == "" {
		return
	}
	now := time.Now()
	for category, entries := range map[string][]string{
		"downloaded": result.Succeeded,
		"failed":     result.Failed,
		"corrupted":  result.Corrupted,
	} {
		if err := runlog.Write(runlog.Path(d.LogPath, "bucket_downloader", category, "", now), entries); err != nil {
			log.Printf("Storage: %v", err)
		}
	}
}

// filterRecords applies the pattern filter to object keys, preserving the
// listing order and each record's hash.
func filterRecords(records []models.RemoteFileRecord, criteria filter.Criteria) []models.RemoteFileRecord {
	keys := make([]string, 0, len(records))
	byKey := make(map[string]models.RemoteFileRecord, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Path)
		byKey[rec.Path] = rec
	}
	var filtered []models.RemoteFileRecord
	for _, key := range filter.Filter(keys, criteria) {
		filtered = append(filtered, byKey[key])
	}
	return filtered
}

func planByRemotePath(plan []models.TransferPlanEntry) map[string]models.TransferPlanEntry {
	byPath := make(map[string]models.TransferPlanEntry, len(plan))
	for _, entry := range plan {
		byPath[entry.RemotePath] = entry
	}
	return byPath
}

// storage/uploader.go
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dwdown/dwdown/filter"
	"github.com/dwdown/dwdown/models"
	"github.com/dwdown/dwdown/reconcile"
	"github.com/dwdown/dwdown/runlog"
)

// BucketUploader pushes a local tree into a bucket, reproducing the layout
// relative to FilesPath under RemotePrefix. Objects whose remote ETag equals
// the local MD5 are skipped; an ETag mismatch after upload is recorded as
// corrupted.
type BucketUploader struct {
	Store        ObjectStore
	Bucket       string
	FilesPath    string
	RemotePrefix string
	LogPath      string

	Workers    int
	Delay      time.Duration // applied between sequential retries only
	Retries    int
	LogUploads bool
}

// Upload walks FilesPath, filters filenames, reconciles against the bucket
// and transfers what differs.
func (u *BucketUploader) Upload(ctx context.Context, criteria filter.Criteria) (models.FetchResult, error) {
	if err := u.Store.EnsureBucket(ctx, u.Bucket); err != nil {
		return models.FetchResult{}, err
	}

	localPaths, err := u.collectFiles(criteria)
	if err != nil {
		return models.FetchResult{}, err
	}
	if len(localPaths) == 0 {
		log.Printf("Storage: no files to upload under %s.", u.FilesPath)
		return models.FetchResult{}, nil
	}

	remoteHashes, err := u.remoteHashes(ctx)
	if err != nil {
		return models.FetchResult{}, err
	}

	plan, err := reconcile.PlanUpload(localPaths, u.FilesPath, remoteHashes, reconcile.FileMD5)
	if err != nil {
		return models.FetchResult{}, err
	}
	if len(plan) == 0 {
		log.Println("Storage: bucket is already in sync.")
		return models.FetchResult{}, nil
	}
	log.Printf("Storage: starting upload of %d files...", len(plan))

	collector := &models.FetchCollector{}
	jobs := make(chan models.TransferPlanEntry)
	var wg sync.WaitGroup

	workers := u.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				u.transfer(ctx, entry, collector)
			}
		}()
	}
	for _, entry := range plan {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	initial := collector.Result()

	result := models.FetchResult{Succeeded: initial.Succeeded, Corrupted: initial.Corrupted}
	retryByPath := planByRemotePath(plan)
	for _, remotePath := range initial.Failed {
		entry := retryByPath[remotePath]
		final := &models.FetchCollector{}
		recovered := false
		for attempt := 1; attempt <= u.Retries; attempt++ {
			if u.Delay > 0 {
				time.Sleep(u.Delay)
			}
			u.transfer(ctx, entry, final)
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

	log.Printf("Storage: uploaded %d files successfully.", len(result.Succeeded))
	if len(result.Corrupted) > 0 {
		log.Printf("Storage: %d uploads may be corrupted.", len(result.Corrupted))
	}
	u.writeLogs(result)
	return result, nil
}

func (u *BucketUploader) transfer(ctx context.Context, entry models.TransferPlanEntry, collector *models.FetchCollector) {
	localHash, err := reconcile.FileMD5(entry.LocalPath)
	if err != nil {
		log.Printf("Storage: failed to hash %s: %v", entry.LocalPath, err)
		collector.Fail(entry.RemotePath)
		return
	}
	etag, err := u.Store.Upload(ctx, u.Bucket, entry.LocalPath, u.remoteKey(entry.RemotePath))
	if err != nil {
		log.Printf("Storage: failed to upload %s: %v", entry.RemotePath, err)
		collector.Fail(entry.RemotePath)
		return
	}
	if etag != "" && etag != localHash {
		log.Printf("Storage: ETag mismatch for %s (possible corruption).", entry.RemotePath)
		collector.Corrupt(entry.RemotePath)
		return
	}
	log.Printf("Storage: successfully uploaded %s", entry.RemotePath)
	collector.Success(entry.RemotePath)
}

// collectFiles walks the local tree and applies the pattern filter to the
// relative slash paths.
func (u *BucketUploader) collectFiles(criteria filter.Criteria) ([]string, error) {
	var absolute []string
	var relative []string
	err := filepath.WalkDir(u.FilesPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(u.FilesPath, path)
		if err != nil {
			return err
		}
		absolute = append(absolute, path)
		relative = append(relative, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", u.FilesPath, err)
	}

	kept := make(map[string]bool)
	for _, rel := range filter.Filter(relative, criteria) {
		kept[rel] = true
	}
	var paths []string
	for i, rel := range relative {
		if kept[rel] {
			paths = append(paths, absolute[i])
		}
	}
	return paths, nil
}

// remoteHashes maps relative object paths (prefix stripped) to ETags.
func (u *BucketUploader) remoteHashes(ctx context.Context) (map[string]string, error) {
	records, err := u.Store.List(ctx, u.Bucket, u.RemotePrefix)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(records))
	for _, rec := range records {
		key := rec.Path
		if u.RemotePrefix != "" {
			key = strings.TrimPrefix(key, strings.TrimSuffix(u.RemotePrefix, "/")+"/")
		}
		hashes[key] = rec.ContentHash
	}
	return hashes, nil
}

// remoteKey prepends the configured prefix to a relative object path.
func (u *BucketUploader) remoteKey(relative string) string {
	if u.RemotePrefix == "" {
		return relative
	}
	return strings.TrimSuffix(u.RemotePrefix, "/") + "/" + relative
}

func (u *BucketUploader) writeLogs(result models.FetchResult) {
	if !u.LogUploads || u.LogPath == "" {
		return
	}
	now := time.Now()
	for category, entries := range map[string][]string{
		"uploaded":  result.Succeeded,
		"failed":    result.Failed,
		"corrupted": result.Corrupted,
	} {
		if err := runlog.Write(runlog.Path(u.LogPath, "bucket_uploader", category, "", now), entries); err != nil {
			log.Printf("Storage: %v", err)
		}
	}
}

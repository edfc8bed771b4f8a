// models/records.go
package models

import "time"

// RemoteFileRecord describes one file in a remote listing. ContentHash is an
// opaque integrity token (MD5 digest or ETag); it is compared by exact string
// equality only.
type RemoteFileRecord struct {
	Path        string
	ContentHash string
}

// TransferPlanEntry is one unit of work produced by the reconciler and
// consumed by a fetch or upload pipeline. Entries live for a single run.
type TransferPlanEntry struct {
	LocalPath  string
	RemotePath string
	RemoteHash string
}

// FetchResult collects the outcome of one batch transfer. Corrupted is kept
// separate from Failed: a corrupted file transferred fine but did not match
// its expected hash afterwards.
type FetchResult struct {
	Succeeded []string
	Failed    []string
	Corrupted []string
}

// RunSummary is one row of the optional pipeline-run history table.
type RunSummary struct {
	ID         int64
	Component  string
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Failed     int
	Corrupted  int
	Notes      string
}

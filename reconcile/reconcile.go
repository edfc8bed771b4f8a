// reconcile/reconcile.go
package reconcile

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dwdown/dwdown/models"
)

// ExistsFunc reports whether a local file exists. HashFunc computes the
// content digest of a local file. The reconciler performs no I/O of its own;
// any error surfacing from these callbacks propagates to the caller
// unchanged.
type (
	ExistsFunc func(path string) bool
	HashFunc   func(path string) (string, error)
)

// PlanDownload decides which remote files need transferring. Each remote path
// is mirrored under localRoot; an entry is skipped when the local file exists
// (checkIntegrity false) or exists with a matching hash (checkIntegrity
// true). The plan preserves the order of records.
func PlanDownload(
	records []models.RemoteFileRecord,
	localRoot string,
	exists ExistsFunc,
	hash HashFunc,
	checkIntegrity bool,
) ([]models.TransferPlanEntry, error) {
	var plan []models.TransferPlanEntry
	for _, rec := range records {
		localPath := filepath.Join(localRoot, filepath.FromSlash(rec.Path))
		if exists(localPath) {
			if !checkIntegrity {
				continue
			}
			localHash, err := hash(localPath)
			if err != nil {
				return nil, fmt.Errorf("hashing %s: %w", localPath, err)
			}
			if localHash == rec.ContentHash {
				continue
			}
		}
		plan = append(plan, models.TransferPlanEntry{
			LocalPath:  localPath,
			RemotePath: rec.Path,
			RemoteHash: rec.ContentHash,
		})
	}
	return plan, nil
}

// PlanUpload is the symmetric operation: localPaths are files under
// localRoot, remoteHashes maps relative remote paths (slash-separated) to
// their existing content hashes. Files whose remote twin already carries an
// identical hash are skipped. Order follows localPaths.
func PlanUpload(
	localPaths []string,
	localRoot string,
	remoteHashes map[string]string,
	hash HashFunc,
) ([]models.TransferPlanEntry, error) {
	var plan []models.TransferPlanEntry
	for _, localPath := range localPaths {
		rel, err := filepath.Rel(localRoot, localPath)
		if err != nil {
			return nil, fmt.Errorf("relativizing %s: %w", localPath, err)
		}
		remotePath := filepath.ToSlash(rel)

		localHash, err := hash(localPath)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", localPath, err)
		}
		if remoteHash, ok := remoteHashes[remotePath]; ok && remoteHash == localHash {
			continue
		}
		plan = append(plan, models.TransferPlanEntry{
			LocalPath:  localPath,
			RemotePath: remotePath,
			RemoteHash: localHash,
		})
	}
	return plan, nil
}

// FileMD5 computes the hex MD5 digest of a file's raw bytes. This matches
// the ETag an S3-compatible store reports for single-part uploads; the
// digest only guards against accidental corruption, not tampering.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileExists is the default ExistsFunc.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

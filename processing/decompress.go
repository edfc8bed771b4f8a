// processing/decompress.go
package processing

import (
	"compress/bzip2"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Decompressor expands bz2 archives from a raw download tree into an
// extracted tree, mirroring the directory layout and dropping the .bz2
// extension. Already-extracted files are left alone.
type Decompressor struct {
	DownloadPath  string
	ExtractedPath string
}

// DecompressAll walks the download tree and expands every .bz2 file that has
// no extracted counterpart yet. It returns the extracted file paths.
func (d *Decompressor) DecompressAll() ([]string, error) {
	var extracted []string
	err := filepath.WalkDir(d.DownloadPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, ".bz2") {
			return nil
		}
		target, err := d.targetPath(path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(target); err == nil {
			log.Printf("Processing: skipping %s, already extracted.", filepath.Base(target))
			extracted = append(extracted, target)
			return nil
		}
		if err := decompressFile(path, target); err != nil {
			// One bad archive must not sink the batch.
			log.Printf("Processing: %v", err)
			return nil
		}
		log.Printf("Processing: extracted %s", filepath.Base(target))
		extracted = append(extracted, target)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", d.DownloadPath, err)
	}
	return extracted, nil
}

// Decompress expands a single archive and returns the extracted path.
func (d *Decompressor) Decompress(path string) (string, error) {
	target, err := d.targetPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := decompressFile(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// targetPath maps a raw archive path into the extracted tree with the .bz2
// suffix removed.
func (d *Decompressor) targetPath(path string) (string, error) {
	rel, err := filepath.Rel(d.DownloadPath, path)
	if err != nil {
		return "", fmt.Errorf("archive %s is outside the download tree: %w", path, err)
	}
	return filepath.Join(d.ExtractedPath, strings.TrimSuffix(rel, ".bz2")), nil
}

func decompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, bzip2.NewReader(in)); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to decompress %s: %w", src, err)
	}
	return nil
}

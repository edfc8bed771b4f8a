// runlog/runlog.go
package runlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Write saves a newline-delimited list of paths as a run artifact. Each run
// produces one file per result category. An empty entry list still writes the
// file so that "zero failures" is visible on disk.
func Write(path string, entries []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}
	body := strings.Join(entries, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write log file %s: %w", path, err)
	}
	log.Printf("Runlog: saved %s (%d entries)", path, len(entries))
	return nil
}

// Path builds the conventional artifact name
// <component>_<category>[_<variable>]_<timestamp>.log under dir.
func Path(dir, component, category, variable string, t time.Time) string {
	stamp := t.Format("2006_01_02_15_04")
	name := component + "_" + category
	if variable != "" {
		name += "_" + variable
	}
	return filepath.Join(dir, name+"_"+stamp+".log")
}

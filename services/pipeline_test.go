// services/pipeline_test.go
package services

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dwdown/dwdown/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	yaml := `
source:
  base_url: https://opendata.dwd.de/weather/nwp
  variables: [relhum, t_2m]
filter:
  min_timestep: 0
  max_timestep: 1
paths:
  converted: ` + filepath.ToSlash(filepath.Join(dir, "converted")) + `
merge:
  join_method: inner
  time_steps: [0]
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestCriteriaFromConfig(t *testing.T) {
	p := &Pipeline{Config: testConfig(t)}
	criteria := p.Criteria()

	if criteria.Prefix != "icon-d2_germany" || criteria.Suffix != ".grib2.bz2" {
		t.Errorf("default prefix/suffix not applied: %+v", criteria)
	}
	if len(criteria.Timesteps) != 2 || criteria.Timesteps[0] != "_000_" || criteria.Timesteps[1] != "_001_" {
		t.Errorf("timestep tokens = %v", criteria.Timesteps)
	}
}

func TestMergeAllWritesConfiguredSteps(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Paths.Converted, 0755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(cfg.Paths.Converted, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("icon-d2_2024090100_000_relhum.csv",
		"latitude,longitude,valid_time,r\n50.5,7.0,2024-09-01 00:00:00,82.7\n")
	write("icon-d2_2024090100_000_t_2m.csv",
		"latitude,longitude,valid_time,t2m\n50.5,7.0,2024-09-01 00:00:00,285.4\n")

	p := &Pipeline{Config: cfg}
	written, err := p.MergeAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 {
		t.Fatalf("expected one merged file, got %v", written)
	}
	if !strings.HasPrefix(filepath.Base(written[0]), "merged_000_") {
		t.Errorf("unexpected merged file name: %s", written[0])
	}
}

func TestFetchPacesVariableListings(t *testing.T) {
	const emptyIndex = `<html><body><pre><a href="../">../</a></pre></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(emptyIndex))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Source.BaseURL = srv.URL
	cfg.Transfer.DelaySeconds = 0.05

	p := &Pipeline{Config: cfg}
	start := time.Now()
	if _, err := p.Fetch(); err != nil {
		t.Fatal(err)
	}
	// Two variables, so one inter-listing pause.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected the listing requests to be paced, took %v", elapsed)
	}
}

func TestFetchRequiresVariables(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Variables = nil
	p := &Pipeline{Config: cfg}
	if _, err := p.Fetch(); err == nil {
		t.Fatal("expected an error when no variables are configured")
	}
}

// processing/convert_test.go
package processing

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dwdown/dwdown/models"
)

const wgribSample = `"2024-09-01 00:00:00","2024-09-01 00:00:00","RH","2 m above ground",7.5,49.9,81.2
"2024-09-01 00:00:00","2024-09-01 00:00:00","RH","2 m above ground",7.5,50.5,82.7
"2024-09-01 00:00:00","2024-09-01 00:00:00","RH","2 m above ground",7.5,51.0,79.1
"2024-09-01 00:00:00","2024-09-01 00:00:00","RH","2 m above ground",7.5,51.1,80.4
`

func TestParseWgribCSV(t *testing.T) {
	points, err := ParseWgribCSV(strings.NewReader(wgribSample))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(points))
	}
	p := points[1]
	if p.Latitude != 50.5 || p.Longitude != 7.5 || p.Value != 82.7 {
		t.Errorf("wrong point decoded: %+v", p)
	}
	if p.ValidTime != "2024-09-01 00:00:00" {
		t.Errorf("wrong valid time: %q", p.ValidTime)
	}
}

func TestParseWgribCSVRejectsGarbage(t *testing.T) {
	if _, err := ParseWgribCSV(strings.NewReader(`"a","b","c","d",x,50.0,1.0` + "\n")); err == nil {
		t.Fatal("expected an error for a non-numeric longitude")
	}
}

func TestGeoFilterInclusiveBounds(t *testing.T) {
	geo := &GeoFilter{StartLat: 50.0, EndLat: 51.0, StartLon: 7.0, EndLon: 8.0}
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{49.9, 7.5, false},
		{50.0, 7.5, true},
		{50.5, 7.5, true},
		{51.0, 7.5, true},
		{51.1, 7.5, false},
		{50.5, 6.9, false},
		{50.5, 8.0, true},
	}
	for _, tc := range cases {
		if got := geo.Contains(tc.lat, tc.lon); got != tc.want {
			t.Errorf("Contains(%v, %v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
	var none *GeoFilter
	if !none.Contains(0, 0) {
		t.Error("nil filter must keep everything")
	}
}

func TestConvertFilePivotsAndFilters(t *testing.T) {
	extractedDir := t.TempDir()
	convertedDir := t.TempDir()
	gribPath := filepath.Join(extractedDir, "icon-d2_germany_2024090100_000_relhum.grib2")
	if err := os.WriteFile(gribPath, []byte("grib bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	c := &Converter{
		ExtractedPath: extractedDir,
		ConvertedPath: convertedDir,
		Mapping:       models.DefaultVariableMapping(),
		Geo:           &GeoFilter{StartLat: 50.0, EndLat: 51.0, StartLon: 0, EndLon: 180},
		decode: func(path string) ([]byte, error) {
			return []byte(wgribSample), nil
		},
	}
	converted, err := c.ConvertAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected 1 converted file, got %v", converted)
	}

	body, err := os.ReadFile(converted[0])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	// Header plus the two in-bounds rows (49.9 and 51.1 filtered out).
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", lines)
	}
	if lines[0] != "latitude,longitude,valid_time,r" {
		t.Errorf("wrong header: %q", lines[0])
	}
	if lines[1] != "50.5,7.5,2024-09-01 00:00:00,82.7" {
		t.Errorf("wrong first row: %q", lines[1])
	}
}

func TestConvertAllContinuesPastFailedFiles(t *testing.T) {
	extractedDir := t.TempDir()
	for _, name := range []string{
		"icon-d2_2024090100_000_relhum.grib2",
		"icon-d2_2024090100_001_relhum.grib2",
	} {
		if err := os.WriteFile(filepath.Join(extractedDir, name), []byte("grib bytes"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	c := &Converter{
		ExtractedPath: extractedDir,
		ConvertedPath: t.TempDir(),
		Mapping:       models.DefaultVariableMapping(),
		decode: func(path string) ([]byte, error) {
			if strings.Contains(path, "_000_") {
				return nil, errors.New("corrupt grib")
			}
			return []byte(wgribSample), nil
		},
	}
	converted, err := c.ConvertAll()
	if err != nil {
		t.Fatalf("a single bad file must not abort the batch: %v", err)
	}
	if len(converted) != 1 || !strings.Contains(converted[0], "_001_") {
		t.Errorf("expected the healthy file converted, got %v", converted)
	}
}

func TestConvertAllSkipsExisting(t *testing.T) {
	extractedDir := t.TempDir()
	convertedDir := t.TempDir()
	gribPath := filepath.Join(extractedDir, "icon-d2_2024090100_000_relhum.grib2")
	if err := os.WriteFile(gribPath, []byte("grib bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(convertedDir, "icon-d2_2024090100_000_relhum.csv")
	if err := os.WriteFile(existing, []byte("kept"), 0644); err != nil {
		t.Fatal(err)
	}

	calls := 0
	c := &Converter{
		ExtractedPath: extractedDir,
		ConvertedPath: convertedDir,
		Mapping:       models.DefaultVariableMapping(),
		decode: func(path string) ([]byte, error) {
			calls++
			return []byte(wgribSample), nil
		},
	}
	if _, err := c.ConvertAll(); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("decoder must not run for existing targets, ran %d times", calls)
	}
	body, _ := os.ReadFile(existing)
	if string(body) != "kept" {
		t.Errorf("existing conversion must not be overwritten, got %q", body)
	}
}

// processing/convert.go
package processing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dwdown/dwdown/filter"
	"github.com/dwdown/dwdown/models"
)

// GeoFilter is an inclusive bounding box. A nil *GeoFilter keeps everything.
type GeoFilter struct {
	StartLat float64
	EndLat   float64
	StartLon float64
	EndLon   float64
}

// Contains reports whether the point lies inside the box, borders included.
func (g *GeoFilter) Contains(lat, lon float64) bool {
	if g == nil {
		return true
	}
	return lat >= g.StartLat && lat <= g.EndLat && lon >= g.StartLon && lon <= g.EndLon
}

// GridPoint is one decoded value of a regular lat/lon GRIB field.
type GridPoint struct {
	Latitude  float64
	Longitude float64
	ValidTime string
	Value     float64
}

// Converter turns extracted GRIB2 files into per-file CSVs with the columns
// latitude, longitude, valid_time and the mapped variable name. Decoding is
// delegated to the wgrib2 binary.
type Converter struct {
	ExtractedPath string
	ConvertedPath string
	Binary        string // wgrib2 executable, defaults to "wgrib2"
	Mapping       models.VariableMapping
	Geo           *GeoFilter

	// decode overrides the wgrib2 invocation in tests.
	decode func(gribPath string) ([]byte, error)
}

// ConvertAll walks the extracted tree and converts every .grib2 file that has
// no converted counterpart yet. It returns the converted file paths.
func (c *Converter) ConvertAll() ([]string, error) {
	var converted []string
	err := filepath.WalkDir(c.ExtractedPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, ".grib2") {
			return nil
		}
		target, err := c.targetPath(path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(target); err == nil {
			log.Printf("Processing: skipping %s, already converted.", filepath.Base(target))
			converted = append(converted, target)
			return nil
		}
		if err := c.ConvertFile(path, target); err != nil {
			// One undecodable file must not sink the batch.
			log.Printf("Processing: failed to convert %s: %v", filepath.Base(path), err)
			return nil
		}
		converted = append(converted, target)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", c.ExtractedPath, err)
	}
	return converted, nil
}

// ConvertFile decodes one GRIB2 file and writes the pivoted CSV to target.
func (c *Converter) ConvertFile(gribPath, target string) error {
	variable := filter.ExtractVariable(gribPath)
	if variable == "" {
		return fmt.Errorf("cannot determine variable from %s", gribPath)
	}
	column := c.Mapping.Column(variable)

	raw, err := c.decodeGrib(gribPath)
	if err != nil {
		return err
	}
	points, err := ParseWgribCSV(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to parse wgrib2 output for %s: %w", gribPath, err)
	}

	kept := points[:0]
	for _, p := range points {
		if c.Geo.Contains(p.Latitude, p.Longitude) {
			kept = append(kept, p)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if err := WritePointsCSV(out, column, kept); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	log.Printf("Processing: converted %s (%d points).", filepath.Base(target), len(kept))
	return nil
}

// targetPath maps an extracted GRIB path into the converted tree with a .csv
// extension.
func (c *Converter) targetPath(path string) (string, error) {
	rel, err := filepath.Rel(c.ExtractedPath, path)
	if err != nil {
		return "", fmt.Errorf("file %s is outside the extracted tree: %w", path, err)
	}
	return filepath.Join(c.ConvertedPath, strings.TrimSuffix(rel, ".grib2")+".csv"), nil
}

func (c *Converter) decodeGrib(gribPath string) ([]byte, error) {
	if c.decode != nil {
		return c.decode(gribPath)
	}
	binary := c.Binary
	if binary == "" {
		binary = "wgrib2"
	}

	tmp, err := os.CreateTemp("", "wgrib2-*.csv")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := exec.Command(binary, gribPath, "-csv", tmpPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("wgrib2 failed for %s: %w (%s)", gribPath, err, strings.TrimSpace(stderr.String()))
	}
	return os.ReadFile(tmpPath)
}

// ParseWgribCSV reads the wgrib2 -csv record format: start time, valid time,
// variable, level, longitude, latitude, value.
func ParseWgribCSV(r io.Reader) ([]GridPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var points []GridPoint
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 7 {
			return nil, fmt.Errorf("short wgrib2 record: %v", record)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude %q: %w", record[4], err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude %q: %w", record[5], err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[6]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", record[6], err)
		}
		points = append(points, GridPoint{
			Latitude:  lat,
			Longitude: lon,
			ValidTime: strings.TrimSpace(record[1]),
			Value:     value,
		})
	}
	return points, nil
}

// WritePointsCSV writes points with the canonical header latitude, longitude,
// valid_time plus the variable column.
func WritePointsCSV(w io.Writer, column string, points []GridPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"latitude", "longitude", "valid_time", column}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			strconv.FormatFloat(p.Latitude, 'f', -1, 64),
			strconv.FormatFloat(p.Longitude, 'f', -1, 64),
			p.ValidTime,
			strconv.FormatFloat(p.Value, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

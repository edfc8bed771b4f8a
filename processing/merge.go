// processing/merge.go
package processing

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/dwdown/dwdown/filter"
	"github.com/dwdown/dwdown/models"
)

// Join methods supported by the merger.
const (
	JoinInner = "inner"
	JoinOuter = "outer"
	JoinLeft  = "left"
	JoinRight = "right"
)

// Layouts accepted for valid_time values. Rows with unparseable timestamps
// keep their raw string.
var validTimeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339}

// keyRow carries the canonical grid columns of a converted CSV. Everything
// else in the file is picked up dynamically.
type keyRow struct {
	Latitude  string `csv:"latitude"`
	Longitude string `csv:"longitude"`
	ValidTime string `csv:"valid_time"`
}

// Merger joins per-variable CSVs for one forecast time step into a single
// wide table keyed on the required columns.
type Merger struct {
	FilesPath        string
	Mapping          models.VariableMapping
	RequiredColumns  []string
	JoinMethod       string
	VariablePatterns map[string][]int
}

// Table is a merged result: the required columns followed by one column per
// joined variable.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Merge joins the converted files of the given variables at one time step.
// Variables whose file is missing or malformed are dropped with a warning; a
// merge with zero usable variables yields nil.
func (m *Merger) Merge(timeStep int, variables []string) (*Table, error) {
	required := m.RequiredColumns
	if len(required) == 0 {
		required = []string{"latitude", "longitude", "valid_time"}
	}
	join := m.JoinMethod
	if join == "" {
		join = JoinOuter
	}
	switch join {
	case JoinInner, JoinOuter, JoinLeft, JoinRight:
	default:
		return nil, fmt.Errorf("unsupported join method %q", join)
	}

	files, err := m.listConverted()
	if err != nil {
		return nil, err
	}
	token := fmt.Sprintf("_%03d_", timeStep)

	var merged *Table
	for _, variable := range variables {
		for _, selection := range m.selectFiles(files, variable, token) {
			table, err := m.loadVariable(selection.path, selection.column, required)
			if err != nil {
				log.Printf("Merger: skipping %s for time step %d: %v", variable, timeStep, err)
				continue
			}
			if merged == nil {
				merged = table
				continue
			}
			merged = joinTables(merged, table, required, join)
		}
	}
	if merged == nil {
		log.Printf("Merger: no usable variables for time step %d.", timeStep)
	}
	return merged, nil
}

// MergeToFile merges and writes the result as
// "merged_<timestep>_<2006_01_02_15_04>.csv" under outDir. It returns the
// written path, or "" when there was nothing to merge.
func (m *Merger) MergeToFile(timeStep int, variables []string, outDir string) (string, error) {
	table, err := m.Merge(timeStep, variables)
	if err != nil {
		return "", err
	}
	if table == nil {
		return "", nil
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outDir, err)
	}
	name := fmt.Sprintf("merged_%03d_%s.csv", timeStep, time.Now().Format("2006_01_02_15_04"))
	path := filepath.Join(outDir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()
	if err := table.WriteCSV(out); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Printf("Merger: wrote %s (%d rows).", name, len(table.Rows))
	return path, nil
}

type fileSelection struct {
	path   string
	column string
}

// selectFiles picks the converted files backing one variable at one time
// step. Variables with configured numeric patterns expand to one column per
// matched number, suffixed "_<n>".
func (m *Merger) selectFiles(files []string, variable, token string) []fileSelection {
	column := m.Mapping.Column(variable)
	patterns := patternsForVariable(m.VariablePatterns, variable)

	var selections []fileSelection
	for _, path := range files {
		base := filepath.Base(path)
		if !strings.Contains(base, token) {
			continue
		}
		if len(patterns) == 0 {
			if filter.ExtractVariable(base) == variable {
				selections = append(selections, fileSelection{path: path, column: column})
			}
			continue
		}
		number, ok := filter.ExtractNumericPattern(base, variable)
		if !ok {
			continue
		}
		for _, want := range patterns {
			if number == want {
				selections = append(selections, fileSelection{
					path:   path,
					column: fmt.Sprintf("%s_%d", column, number),
				})
				break
			}
		}
	}
	if len(selections) == 0 {
		log.Printf("Merger: no file found for variable %q at %s.", variable, strings.Trim(token, "_"))
	}
	return selections
}

// patternsForVariable resolves the numeric-pattern entry for a variable with
// case-insensitive keys, matching how the filename filter treats them.
func patternsForVariable(patterns map[string][]int, variable string) []int {
	for key, accepted := range patterns {
		if strings.EqualFold(key, variable) {
			return accepted
		}
	}
	return nil
}

func (m *Merger) listConverted() ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.FilesPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.HasSuffix(path, ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", m.FilesPath, err)
	}
	return files, nil
}

// loadVariable reads one converted CSV into a single-variable Table. The file
// must carry every required column plus exactly one data column, which is
// renamed to the requested column name.
func (m *Merger) loadVariable(path, column string, required []string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header := dec.Header()
	headerIndex := make(map[string]int, len(header))
	for i, name := range header {
		headerIndex[name] = i
	}
	for _, name := range required {
		if _, ok := headerIndex[name]; !ok {
			return nil, fmt.Errorf("%s is missing required column %q", path, name)
		}
	}
	dataIndex := -1
	for i, name := range header {
		if !contains(required, name) {
			if dataIndex != -1 {
				return nil, fmt.Errorf("%s has more than one data column", path)
			}
			dataIndex = i
		}
	}
	if dataIndex == -1 {
		return nil, fmt.Errorf("%s has no data column", path)
	}

	table := &Table{Columns: append(append([]string{}, required...), column)}
	for {
		var row keyRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		record := dec.Record()
		values := make([]string, 0, len(required)+1)
		for _, name := range required {
			value := record[headerIndex[name]]
			if name == "valid_time" {
				value = normalizeValidTime(value)
			}
			values = append(values, value)
		}
		values = append(values, record[dataIndex])
		table.Rows = append(table.Rows, values)
	}
	return table, nil
}

// normalizeValidTime renders timestamps in a single layout so that files with
// differing source formats still join. Unparseable values pass through.
func normalizeValidTime(value string) string {
	for _, layout := range validTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return value
}

// joinTables combines two tables on the required columns. Inner keeps keys
// present in both, outer the union, left and right the respective side's
// keys. Row order follows the driving side, with outer appending the right
// side's unmatched keys.
func joinTables(left, right *Table, required []string, method string) *Table {
	nKey := len(required)
	leftIndex := indexRows(left.Rows, nKey)
	rightIndex := indexRows(right.Rows, nKey)

	leftWidth := len(left.Columns) - nKey
	rightWidth := len(right.Columns) - nKey

	out := &Table{Columns: append(append([]string{}, left.Columns...), right.Columns[nKey:]...)}

	appendRow := func(key []string, leftVals, rightVals []string) {
		row := make([]string, 0, nKey+leftWidth+rightWidth)
		row = append(row, key...)
		row = append(row, pad(leftVals, leftWidth)...)
		row = append(row, pad(rightVals, rightWidth)...)
		out.Rows = append(out.Rows, row)
	}

	switch method {
	case JoinInner:
		for _, row := range left.Rows {
			key := row[:nKey]
			if rvals, ok := rightIndex[keyOf(key)]; ok {
				appendRow(key, row[nKey:], rvals)
			}
		}
	case JoinLeft:
		for _, row := range left.Rows {
			key := row[:nKey]
			appendRow(key, row[nKey:], rightIndex[keyOf(key)])
		}
	case JoinRight:
		for _, row := range right.Rows {
			key := row[:nKey]
			appendRow(key, leftIndex[keyOf(key)], row[nKey:])
		}
	case JoinOuter:
		seen := make(map[string]bool)
		for _, row := range left.Rows {
			key := row[:nKey]
			seen[keyOf(key)] = true
			appendRow(key, row[nKey:], rightIndex[keyOf(key)])
		}
		for _, row := range right.Rows {
			key := row[:nKey]
			if seen[keyOf(key)] {
				continue
			}
			appendRow(key, nil, row[nKey:])
		}
	}
	return out
}

func indexRows(rows [][]string, nKey int) map[string][]string {
	index := make(map[string][]string, len(rows))
	for _, row := range rows {
		index[keyOf(row[:nKey])] = row[nKey:]
	}
	return index
}

func keyOf(values []string) string {
	return strings.Join(values, "\x1f")
}

func pad(values []string, width int) []string {
	if len(values) == width {
		return values
	}
	padded := make([]string, width)
	copy(padded, values)
	return padded
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// WriteCSV renders the table with its header row.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

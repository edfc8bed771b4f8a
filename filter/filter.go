// filter/filter.go
package filter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Criteria is the full set of filename gates. The zero value matches
// everything. Criteria are pure predicates: evaluating them never mutates
// shared state, and exclude patterns always win over include patterns.
type Criteria struct {
	// Prefix must match the start of the base name, Suffix the end of the
	// full name. Empty means "not active".
	Prefix string
	Suffix string

	// IncludePatterns are substring matches. By default every pattern must be
	// present; set IncludeMatchAny for "at least one" semantics.
	IncludePatterns []string
	IncludeMatchAny bool

	// ExcludePatterns reject a name containing any of them, regardless of the
	// include gate.
	ExcludePatterns []string

	// Timesteps are wrapped forecast-hour tokens such as "_007_". A name
	// passes the timestep gate when it contains one of them, when its
	// variable is listed in SkipTimestepVariables, or when the gate is
	// inactive (no tokens, or MockTimesteps set).
	Timesteps             []string
	SkipTimestepVariables []string
	MockTimesteps         bool

	// VariablesOfInterest, when non-empty, restricts names to those whose
	// extracted variable is listed (case-insensitive).
	VariablesOfInterest []string

	// VariablePatterns maps a variable to the numeric tokens accepted for it
	// (the digit run between the last two underscores before the variable
	// name, e.g. "_2_w_so.csv" carries token 2). Variables without an entry
	// pass unconditionally.
	VariablePatterns map[string][]int
}

// Filter returns the ordered subsequence of filenames satisfying every active
// gate in c. Input order is preserved; malformed names that lack the expected
// token structure are silently excluded by the gates that need those tokens.
func Filter(filenames []string, c Criteria) []string {
	var kept []string
	for _, name := range filenames {
		if Matches(name, c) {
			kept = append(kept, name)
		}
	}
	return kept
}

// Matches reports whether a single filename satisfies every active gate.
func Matches(name string, c Criteria) bool {
	base := filepath.Base(name)

	if c.Prefix != "" && !strings.HasPrefix(base, c.Prefix) {
		return false
	}
	if c.Suffix != "" && !strings.HasSuffix(name, c.Suffix) {
		return false
	}
	for _, pattern := range c.ExcludePatterns {
		if pattern != "" && strings.Contains(name, pattern) {
			return false
		}
	}
	if !includeCheck(name, c.IncludePatterns, c.IncludeMatchAny) {
		return false
	}
	if !timestepCheck(base, c) {
		return false
	}
	if len(c.VariablesOfInterest) > 0 {
		variable := strings.ToLower(ExtractVariable(base))
		found := false
		for _, v := range c.VariablesOfInterest {
			if strings.ToLower(v) == variable {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return variablePatternCheck(base, c.VariablePatterns)
}

// includeCheck applies either "all patterns" or "any pattern" semantics.
// An empty pattern list is inactive and passes.
func includeCheck(name string, patterns []string, matchAny bool) bool {
	if len(patterns) == 0 {
		return true
	}
	if matchAny {
		for _, p := range patterns {
			if strings.Contains(name, p) {
				return true
			}
		}
		return false
	}
	for _, p := range patterns {
		if !strings.Contains(name, p) {
			return false
		}
	}
	return true
}

func timestepCheck(base string, c Criteria) bool {
	if c.MockTimesteps || len(c.Timesteps) == 0 {
		return true
	}
	if len(c.SkipTimestepVariables) > 0 {
		variable := strings.ToLower(ExtractVariable(base))
		for _, v := range c.SkipTimestepVariables {
			if strings.ToLower(v) == variable {
				return true
			}
		}
	}
	for _, ts := range c.Timesteps {
		if strings.Contains(base, ts) {
			return true
		}
	}
	return false
}

// variablePatternCheck enforces the numeric-token selection for variables
// with a VariablePatterns entry. Names whose variable has no entry pass.
func variablePatternCheck(base string, patterns map[string][]int) bool {
	if len(patterns) == 0 {
		return true
	}
	variable := strings.ToLower(ExtractVariable(base))
	if variable == "" {
		return true
	}
	accepted, ok := patternsFor(patterns, variable)
	if !ok {
		return true
	}
	token, ok := ExtractNumericPattern(base, variable)
	if !ok {
		return false
	}
	for _, p := range accepted {
		if token == p {
			return true
		}
	}
	return false
}

func patternsFor(patterns map[string][]int, variable string) ([]int, bool) {
	for k, v := range patterns {
		if strings.ToLower(k) == variable {
			return v, true
		}
	}
	return nil, false
}

// ExtractVariable pulls the DWD variable token out of a filename following
// the ICON naming convention: everything before the first "." is split on
// "_", and the variable is the underscore-join of the segments after the
// last all-digit segment. For
// "icon-d2_germany_regular-lat-lon_single-level_2024090100_000_relhum.grib2.bz2"
// that is "relhum"; for "..._003_t_2m.grib2.bz2" it is "t_2m". Returns ""
// when the name carries no digit segment or nothing follows it.
func ExtractVariable(filename string) string {
	base := filepath.Base(filename)
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	segments := strings.Split(base, "_")
	lastDigit := -1
	for i, seg := range segments {
		if seg != "" && isDigits(seg) {
			lastDigit = i
		}
	}
	if lastDigit < 0 || lastDigit == len(segments)-1 {
		return ""
	}
	return strings.Join(segments[lastDigit+1:], "_")
}

// ExtractNumericPattern returns the digit run sitting between the last two
// underscores before the variable name, e.g. 2 for "..._2_w_so.csv". The
// second return is false when the name carries no such token.
func ExtractNumericPattern(filename, variable string) (int, bool) {
	base := strings.ToLower(filepath.Base(filename))
	re, err := regexp.Compile(`_([0-9]+)_` + regexp.QuoteMeta(strings.ToLower(variable)) + `\.`)
	if err != nil {
		return 0, false
	}
	m := re.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// TimestepTokens generates wrapped forecast-hour include tokens for the range
// [min, max], zero-padded to three digits: "_000_", "_001_", ... The ICON-D2
// default window is 0..48.
func TimestepTokens(min, max int) []string {
	if min < 0 {
		min = 0
	}
	if max < min {
		return nil
	}
	tokens := make([]string, 0, max-min+1)
	for t := min; t <= max; t++ {
		tokens = append(tokens, fmt.Sprintf("_%03d_", t))
	}
	return tokens
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

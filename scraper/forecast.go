// scraper/forecast.go
package scraper

import (
	"fmt"
	"strings"
)

// ForecastSource describes one DWD open-data forecast endpoint. Listing URLs
// follow the fixed layout {base}/{model}/grib/{run}/{variable}/.
type ForecastSource struct {
	BaseURL string // e.g. https://opendata.dwd.de/weather/nwp
	Model   string // e.g. icon-d2, icon-eu
	Run     string // forecast run in the 3-hourly cycle: 00, 03, ..., 21
}

// URL returns the directory listing URL for one variable, with a trailing
// slash so that filenames can be appended directly.
func (s ForecastSource) URL(variable string) (string, error) {
	if s.BaseURL == "" || s.Model == "" || s.Run == "" || variable == "" {
		return "", fmt.Errorf("forecast source needs base URL, model, run and variable (got %q, %q, %q, %q)",
			s.BaseURL, s.Model, s.Run, variable)
	}
	base := strings.TrimRight(s.BaseURL, "/")
	return fmt.Sprintf("%s/%s/grib/%s/%s/", base, s.Model, s.Run, variable), nil
}

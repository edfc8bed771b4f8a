// scraper/listing.go
package scraper

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Regex to find "21-Jan-2025 10:20" style timestamps in a directory index.
var listingDateRegex = regexp.MustCompile(`(\d{2}-[A-Za-z]{3}-\d{4}) (\d{2}:\d{2})`)

const listingDateLayout = "02-Jan-2006 15:04"

// FetchFilenames downloads an HTML directory index and returns the href of
// every anchor, in document order. Navigation links (parent directory,
// queries, absolute URLs) are dropped; everything else is left to the
// pattern filter.
func FetchFilenames(client *http.Client, listingURL string) ([]string, error) {
	doc, err := fetchDocument(client, listingURL)
	if err != nil {
		return nil, err
	}

	var filenames []string
	doc.Find("a").Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if href == "" || href == "../" || strings.HasPrefix(href, "?") ||
			strings.HasPrefix(href, "/") || strings.Contains(href, "://") {
			return
		}
		filenames = append(filenames, href)
	})
	return filenames, nil
}

// FetchListingDates extracts the oldest and newest modification timestamps
// from the <pre> text of a directory index. Useful for checking whether a
// model run has finished publishing before starting a batch.
func FetchListingDates(client *http.Client, listingURL string) (oldest, newest time.Time, err error) {
	doc, err := fetchDocument(client, listingURL)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	matches := listingDateRegex.FindAllStringSubmatch(doc.Find("pre").Text(), -1)
	if len(matches) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("no listing dates found at %s", listingURL)
	}

	for _, m := range matches {
		parsed, perr := time.Parse(listingDateLayout, m[1]+" "+m[2])
		if perr != nil {
			continue
		}
		if oldest.IsZero() || parsed.Before(oldest) {
			oldest = parsed
		}
		if parsed.After(newest) {
			newest = parsed
		}
	}
	if oldest.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("no parseable listing dates at %s", listingURL)
	}
	return oldest, newest, nil
}

func fetchDocument(client *http.Client, pageURL string) (*goquery.Document, error) {
	res, err := client.Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get URL %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get URL %s: status code %d", pageURL, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return doc, nil
}

// Package biblio provides read-only clients for external bibliographic
// indexes (CrossRef, OpenAlex) and a common normalized work record.
package biblio

import "strings"

// Work is a bibliographic record normalized across providers.
type Work struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Year      int      `json:"year,omitempty"`
	Journal   string   `json:"journal,omitempty"`
	Volume    string   `json:"volume,omitempty"`
	Issue     string   `json:"issue,omitempty"`
	Pages     string   `json:"pages,omitempty"`
	DOI       string   `json:"doi,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Type      string   `json:"type,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// TitleMatches reports whether query matches any candidate title: exact
// after trimming trailing periods, substring containment either direction,
// or bag-of-words overlap above 0.8.
func TitleMatches(query string, candidates []string) bool {
	q := cleanTitle(query)
	if q == "" {
		return false
	}
	for _, candidate := range candidates {
		c := cleanTitle(candidate)
		if c == "" {
			continue
		}
		if q == c {
			return true
		}
		if strings.Contains(c, q) || strings.Contains(q, c) {
			return true
		}
		if wordOverlap(q, c) > 0.8 {
			return true
		}
	}
	return false
}

// AuthorMatches reports whether the query author string is contained in
// (or equals the surname of) one of the work's listed authors.
func AuthorMatches(query string, authors []string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	for _, a := range authors {
		al := strings.ToLower(a)
		if strings.Contains(al, q) {
			return true
		}
		parts := strings.Fields(al)
		if len(parts) > 0 && parts[len(parts)-1] == q {
			return true
		}
	}
	return false
}

func cleanTitle(s string) string {
	return strings.TrimRight(strings.TrimSpace(strings.ToLower(s)), ".")
}

func wordOverlap(a, b string) float64 {
	aw := map[string]bool{}
	for _, w := range strings.Fields(a) {
		aw[w] = true
	}
	bw := map[string]bool{}
	for _, w := range strings.Fields(b) {
		bw[w] = true
	}
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	common := 0
	for w := range aw {
		if bw[w] {
			common++
		}
	}
	max := len(aw)
	if len(bw) > max {
		max = len(bw)
	}
	return float64(common) / float64(max)
}

// Package citeparse extracts MLA-style inline citations from manuscript text.
package citeparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TitleStyle records how a citation's title was typeset in the source text.
type TitleStyle string

const (
	TitleItalic TitleStyle = "italic"
	TitleQuoted TitleStyle = "quoted"
)

// Citation is one recognized inline citation occurrence. Offsets are byte
// positions into the parsed text; spans are unique per citation.
type Citation struct {
	Author          string     `json:"author,omitempty"`
	Title           string     `json:"title,omitempty"`
	TitleStyle      TitleStyle `json:"title_style,omitempty"`
	Pages           string     `json:"pages,omitempty"`
	IsSecondary     bool       `json:"is_secondary,omitempty"`
	MediatingAuthor string     `json:"mediating_author,omitempty"`
	Raw             string     `json:"raw"`
	Start           int        `json:"start"`
	End             int        `json:"end"`
}

// Regex building blocks. Author surnames allow Latin-1/Latin Extended
// capitals, hyphens and apostrophes; Chinese names are 1-4 han characters.
const (
	reAuthor = `(?:[A-Z\x{00C0}-\x{024F}][a-zA-Z\x{00C0}-\x{024F}'\x{2019}\-]+|[\x{4e00}-\x{9fff}]{1,4})`
	rePages  = `\d{1,4}(?:\s*[-\x{2013}]\s*\d{1,4})?`
	reItalic = `\*([^*]+)\*`
	reQuoted = `"([^"]+)"`
)

// Year-like page tokens in this range are rejected by the simple
// author-page pattern. Plausibility bounds, not historical fact.
const (
	yearExclusionMin = 1800
	yearExclusionMax = 2099
)

var (
	// (qtd. in Author, *Title* 43) with the title optional.
	patSecondary = regexp.MustCompile(`\(\s*qtd\.\s+in\s+(` + reAuthor + `)(?:,\s*` + reItalic + `)?\s+(` + rePages + `)\s*\)`)
	// (quoted in Author 1999, 43) — Chicago variant, year and page optional.
	patSecondaryAlt = regexp.MustCompile(`\(\s*quoted\s+in\s+(` + reAuthor + `)(?:\s+\d{4})?\s*(?:,\s*)?(` + rePages + `)?\s*\)`)
	// (Author, *Title* 42)
	patAuthorItalic = regexp.MustCompile(`\(\s*(` + reAuthor + `),\s*` + reItalic + `(?:\s+(` + rePages + `))?\s*\)`)
	// (Author, "Title" 78)
	patAuthorQuoted = regexp.MustCompile(`\(\s*(` + reAuthor + `),\s*` + reQuoted + `(?:\s+(` + rePages + `))?\s*\)`)
	// (Author 247)
	patSimple = regexp.MustCompile(`\(\s*(` + reAuthor + `)\s+(` + rePages + `)\s*\)`)
	// (*Title* 78)
	patTitleOnly = regexp.MustCompile(`\(\s*` + reItalic + `\s+(` + rePages + `)\s*\)`)
)

func isYear(s string) bool {
	first := s
	if i := strings.IndexAny(first, "-–"); i >= 0 {
		first = first[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return false
	}
	return n >= yearExclusionMin && n <= yearExclusionMax
}

// Parse extracts inline citations from text. Patterns are applied in
// priority order; a span claimed by an earlier pattern is never re-emitted
// by a later one. Output is sorted by start offset.
func Parse(text string) []Citation {
	var citations []Citation
	seen := map[[2]int]bool{}

	add := func(c Citation) {
		span := [2]int{c.Start, c.End}
		if seen[span] {
			return
		}
		seen[span] = true
		citations = append(citations, c)
	}

	for _, m := range patSecondary.FindAllStringSubmatchIndex(text, -1) {
		c := Citation{
			MediatingAuthor: group(text, m, 1),
			Title:           group(text, m, 2),
			Pages:           group(text, m, 3),
			IsSecondary:     true,
			Raw:             text[m[0]:m[1]],
			Start:           m[0],
			End:             m[1],
		}
		if c.Title != "" {
			c.TitleStyle = TitleItalic
		}
		add(c)
	}

	for _, m := range patSecondaryAlt.FindAllStringSubmatchIndex(text, -1) {
		if seen[[2]int{m[0], m[1]}] {
			continue
		}
		add(Citation{
			MediatingAuthor: group(text, m, 1),
			Pages:           group(text, m, 2),
			IsSecondary:     true,
			Raw:             text[m[0]:m[1]],
			Start:           m[0],
			End:             m[1],
		})
	}

	for _, m := range patAuthorItalic.FindAllStringSubmatchIndex(text, -1) {
		if seen[[2]int{m[0], m[1]}] {
			continue
		}
		add(Citation{
			Author:     group(text, m, 1),
			Title:      group(text, m, 2),
			TitleStyle: TitleItalic,
			Pages:      group(text, m, 3),
			Raw:        text[m[0]:m[1]],
			Start:      m[0],
			End:        m[1],
		})
	}

	for _, m := range patAuthorQuoted.FindAllStringSubmatchIndex(text, -1) {
		if seen[[2]int{m[0], m[1]}] {
			continue
		}
		add(Citation{
			Author:     group(text, m, 1),
			Title:      group(text, m, 2),
			TitleStyle: TitleQuoted,
			Pages:      group(text, m, 3),
			Raw:        text[m[0]:m[1]],
			Start:      m[0],
			End:        m[1],
		})
	}

	for _, m := range patSimple.FindAllStringSubmatchIndex(text, -1) {
		if seen[[2]int{m[0], m[1]}] {
			continue
		}
		pages := group(text, m, 2)
		if isYear(pages) {
			continue
		}
		add(Citation{
			Author: group(text, m, 1),
			Pages:  pages,
			Raw:    text[m[0]:m[1]],
			Start:  m[0],
			End:    m[1],
		})
	}

	for _, m := range patTitleOnly.FindAllStringSubmatchIndex(text, -1) {
		if seen[[2]int{m[0], m[1]}] {
			continue
		}
		add(Citation{
			Title:      group(text, m, 1),
			TitleStyle: TitleItalic,
			Pages:      group(text, m, 2),
			Raw:        text[m[0]:m[1]],
			Start:      m[0],
			End:        m[1],
		})
	}

	sort.Slice(citations, func(i, j int) bool { return citations[i].Start < citations[j].Start })
	return citations
}

// Group buckets citations by author surname, falling back to mediating
// author, then title, then "unknown". Used for bibliography cross-reference.
func Group(citations []Citation) map[string][]Citation {
	groups := map[string][]Citation{}
	for _, c := range citations {
		key := c.Author
		if key == "" {
			key = c.MediatingAuthor
		}
		if key == "" {
			key = c.Title
		}
		if key == "" {
			key = "unknown"
		}
		groups[key] = append(groups[key], c)
	}
	return groups
}

func group(text string, m []int, n int) string {
	if 2*n+1 >= len(m) || m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

// Package citeverify resolves parsed inline citations against external
// bibliographic indexes and annotates manuscripts with the outcome.
package citeverify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/semaphore"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/citeparse"
)

// Status classifies the verification outcome for one citation.
type Status string

const (
	StatusVerified         Status = "verified"
	StatusWorkNotFound     Status = "work_not_found"
	StatusPageUnverifiable Status = "page_unverifiable"
	StatusPageOutOfRange   Status = "page_out_of_range"
)

// Verification is the immutable outcome of verifying a single citation.
type Verification struct {
	Citation    citeparse.Citation `json:"citation"`
	Status      Status             `json:"status"`
	Confidence  float64            `json:"confidence"`
	MatchedWork *biblio.Work       `json:"matched_work,omitempty"`
	PageRange   string             `json:"page_range,omitempty"`
	PageInRange *bool              `json:"page_in_range,omitempty"`
	Notes       string             `json:"notes,omitempty"`
	Source      string             `json:"source,omitempty"`
}

// Searcher is the read-only lookup interface both bibliographic providers
// satisfy.
type Searcher interface {
	SearchWorks(ctx context.Context, query string) ([]biblio.Work, error)
}

const maxConcurrentLookups = 5

// Engine verifies citations against a primary index with a fallback.
// The lookup cache lives for the engine instance — one pipeline run.
type Engine struct {
	primary  Searcher
	fallback Searcher

	mu    sync.Mutex
	cache map[string]*biblio.Work
}

func NewEngine(primary, fallback Searcher) *Engine {
	return &Engine{primary: primary, fallback: fallback, cache: map[string]*biblio.Work{}}
}

// Close drops the lookup cache and releases connections held by any
// provider that supports it.
func (e *Engine) Close() {
	e.mu.Lock()
	e.cache = map[string]*biblio.Work{}
	e.mu.Unlock()
	for _, s := range []Searcher{e.primary, e.fallback} {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// VerifyAll verifies every citation concurrently (at most 5 in flight) and
// returns one result per input in input order. An individual lookup failure
// becomes a work_not_found result carrying the error text; it never fails
// the batch.
func (e *Engine) VerifyAll(ctx context.Context, citations []citeparse.Citation, manuscript string) []Verification {
	ctx, span := otel.Tracer("citeverify").Start(ctx, "VerifyAll")
	defer span.End()

	results := make([]Verification, len(citations))
	sem := semaphore.NewWeighted(maxConcurrentLookups)
	var wg sync.WaitGroup

	for i, c := range citations {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = Verification{
					Citation: c,
					Status:   StatusWorkNotFound,
					Notes:    fmt.Sprintf("Error during verification: %v", err),
				}
				return
			}
			defer sem.Release(1)
			v, err := e.verifyOne(ctx, c, manuscript)
			if err != nil {
				results[i] = Verification{
					Citation: c,
					Status:   StatusWorkNotFound,
					Notes:    fmt.Sprintf("Error during verification: %v", err),
				}
				return
			}
			results[i] = v
		}()
	}
	wg.Wait()
	return results
}

func (e *Engine) verifyOne(ctx context.Context, c citeparse.Citation, manuscript string) (Verification, error) {
	author := c.Author
	if author == "" {
		author = c.MediatingAuthor
	}
	titleHint := c.Title
	if titleHint == "" && author != "" {
		titleHint = contextTitle(author, manuscript, c.Start)
	}

	if author == "" && titleHint == "" {
		return Verification{
			Citation: c,
			Status:   StatusWorkNotFound,
			Notes:    "No author or title to search",
		}, nil
	}

	work, err := e.searchByAuthorTitle(ctx, author, titleHint)
	if err != nil {
		return Verification{}, err
	}
	if work == nil {
		return Verification{
			Citation: c,
			Status:   StatusWorkNotFound,
			Notes:    fmt.Sprintf("No match found for %s / %s", author, titleHint),
		}, nil
	}

	if c.Pages == "" {
		return Verification{
			Citation:    c,
			Status:      StatusVerified,
			Confidence:  0.9,
			MatchedWork: work,
			Source:      work.Source,
			Notes:       "Work found, no page to verify",
		}, nil
	}

	check, note := checkPageRange(c.Pages, work.Pages, work.Type)
	switch check {
	case pageInRange:
		inRange := true
		return Verification{
			Citation:    c,
			Status:      StatusVerified,
			Confidence:  1.0,
			MatchedWork: work,
			PageRange:   work.Pages,
			PageInRange: &inRange,
			Source:      work.Source,
		}, nil
	case pageOutOfRange:
		inRange := false
		return Verification{
			Citation:    c,
			Status:      StatusPageOutOfRange,
			Confidence:  0.5,
			MatchedWork: work,
			PageRange:   work.Pages,
			PageInRange: &inRange,
			Notes:       note,
			Source:      work.Source,
		}, nil
	default:
		return Verification{
			Citation:    c,
			Status:      StatusPageUnverifiable,
			Confidence:  0.7,
			MatchedWork: work,
			PageRange:   work.Pages,
			Notes:       note,
			Source:      work.Source,
		}, nil
	}
}

// searchByAuthorTitle tries the primary index, then the fallback. Results
// (including misses) are cached per engine instance by a case-insensitive
// author|title key so repeated citations cost one external call.
func (e *Engine) searchByAuthorTitle(ctx context.Context, author, titleHint string) (*biblio.Work, error) {
	cacheKey := strings.ToLower(author) + "|" + strings.ToLower(titleHint)
	e.mu.Lock()
	if work, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return work, nil
	}
	e.mu.Unlock()

	query := strings.TrimSpace(strings.TrimSpace(author) + " " + strings.TrimSpace(titleHint))
	if query == "" {
		return nil, nil
	}

	work := e.searchOne(ctx, e.primary, query, author, titleHint)
	if work == nil && e.fallback != nil {
		work = e.searchOne(ctx, e.fallback, query, author, titleHint)
	}

	e.mu.Lock()
	e.cache[cacheKey] = work
	e.mu.Unlock()
	return work, nil
}

// searchOne swallows provider errors: a failed provider is treated as no
// match so the fallback still gets a chance.
func (e *Engine) searchOne(ctx context.Context, s Searcher, query, author, titleHint string) *biblio.Work {
	if s == nil {
		return nil
	}
	works, err := s.SearchWorks(ctx, query)
	if err != nil {
		return nil
	}
	for i := range works {
		if matches(&works[i], author, titleHint) {
			return &works[i]
		}
	}
	return nil
}

func matches(work *biblio.Work, author, titleHint string) bool {
	if titleHint != "" && biblio.TitleMatches(titleHint, []string{work.Title}) {
		return true
	}
	if author != "" && biblio.AuthorMatches(author, work.Authors) {
		return true
	}
	return false
}

// contextTitle scans up to 500 characters before the citation for an italic
// title plausibly attributed to the author. A recall heuristic, not
// guaranteed correct.
func contextTitle(author, text string, citationPos int) string {
	start := citationPos - 500
	if start < 0 {
		start = 0
	}
	if citationPos > len(text) {
		citationPos = len(text)
	}
	window := text[start:citationPos]

	esc := regexp.QuoteMeta(author)
	patterns := []string{
		`(?i)` + esc + `(?:'s|s')?\s+\*([^*]+)\*`,
		`(?i)` + esc + `,?\s+\*([^*]+)\*`,
		`(?i)\*([^*]+)\*[^*]{0,100}` + esc,
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(window); m != nil {
			return m[1]
		}
	}
	return ""
}

type pageCheck int

const (
	pageUnknown pageCheck = iota
	pageInRange
	pageOutOfRange
)

// Book-like types have internal page numbers that metadata cannot confirm.
var bookTypes = map[string]bool{
	"book":           true,
	"monograph":      true,
	"book-chapter":   true,
	"edited-book":    true,
	"reference-book": true,
	"book-section":   true,
}

var (
	rangeRe = regexp.MustCompile(`^(\d+)\s*[-\x{2013}]\s*(\d+)`)
	citedRe = regexp.MustCompile(`^(\d+)(?:\s*[-\x{2013}]\s*(\d+))?`)
)

// checkPageRange requires both cited endpoints to lie inside the work's
// page range (inclusive) for a pass.
func checkPageRange(citedPages, workPages, workType string) (pageCheck, string) {
	if bookTypes[workType] {
		return pageUnknown, "Book page numbers cannot be verified without PDF"
	}
	if workPages == "" {
		return pageUnknown, "No page range available from metadata"
	}

	rm := rangeRe.FindStringSubmatch(workPages)
	if rm == nil {
		return pageUnknown, fmt.Sprintf("Cannot parse page range: %s", workPages)
	}
	rangeStart, _ := strconv.Atoi(rm[1])
	rangeEnd, _ := strconv.Atoi(rm[2])

	cm := citedRe.FindStringSubmatch(citedPages)
	if cm == nil {
		return pageUnknown, fmt.Sprintf("Cannot parse cited page: %s", citedPages)
	}
	citedStart, _ := strconv.Atoi(cm[1])
	citedEnd := citedStart
	if cm[2] != "" {
		citedEnd, _ = strconv.Atoi(cm[2])
	}

	if rangeStart <= citedStart && citedStart <= rangeEnd && rangeStart <= citedEnd && citedEnd <= rangeEnd {
		return pageInRange, fmt.Sprintf("Page %s within %s", citedPages, workPages)
	}
	return pageOutOfRange, fmt.Sprintf("Page %s outside range %s", citedPages, workPages)
}

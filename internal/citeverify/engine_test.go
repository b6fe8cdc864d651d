package citeverify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/citeparse"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls int
	works []biblio.Work
	err   error
}

func (f *fakeSearcher) SearchWorks(ctx context.Context, query string) ([]biblio.Work, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.works, f.err
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestVerifyAllOrderAndLength(t *testing.T) {
	primary := &fakeSearcher{works: []biblio.Work{
		{Title: "Testimony", Authors: []string{"John Felstiner"}, Pages: "240-260", Type: "journal-article", Source: "crossref"},
	}}
	e := NewEngine(primary, nil)

	text := "(Felstiner 247) and (Unknownperson 99)"
	citations := citeparse.Parse(text)
	if len(citations) != 2 {
		t.Fatalf("setup: expected 2 citations, got %d", len(citations))
	}

	results := e.VerifyAll(context.Background(), citations, text)
	if len(results) != len(citations) {
		t.Fatalf("expected %d results, got %d", len(citations), len(results))
	}
	for i := range results {
		if results[i].Citation.Start != citations[i].Start {
			t.Errorf("result %d out of order", i)
		}
	}
	if results[0].Status != StatusVerified {
		t.Errorf("first status = %s", results[0].Status)
	}
}

func TestVerifyPageInRange(t *testing.T) {
	primary := &fakeSearcher{works: []biblio.Work{
		{Title: "Testimony", Authors: []string{"John Felstiner"}, Pages: "240-260", Type: "journal-article"},
	}}
	e := NewEngine(primary, nil)

	text := "(Felstiner 247)"
	results := e.VerifyAll(context.Background(), citeparse.Parse(text), text)
	v := results[0]
	if v.Status != StatusVerified || v.Confidence != 1.0 {
		t.Errorf("status=%s confidence=%v", v.Status, v.Confidence)
	}
	if v.PageInRange == nil || !*v.PageInRange {
		t.Error("expected page_in_range true")
	}
}

func TestVerifyPageOutOfRange(t *testing.T) {
	primary := &fakeSearcher{works: []biblio.Work{
		{Title: "Testimony", Authors: []string{"John Felstiner"}, Pages: "240-260", Type: "journal-article"},
	}}
	e := NewEngine(primary, nil)

	text := "(Felstiner 999)"
	results := e.VerifyAll(context.Background(), citeparse.Parse(text), text)
	v := results[0]
	if v.Status != StatusPageOutOfRange || v.Confidence != 0.5 {
		t.Errorf("status=%s confidence=%v", v.Status, v.Confidence)
	}
}

func TestVerifyBookPagesUnverifiable(t *testing.T) {
	primary := &fakeSearcher{works: []biblio.Work{
		{Title: "Témoins", Authors: []string{"Jean Norton Cru"}, Pages: "1-700", Type: "book"},
	}}
	e := NewEngine(primary, nil)

	text := "(Cru 43)"
	results := e.VerifyAll(context.Background(), citeparse.Parse(text), text)
	v := results[0]
	if v.Status != StatusPageUnverifiable || v.Confidence != 0.7 {
		t.Errorf("status=%s confidence=%v", v.Status, v.Confidence)
	}
}

func TestVerifyNoPageCited(t *testing.T) {
	primary := &fakeSearcher{works: []biblio.Work{
		{Title: "Témoins", Authors: []string{"Jean Norton Cru"}},
	}}
	e := NewEngine(primary, nil)

	text := "(quoted in Cru)"
	results := e.VerifyAll(context.Background(), citeparse.Parse(text), text)
	v := results[0]
	if v.Status != StatusVerified || v.Confidence != 0.9 {
		t.Errorf("status=%s confidence=%v", v.Status, v.Confidence)
	}
}

func TestVerifyFallbackProvider(t *testing.T) {
	primary := &fakeSearcher{err: errors.New("boom")}
	fallback := &fakeSearcher{works: []biblio.Work{
		{Title: "Testimony", Authors: []string{"John Felstiner"}},
	}}
	e := NewEngine(primary, fallback)

	text := "(Felstiner 12)"
	results := e.VerifyAll(context.Background(), citeparse.Parse(text), text)
	if results[0].Status == StatusWorkNotFound {
		t.Errorf("fallback not consulted: %+v", results[0])
	}
	if fallback.callCount() == 0 {
		t.Error("fallback never called")
	}
}

func TestVerifyCacheHit(t *testing.T) {
	primary := &fakeSearcher{works: []biblio.Work{
		{Title: "Testimony", Authors: []string{"John Felstiner"}},
	}}
	e := NewEngine(primary, nil)

	// Same author twice, differing only in case.
	if _, err := e.searchByAuthorTitle(context.Background(), "Felstiner", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.searchByAuthorTitle(context.Background(), "FELSTINER", ""); err != nil {
		t.Fatal(err)
	}
	if got := primary.callCount(); got != 1 {
		t.Errorf("expected 1 provider call, got %d", got)
	}
}

type closableSearcher struct {
	fakeSearcher
	closed bool
}

func (c *closableSearcher) Close() { c.closed = true }

func TestCloseReleasesProviders(t *testing.T) {
	primary := &closableSearcher{}
	fallback := &closableSearcher{}
	e := NewEngine(primary, fallback)

	if _, err := e.searchByAuthorTitle(context.Background(), "Felstiner", ""); err != nil {
		t.Fatal(err)
	}
	e.Close()

	if !primary.closed || !fallback.closed {
		t.Error("providers not closed")
	}
	if len(e.cache) != 0 {
		t.Errorf("cache not dropped, %d entries", len(e.cache))
	}
}

func TestVerifyBoundedConcurrency(t *testing.T) {
	var inFlight, peak int64
	primary := &concurrencyProbe{inFlight: &inFlight, peak: &peak}
	e := NewEngine(primary, nil)

	// 20 distinct authors to defeat the cache.
	text := ""
	for _, a := range []string{"Aaa", "Bbb", "Ccc", "Ddd", "Eee", "Fff", "Ggg", "Hhh", "Iii", "Jjj",
		"Kkk", "Lll", "Mmm", "Nnn", "Ooo", "Ppp", "Qqq", "Rrr", "Sss", "Ttt"} {
		text += "(" + a + " 11) "
	}
	citations := citeparse.Parse(text)
	e.VerifyAll(context.Background(), citations, text)

	if p := atomic.LoadInt64(&peak); p > maxConcurrentLookups {
		t.Errorf("peak concurrency %d exceeds %d", p, maxConcurrentLookups)
	}
}

type concurrencyProbe struct {
	inFlight *int64
	peak     *int64
}

func (p *concurrencyProbe) SearchWorks(ctx context.Context, query string) ([]biblio.Work, error) {
	n := atomic.AddInt64(p.inFlight, 1)
	for {
		old := atomic.LoadInt64(p.peak)
		if n <= old || atomic.CompareAndSwapInt64(p.peak, old, n) {
			break
		}
	}
	defer atomic.AddInt64(p.inFlight, -1)
	return nil, nil
}

func TestContextTitleExtraction(t *testing.T) {
	text := "In Cru's *Témoins* the survey is exhaustive. The verdict is blunt (Cru 43)."
	citations := citeparse.Parse(text)
	if len(citations) != 1 {
		t.Fatalf("setup: %d citations", len(citations))
	}
	got := contextTitle("Cru", text, citations[0].Start)
	if got != "Témoins" {
		t.Errorf("contextTitle = %q", got)
	}
}

func TestCheckPageRange(t *testing.T) {
	for _, tc := range []struct {
		cited, work, typ string
		want             pageCheck
	}{
		{"247", "240-260", "journal-article", pageInRange},
		{"240", "240-260", "journal-article", pageInRange},
		{"260", "240-260", "journal-article", pageInRange},
		{"239", "240-260", "journal-article", pageOutOfRange},
		{"250-270", "240-260", "journal-article", pageOutOfRange},
		{"250-255", "240-260", "journal-article", pageInRange},
		{"247", "", "journal-article", pageUnknown},
		{"247", "240-260", "book", pageUnknown},
		{"247", "240-260", "book-chapter", pageUnknown},
		{"247", "xii-260", "journal-article", pageUnknown},
	} {
		got, _ := checkPageRange(tc.cited, tc.work, tc.typ)
		if got != tc.want {
			t.Errorf("checkPageRange(%q, %q, %q) = %v, want %v", tc.cited, tc.work, tc.typ, got, tc.want)
		}
	}
}

package biblio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestTitleMatches(t *testing.T) {
	for _, tc := range []struct {
		query     string
		candidate string
		want      bool
	}{
		{"Témoins", "Témoins", true},
		{"témoins.", "Témoins", true},
		{"Testimony", "Testimony: The Craft of Paul Celan", true},
		{"The Great War and Modern Memory", "Modern Memory", true},
		{"Completely Different", "Unrelated Title", false},
		{"", "Anything", false},
	} {
		if got := TitleMatches(tc.query, []string{tc.candidate}); got != tc.want {
			t.Errorf("TitleMatches(%q, %q) = %v", tc.query, tc.candidate, got)
		}
	}
}

func TestAuthorMatches(t *testing.T) {
	for _, tc := range []struct {
		query   string
		authors []string
		want    bool
	}{
		{"Felstiner", []string{"John Felstiner"}, true},
		{"felstiner", []string{"John Felstiner"}, true},
		{"Cru", []string{"Jean Norton Cru"}, true},
		{"Smith", []string{"John Felstiner"}, false},
		{"", []string{"Anyone"}, false},
	} {
		if got := AuthorMatches(tc.query, tc.authors); got != tc.want {
			t.Errorf("AuthorMatches(%q, %v) = %v", tc.query, tc.authors, got)
		}
	}
}

func TestCrossRefSearchWorks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query.bibliographic"); got != "Felstiner Testimony" {
			t.Errorf("query = %q", got)
		}
		if got := r.URL.Query().Get("mailto"); got != "a@b.edu" {
			t.Errorf("mailto = %q", got)
		}
		w.Write([]byte(`{"message":{"items":[{
			"title":["Testimony: The Craft of Paul Celan"],
			"author":[{"given":"John","family":"Felstiner"}],
			"published-print":{"date-parts":[[1982]]},
			"container-title":["Comparative Literature"],
			"volume":"34","issue":"2","page":"240-260",
			"DOI":"10.1234/test","type":"journal-article"
		}]}}`))
	}))
	defer srv.Close()

	orig := crossRefBaseURL
	crossRefBaseURL = srv.URL
	defer func() { crossRefBaseURL = orig }()

	c := NewCrossRefClient("a@b.edu", srv.Client())
	works, err := c.SearchWorks(context.Background(), "Felstiner Testimony")
	if err != nil {
		t.Fatal(err)
	}
	if len(works) != 1 {
		t.Fatalf("got %d works", len(works))
	}
	w := works[0]
	if w.Title != "Testimony: The Craft of Paul Celan" || w.Year != 1982 {
		t.Errorf("title=%q year=%d", w.Title, w.Year)
	}
	if len(w.Authors) != 1 || w.Authors[0] != "John Felstiner" {
		t.Errorf("authors = %v", w.Authors)
	}
	if w.Pages != "240-260" || w.Journal != "Comparative Literature" || w.Source != "crossref" {
		t.Errorf("pages=%q journal=%q source=%q", w.Pages, w.Journal, w.Source)
	}
}

func TestCrossRefRetriesOn500(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"message":{"items":[]}}`))
	}))
	defer srv.Close()

	orig := crossRefBaseURL
	crossRefBaseURL = srv.URL
	defer func() { crossRefBaseURL = orig }()

	c := NewCrossRefClient("", srv.Client())
	if _, err := c.SearchWorks(context.Background(), "anything"); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("hits = %d", got)
	}
}

func TestCrossRefFailsFastOn404(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	orig := crossRefBaseURL
	crossRefBaseURL = srv.URL
	defer func() { crossRefBaseURL = orig }()

	c := NewCrossRefClient("", srv.Client())
	if _, err := c.SearchWorks(context.Background(), "anything"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("hits = %d, want 1 (no retry on 404)", got)
	}
}

func TestOpenAlexSearchWorks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "Cru Témoins" {
			t.Errorf("search = %q", got)
		}
		w.Write([]byte(`{"results":[{
			"title":"Témoins",
			"publication_year":1929,
			"doi":"https://doi.org/10.5678/temoins",
			"type":"book",
			"authorships":[{"author":{"display_name":"Jean Norton Cru"}}]
		}]}`))
	}))
	defer srv.Close()

	orig := openAlexBaseURL
	openAlexBaseURL = srv.URL
	defer func() { openAlexBaseURL = orig }()

	c := NewOpenAlexClient("a@b.edu", srv.Client())
	works, err := c.SearchWorks(context.Background(), "Cru Témoins")
	if err != nil {
		t.Fatal(err)
	}
	if len(works) != 1 {
		t.Fatalf("got %d works", len(works))
	}
	w := works[0]
	if w.Title != "Témoins" || w.Year != 1929 || w.Type != "book" {
		t.Errorf("work = %+v", w)
	}
	if w.DOI != "10.5678/temoins" {
		t.Errorf("doi = %q (prefix not stripped)", w.DOI)
	}
	if w.Pages != "" {
		t.Errorf("openalex pages should be empty, got %q", w.Pages)
	}
}

func TestOpenAlexRecentWorks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		if filter != "primary_location.source.issn:0010-4124,from_publication_date:2026-01-01" {
			t.Errorf("filter = %q", filter)
		}
		if got := r.URL.Query().Get("sort"); got != "publication_date:desc" {
			t.Errorf("sort = %q", got)
		}
		w.Write([]byte(`{"results":[{"title":"New Article","publication_year":2026}]}`))
	}))
	defer srv.Close()

	orig := openAlexBaseURL
	openAlexBaseURL = srv.URL
	defer func() { openAlexBaseURL = orig }()

	c := NewOpenAlexClient("", srv.Client())
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	works, err := c.RecentWorks(context.Background(), "0010-4124", since, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(works) != 1 || works[0].Title != "New Article" {
		t.Errorf("works = %+v", works)
	}
}

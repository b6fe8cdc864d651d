package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/store"
)

type fakeLister struct {
	byISSN map[string][]biblio.Work
	err    error
}

func (f *fakeLister) RecentWorks(ctx context.Context, issn string, since time.Time, limit int) ([]biblio.Work, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byISSN[issn], nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPollStoresNewPapers(t *testing.T) {
	db := newTestStore(t)
	lister := &fakeLister{byISSN: map[string][]biblio.Work{
		"0010-4124": {
			{Title: "New Reading", Authors: []string{"A. Scholar"}, Year: 2026, DOI: "10.1/new"},
		},
	}}
	m := New(lister, db, []string{"0010-4124"}, 0)

	added, err := m.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d", added)
	}

	// Second poll sees the same work; nothing new.
	added, err = m.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("dedup failed, added = %d", added)
	}
}

func TestPollAllJournalsFailing(t *testing.T) {
	db := newTestStore(t)
	m := New(&fakeLister{err: errors.New("down")}, db, []string{"1111-1111", "2222-2222"}, 0)

	if _, err := m.Poll(context.Background()); err == nil {
		t.Fatal("expected error when every journal fails")
	}
}

func TestPollNoDOIAlwaysStored(t *testing.T) {
	db := newTestStore(t)
	lister := &fakeLister{byISSN: map[string][]biblio.Work{
		"0010-4124": {{Title: "Untracked Item"}},
	}}
	m := New(lister, db, []string{"0010-4124"}, 0)

	added, err := m.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d", added)
	}
}

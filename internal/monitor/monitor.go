// Package monitor polls journals for newly published work and stores
// anything not yet seen.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/store"
)

// RecentLister is the slice of the OpenAlex client the monitor needs.
type RecentLister interface {
	RecentWorks(ctx context.Context, issn string, since time.Time, limit int) ([]biblio.Work, error)
}

type Monitor struct {
	lister RecentLister
	db     *store.Store
	issns  []string
	window time.Duration
}

// New builds a monitor over the given journal ISSNs. window bounds how far
// back each poll looks; zero means 30 days.
func New(lister RecentLister, db *store.Store, issns []string, window time.Duration) *Monitor {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &Monitor{lister: lister, db: db, issns: issns, window: window}
}

// Poll fetches recent works for every monitored journal and stores the
// ones not seen before. It returns the number of new papers. A journal
// whose fetch fails is logged and skipped; the poll itself only fails when
// no journal could be reached.
func (m *Monitor) Poll(ctx context.Context) (int, error) {
	since := time.Now().Add(-m.window)
	stored := 0
	failed := 0
	for _, issn := range m.issns {
		works, err := m.lister.RecentWorks(ctx, issn, since, 50)
		if err != nil {
			log.Printf("monitor: journal %s fetch failed: %v", issn, err)
			failed++
			continue
		}
		for _, w := range works {
			added, err := m.storeIfNew(w, issn)
			if err != nil {
				return stored, err
			}
			if added {
				stored++
			}
		}
	}
	if failed > 0 && failed == len(m.issns) {
		return stored, fmt.Errorf("all %d monitored journals failed", failed)
	}
	return stored, nil
}

func (m *Monitor) storeIfNew(w biblio.Work, issn string) (bool, error) {
	if w.DOI != "" {
		_, err := m.db.FindPaperByDOI(w.DOI)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
	}
	p := &store.Paper{
		Title:   w.Title,
		Authors: w.Authors,
		Journal: issn,
		Year:    w.Year,
		DOI:     w.DOI,
	}
	if err := m.db.SavePaper(p); err != nil {
		return false, err
	}
	return true, nil
}

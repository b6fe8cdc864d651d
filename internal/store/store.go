// Package store persists pipeline state — monitored papers, discovered
// topics, plans, manuscript versions, reflexion notes, and token usage —
// in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS papers (
	paper_id   TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	authors    TEXT NOT NULL DEFAULT '[]',
	journal    TEXT NOT NULL DEFAULT '',
	year       INTEGER NOT NULL DEFAULT 0,
	doi        TEXT NOT NULL DEFAULT '',
	abstract   TEXT NOT NULL DEFAULT '',
	fetched_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
	topic_id    TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	rationale   TEXT NOT NULL DEFAULT '',
	score       REAL NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'candidate',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
	plan_id    TEXT PRIMARY KEY,
	topic_id   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	sections   TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS manuscripts (
	manuscript_id TEXT PRIMARY KEY,
	topic_id      TEXT NOT NULL,
	revision      INTEGER NOT NULL DEFAULT 0,
	title         TEXT NOT NULL DEFAULT '',
	abstract      TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reflexion_notes (
	note_id    TEXT PRIMARY KEY,
	topic_id   TEXT NOT NULL DEFAULT '',
	lesson     TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_log (
	entry_id      TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL DEFAULT '',
	calls         INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	recorded_at   TEXT NOT NULL
);
`

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Paper is one monitored journal article.
type Paper struct {
	PaperID   string    `db:"paper_id" json:"paper_id"`
	Title     string    `db:"title" json:"title"`
	Authors   []string  `db:"-" json:"authors"`
	AuthorsJS string    `db:"authors" json:"-"`
	Journal   string    `db:"journal" json:"journal"`
	Year      int       `db:"year" json:"year"`
	DOI       string    `db:"doi" json:"doi"`
	Abstract  string    `db:"abstract" json:"abstract"`
	FetchedAt time.Time `db:"-" json:"fetched_at"`
	FetchedTS string    `db:"fetched_at" json:"-"`
}

// SavePaper inserts a paper, generating its id. Duplicate DOIs are
// rejected by the caller via FindPaperByDOI, not here.
func (s *Store) SavePaper(p *Paper) error {
	if p.PaperID == "" {
		p.PaperID = uuid.NewString()
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now().UTC()
	}
	authors, err := json.Marshal(p.Authors)
	if err != nil {
		return fmt.Errorf("marshal authors: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO papers (paper_id, title, authors, journal, year, doi, abstract, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PaperID, p.Title, string(authors), p.Journal, p.Year, p.DOI, p.Abstract,
		p.FetchedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert paper: %w", err)
	}
	return nil
}

func (s *Store) GetPaper(paperID string) (*Paper, error) {
	var p Paper
	err := s.db.Get(&p, `SELECT * FROM papers WHERE paper_id = ?`, paperID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return hydratePaper(&p)
}

func (s *Store) FindPaperByDOI(doi string) (*Paper, error) {
	var p Paper
	err := s.db.Get(&p, `SELECT * FROM papers WHERE doi = ?`, doi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find paper: %w", err)
	}
	return hydratePaper(&p)
}

// SearchPapers does a case-insensitive substring match on titles.
func (s *Store) SearchPapers(titleSubstring string) ([]Paper, error) {
	var rows []Paper
	pattern := "%" + strings.ToLower(titleSubstring) + "%"
	err := s.db.Select(&rows,
		`SELECT * FROM papers WHERE lower(title) LIKE ? ORDER BY fetched_at DESC`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search papers: %w", err)
	}
	out := make([]Paper, 0, len(rows))
	for i := range rows {
		p, err := hydratePaper(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) ListPapers(limit int) ([]Paper, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Paper
	err := s.db.Select(&rows, `SELECT * FROM papers ORDER BY fetched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	out := make([]Paper, 0, len(rows))
	for i := range rows {
		p, err := hydratePaper(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func hydratePaper(p *Paper) (*Paper, error) {
	if p.AuthorsJS != "" {
		if err := json.Unmarshal([]byte(p.AuthorsJS), &p.Authors); err != nil {
			return nil, fmt.Errorf("unmarshal authors: %w", err)
		}
	}
	if p.FetchedTS != "" {
		t, err := time.Parse(time.RFC3339, p.FetchedTS)
		if err != nil {
			return nil, fmt.Errorf("parse fetched_at: %w", err)
		}
		p.FetchedAt = t
	}
	return p, nil
}

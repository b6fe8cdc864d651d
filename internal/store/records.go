package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic is a candidate research direction produced by gap analysis.
type Topic struct {
	TopicID   string  `db:"topic_id" json:"topic_id"`
	Title     string  `db:"title" json:"title"`
	Rationale string  `db:"rationale" json:"rationale"`
	Score     float64 `db:"score" json:"score"`
	Status    string  `db:"status" json:"status"`
	CreatedAt string  `db:"created_at" json:"created_at"`
}

func (s *Store) SaveTopic(t *Topic) error {
	if t.TopicID == "" {
		t.TopicID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = "candidate"
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO topics (topic_id, title, rationale, score, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.TopicID, t.Title, t.Rationale, t.Score, t.Status, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

func (s *Store) GetTopic(topicID string) (*Topic, error) {
	var t Topic
	err := s.db.Get(&t, `SELECT * FROM topics WHERE topic_id = ?`, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return &t, nil
}

// BestCandidateTopic returns the highest-scoring topic still in candidate
// status, or ErrNotFound.
func (s *Store) BestCandidateTopic() (*Topic, error) {
	var t Topic
	err := s.db.Get(&t,
		`SELECT * FROM topics WHERE status = 'candidate' ORDER BY score DESC, created_at ASC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("best topic: %w", err)
	}
	return &t, nil
}

func (s *Store) SetTopicStatus(topicID, status string) error {
	res, err := s.db.Exec(`UPDATE topics SET status = ? WHERE topic_id = ?`, status, topicID)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Plan is a stored section outline for a topic.
type Plan struct {
	PlanID     string `db:"plan_id" json:"plan_id"`
	TopicID    string `db:"topic_id" json:"topic_id"`
	Title      string `db:"title" json:"title"`
	SectionsJS string `db:"sections" json:"-"`
	CreatedAt  string `db:"created_at" json:"created_at"`
}

// PlanSection mirrors the writer's section spec at the storage boundary.
type PlanSection struct {
	Name    string `json:"name"`
	Outline string `json:"outline"`
}

func (p *Plan) Sections() ([]PlanSection, error) {
	var sections []PlanSection
	if p.SectionsJS == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(p.SectionsJS), &sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	return sections, nil
}

func (s *Store) SavePlan(p *Plan, sections []PlanSection) error {
	if p.PlanID == "" {
		p.PlanID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	js, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	p.SectionsJS = string(js)
	_, err = s.db.Exec(
		`INSERT INTO plans (plan_id, topic_id, title, sections, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.PlanID, p.TopicID, p.Title, p.SectionsJS, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlanForTopic(topicID string) (*Plan, error) {
	var p Plan
	err := s.db.Get(&p,
		`SELECT * FROM plans WHERE topic_id = ? ORDER BY created_at DESC LIMIT 1`, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &p, nil
}

// Manuscript is one stored revision of the article text.
type Manuscript struct {
	ManuscriptID string `db:"manuscript_id" json:"manuscript_id"`
	TopicID      string `db:"topic_id" json:"topic_id"`
	Revision     int    `db:"revision" json:"revision"`
	Title        string `db:"title" json:"title"`
	Abstract     string `db:"abstract" json:"abstract"`
	Body         string `db:"body" json:"body"`
	Status       string `db:"status" json:"status"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}

func (s *Store) SaveManuscript(m *Manuscript) error {
	if m.ManuscriptID == "" {
		m.ManuscriptID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = "draft"
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO manuscripts (manuscript_id, topic_id, revision, title, abstract, body, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ManuscriptID, m.TopicID, m.Revision, m.Title, m.Abstract, m.Body, m.Status, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert manuscript: %w", err)
	}
	return nil
}

func (s *Store) LatestManuscript(topicID string) (*Manuscript, error) {
	var m Manuscript
	err := s.db.Get(&m,
		`SELECT * FROM manuscripts WHERE topic_id = ? ORDER BY revision DESC, created_at DESC LIMIT 1`,
		topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest manuscript: %w", err)
	}
	return &m, nil
}

// ReflexionNote is a lesson distilled from a failed or heavily revised
// draft, replayed into later writing prompts.
type ReflexionNote struct {
	NoteID    string `db:"note_id" json:"note_id"`
	TopicID   string `db:"topic_id" json:"topic_id"`
	Lesson    string `db:"lesson" json:"lesson"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

func (s *Store) SaveReflexionNote(n *ReflexionNote) error {
	if n.NoteID == "" {
		n.NoteID = uuid.NewString()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO reflexion_notes (note_id, topic_id, lesson, created_at)
		 VALUES (?, ?, ?, ?)`,
		n.NoteID, n.TopicID, n.Lesson, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reflexion note: %w", err)
	}
	return nil
}

func (s *Store) ReflexionNotes(topicID string, limit int) ([]ReflexionNote, error) {
	if limit <= 0 {
		limit = 20
	}
	var notes []ReflexionNote
	err := s.db.Select(&notes,
		`SELECT * FROM reflexion_notes WHERE topic_id = ? OR topic_id = '' ORDER BY created_at DESC LIMIT ?`,
		topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reflexion notes: %w", err)
	}
	return notes, nil
}

// RecordUsage appends a token-usage snapshot for a run.
func (s *Store) RecordUsage(runID string, calls, inputTokens, outputTokens int64) error {
	_, err := s.db.Exec(
		`INSERT INTO usage_log (entry_id, run_id, calls, input_tokens, output_tokens, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, calls, inputTokens, outputTokens,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

package workflow

import (
	"time"

	"github.com/yaowubarbara/airesearcher-sub001/internal/citeverify"
	"github.com/yaowubarbara/airesearcher-sub001/internal/review"
)

// ErrorRecord is one append-only entry in the run's error log.
type ErrorRecord struct {
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is the full run state. Steps never mutate it; they return an
// Update that Apply merges into a copy.
type State struct {
	RunID          string            `json:"run_id"`
	Phase          Phase             `json:"phase"`
	TopicID        string            `json:"topic_id,omitempty"`
	TopicTitle     string            `json:"topic_title,omitempty"`
	PlanID         string            `json:"plan_id,omitempty"`
	Title          string            `json:"title,omitempty"`
	Abstract       string            `json:"abstract,omitempty"`
	Manuscript     string            `json:"manuscript,omitempty"`
	References     string            `json:"references,omitempty"`
	RefRate        float64           `json:"ref_verification_rate,omitempty"`
	CitationReport citeverify.Report `json:"citation_report,omitempty"`
	LastReview     *review.Result    `json:"last_review,omitempty"`
	RevisionCount  int               `json:"revision_count"`
	MaxRevisions   int               `json:"max_revisions"`
	HumanApproved  bool              `json:"human_approved"`
	Submitted      bool              `json:"submitted"`
	Errors         []ErrorRecord     `json:"errors,omitempty"`
}

// Update is a partial state delta. Nil pointers leave the field alone;
// Errors appends.
type Update struct {
	Phase          *Phase
	TopicID        *string
	TopicTitle     *string
	PlanID         *string
	Title          *string
	Abstract       *string
	Manuscript     *string
	References     *string
	RefRate        *float64
	CitationReport *citeverify.Report
	LastReview     *review.Result
	RevisionCount  *int
	Submitted      *bool
	Errors         []ErrorRecord
}

// Apply merges u into a copy of s.
func Apply(s State, u Update) State {
	if u.Phase != nil {
		s.Phase = *u.Phase
	}
	if u.TopicID != nil {
		s.TopicID = *u.TopicID
	}
	if u.TopicTitle != nil {
		s.TopicTitle = *u.TopicTitle
	}
	if u.PlanID != nil {
		s.PlanID = *u.PlanID
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Abstract != nil {
		s.Abstract = *u.Abstract
	}
	if u.Manuscript != nil {
		s.Manuscript = *u.Manuscript
	}
	if u.References != nil {
		s.References = *u.References
	}
	if u.RefRate != nil {
		s.RefRate = *u.RefRate
	}
	if u.CitationReport != nil {
		s.CitationReport = *u.CitationReport
	}
	if u.LastReview != nil {
		s.LastReview = u.LastReview
	}
	if u.RevisionCount != nil {
		s.RevisionCount = *u.RevisionCount
	}
	if u.Submitted != nil {
		s.Submitted = *u.Submitted
	}
	if len(u.Errors) > 0 {
		errs := make([]ErrorRecord, 0, len(s.Errors)+len(u.Errors))
		errs = append(errs, s.Errors...)
		errs = append(errs, u.Errors...)
		s.Errors = errs
	}
	return s
}

func phasePtr(p Phase) *Phase     { return &p }
func strPtr(s string) *string     { return &s }
func intPtr(n int) *int           { return &n }
func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

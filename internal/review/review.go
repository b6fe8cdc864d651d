// Package review simulates peer review: three reviewer personas score the
// manuscript independently, then a meta-reviewer synthesizes a decision.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
)

// Recommendation is a closed decision enum.
type Recommendation string

const (
	RecommendAccept        Recommendation = "accept"
	RecommendMinorRevision Recommendation = "minor_revision"
	RecommendMajorRevision Recommendation = "major_revision"
	RecommendReject        Recommendation = "reject"
)

func validRecommendation(r Recommendation) bool {
	switch r {
	case RecommendAccept, RecommendMinorRevision, RecommendMajorRevision, RecommendReject:
		return true
	}
	return false
}

// persona describes one simulated reviewer.
type persona struct {
	ID     string
	System string
}

var personas = []persona{
	{
		ID:     "reviewer_a",
		System: "You are Reviewer A: a rigorous, skeptical senior scholar. You hold manuscripts to the highest evidentiary standard and flag every unsupported claim, weak close reading, and citation problem.",
	},
	{
		ID:     "reviewer_b",
		System: "You are Reviewer B: a constructive reviewer focused on the argument's potential. You identify the strongest contribution and the concrete changes that would realize it.",
	},
	{
		ID:     "reviewer_c",
		System: "You are Reviewer C: an editor assessing journal fit. You judge whether the scope, method, and style suit a peer-reviewed comparative literature journal.",
	},
}

const reviewSchemaPrompt = `Required JSON schema:
{
  "recommendation": "accept | minor_revision | major_revision | reject",
  "score": "integer 1-5",
  "strengths": ["string"],
  "weaknesses": ["string"],
  "required_changes": ["string"]
}`

const metaSchemaPrompt = `Required JSON schema:
{
  "recommendation": "accept | minor_revision | major_revision | reject",
  "summary": "string",
  "required_changes": ["string"]
}`

// PersonaReview is one reviewer's verdict.
type PersonaReview struct {
	ReviewerID      string         `json:"reviewer_id"`
	Recommendation  Recommendation `json:"recommendation"`
	Score           int            `json:"score"`
	Strengths       []string       `json:"strengths"`
	Weaknesses      []string       `json:"weaknesses"`
	RequiredChanges []string       `json:"required_changes"`
}

// Result is the synthesized review round outcome. Passed means the
// manuscript can proceed to human review without another revision.
type Result struct {
	Reviews         []PersonaReview `json:"reviews"`
	Recommendation  Recommendation  `json:"recommendation"`
	Summary         string          `json:"summary"`
	RequiredChanges []string        `json:"required_changes"`
	Passed          bool            `json:"passed"`
}

// Reviewer runs the debate over an LLM executor.
type Reviewer struct {
	exec *llm.Executor
}

func NewReviewer(exec *llm.Executor) *Reviewer {
	return &Reviewer{exec: exec}
}

// Review runs the three personas in sequence, then the meta-reviewer over
// their verdicts. A persona whose output cannot be parsed degrades to a
// neutral score-3 major_revision verdict; transport errors propagate.
func (r *Reviewer) Review(ctx context.Context, manuscript string) (Result, error) {
	var reviews []PersonaReview
	for _, p := range personas {
		pr, err := r.reviewAs(ctx, p, manuscript)
		if err != nil {
			return Result{}, err
		}
		reviews = append(reviews, pr)
	}

	meta, err := r.synthesize(ctx, reviews, manuscript)
	if err != nil {
		return Result{}, err
	}
	meta.Reviews = reviews
	meta.Passed = meta.Recommendation == RecommendAccept || meta.Recommendation == RecommendMinorRevision
	return meta, nil
}

func (r *Reviewer) reviewAs(ctx context.Context, p persona, manuscript string) (PersonaReview, error) {
	out := PersonaReview{}
	prompt := fmt.Sprintf(
		"Review the following manuscript for publication.\n\n%s\n\nManuscript:\n%s",
		reviewSchemaPrompt, manuscript,
	)
	_, err := r.exec.RunJSON(ctx, p.ID, llm.Request{
		System:      p.System,
		Prompt:      prompt,
		MaxTokens:   2048,
		Temperature: 0.3,
	}, &out, func() error { return validatePersonaReview(out) })
	if err != nil {
		if errors.Is(err, llm.ErrBadContent) {
			log.Printf("review: %s output unparseable, using neutral verdict", p.ID)
			return neutralReview(p.ID), nil
		}
		return PersonaReview{}, err
	}
	out.ReviewerID = p.ID
	return out, nil
}

func (r *Reviewer) synthesize(ctx context.Context, reviews []PersonaReview, manuscript string) (Result, error) {
	var b strings.Builder
	b.WriteString("You are the handling editor. Synthesize the three reviews below into one decision. Where reviewers disagree, weigh the severity of the objections rather than counting votes.\n\n")
	b.WriteString(metaSchemaPrompt)
	for _, pr := range reviews {
		fmt.Fprintf(&b, "\n\n%s recommends %s (score %d).\nWeaknesses: %s\nRequired changes: %s",
			pr.ReviewerID, pr.Recommendation, pr.Score,
			strings.Join(pr.Weaknesses, "; "), strings.Join(pr.RequiredChanges, "; "))
	}
	fmt.Fprintf(&b, "\n\nManuscript opening for context:\n%s", head(manuscript, 2000))

	out := Result{}
	_, err := r.exec.RunJSON(ctx, "meta_review", llm.Request{
		System:      "You are the handling editor of a comparative literature journal.",
		Prompt:      b.String(),
		MaxTokens:   2048,
		Temperature: 0,
	}, &out, func() error {
		if !validRecommendation(out.Recommendation) {
			return fmt.Errorf("invalid recommendation: %q", out.Recommendation)
		}
		if strings.TrimSpace(out.Summary) == "" {
			return errors.New("summary empty")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, llm.ErrBadContent) {
			log.Printf("review: meta-review output unparseable, defaulting to major_revision")
			return Result{
				Recommendation:  RecommendMajorRevision,
				Summary:         "Meta-review could not be parsed; defaulting to revision.",
				RequiredChanges: collectChanges(reviews),
			}, nil
		}
		return Result{}, err
	}
	return out, nil
}

func validatePersonaReview(pr PersonaReview) error {
	if !validRecommendation(pr.Recommendation) {
		return fmt.Errorf("invalid recommendation: %q", pr.Recommendation)
	}
	if pr.Score < 1 || pr.Score > 5 {
		return fmt.Errorf("score out of range: %d", pr.Score)
	}
	return nil
}

func neutralReview(id string) PersonaReview {
	return PersonaReview{
		ReviewerID:     id,
		Recommendation: RecommendMajorRevision,
		Score:          3,
		Weaknesses:     []string{"Review output could not be parsed."},
	}
}

func collectChanges(reviews []PersonaReview) []string {
	var changes []string
	for _, pr := range reviews {
		changes = append(changes, pr.RequiredChanges...)
	}
	return changes
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

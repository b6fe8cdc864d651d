// Package plan generates and stores a section-by-section outline for a
// chosen topic.
package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
	"github.com/yaowubarbara/airesearcher-sub001/internal/store"
)

const planSystemPrompt = "You are a comparative literature scholar structuring a journal article before drafting it."

const planSchemaPrompt = `Required JSON schema:
{
  "title": "string (working article title)",
  "sections": [
    {
      "name": "string (section heading)",
      "outline": "string (what the section argues and which evidence it uses)"
    }
  ]
}`

type outline struct {
	Title    string           `json:"title"`
	Sections []outlineSection `json:"sections"`
}

type outlineSection struct {
	Name    string `json:"name"`
	Outline string `json:"outline"`
}

type Planner struct {
	exec *llm.Executor
	db   *store.Store
}

func NewPlanner(exec *llm.Executor, db *store.Store) *Planner {
	return &Planner{exec: exec, db: db}
}

// Plan produces a 4-8 section outline for the topic and persists it.
func (p *Planner) Plan(ctx context.Context, topic *store.Topic) (*store.Plan, error) {
	prompt := fmt.Sprintf(
		"Plan a journal article.\n\nTopic: %s\n\nRationale: %s\n\nProduce a working title and 4-8 sections, each with a one-paragraph outline of its argument.\n\n%s",
		topic.Title, topic.Rationale, planSchemaPrompt,
	)

	out := outline{}
	_, err := p.exec.RunJSON(ctx, "plan_outline", llm.Request{
		System:      planSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   4096,
		Temperature: 0.4,
	}, &out, func() error { return validateOutline(out) })
	if err != nil {
		return nil, err
	}

	sections := make([]store.PlanSection, 0, len(out.Sections))
	for _, s := range out.Sections {
		sections = append(sections, store.PlanSection{Name: s.Name, Outline: s.Outline})
	}
	stored := &store.Plan{TopicID: topic.TopicID, Title: out.Title}
	if err := p.db.SavePlan(stored, sections); err != nil {
		return nil, err
	}
	return stored, nil
}

func validateOutline(out outline) error {
	if strings.TrimSpace(out.Title) == "" {
		return fmt.Errorf("title empty")
	}
	if len(out.Sections) < 4 || len(out.Sections) > 8 {
		return fmt.Errorf("section count %d outside 4-8", len(out.Sections))
	}
	for _, s := range out.Sections {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Outline) == "" {
			return fmt.Errorf("section name or outline empty")
		}
	}
	return nil
}

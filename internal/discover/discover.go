// Package discover turns the corpus of monitored papers into scored
// candidate research topics via LLM gap analysis.
package discover

import (
	"context"
	"fmt"
	"strings"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
	"github.com/yaowubarbara/airesearcher-sub001/internal/store"
)

const discoverSystemPrompt = "You are a comparative literature scholar scanning recent publications for underexplored research directions."

const gapSchemaPrompt = `Required JSON schema:
{
  "topics": [
    {
      "title": "string (a publishable article topic)",
      "rationale": "string (the gap in the literature it addresses)",
      "score": "float 0.0-1.0 (novelty and feasibility combined)"
    }
  ]
}`

type candidateTopics struct {
	Topics []candidateTopic `json:"topics"`
}

type candidateTopic struct {
	Title     string  `json:"title"`
	Rationale string  `json:"rationale"`
	Score     float64 `json:"score"`
}

type Discoverer struct {
	exec *llm.Executor
	db   *store.Store
}

func NewDiscoverer(exec *llm.Executor, db *store.Store) *Discoverer {
	return &Discoverer{exec: exec, db: db}
}

// Discover analyzes up to 100 recent papers for gaps, stores the resulting
// candidate topics, and returns them ordered as the model proposed them.
func (d *Discoverer) Discover(ctx context.Context) ([]store.Topic, error) {
	papers, err := d.db.ListPapers(100)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}
	if len(papers) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Recent publications in the monitored journals:\n\n")
	for _, p := range papers {
		fmt.Fprintf(&b, "- %s (%d): %s\n", strings.Join(p.Authors, ", "), p.Year, p.Title)
	}
	b.WriteString("\nIdentify 3-5 research gaps these papers leave open. Propose each as a concrete article topic.\n\n")
	b.WriteString(gapSchemaPrompt)

	out := candidateTopics{}
	_, err = d.exec.RunJSON(ctx, "gap_analysis", llm.Request{
		System:      discoverSystemPrompt,
		Prompt:      b.String(),
		MaxTokens:   4096,
		Temperature: 0.5,
	}, &out, func() error { return validateTopics(out) })
	if err != nil {
		return nil, err
	}

	topics := make([]store.Topic, 0, len(out.Topics))
	for _, c := range out.Topics {
		t := store.Topic{Title: c.Title, Rationale: c.Rationale, Score: c.Score}
		if err := d.db.SaveTopic(&t); err != nil {
			return topics, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

func validateTopics(out candidateTopics) error {
	if len(out.Topics) == 0 {
		return fmt.Errorf("no topics proposed")
	}
	for _, t := range out.Topics {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("topic title empty")
		}
		if t.Score < 0 || t.Score > 1 {
			return fmt.Errorf("topic score out of range: %v", t.Score)
		}
	}
	return nil
}

// Package writer drafts manuscript sections and improves them through a
// bounded critique-and-revise loop.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
)

const (
	maxRefineRounds    = 3
	minAcceptableScore = 3
)

const writerSystemPrompt = "You are a scholar of comparative literature drafting sections of a journal article. Write dense, citation-rich academic prose in MLA style."

const critiqueSchemaPrompt = `Required JSON schema:
{
  "close_reading_depth": "integer 1-5",
  "argument_logic": "integer 1-5",
  "citation_density": "integer 1-5",
  "citation_sophistication": "integer 1-5",
  "quote_paraphrase_ratio": "integer 1-5",
  "weakest_dimension": "string",
  "revision_instruction": "string (concrete, actionable)"
}`

// Critique scores a draft on five dimensions, each 1-5. A draft is
// acceptable only when every dimension scores at least 3.
type Critique struct {
	CloseReadingDepth      int    `json:"close_reading_depth"`
	ArgumentLogic          int    `json:"argument_logic"`
	CitationDensity        int    `json:"citation_density"`
	CitationSophistication int    `json:"citation_sophistication"`
	QuoteParaphraseRatio   int    `json:"quote_paraphrase_ratio"`
	WeakestDimension       string `json:"weakest_dimension"`
	RevisionInstruction    string `json:"revision_instruction"`
}

func (c Critique) scores() []int {
	return []int{
		c.CloseReadingDepth,
		c.ArgumentLogic,
		c.CitationDensity,
		c.CitationSophistication,
		c.QuoteParaphraseRatio,
	}
}

// Acceptable reports whether every dimension meets the floor.
func (c Critique) Acceptable() bool {
	for _, s := range c.scores() {
		if s < minAcceptableScore {
			return false
		}
	}
	return true
}

func validateCritique(c Critique) error {
	for _, s := range c.scores() {
		if s < 1 || s > 5 {
			return fmt.Errorf("dimension score out of range: %d", s)
		}
	}
	if strings.TrimSpace(c.RevisionInstruction) == "" {
		return errors.New("revision_instruction empty")
	}
	return nil
}

// conservativeCritique is the fallback when critique output cannot be
// parsed: assume the worst so the draft gets another revision round.
func conservativeCritique() Critique {
	return Critique{
		CloseReadingDepth:      1,
		ArgumentLogic:          1,
		CitationDensity:        1,
		CitationSophistication: 1,
		QuoteParaphraseRatio:   1,
		WeakestDimension:       "unknown",
		RevisionInstruction:    "Strengthen the section's close reading, argumentation, and citation practice throughout.",
	}
}

// SectionRequest carries everything needed to draft one section.
type SectionRequest struct {
	Topic       string
	SectionName string
	Outline     string
	References  string
	Memory      string
	PriorText   string
}

// SectionResult is the final draft plus how the loop went.
type SectionResult struct {
	Text          string
	Rounds        int
	FinalScores   Critique
	Accepted      bool
	ParseFailures int
}

// Writer runs the self-refine loop over an LLM executor.
type Writer struct {
	exec *llm.Executor
}

func NewWriter(exec *llm.Executor) *Writer {
	return &Writer{exec: exec}
}

// WriteSection drafts a section and refines it until the critique accepts
// it or the round cap is reached. Transport errors propagate; critique
// parse failures degrade to conservative scores and a generic instruction.
func (w *Writer) WriteSection(ctx context.Context, req SectionRequest) (SectionResult, error) {
	draft, err := w.draft(ctx, req)
	if err != nil {
		return SectionResult{}, err
	}

	result := SectionResult{Text: draft}
	for round := 1; round <= maxRefineRounds; round++ {
		result.Rounds = round
		critique, parseFailed, err := w.critique(ctx, req, draft)
		if err != nil {
			return result, err
		}
		if parseFailed {
			result.ParseFailures++
		}
		result.FinalScores = critique
		if critique.Acceptable() {
			result.Accepted = true
			return result, nil
		}
		log.Printf("writer: section %q round %d below floor (weakest: %s), revising",
			req.SectionName, round, critique.WeakestDimension)

		draft, err = w.revise(ctx, req, draft, critique.RevisionInstruction)
		if err != nil {
			return result, err
		}
		result.Text = draft
	}
	return result, nil
}

func (w *Writer) draft(ctx context.Context, req SectionRequest) (string, error) {
	var b strings.Builder
	w.sectionContext(&b, req)
	b.WriteString("\nWrite the complete section in markdown. Use MLA inline citations like (Author 123) and italicize titles with asterisks.")

	return w.exec.RunText(ctx, "write_section", llm.Request{
		System:      writerSystemPrompt,
		Prompt:      b.String(),
		MaxTokens:   8192,
		Temperature: 0.7,
	})
}

func (w *Writer) revise(ctx context.Context, req SectionRequest, previous, instruction string) (string, error) {
	var b strings.Builder
	w.sectionContext(&b, req)
	fmt.Fprintf(&b, "\nRevise your previous draft. %s\n\nPrevious draft:\n%s\n", instruction, previous)
	b.WriteString("\nProduce the full revised section in markdown. Use MLA inline citations like (Author 123) and italicize titles with asterisks.")

	return w.exec.RunText(ctx, "revise_section", llm.Request{
		System:      writerSystemPrompt,
		Prompt:      b.String(),
		MaxTokens:   8192,
		Temperature: 0.7,
	})
}

func (w *Writer) sectionContext(b *strings.Builder, req SectionRequest) {
	fmt.Fprintf(b, "Topic: %s\n\nSection to write: %s\n\nOutline:\n%s\n", req.Topic, req.SectionName, req.Outline)
	if req.References != "" {
		fmt.Fprintf(b, "\nVerified references (cite from these only):\n%s\n", req.References)
	}
	if req.Memory != "" {
		fmt.Fprintf(b, "\nLessons from earlier rejected drafts:\n%s\n", req.Memory)
	}
	if req.PriorText != "" {
		fmt.Fprintf(b, "\nSections written so far:\n%s\n", req.PriorText)
	}
}

// critique scores the draft. The second return reports a parse-failure
// fallback to conservative scores.
func (w *Writer) critique(ctx context.Context, req SectionRequest, draft string) (Critique, bool, error) {
	out := Critique{}
	prompt := fmt.Sprintf(
		"Critique the following draft section of an academic article on %q.\nScore each dimension 1 (poor) to 5 (excellent) and give one concrete revision instruction targeting the weakest dimension.\n\n%s\n\nDraft:\n%s",
		req.Topic, critiqueSchemaPrompt, draft,
	)
	_, err := w.exec.RunJSON(ctx, "critique_section", llm.Request{
		System:      writerSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   2048,
		Temperature: 0,
	}, &out, func() error { return validateCritique(out) })
	if err != nil {
		if errors.Is(err, llm.ErrBadContent) {
			return conservativeCritique(), true, nil
		}
		return Critique{}, false, err
	}
	return out, false, nil
}

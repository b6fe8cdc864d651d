package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
)

// SectionSpec is one planned section: its heading and what it must cover.
type SectionSpec struct {
	Name    string `json:"name"`
	Outline string `json:"outline"`
}

type ManuscriptRequest struct {
	Topic      string
	Title      string
	Sections   []SectionSpec
	References string
	Memory     string
}

type ManuscriptResult struct {
	Title    string
	Abstract string
	Body     string
	Sections []SectionResult
}

// WriteManuscript drafts each planned section in order, feeding earlier
// sections into later prompts for continuity, then writes the abstract
// from the finished body.
func (w *Writer) WriteManuscript(ctx context.Context, req ManuscriptRequest) (ManuscriptResult, error) {
	result := ManuscriptResult{Title: req.Title}
	var body strings.Builder

	for _, spec := range req.Sections {
		sr, err := w.WriteSection(ctx, SectionRequest{
			Topic:       req.Topic,
			SectionName: spec.Name,
			Outline:     spec.Outline,
			References:  req.References,
			Memory:      req.Memory,
			PriorText:   body.String(),
		})
		if err != nil {
			return result, fmt.Errorf("section %q: %w", spec.Name, err)
		}
		result.Sections = append(result.Sections, sr)
		fmt.Fprintf(&body, "## %s\n\n%s\n\n", spec.Name, sr.Text)
	}
	result.Body = strings.TrimSpace(body.String())

	abstract, err := w.exec.RunText(ctx, "write_abstract", sectionlessRequest(req.Topic, result.Body))
	if err != nil {
		return result, fmt.Errorf("abstract: %w", err)
	}
	result.Abstract = abstract
	return result, nil
}

func sectionlessRequest(topic, body string) llm.Request {
	return llm.Request{
		System:      writerSystemPrompt,
		Prompt:      fmt.Sprintf("Write a 150-250 word abstract for the following article on %q. Plain prose, no citations, no heading.\n\n%s", topic, body),
		MaxTokens:   1024,
		Temperature: 0.5,
	}
}

// Package submission packages a finished manuscript for a journal:
// markdown to styled HTML to PDF, plus an LLM-drafted cover letter.
package submission

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
)

// Packager writes the submission bundle to outDir.
type Packager struct {
	exec     *llm.Executor
	renderer *ChromiumPDFRenderer
	outDir   string
}

func NewPackager(exec *llm.Executor, outDir string) *Packager {
	return &Packager{
		exec:     exec,
		renderer: NewChromiumPDFRenderer(),
		outDir:   outDir,
	}
}

// Submit writes manuscript.md, manuscript.pdf and cover_letter.md into the
// output directory. A failed PDF render is logged and skipped; the markdown
// bundle alone is still a valid submission.
func (p *Packager) Submit(ctx context.Context, title, abstract, body string) error {
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	manuscript := assembleMarkdown(title, abstract, body)
	if err := os.WriteFile(filepath.Join(p.outDir, "manuscript.md"), []byte(manuscript), 0o644); err != nil {
		return fmt.Errorf("write manuscript: %w", err)
	}

	letter, err := p.coverLetter(ctx, title, abstract)
	if err != nil {
		return fmt.Errorf("cover letter: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.outDir, "cover_letter.md"), []byte(letter), 0o644); err != nil {
		return fmt.Errorf("write cover letter: %w", err)
	}

	pdf, err := p.renderer.Render(ctx, title, manuscript)
	if err != nil {
		log.Printf("submission: pdf render failed, shipping markdown only: %v", err)
		return nil
	}
	if err := os.WriteFile(filepath.Join(p.outDir, "manuscript.pdf"), pdf, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func assembleMarkdown(title, abstract, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if abstract != "" {
		fmt.Fprintf(&b, "## Abstract\n\n%s\n\n", abstract)
	}
	b.WriteString(body)
	b.WriteString("\n")
	return b.String()
}

func (p *Packager) coverLetter(ctx context.Context, title, abstract string) (string, error) {
	prompt := fmt.Sprintf(
		"Draft a brief cover letter (under 300 words) to the editor of a comparative literature journal submitting the article %q.\nSummarize the contribution from this abstract, state that the manuscript is not under consideration elsewhere, and close formally. Markdown, no placeholders for names.\n\nAbstract:\n%s",
		title, abstract,
	)
	return p.exec.RunText(ctx, "cover_letter", llm.Request{
		System:      "You are a scholar preparing a journal submission.",
		Prompt:      prompt,
		MaxTokens:   1024,
		Temperature: 0.4,
	})
}

func escapeTitle(title string) string {
	return html.EscapeString(strings.TrimSpace(title))
}

package submission

import (
	"strings"
	"testing"
)

func TestAssembleMarkdown(t *testing.T) {
	got := assembleMarkdown("Title", "The abstract.", "## Section\n\nBody.")
	if !strings.HasPrefix(got, "# Title\n") {
		t.Errorf("missing title heading: %q", got)
	}
	if !strings.Contains(got, "## Abstract\n\nThe abstract.") {
		t.Errorf("missing abstract: %q", got)
	}
	if !strings.Contains(got, "## Section") {
		t.Errorf("missing body: %q", got)
	}
}

func TestAssembleMarkdownNoAbstract(t *testing.T) {
	got := assembleMarkdown("Title", "", "Body.")
	if strings.Contains(got, "## Abstract") {
		t.Errorf("empty abstract rendered: %q", got)
	}
}

func TestPrintParamsFollowLayout(t *testing.T) {
	r := NewChromiumPDFRenderer()
	r.layout = pageLayout{width: 8.5, height: 11, marginX: 1, marginY: 0.5}

	p := r.printParams()
	if p.PaperWidth != 8.5 || p.PaperHeight != 11 {
		t.Errorf("paper = %vx%v", p.PaperWidth, p.PaperHeight)
	}
	if p.MarginLeft != 1 || p.MarginRight != 1 || p.MarginTop != 0.5 || p.MarginBottom != 0.5 {
		t.Errorf("margins = %v/%v/%v/%v", p.MarginLeft, p.MarginRight, p.MarginTop, p.MarginBottom)
	}
	if !p.DisplayHeaderFooter || !strings.Contains(p.FooterTemplate, "pageNumber") {
		t.Error("page-number footer missing")
	}
}

func TestBuildHTML(t *testing.T) {
	doc, err := buildHTML("My <Title>", "# Heading\n\nSome *emphasis* and a (Citation 12).\n\n| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, "&lt;Title&gt;") {
		t.Errorf("title not escaped: %q", doc)
	}
	if !strings.Contains(doc, "<h1") || !strings.Contains(doc, "<em>emphasis</em>") {
		t.Error("markdown not converted")
	}
	// GFM extension renders pipe tables.
	if !strings.Contains(doc, "<table>") {
		t.Error("table not rendered")
	}
}

package citeverify

import (
	"context"

	"github.com/yaowubarbara/airesearcher-sub001/internal/citeparse"
)

// Result bundles everything the full pass produces for one manuscript.
type Result struct {
	AnnotatedText string               `json:"annotated_text"`
	Citations     []citeparse.Citation `json:"citations"`
	Report        Report               `json:"report"`
}

// Run performs the full pass: parse the manuscript's inline citations,
// verify them all, and annotate the text with any problems found.
func (e *Engine) Run(ctx context.Context, manuscript string) Result {
	citations := citeparse.Parse(manuscript)
	verifications := e.VerifyAll(ctx, citations, manuscript)
	return Result{
		AnnotatedText: Annotate(manuscript, verifications),
		Citations:     citations,
		Report:        NewReport(verifications),
	}
}

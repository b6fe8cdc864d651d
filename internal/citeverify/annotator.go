package citeverify

import (
	"fmt"
	"sort"
	"strings"
)

const (
	tagWork      = "[VERIFY:work]"
	tagPageRange = "[VERIFY:page-range]"
)

// tagFor returns the inline tag for a verification outcome, or "" when the
// citation should be left untouched. Unverifiable pages are deliberately
// untagged: they are a metadata gap, not an author error.
func tagFor(status Status) string {
	switch status {
	case StatusWorkNotFound:
		return tagWork
	case StatusPageOutOfRange:
		return tagPageRange
	default:
		return ""
	}
}

// Annotate inserts verification tags immediately after each flagged
// citation. Insertions run in descending end-offset order so earlier
// citation offsets stay valid while the text grows.
func Annotate(text string, verifications []Verification) string {
	flagged := make([]Verification, 0, len(verifications))
	for _, v := range verifications {
		if tagFor(v.Status) != "" {
			flagged = append(flagged, v)
		}
	}
	sort.Slice(flagged, func(i, j int) bool {
		return flagged[i].Citation.End > flagged[j].Citation.End
	})

	for _, v := range flagged {
		end := v.Citation.End
		if end < 0 || end > len(text) {
			continue
		}
		text = text[:end] + " " + tagFor(v.Status) + text[end:]
	}
	return text
}

// Report aggregates the outcomes for one manuscript pass.
type Report struct {
	Total            int            `json:"total"`
	Verified         int            `json:"verified"`
	WorkNotFound     int            `json:"work_not_found"`
	PageOutOfRange   int            `json:"page_out_of_range"`
	PageUnverifiable int            `json:"page_unverifiable"`
	Verifications    []Verification `json:"verifications"`
}

func NewReport(verifications []Verification) Report {
	r := Report{Total: len(verifications), Verifications: verifications}
	for _, v := range verifications {
		switch v.Status {
		case StatusVerified:
			r.Verified++
		case StatusWorkNotFound:
			r.WorkNotFound++
		case StatusPageOutOfRange:
			r.PageOutOfRange++
		case StatusPageUnverifiable:
			r.PageUnverifiable++
		}
	}
	return r
}

// Summary renders a one-line human-readable tally.
func (r Report) Summary() string {
	return fmt.Sprintf("%d citations: %d verified, %d not found, %d page out of range, %d page unverifiable",
		r.Total, r.Verified, r.WorkNotFound, r.PageOutOfRange, r.PageUnverifiable)
}

// ToMarkdown renders the full report: the tally, a table of citations that
// need attention, and a table of verified citations.
func (r Report) ToMarkdown() string {
	var b strings.Builder
	b.WriteString("# Citation Verification Report\n\n")
	b.WriteString(r.Summary())
	b.WriteString("\n")

	var issues, clean []Verification
	for _, v := range r.Verifications {
		if v.Status == StatusVerified {
			clean = append(clean, v)
		} else {
			issues = append(issues, v)
		}
	}

	if len(issues) > 0 {
		b.WriteString("\n## Needs Attention\n\n")
		b.WriteString("| Citation | Status | Notes |\n")
		b.WriteString("|---|---|---|\n")
		for _, v := range issues {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				mdEscape(v.Citation.Raw), v.Status, mdEscape(v.Notes))
		}
	}

	if len(clean) > 0 {
		b.WriteString("\n## Verified\n\n")
		b.WriteString("| Citation | Matched Work | Confidence | Source |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, v := range clean {
			title := ""
			if v.MatchedWork != nil {
				title = v.MatchedWork.Title
			}
			fmt.Fprintf(&b, "| %s | %s | %.1f | %s |\n",
				mdEscape(v.Citation.Raw), mdEscape(title), v.Confidence, v.Source)
		}
	}
	return b.String()
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

package review

import (
	"context"
	"strings"
	"testing"

	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
)

type fakeCaller struct {
	personaJSON map[string]string
	metaJSON    string
	calls       []string
}

func (c *fakeCaller) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.calls = append(c.calls, req.System)
	if strings.Contains(req.System, "handling editor") {
		return llm.Response{Text: c.metaJSON}, nil
	}
	for key, js := range c.personaJSON {
		if strings.Contains(req.System, key) {
			return llm.Response{Text: js}, nil
		}
	}
	return llm.Response{Text: `{"recommendation":"minor_revision","score":4,"strengths":[],"weaknesses":[],"required_changes":[]}`}, nil
}

func TestReviewPassesOnMinorRevision(t *testing.T) {
	caller := &fakeCaller{
		metaJSON: `{"recommendation":"minor_revision","summary":"Solid work.","required_changes":["Tighten intro"]}`,
	}
	r := NewReviewer(llm.NewExecutor(caller))

	res, err := r.Review(context.Background(), "manuscript text")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed {
		t.Error("minor_revision must pass")
	}
	if len(res.Reviews) != 3 {
		t.Errorf("persona reviews = %d", len(res.Reviews))
	}
}

func TestReviewFailsOnMajorRevision(t *testing.T) {
	caller := &fakeCaller{
		metaJSON: `{"recommendation":"major_revision","summary":"Needs work.","required_changes":["Rework argument"]}`,
	}
	r := NewReviewer(llm.NewExecutor(caller))

	res, err := r.Review(context.Background(), "manuscript text")
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Error("major_revision must not pass")
	}
	if res.Recommendation != RecommendMajorRevision {
		t.Errorf("recommendation = %s", res.Recommendation)
	}
}

func TestReviewPersonaFallbackNeutral(t *testing.T) {
	caller := &fakeCaller{
		personaJSON: map[string]string{
			"Reviewer A": "this is not json and never will be",
		},
		metaJSON: `{"recommendation":"accept","summary":"Fine.","required_changes":[]}`,
	}
	r := NewReviewer(llm.NewExecutor(caller))

	res, err := r.Review(context.Background(), "manuscript text")
	if err != nil {
		t.Fatal(err)
	}
	var a *PersonaReview
	for i := range res.Reviews {
		if res.Reviews[i].ReviewerID == "reviewer_a" {
			a = &res.Reviews[i]
		}
	}
	if a == nil {
		t.Fatal("reviewer_a missing")
	}
	if a.Score != 3 || a.Recommendation != RecommendMajorRevision {
		t.Errorf("neutral fallback = %+v", a)
	}
}

func TestReviewMetaFallback(t *testing.T) {
	caller := &fakeCaller{metaJSON: "utterly unparseable"}
	r := NewReviewer(llm.NewExecutor(caller))

	res, err := r.Review(context.Background(), "manuscript text")
	if err != nil {
		t.Fatal(err)
	}
	if res.Recommendation != RecommendMajorRevision || res.Passed {
		t.Errorf("meta fallback = %+v", res)
	}
}

func TestValidRecommendation(t *testing.T) {
	for _, r := range []Recommendation{RecommendAccept, RecommendMinorRevision, RecommendMajorRevision, RecommendReject} {
		if !validRecommendation(r) {
			t.Errorf("%s should be valid", r)
		}
	}
	if validRecommendation("strong_accept") {
		t.Error("unknown recommendation accepted")
	}
}

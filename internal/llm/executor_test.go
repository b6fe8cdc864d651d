package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type scriptedCaller struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (c *scriptedCaller) Generate(ctx context.Context, req Request) (Response, error) {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, req.Prompt)
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	text := ""
	if i < len(c.responses) {
		text = c.responses[i]
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text}, nil
}

func TestRunJSONSuccess(t *testing.T) {
	caller := &scriptedCaller{responses: []string{`{"value": 42}`}}
	exec := NewExecutor(caller)

	var out struct {
		Value int `json:"value"`
	}
	m, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 42 || m.Attempts != 1 || m.ContentRetries != 0 {
		t.Errorf("out=%+v metrics=%+v", out, m)
	}
}

func TestRunJSONStripsFences(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"```json\n{\"value\": 7}\n```"}}
	exec := NewExecutor(caller)

	var out struct {
		Value int `json:"value"`
	}
	if _, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, nil); err != nil {
		t.Fatal(err)
	}
	if out.Value != 7 {
		t.Errorf("value = %d", out.Value)
	}
}

func TestRunJSONContentRetryWithFeedback(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"not json at all, sorry", `{"value": 1}`}}
	exec := NewExecutor(caller)

	var out struct {
		Value int `json:"value"`
	}
	m, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Attempts != 2 || m.ContentRetries != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if !strings.Contains(caller.prompts[1], "not valid JSON") {
		t.Errorf("second prompt missing feedback: %q", caller.prompts[1])
	}
}

func TestRunJSONValidationRetry(t *testing.T) {
	caller := &scriptedCaller{responses: []string{`{"value": -1}`, `{"value": 5}`}}
	exec := NewExecutor(caller)

	var out struct {
		Value int `json:"value"`
	}
	m, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, func() error {
		if out.Value < 0 {
			return errors.New("value negative")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 5 || m.ContentRetries != 1 {
		t.Errorf("out=%+v metrics=%+v", out, m)
	}
	if !strings.Contains(caller.prompts[1], "value negative") {
		t.Errorf("feedback missing validation error: %q", caller.prompts[1])
	}
}

func TestRunJSONBadContentExhausted(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"x", "y", "z"}}
	exec := NewExecutor(caller)

	var out struct{}
	_, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrBadContent) {
		t.Errorf("error not marked ErrBadContent: %v", err)
	}
	if caller.calls != 3 {
		t.Errorf("calls = %d", caller.calls)
	}
}

func TestRunJSONClientErrorNoRetry(t *testing.T) {
	caller := &scriptedCaller{errs: []error{fmt.Errorf("status code: 400")}}
	exec := NewExecutor(caller)

	var out struct{}
	_, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrBadContent) {
		t.Error("transport error wrongly marked ErrBadContent")
	}
	if caller.calls != 1 {
		t.Errorf("calls = %d, want 1", caller.calls)
	}
}

func TestRunJSONServerErrorRetries(t *testing.T) {
	caller := &scriptedCaller{
		errs:      []error{fmt.Errorf("status code: 503"), nil},
		responses: []string{"", `{"value": 9}`},
	}
	exec := NewExecutor(caller)

	var out struct {
		Value int `json:"value"`
	}
	if _, err := exec.RunJSON(context.Background(), "task", Request{Prompt: "p"}, &out, nil); err != nil {
		t.Fatal(err)
	}
	if out.Value != 9 || caller.calls != 2 {
		t.Errorf("out=%+v calls=%d", out, caller.calls)
	}
}

func TestExtractJSON(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"Here you go: {\"a\":1} hope that helps", `{"a":1}`, true},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{`[1,2,3]`, `[1,2,3]`, true},
		{"no json here", "", false},
		{"", "", false},
		{"}{", "", false},
	} {
		got, ok := ExtractJSON(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ExtractJSON(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestUsageRecorder(t *testing.T) {
	r := &UsageRecorder{}
	r.Record(100, 50)
	r.Record(10, 5)
	u := r.Snapshot()
	if u.Calls != 2 || u.InputTokens != 110 || u.OutputTokens != 55 {
		t.Errorf("usage = %+v", u)
	}
}

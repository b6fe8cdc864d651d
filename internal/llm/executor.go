package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// ErrBadContent marks failures where the model answered but the content
// never became valid JSON. Callers with a safe fallback test for it with
// errors.Is; transport failures are never wrapped in it.
var ErrBadContent = errors.New("malformed model output")

// AttemptMetrics records how hard a task had to work.
type AttemptMetrics struct {
	Attempts       int
	ContentRetries int
}

// Executor runs JSON-producing tasks with bounded retries. Transport errors
// classified as transient back off and retry; malformed content retries with
// corrective feedback appended to the prompt.
type Executor struct {
	caller Caller
}

func NewExecutor(caller Caller) *Executor {
	return &Executor{caller: caller}
}

const maxAttempts = 3

// RunJSON calls the model until out unmarshals and validates, up to 3
// attempts. validate may be nil.
func (e *Executor) RunJSON(ctx context.Context, taskName string, req Request, out any, validate func() error) (AttemptMetrics, error) {
	metrics := AttemptMetrics{}
	feedback := ""
	basePrompt := req.Prompt
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.Attempts = attempt
		req.Prompt = basePrompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			req.Prompt += "\n\n" + feedback
		}

		resp, err := e.caller.Generate(ctx, req)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxAttempts {
					time.Sleep(backoffDelay(attempt))
					continue
				}
			}
			return metrics, fmt.Errorf("%s transport failure: %w", taskName, err)
		}

		raw := strings.TrimSpace(resp.Text)
		if raw == "" {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed: empty response: %w", taskName, ErrBadContent)
		}

		clean, ok := ExtractJSON(raw)
		if !ok {
			clean = raw
		}
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed json parse: %v: %w", taskName, err, ErrBadContent)
		}
		if validate != nil {
			if err := validate(); err != nil {
				if attempt < maxAttempts {
					metrics.ContentRetries++
					feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
					continue
				}
				return metrics, fmt.Errorf("%s failed validation: %v: %w", taskName, err, ErrBadContent)
			}
		}
		return metrics, nil
	}
	return metrics, fmt.Errorf("%s failed after retries", taskName)
}

// RunText calls the model for free-form prose, retrying only transient
// transport failures and empty responses.
func (e *Executor) RunText(ctx context.Context, taskName string, req Request) (string, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.caller.Generate(ctx, req)
		if err != nil {
			class := classifyTransportError(err)
			if (class == failureTimeout || class == failureRateLimit || class == failureServer) && attempt < maxAttempts {
				time.Sleep(backoffDelay(attempt))
				continue
			}
			return "", fmt.Errorf("%s transport failure: %w", taskName, err)
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			if attempt < maxAttempts {
				continue
			}
			return "", fmt.Errorf("%s failed: empty response", taskName)
		}
		return text, nil
	}
	return "", fmt.Errorf("%s failed after retries", taskName)
}

// ExtractJSON pulls a JSON object or array out of model output that may be
// wrapped in code fences or surrounded by prose. The second return is false
// when no JSON-shaped region exists.
func ExtractJSON(s string) (string, bool) {
	s = stripCodeFences(s)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) failureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, " 5") || strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, " 4") || strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

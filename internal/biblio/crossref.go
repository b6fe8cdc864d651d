package biblio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// crossRefBaseURL is a var so tests can substitute an httptest server.
var crossRefBaseURL = "https://api.crossref.org/works"

const userAgent = "airesearcher/0.1 (academic-research-tool)"

// CrossRefClient queries the CrossRef works API. CrossRef asks polite-pool
// users to identify themselves via a mailto parameter.
type CrossRefClient struct {
	httpClient *http.Client
	email      string
	rows       int
}

func NewCrossRefClient(email string, httpClient *http.Client) *CrossRefClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CrossRefClient{httpClient: httpClient, email: email, rows: 5}
}

// Close releases idle connections held by the underlying HTTP client.
func (c *CrossRefClient) Close() {
	c.httpClient.CloseIdleConnections()
}

type crossRefResponse struct {
	Message struct {
		Items []crossRefItem `json:"items"`
	} `json:"message"`
}

type crossRefItem struct {
	Title          []string           `json:"title"`
	Author         []crossRefAuthor   `json:"author"`
	PublishedPrint *crossRefDateParts `json:"published-print"`
	PublishedOn    *crossRefDateParts `json:"published-online"`
	ContainerTitle []string           `json:"container-title"`
	Volume         string             `json:"volume"`
	Issue          string             `json:"issue"`
	Page           string             `json:"page"`
	DOI            string             `json:"DOI"`
	Publisher      string             `json:"publisher"`
	Type           string             `json:"type"`
}

type crossRefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossRefDateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// SearchWorks runs a bibliographic query and returns normalized candidates
// in ranked order.
func (c *CrossRefClient) SearchWorks(ctx context.Context, query string) ([]Work, error) {
	params := url.Values{
		"query.bibliographic": {query},
		"rows":                {strconv.Itoa(c.rows)},
	}
	if c.email != "" {
		params.Set("mailto", c.email)
	}

	body, err := getWithRetry(ctx, c.httpClient, crossRefBaseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("crossref search: %w", err)
	}

	var parsed crossRefResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("crossref decode: %w", err)
	}

	works := make([]Work, 0, len(parsed.Message.Items))
	for _, item := range parsed.Message.Items {
		works = append(works, normalizeCrossRef(item))
	}
	return works, nil
}

func normalizeCrossRef(item crossRefItem) Work {
	w := Work{
		Volume:    item.Volume,
		Issue:     item.Issue,
		Pages:     item.Page,
		DOI:       item.DOI,
		Publisher: item.Publisher,
		Type:      item.Type,
		Source:    "crossref",
	}
	if len(item.Title) > 0 {
		w.Title = item.Title[0]
	}
	if len(item.ContainerTitle) > 0 {
		w.Journal = item.ContainerTitle[0]
	}
	for _, a := range item.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name != "" {
			w.Authors = append(w.Authors, name)
		}
	}
	date := item.PublishedPrint
	if date == nil {
		date = item.PublishedOn
	}
	if date != nil && len(date.DateParts) > 0 && len(date.DateParts[0]) > 0 {
		w.Year = date.DateParts[0][0]
	}
	return w
}

// getWithRetry issues a GET with up to 3 attempts, backing off on 429 and
// 5xx/timeout errors. 4xx responses other than 429 fail immediately.
func getWithRetry(ctx context.Context, client *http.Client, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		body, status, err := getOnce(ctx, client, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		retryable := status == http.StatusTooManyRequests || status >= 500 || isTimeout(err)
		if !retryable || attempt == 3 {
			return nil, err
		}
		if err := sleepCtx(ctx, time.Duration(attempt)*time.Second); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func getOnce(ctx context.Context, client *http.Client, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if res.StatusCode >= 400 {
		return nil, res.StatusCode, fmt.Errorf("status code: %d", res.StatusCode)
	}
	return b, res.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

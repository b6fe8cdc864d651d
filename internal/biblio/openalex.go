package biblio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// openAlexBaseURL is a var so tests can substitute an httptest server.
var openAlexBaseURL = "https://api.openalex.org/works"

// OpenAlexClient queries the OpenAlex works API. The mailto parameter
// grants polite-pool rate limits.
type OpenAlexClient struct {
	httpClient *http.Client
	email      string
	perPage    int
}

func NewOpenAlexClient(email string, httpClient *http.Client) *OpenAlexClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenAlexClient{httpClient: httpClient, email: email, perPage: 5}
}

// Close releases idle connections held by the underlying HTTP client.
func (c *OpenAlexClient) Close() {
	c.httpClient.CloseIdleConnections()
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	Title           string `json:"title"`
	PublicationYear int    `json:"publication_year"`
	DOI             string `json:"doi"`
	Type            string `json:"type"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
}

// SearchWorks runs a relevance-ranked search and returns normalized
// candidates. OpenAlex does not carry reliable page-range metadata, so
// Pages is always empty.
func (c *OpenAlexClient) SearchWorks(ctx context.Context, query string) ([]Work, error) {
	params := url.Values{
		"search":   {query},
		"per_page": {strconv.Itoa(c.perPage)},
	}
	if c.email != "" {
		params.Set("mailto", c.email)
	}

	body, err := getWithRetry(ctx, c.httpClient, openAlexBaseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("openalex search: %w", err)
	}

	var parsed openAlexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openalex decode: %w", err)
	}

	works := make([]Work, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		w := Work{
			Title:  item.Title,
			Year:   item.PublicationYear,
			DOI:    strings.TrimPrefix(item.DOI, "https://doi.org/"),
			Type:   item.Type,
			Source: "openalex",
		}
		for _, a := range item.Authorships {
			if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
				w.Authors = append(w.Authors, name)
			}
		}
		works = append(works, w)
	}
	return works, nil
}

// RecentWorks lists works published in a journal (by ISSN) since the given
// date, newest first. Used by the journal monitor.
func (c *OpenAlexClient) RecentWorks(ctx context.Context, issn string, since time.Time, limit int) ([]Work, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filters := []string{"primary_location.source.issn:" + issn}
	if !since.IsZero() {
		filters = append(filters, "from_publication_date:"+since.Format("2006-01-02"))
	}
	params := url.Values{
		"filter":   {strings.Join(filters, ",")},
		"sort":     {"publication_date:desc"},
		"per_page": {strconv.Itoa(limit)},
	}
	if c.email != "" {
		params.Set("mailto", c.email)
	}

	body, err := getWithRetry(ctx, c.httpClient, openAlexBaseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("openalex recent works: %w", err)
	}

	var parsed openAlexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openalex decode: %w", err)
	}

	works := make([]Work, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		w := Work{
			Title:  item.Title,
			Year:   item.PublicationYear,
			DOI:    strings.TrimPrefix(item.DOI, "https://doi.org/"),
			Type:   item.Type,
			Source: "openalex",
		}
		for _, a := range item.Authorships {
			if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
				w.Authors = append(w.Authors, name)
			}
		}
		works = append(works, w)
	}
	return works, nil
}

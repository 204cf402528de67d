package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Searcher = (*SerperSearcher)(nil)

// DefaultSerperURL is the Serper web search endpoint.
const DefaultSerperURL = "https://google.serper.dev/search"

// DefaultSearchResults is how many organic hits are requested per query.
const DefaultSearchResults = 5

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SearchQuery is the web query issued for an entity name.
func SearchQuery(name string) string {
	return name + " robot specifications"
}

// SearchContext renders results as prompt text. Results with neither a title
// nor a snippet are dropped; an empty string means nothing usable was found.
func SearchContext(results []SearchResult) string {
	var sb strings.Builder
	for _, r := range results {
		title, snippet := strings.TrimSpace(r.Title), strings.TrimSpace(r.Snippet)
		if title == "" && snippet == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Title: %s\nSnippet: %s", title, snippet)
	}
	return sb.String()
}

// SerperSearcher searches the web through the Serper API.
type SerperSearcher struct {
	apiKey  string
	url     string
	results int
	http    *http.Client
}

// SerperOption configures a SerperSearcher.
type SerperOption func(*SerperSearcher)

// WithSerperURL overrides the search endpoint.
func WithSerperURL(u string) SerperOption {
	return func(s *SerperSearcher) {
		s.url = u
	}
}

// WithSerperHTTPClient replaces the underlying *http.Client.
func WithSerperHTTPClient(hc *http.Client) SerperOption {
	return func(s *SerperSearcher) {
		s.http = hc
	}
}

// WithSearchResults sets how many hits are requested. n <= 0 is ignored.
func WithSearchResults(n int) SerperOption {
	return func(s *SerperSearcher) {
		if n > 0 {
			s.results = n
		}
	}
}

// NewSerperSearcher creates a Serper client.
func NewSerperSearcher(apiKey string, opts ...SerperOption) (*SerperSearcher, error) {
	if apiKey == "" {
		return nil, errors.New("SERPER_API_KEY not set")
	}
	s := &SerperSearcher{
		apiKey:  apiKey,
		url:     DefaultSerperURL,
		results: DefaultSearchResults,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []SearchResult `json:"organic"`
}

// Search posts query to Serper and returns its organic results.
func (s *SerperSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	payload, err := json.Marshal(serperRequest{Q: query, Num: s.results})
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("search: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out serperResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	return out.Organic, nil
}

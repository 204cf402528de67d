package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// Default endpoint paths, relative to the collaborator base URL.
const (
	DefaultDiscoverPath   = "/api/start_analysis"
	DefaultAnalyzePath    = "/api/analyze_entity"
	DefaultSynthesizePath = "/api/generate_final_report"
)

// maxResponseBytes caps how much of a collaborator response is read.
const maxResponseBytes = 8 << 20

// Endpoints locates the three collaborator services.
type Endpoints struct {
	BaseURL        string
	DiscoverPath   string
	AnalyzePath    string
	SynthesizePath string
}

// HTTPClient implements Client against collaborators speaking plain JSON over
// HTTP: GET discovery and analysis, POST synthesis.
type HTTPClient struct {
	http      *http.Client
	endpoints Endpoints
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// NewHTTPClient creates a collaborator client. Empty endpoint paths fall back
// to the Default*Path constants.
func NewHTTPClient(endpoints Endpoints, opts ...ClientOption) *HTTPClient {
	if endpoints.DiscoverPath == "" {
		endpoints.DiscoverPath = DefaultDiscoverPath
	}
	if endpoints.AnalyzePath == "" {
		endpoints.AnalyzePath = DefaultAnalyzePath
	}
	if endpoints.SynthesizePath == "" {
		endpoints.SynthesizePath = DefaultSynthesizePath
	}
	endpoints.BaseURL = strings.TrimRight(endpoints.BaseURL, "/")

	c := &HTTPClient{
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		endpoints: endpoints,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover calls the discovery service with the query as the "robot" parameter.
func (c *HTTPClient) Discover(ctx context.Context, query string) (*DiscoveryResult, error) {
	u := c.endpoints.BaseURL + c.endpoints.DiscoverPath + "?" + url.Values{"robot": {query}}.Encode()
	body, err := c.do(ctx, OpDiscover, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return DecodeDiscovery(body)
}

// Analyze calls the analysis service for a single entity.
func (c *HTTPClient) Analyze(ctx context.Context, entity Entity) (json.RawMessage, error) {
	u := c.endpoints.BaseURL + c.endpoints.AnalyzePath + "?" + url.Values{"name": {entity.Name}}.Encode()
	body, err := c.do(ctx, OpAnalyze, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return DecodeObject(OpAnalyze, body)
}

// Synthesize posts the whole bundle to the synthesis service.
func (c *HTTPClient) Synthesize(ctx context.Context, bundle *Bundle) (json.RawMessage, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal bundle: %w", OpSynthesize, err)
	}
	u := c.endpoints.BaseURL + c.endpoints.SynthesizePath
	body, err := c.do(ctx, OpSynthesize, http.MethodPost, u, payload)
	if err != nil {
		return nil, err
	}
	return DecodeObject(OpSynthesize, body)
}

// do performs one request and returns the body of a 2xx response. Non-2xx
// responses become a *RemoteError when they carry an {"error"} payload.
func (c *HTTPClient) do(ctx context.Context, op, method, u string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if p, ok := DecodeError(body); ok {
			return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: p.Error, Details: p.Details}
		}
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	// Some collaborators answer 200 with an error payload.
	if p, ok := DecodeError(body); ok && !hasOtherKeys(body) {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: p.Error, Details: p.Details}
	}

	return body, nil
}

// hasOtherKeys reports whether the object body has keys besides "error" and
// "details".
func hasOtherKeys(body []byte) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return false
	}
	for k := range m {
		if k != "error" && k != "details" {
			return true
		}
	}
	return false
}

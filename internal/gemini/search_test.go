package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerperSearcher_Search(t *testing.T) {
	var got serperRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"searchParameters": {"q": "Atlas robot specifications"},
			"organic": [
				{"title": "Atlas", "link": "https://example.com/atlas", "snippet": "Electric humanoid.", "position": 1},
				{"title": "Atlas specs", "link": "https://example.com/specs", "snippet": "89 kg.", "position": 2}
			]
		}`))
	}))
	t.Cleanup(srv.Close)

	s, err := NewSerperSearcher("secret", WithSerperURL(srv.URL), WithSearchResults(3))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), SearchQuery("Atlas"))
	require.NoError(t, err)
	assert.Equal(t, serperRequest{Q: "Atlas robot specifications", Num: 3}, got)
	assert.Equal(t, []SearchResult{
		{Title: "Atlas", Link: "https://example.com/atlas", Snippet: "Electric humanoid."},
		{Title: "Atlas specs", Link: "https://example.com/specs", Snippet: "89 kg."},
	}, results)
}

func TestSerperSearcher_Errors(t *testing.T) {
	_, err := NewSerperSearcher("")
	require.ErrorContains(t, err, "SERPER_API_KEY")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized.", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	s, err := NewSerperSearcher("bad", WithSerperURL(srv.URL))
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "x")
	require.ErrorContains(t, err, "HTTP 403")

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	t.Cleanup(garbage.Close)

	s, err = NewSerperSearcher("key", WithSerperURL(garbage.URL), WithSerperHTTPClient(garbage.Client()))
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "x")
	require.ErrorContains(t, err, "decode response")
}

func TestSearchContext(t *testing.T) {
	assert.Empty(t, SearchContext(nil))
	assert.Empty(t, SearchContext([]SearchResult{{Link: "https://example.com"}}))
	assert.Equal(t, "Title: A\nSnippet: ", SearchContext([]SearchResult{{Title: " A "}}))
}

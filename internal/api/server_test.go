package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/dusk-indust/briefing/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingAnalyzer struct {
	fail map[string]string
	next collab.Analyzer
}

func (f failingAnalyzer) Analyze(ctx context.Context, e collab.Entity) (json.RawMessage, error) {
	if msg, ok := f.fail[e.Name]; ok {
		return nil, &collab.RemoteError{Op: collab.OpAnalyze, StatusCode: 500, Message: msg}
	}
	return f.next.Analyze(ctx, e)
}

type failingDiscoverer struct{ msg string }

func (f failingDiscoverer) Discover(context.Context, string) (*collab.DiscoveryResult, error) {
	return nil, &collab.RemoteError{Op: collab.OpDiscover, StatusCode: 400, Message: f.msg}
}

func newAPI(t *testing.T, client collab.Client) (*httptest.Server, *engine.Sessions) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	sessions := engine.NewSessions(engine.New(client, engine.WithLogger(logger)))
	ts := httptest.NewServer(NewServer(sessions, logger).Handler())
	t.Cleanup(func() {
		sessions.CloseAll()
		ts.Close()
	})
	return ts, sessions
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createSession(t *testing.T, base string, policy engine.Policy) string {
	t.Helper()
	var created createResponse
	status := do(t, http.MethodPost, base+"/v1/sessions", createRequest{Policy: policy}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestAPI_SearchThenReport(t *testing.T) {
	ts, _ := newAPI(t, collab.NewStaticBackend(nil))
	id := createSession(t, ts.URL, "")

	var snap engine.Snapshot
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/v1/sessions/"+id, nil, &snap))
	assert.Equal(t, engine.SessionIdle, snap.State)
	assert.Equal(t, engine.PolicyStrict, snap.Policy)

	status := do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/search", searchRequest{Query: "Figure 02"}, &snap)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, engine.SessionAggregated, snap.State)
	require.Len(t, snap.Tasks, 3)
	require.NotNil(t, snap.Bundle)
	assert.Len(t, snap.Bundle.Entries, 3)
	assert.Nil(t, snap.Report, "report is never produced without an explicit request")

	var report reportResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/report", nil, &report))
	assert.Equal(t, id, report.SessionID)
	assert.Contains(t, string(report.Report), "executive_summary")

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/report", nil, &errResp))
	assert.Equal(t, engine.ErrAlreadySynthesized.Error(), errResp.Error)
}

func TestAPI_ReportBeforeSearch(t *testing.T) {
	ts, _ := newAPI(t, collab.NewStaticBackend(nil))
	id := createSession(t, ts.URL, "")

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/report", nil, &errResp))
	assert.Equal(t, engine.ErrNoBundle.Error(), errResp.Error)
}

func TestAPI_BadRequests(t *testing.T) {
	ts, _ := newAPI(t, collab.NewStaticBackend(nil))

	var errResp errorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/v1/sessions", createRequest{Policy: "relaxed"}, &errResp))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/v1/sessions/nope", nil, &errResp))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, ts.URL+"/v1/sessions/nope", nil, &errResp))

	id := createSession(t, ts.URL, "")
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/search", searchRequest{Query: "  "}, &errResp))
	assert.Equal(t, engine.ErrEmptyQuery.Error(), errResp.Error)
}

func TestAPI_DiscoveryFailureKeepsUpstreamMessage(t *testing.T) {
	static := collab.NewStaticBackend(nil)
	ts, _ := newAPI(t, collab.Compose(failingDiscoverer{msg: "Search provider unavailable."}, static, static))
	id := createSession(t, ts.URL, "")

	var errResp errorResponse
	status := do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/search", searchRequest{Query: "Atlas"}, &errResp)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Search provider unavailable.", errResp.Error)
	assert.Equal(t, engine.PhaseDiscovery, errResp.Phase)
}

func TestAPI_StrictAggregationFailure(t *testing.T) {
	static := collab.NewStaticBackend(nil)
	analyzer := failingAnalyzer{fail: map[string]string{"Atlas": "timeout"}, next: static}
	ts, _ := newAPI(t, collab.Compose(static, analyzer, static))
	id := createSession(t, ts.URL, engine.PolicyStrict)

	var errResp errorResponse
	status := do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/search", searchRequest{Query: "Figure 02"}, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, engine.PhaseAggregation, errResp.Phase)
	require.Len(t, errResp.Failures, 1)
	assert.Equal(t, "atlas", errResp.Failures[0].EntityID)
	assert.Equal(t, "timeout", errResp.Failures[0].Detail)

	var snap engine.Snapshot
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/v1/sessions/"+id, nil, &snap))
	assert.Equal(t, engine.SessionFailed, snap.State)
	assert.Nil(t, snap.Bundle)
}

func TestAPI_LenientSessionKeepsFailures(t *testing.T) {
	static := collab.NewStaticBackend(nil)
	analyzer := failingAnalyzer{fail: map[string]string{"Atlas": "timeout"}, next: static}
	ts, _ := newAPI(t, collab.Compose(static, analyzer, static))
	id := createSession(t, ts.URL, engine.PolicyLenient)

	var snap engine.Snapshot
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/search", searchRequest{Query: "Figure 02"}, &snap))
	require.NotNil(t, snap.Bundle)
	assert.Equal(t, 2, snap.Bundle.Successes())

	var report reportResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/report", nil, &report))
	assert.Contains(t, string(report.Report), "data_gaps")
}

func TestAPI_EventStream(t *testing.T) {
	ts, _ := newAPI(t, collab.NewStaticBackend(nil))
	id := createSession(t, ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := ReadEvents(ctx, resp.Body)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/search", searchRequest{Query: "Figure 02"}, nil))

	states := map[string][]engine.TaskState{}
	for i := 0; i < 6; i++ {
		select {
		case se, ok := <-events:
			require.True(t, ok, "stream ended early")
			require.NoError(t, se.Err)
			assert.Equal(t, id, se.Event.SessionID)
			states[se.Event.EntityID] = append(states[se.Event.EntityID], se.Event.State)
		case <-ctx.Done():
			t.Fatal("timed out waiting for status events")
		}
	}

	require.Len(t, states, 3)
	for entity, seq := range states {
		assert.Equal(t, []engine.TaskState{engine.TaskPending, engine.TaskSuccess}, seq, entity)
	}

	// Deleting the session closes the stream.
	require.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/v1/sessions/"+id, nil, nil))
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-ctx.Done():
		t.Fatal("stream not closed after delete")
	}
}

func TestAPI_ListAndDelete(t *testing.T) {
	ts, sessions := newAPI(t, collab.NewStaticBackend(nil))
	a := createSession(t, ts.URL, "")
	b := createSession(t, ts.URL, engine.PolicyLenient)

	var list []engine.Snapshot
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/v1/sessions", nil, &list))
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, b, list[1].ID)
	assert.Equal(t, engine.PolicyLenient, list[1].Policy)

	require.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/v1/sessions/"+a, nil, nil))
	assert.Equal(t, 1, sessions.Len())
}

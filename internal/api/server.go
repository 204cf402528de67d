// Package api serves briefing sessions over HTTP for external observers:
// starting searches, reading snapshots, streaming status events and
// triggering the final report.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dusk-indust/briefing/internal/engine"
	"go.uber.org/zap"
)

// keepAliveInterval is how often an idle event stream gets a comment line.
const keepAliveInterval = 15 * time.Second

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server exposes a session store over HTTP.
type Server struct {
	sessions *engine.Sessions
	logger   *zap.Logger
	http     *http.Server
}

// NewServer creates an API server over sessions. A nil logger is replaced
// with a no-op logger.
func NewServer(sessions *engine.Sessions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sessions: sessions, logger: logger}
}

// Handler returns the HTTP routes served by s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreate)
	mux.HandleFunc("GET /v1/sessions", s.handleList)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/sessions/{id}/search", s.handleSearch)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /v1/sessions/{id}/report", s.handleReport)
	return mux
}

// Start binds addr and begins serving in a background goroutine. It returns
// the bound address.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	return ln.Addr().String(), nil
}

// Stop gracefully shuts down the HTTP server. Open event streams end when
// their sessions close.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type createRequest struct {
	Policy engine.Policy `json:"policy,omitempty"`
}

type createResponse struct {
	ID     string        `json:"id"`
	Policy engine.Policy `json:"policy"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type reportResponse struct {
	SessionID string          `json:"sessionId"`
	Report    json.RawMessage `json:"report"`
}

// errorResponse is the body of every failed request. Error is the upstream
// message, unmodified; Phase names the pipeline phase that failed.
type errorResponse struct {
	Error    string               `json:"error"`
	Phase    engine.Phase         `json:"phase,omitempty"`
	Failures []engine.TaskFailure `json:"failures,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Policy != "" && !req.Policy.Valid() {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "policy must be strict or lenient"})
		return
	}

	var opts []engine.SessionOption
	if req.Policy != "" {
		opts = append(opts, engine.WithSessionPolicy(req.Policy))
	}
	sess := s.sessions.Create(opts...)
	s.logger.Info("session created", zap.String("session_id", sess.ID()), zap.String("policy", string(sess.Policy())))
	writeJSON(w, http.StatusCreated, createResponse{ID: sess.ID(), Policy: sess.Policy()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if _, err := sess.Search(r.Context(), req.Query); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	report, err := sess.Synthesize(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{SessionID: sess.ID(), Report: report})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	events, cancel := sess.Subscribe()
	defer cancel()

	sw := newSSEWriter(w)
	sw.init()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := sw.writeEvent(ev); err != nil {
				s.logger.Debug("event stream closed", zap.String("session_id", sess.ID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := sw.writeComment("keep-alive"); err != nil {
				return
			}
		}
	}
}

// session resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return sess, true
}

// fail maps err to a status code and writes it with its failed phase.
func (s *Server) fail(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Phase: engine.FailedPhase(err)}

	var pe *engine.PhaseError
	if errors.As(err, &pe) {
		resp.Error = pe.Message()
	}
	var ae *engine.AggregationError
	if errors.As(err, &ae) {
		resp.Error = ae.Error()
		resp.Failures = ae.Failures
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("phase", string(resp.Phase)), zap.Error(err))
	}
	writeError(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoEntities), errors.Is(err, engine.ErrAggregation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoBundle),
		errors.Is(err, engine.ErrAlreadySynthesized),
		errors.Is(err, engine.ErrSynthesisInFlight),
		errors.Is(err, engine.ErrSuperseded),
		errors.Is(err, engine.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrDiscovery),
		errors.Is(err, engine.ErrEntityAnalysis),
		errors.Is(err, engine.ErrSynthesis):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

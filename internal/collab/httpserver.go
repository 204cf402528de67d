package collab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Server exposes a Client backend over HTTP using the same wire contract that
// HTTPClient consumes.
type Server struct {
	backend Client
	logger  *zap.Logger
	http    *http.Server
}

// NewServer creates a collaborator server for backend. A nil logger is
// replaced with a no-op logger.
func NewServer(backend Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		backend: backend,
		logger:  logger,
	}
}

// Handler returns the HTTP routes served by s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+DefaultDiscoverPath, s.handleDiscover)
	mux.HandleFunc("GET "+DefaultAnalyzePath, s.handleAnalyze)
	mux.HandleFunc("POST "+DefaultSynthesizePath, s.handleSynthesize)
	return mux
}

// Start binds addr and begins serving in a background goroutine. It returns
// the bound address, which differs from addr when addr uses port 0.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	s.http = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("collaborator server stopped", zap.Error(err))
		}
	}()

	return ln.Addr().String(), nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("robot"))
	if query == "" {
		writeError(w, http.StatusBadRequest, MsgMissingRobot)
		return
	}

	result, err := s.backend.Discover(r.Context(), query)
	if err != nil {
		s.fail(w, OpDiscover, http.StatusBadRequest, err)
		return
	}

	type entity struct {
		Name string `json:"name"`
	}
	resp := struct {
		TaskID   string   `json:"task_id,omitempty"`
		Entities []entity `json:"entities"`
	}{TaskID: result.TaskID, Entities: make([]entity, 0, len(result.Entities))}
	for _, e := range result.Entities {
		resp.Entities = append(resp.Entities, entity{Name: e.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, MsgMissingName)
		return
	}

	result, err := s.backend.Analyze(r.Context(), Entity{ID: Slug(name), Name: name})
	if err != nil {
		s.fail(w, OpAnalyze, http.StatusInternalServerError, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var bundle Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		writeError(w, http.StatusBadRequest, "invalid bundle: "+err.Error())
		return
	}
	if len(bundle.Entries) == 0 {
		writeError(w, http.StatusBadRequest, MsgEmptyBundle)
		return
	}

	report, err := s.backend.Synthesize(r.Context(), &bundle)
	if err != nil {
		s.fail(w, OpSynthesize, http.StatusInternalServerError, err)
		return
	}
	writeRaw(w, http.StatusOK, report)
}

// fail logs err and writes its upstream message as an error payload.
func (s *Server) fail(w http.ResponseWriter, op string, status int, err error) {
	s.logger.Warn("collaborator request failed", zap.String("op", op), zap.Error(err))
	var re *RemoteError
	if errors.As(err, &re) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ErrorPayload{Error: re.Message, Details: re.Details})
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorPayload{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dusk-indust/briefing/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// BriefingService handles MCP tool calls. It wraps a session store so that a
// client can run a search in one call and request the report in a later one.
type BriefingService struct {
	sessions *engine.Sessions
	logger   *zap.Logger
}

// NewBriefingService creates a BriefingService over sessions.
func NewBriefingService(sessions *engine.Sessions, logger *zap.Logger) *BriefingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefingService{sessions: sessions, logger: logger}
}

// StartBriefing creates a session and runs discovery, analysis and
// aggregation. Pipeline failures are reported in the output, not as tool
// errors, so the client sees which phase failed.
func (s *BriefingService) StartBriefing(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartBriefingInput,
) (*mcp.CallToolResult, BriefingView, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, BriefingView{}, errors.New("query is required")
	}

	var opts []engine.SessionOption
	if input.Policy != "" {
		p := engine.Policy(strings.ToLower(input.Policy))
		if !p.Valid() {
			return nil, BriefingView{}, fmt.Errorf("invalid policy %q: want strict or lenient", input.Policy)
		}
		opts = append(opts, engine.WithSessionPolicy(p))
	}

	sess := s.sessions.Create(opts...)
	if _, err := sess.Search(ctx, input.Query); err != nil {
		s.logger.Info("briefing search failed", zap.String("session_id", sess.ID()), zap.Error(err))
	}
	return nil, viewOf(sess.Snapshot()), nil
}

// GetBriefing returns the current state of a session.
func (s *BriefingService) GetBriefing(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, BriefingView, error) {
	sess, err := s.sessions.Get(input.SessionID)
	if err != nil {
		return nil, BriefingView{}, err
	}
	return nil, viewOf(sess.Snapshot()), nil
}

// GenerateReport triggers synthesis for a session with an aggregated bundle.
func (s *BriefingService) GenerateReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ReportOutput, error) {
	sess, err := s.sessions.Get(input.SessionID)
	if err != nil {
		return nil, ReportOutput{}, err
	}
	report, err := sess.Synthesize(ctx)
	if err != nil {
		var pe *engine.PhaseError
		if errors.As(err, &pe) {
			return nil, ReportOutput{}, fmt.Errorf("%s failed: %s", pe.Phase, pe.Message())
		}
		return nil, ReportOutput{}, err
	}
	return nil, ReportOutput{SessionID: sess.ID(), Report: decode(report)}, nil
}

// ListBriefings summarizes every session in creation order.
func (s *BriefingService) ListBriefings(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListBriefingsInput,
) (*mcp.CallToolResult, ListBriefingsOutput, error) {
	snaps := s.sessions.List()
	out := ListBriefingsOutput{Briefings: make([]BriefingSummary, 0, len(snaps))}
	for _, snap := range snaps {
		out.Briefings = append(out.Briefings, BriefingSummary{
			SessionID: snap.ID,
			Query:     snap.Query,
			State:     string(snap.State),
			Policy:    string(snap.Policy),
			Tasks:     len(snap.Tasks),
		})
	}
	return nil, out, nil
}

func viewOf(snap engine.Snapshot) BriefingView {
	v := BriefingView{
		SessionID:      snap.ID,
		Query:          snap.Query,
		State:          string(snap.State),
		Policy:         string(snap.Policy),
		Tasks:          make([]TaskView, 0, len(snap.Tasks)),
		ReadyForReport: snap.Bundle != nil && snap.Report == nil,
		Error:          snap.Error,
		FailedPhase:    string(snap.Phase),
	}
	for _, t := range snap.Tasks {
		v.Tasks = append(v.Tasks, TaskView{
			EntityID: t.EntityID,
			Name:     t.Name,
			State:    string(t.State),
			Result:   decode(t.Result),
			Error:    t.ErrorDetail,
		})
	}
	if snap.Report != nil {
		v.Report = decode(snap.Report)
	}
	return v
}

// decode turns opaque JSON into a value for structured output.
func decode(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

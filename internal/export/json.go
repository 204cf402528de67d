// Package export renders a briefing session as JSON, Markdown or a Mermaid
// flowchart.
package export

import (
	"encoding/json"
	"time"

	"github.com/dusk-indust/briefing/internal/engine"
)

// BriefingExport is the top-level JSON export structure.
type BriefingExport struct {
	SessionID  string          `json:"sessionId"`
	Query      string          `json:"query"`
	State      string          `json:"state"`
	Policy     string          `json:"policy"`
	ExportedAt string          `json:"exportedAt"`
	Tasks      []TaskExport    `json:"tasks"`
	Report     json.RawMessage `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	Phase      string          `json:"failedPhase,omitempty"`
}

// TaskExport describes one entity's analysis.
type TaskExport struct {
	EntityID string          `json:"entityId"`
	Name     string          `json:"name"`
	Outcome  string          `json:"outcome"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Build converts a session snapshot into a BriefingExport stamped with now.
func Build(snap engine.Snapshot, now time.Time) *BriefingExport {
	out := &BriefingExport{
		SessionID:  snap.ID,
		Query:      snap.Query,
		State:      string(snap.State),
		Policy:     string(snap.Policy),
		ExportedAt: now.UTC().Format(time.RFC3339),
		Tasks:      make([]TaskExport, 0, len(snap.Tasks)),
		Report:     snap.Report,
		Error:      snap.Error,
		Phase:      string(snap.Phase),
	}
	for _, t := range snap.Tasks {
		out.Tasks = append(out.Tasks, TaskExport{
			EntityID: t.EntityID,
			Name:     t.Name,
			Outcome:  string(t.State),
			Result:   t.Result,
			Error:    t.ErrorDetail,
		})
	}
	return out
}

// JSON renders snap as indented JSON.
func JSON(snap engine.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(Build(snap, time.Now()), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

package mcptools

// --- MCP Tool Types for the briefing server mode (serve-mcp) ---
// Opaque collaborator JSON is carried as `any` so the generated output
// schemas accept whatever object the collaborator returned.

// StartBriefingInput is the input for the start_briefing MCP tool.
type StartBriefingInput struct {
	Query  string `json:"query" jsonschema:"entity to brief on, e.g. a robot name"`
	Policy string `json:"policy,omitempty" jsonschema:"aggregation policy: strict (default) or lenient"`
}

// SessionInput identifies a briefing session.
type SessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"session id returned by start_briefing"`
}

// ListBriefingsInput is the input for the list_briefings MCP tool.
type ListBriefingsInput struct{}

// TaskView is one entity's analysis as reported to MCP clients.
type TaskView struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BriefingView is the state of one session.
type BriefingView struct {
	SessionID      string     `json:"sessionId"`
	Query          string     `json:"query"`
	State          string     `json:"state"`
	Policy         string     `json:"policy"`
	Tasks          []TaskView `json:"tasks"`
	ReadyForReport bool       `json:"readyForReport"`
	Report         any        `json:"report,omitempty"`
	Error          string     `json:"error,omitempty"`
	FailedPhase    string     `json:"failedPhase,omitempty"`
}

// ReportOutput is the result of the generate_report MCP tool.
type ReportOutput struct {
	SessionID string `json:"sessionId"`
	Report    any    `json:"report"`
}

// BriefingSummary is a brief overview of one session.
type BriefingSummary struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
	State     string `json:"state"`
	Policy    string `json:"policy"`
	Tasks     int    `json:"tasks"`
}

// ListBriefingsOutput is the result of the list_briefings MCP tool.
type ListBriefingsOutput struct {
	Briefings []BriefingSummary `json:"briefings"`
}

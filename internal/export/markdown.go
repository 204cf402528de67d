package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/briefing/internal/engine"
)

// maxCell caps the width of a table cell.
const maxCell = 80

// Markdown renders snap as a Markdown document: a per-entity table followed
// by the pretty-printed report, if one was delivered.
func Markdown(snap engine.Snapshot) string {
	var sb strings.Builder

	title := snap.Query
	if title == "" {
		title = snap.ID
	}
	fmt.Fprintf(&sb, "# Briefing: %s\n\n", title)
	fmt.Fprintf(&sb, "- Session: `%s`\n", snap.ID)
	fmt.Fprintf(&sb, "- State: %s\n", snap.State)
	fmt.Fprintf(&sb, "- Policy: %s\n", snap.Policy)
	if snap.Error != "" {
		if snap.Phase != "" {
			fmt.Fprintf(&sb, "- Failed phase: %s\n", snap.Phase)
		}
		fmt.Fprintf(&sb, "- Error: %s\n", snap.Error)
	}

	sb.WriteString("\n## Entities\n\n")
	if len(snap.Tasks) == 0 {
		sb.WriteString("_No entities._\n")
	} else {
		sb.WriteString("| Entity | Outcome | Details |\n")
		sb.WriteString("|---|---|---|\n")
		for _, t := range snap.Tasks {
			details := t.ErrorDetail
			if t.State == engine.TaskSuccess {
				details = keyFields(t.Result)
			}
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", cell(t.Name), t.State, cell(details))
		}
	}

	if len(snap.Report) > 0 {
		sb.WriteString("\n## Report\n\n```json\n")
		sb.WriteString(pretty(snap.Report))
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// keyFields lists the scalar top-level fields of a JSON object as
// "key: value" pairs in key order.
func keyFields(raw json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		switch v.(type) {
		case string, float64, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %v", k, obj[k])
	}
	return strings.Join(parts, "; ")
}

// cell makes s safe for a single Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if r := []rune(s); len(r) > maxCell {
		s = string(r[:maxCell-1]) + "…"
	}
	return s
}

func pretty(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

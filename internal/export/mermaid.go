package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/briefing/internal/engine"
)

// maxLabel caps node label length before escaping.
const maxLabel = 60

// Mermaid produces a Mermaid flowchart with the query as root and one node per
// discovered entity, classed by task state.
func Mermaid(snap engine.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	sb.WriteString("  classDef success fill:#d4edda,stroke:#28a745\n")
	sb.WriteString("  classDef error fill:#f8d7da,stroke:#dc3545\n")
	sb.WriteString("  classDef pending fill:#fff3cd,stroke:#ffc107\n")

	fmt.Fprintf(&sb, "  Q[\"%s\"]\n", label(snap.Query))
	for i, t := range snap.Tasks {
		id := fmt.Sprintf("E%d", i)
		text := t.Name
		if t.State == engine.TaskError && t.ErrorDetail != "" {
			text += ": " + t.ErrorDetail
		}
		if r := []rune(text); len(r) > maxLabel {
			text = string(r[:maxLabel-1]) + "…"
		}
		fmt.Fprintf(&sb, "  Q --> %s[\"%s\"]\n", id, label(text))
		fmt.Fprintf(&sb, "  class %s %s\n", id, t.State)
	}
	return sb.String()
}

// label escapes characters Mermaid treats specially inside quoted labels.
func label(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}

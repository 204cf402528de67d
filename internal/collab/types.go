package collab

import (
	"encoding/json"
	"fmt"
	"strings"
)

// --- Entities ---

// Entity is one analysis subject produced by discovery. It is immutable once
// created; ID is unique within a session.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DiscoveryResult is the validated outcome of a discovery call.
type DiscoveryResult struct {
	// TaskID is the identifier the discovery service assigned to this run, if any.
	TaskID   string
	Entities []Entity
}

// NewEntities assigns session-unique IDs to the given names in order. IDs are
// slugs of the name; repeated slugs get a numeric suffix ("optimus-2").
func NewEntities(names []string) []Entity {
	used := make(map[string]bool, len(names))
	entities := make([]Entity, 0, len(names))
	for _, name := range names {
		base := Slug(name)
		if base == "" {
			base = "entity"
		}
		id := base
		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		used[id] = true
		entities = append(entities, Entity{ID: id, Name: name})
	}
	return entities
}

// Slug lower-cases name and joins its alphanumeric runs with dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			dash = b.Len() > 0
			continue
		}
		if dash {
			b.WriteByte('-')
			dash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// --- Bundle ---

// Outcome tags a bundle entry with the terminal state of its task.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// BundleEntry is one terminal task inside an analysis bundle.
type BundleEntry struct {
	EntityID string          `json:"entityId"`
	Name     string          `json:"name"`
	Outcome  Outcome         `json:"outcome"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Bundle is the aggregated output of a fan-out, sent as the body of a
// synthesis request. Entries are in discovery order.
type Bundle struct {
	Query   string        `json:"query"`
	Policy  string        `json:"policy"`
	Entries []BundleEntry `json:"entries"`
}

// Clone returns a deep copy of b.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	dst := *b
	if b.Entries != nil {
		dst.Entries = make([]BundleEntry, len(b.Entries))
		for i, e := range b.Entries {
			dst.Entries[i] = e
			if e.Result != nil {
				dst.Entries[i].Result = append(json.RawMessage(nil), e.Result...)
			}
		}
	}
	return &dst
}

// Successes returns the number of entries tagged OutcomeSuccess.
func (b *Bundle) Successes() int {
	n := 0
	for _, e := range b.Entries {
		if e.Outcome == OutcomeSuccess {
			n++
		}
	}
	return n
}

// Validate checks that b is well formed enough to be synthesized: at least
// one entry, unique entity IDs, and each entry consistent with its outcome.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}
	if len(b.Entries) == 0 {
		return fmt.Errorf("bundle has no entries")
	}
	seen := make(map[string]bool, len(b.Entries))
	for i, e := range b.Entries {
		if e.EntityID == "" {
			return fmt.Errorf("entry %d: missing entity id", i)
		}
		if seen[e.EntityID] {
			return fmt.Errorf("entry %d: duplicate entity id %q", i, e.EntityID)
		}
		seen[e.EntityID] = true

		switch e.Outcome {
		case OutcomeSuccess:
			if !isJSONObject(e.Result) {
				return fmt.Errorf("entry %q: success without an object result", e.EntityID)
			}
		case OutcomeError:
			if e.Error == "" {
				return fmt.Errorf("entry %q: error without detail", e.EntityID)
			}
		default:
			return fmt.Errorf("entry %q: unknown outcome %q", e.EntityID, e.Outcome)
		}
	}
	return nil
}

// --- Wire payloads ---

// discoveryPayload is the schema of a successful discovery response.
type discoveryPayload struct {
	TaskID   string `json:"task_id,omitempty"`
	Entities []struct {
		Name string `json:"name"`
	} `json:"entities"`
}

// ErrorPayload is the structured failure body shared by all collaborators.
type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

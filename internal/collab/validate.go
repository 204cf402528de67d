package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeDiscovery validates a discovery response body and assigns entity IDs.
// An empty entity list is valid; an entity without a name is not.
func DecodeDiscovery(body []byte) (*DiscoveryResult, error) {
	if !isJSONObject(body) {
		return nil, &MalformedResponseError{Op: OpDiscover, Reason: "body is not a JSON object"}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &MalformedResponseError{Op: OpDiscover, Reason: err.Error()}
	}
	if _, ok := raw["entities"]; !ok {
		return nil, &MalformedResponseError{Op: OpDiscover, Reason: `missing "entities"`}
	}

	var payload discoveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedResponseError{Op: OpDiscover, Reason: err.Error()}
	}

	names := make([]string, 0, len(payload.Entities))
	for i, e := range payload.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, &MalformedResponseError{Op: OpDiscover, Reason: fmt.Sprintf("entity %d has no name", i)}
		}
		names = append(names, name)
	}

	return &DiscoveryResult{
		TaskID:   payload.TaskID,
		Entities: NewEntities(names),
	}, nil
}

// DecodeObject validates that body is a single JSON object and returns a
// compacted copy of it.
func DecodeObject(op string, body []byte) (json.RawMessage, error) {
	if !isJSONObject(body) {
		return nil, &MalformedResponseError{Op: op, Reason: "body is not a JSON object"}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return json.RawMessage(buf.Bytes()), nil
}

// DecodeError extracts a structured {"error": "..."} body. ok is false when
// body does not carry one.
func DecodeError(body []byte) (payload ErrorPayload, ok bool) {
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return ErrorPayload{}, false
	}
	return payload, true
}

// isJSONObject reports whether data is a syntactically valid JSON object.
func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

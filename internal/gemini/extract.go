package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when model text contains no parseable JSON object.
var ErrNoJSON = errors.New("could not find a valid JSON object in the model's response")

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ExtractJSON returns the JSON object embedded in model output. A fenced
// ```json block wins; otherwise the span from the first '{' to the last '}'
// is tried. The result is compacted.
func ExtractJSON(text string) (json.RawMessage, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if obj, ok := compactObject(m[1]); ok {
			return obj, nil
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if obj, ok := compactObject(text[start : end+1]); ok {
			return obj, nil
		}
	}
	return nil, ErrNoJSON
}

func compactObject(s string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

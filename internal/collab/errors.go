package collab

import (
	"errors"
	"fmt"
)

// Operation names used in errors.
const (
	OpDiscover   = "discover"
	OpAnalyze    = "analyze"
	OpSynthesize = "synthesize"
)

// Messages reported in a collaborator's {"error"} payload. They are wire text
// shared with upstream collaborators and must match verbatim.
const (
	MsgMissingRobot = "'robot' parameter is missing."
	MsgMissingName  = "'name' parameter is missing."
	MsgEmptyBundle  = "No entity data provided for final report."
	MsgNoSearchData = "Search returned no content."
)

// ErrMalformedResponse is matched by every MalformedResponseError.
var ErrMalformedResponse = errors.New("malformed response")

// RemoteError is a failure reported by a collaborator through its structured
// {"error": "..."} payload. Message is the upstream text, unmodified.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Details    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// MalformedResponseError reports a collaborator payload that does not match
// the schema of its response type.
type MalformedResponseError struct {
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedResponse) match.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// Message returns the upstream message carried by err: the remote {"error"}
// text for a RemoteError, otherwise err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

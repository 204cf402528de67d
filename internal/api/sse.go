package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dusk-indust/briefing/internal/engine"
)

// sseWriter writes Server-Sent Events to an http.ResponseWriter.
// Call init once before writing any events to set the required headers.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

// init sets the SSE response headers and flushes them to the client.
func (sw *sseWriter) init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// writeEvent writes ev as a "status" event:
//
//	event: status
//	data: {json}
func (sw *sseWriter) writeEvent(ev engine.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "event: status\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	sw.flush()
	return nil
}

// writeComment writes an SSE comment line, used as a keep-alive.
func (sw *sseWriter) writeComment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("sse: write comment: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *sseWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// StreamEvent is one status event read from an event stream, or the error
// that prevented decoding it.
type StreamEvent struct {
	Event engine.StatusEvent
	Err   error
}

// ReadEvents parses the status event stream in body and delivers events on
// the returned channel. The channel is closed when the body is exhausted, a
// read error occurs, or ctx is canceled; body is closed when reading ends.
//
// Comment lines and fields other than "data" are ignored. Multiple "data"
// lines in one event are joined with newlines. Malformed JSON produces a
// StreamEvent with Err set and reading continues.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		var data strings.Builder

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				if data.Len() > 0 {
					emit(ctx, ch, data.String())
				}
				return
			}

			line := scanner.Text()
			switch {
			case line == "":
				if data.Len() > 0 {
					emit(ctx, ch, data.String())
					data.Reset()
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
	}()
	return ch
}

func emit(ctx context.Context, ch chan<- StreamEvent, raw string) {
	var se StreamEvent
	if err := json.Unmarshal([]byte(raw), &se.Event); err != nil {
		se = StreamEvent{Err: fmt.Errorf("sse: unmarshal event: %w", err)}
	}
	select {
	case ch <- se:
	case <-ctx.Done():
	}
}

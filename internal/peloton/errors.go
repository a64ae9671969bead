package peloton

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TransportError wraps a failure to reach the API at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("peloton %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError represents a non-successful response.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("peloton request failed with status %d %s", e.Status, http.StatusText(e.Status))
}

// ResponseBody extracts the upstream body from err as JSON, if there is one.
// Non-JSON bodies are encoded as a JSON string.
func ResponseBody(err error) json.RawMessage {
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || len(upstream.Body) == 0 {
		return nil
	}
	if json.Valid(upstream.Body) {
		return append(json.RawMessage(nil), upstream.Body...)
	}
	encoded, encErr := json.Marshal(string(upstream.Body))
	if encErr != nil {
		return nil
	}
	return encoded
}

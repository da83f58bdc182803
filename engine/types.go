// Package engine is the client for the analysis engine: it submits a method
// for out-of-process execution and drives the Created → Processing →
// Finished/Failed state machine by polling, exposing a single completion
// handle to callers. The engine's internals (clustering math, feature
// extraction, classifier training) are opaque; its contract is "accepts
// method parameters, eventually returns a result or a failure".
package engine

import (
	"encoding/json"
)

// Job status strings reported by the engine
const (
	StatusProcessing = "processing"
	StatusFinished   = "finished"
	StatusFailed     = "failed"
)

// submitRequest is the body of POST /api/datasets/{datasetId}/methods
type submitRequest struct {
	MethodType string          `json:"methodType"`
	Parameters json.RawMessage `json:"parameters"`
	AppliedOn  int64           `json:"appliedOn"`
}

// submitResponse is the synchronous response to a submit. Cheap methods take
// the fast path and carry a terminal result immediately; otherwise the engine
// reports "processing" plus a correlation hash for the polling phase.
type submitResponse struct {
	ID         int64           `json:"id"`
	Status     string          `json:"status,omitempty"`
	Hash       string          `json:"hash,omitempty"`
	AppliedOn  int64           `json:"appliedOn,omitempty"`
	MethodType string          `json:"methodType,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// statusResponse is the response to GET .../methods/{id}/status?hash={hash}.
// The engine may rotate the hash; the client carries the returned one forward.
type statusResponse struct {
	Status   string `json:"status"`
	Hash     string `json:"hash,omitempty"`
	MethodID *int64 `json:"methodId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// methodResponse is the full method record fetched after a job finishes
type methodResponse struct {
	ID         int64           `json:"id"`
	MethodType string          `json:"methodType"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	AppliedOn  int64           `json:"appliedOn"`
	Produced   []int64         `json:"produced,omitempty"`
}

// Result is the terminal payload of a successfully completed job
type Result struct {
	JobID    int64           `json:"job_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Produced []int64         `json:"produced,omitempty"`
}

// DocumentsPage is one page of the engine's document listing for a subset
type DocumentsPage struct {
	Documents []json.RawMessage `json:"documents"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// FieldContext carries the field selection for document queries, scoped to
// one dataset view's lifetime rather than held as process-wide state.
type FieldContext struct {
	Fields []string
}

// queryString renders the field selection for the documents endpoint
func (fc FieldContext) queryString() string {
	out := ""
	for i, f := range fc.Fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}

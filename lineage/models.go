// Package lineage is the single source of truth for a dataset's provenance
// graph. Subsets record which documents they contain and which method produced
// them; methods record which subset they were applied on and which subsets they
// produced. All structural mutations go through the Store so the graph stays a
// DAG rooted at the dataset's root subset.
package lineage

import (
	"encoding/json"
	"time"
)

// RootSubsetID is the id of the distinguished whole-dataset subset.
// It is the only subset with no producing method.
const RootSubsetID int64 = 0

// FieldType enumerates the supported document field types
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldStringV  FieldType = "string_v"
	FieldFloat    FieldType = "float"
	FieldDatetime FieldType = "datetime"
)

// Field describes one column of a dataset's schema.
// Min/Max are populated for numeric fields only.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	Min  *float64  `json:"min,omitempty"`
	Max  *float64  `json:"max,omitempty"`
}

// Dataset holds the immutable schema and identity of one loaded collection.
// Only Label and Description may be edited after creation.
type Dataset struct {
	ID          int64     `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Fields      []Field   `json:"fields"`
	Loaded      bool      `json:"loaded"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is one record of the dataset. Created at load time and never
// restructured, only filtered into subsets.
type Document struct {
	ID     int64                      `json:"id"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// Subset is a node of the lineage graph: a set of documents by membership,
// produced by exactly one method unless it is the root subset.
type Subset struct {
	ID          int64  `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`

	// ResultedIn is the id of the method that produced this subset.
	// nil only for the root subset.
	ResultedIn *int64 `json:"resulted_in,omitempty"`

	// DocumentCount is maintained by the store alongside membership
	DocumentCount int `json:"document_count"`

	// Version advances on every mutation; mutations carrying a stale
	// version are rejected with ErrConflict
	Version int64 `json:"version"`
}

// IsRoot reports whether this is the distinguished whole-dataset subset
func (s *Subset) IsRoot() bool {
	return s.ID == RootSubsetID
}

// MethodStatus represents the lifecycle state of a method's engine job
type MethodStatus string

const (
	StatusCreated    MethodStatus = "created"
	StatusProcessing MethodStatus = "processing"
	StatusFinished   MethodStatus = "finished"
	StatusFailed     MethodStatus = "failed"
)

// IsTerminal returns true for finished and failed
func (s MethodStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Well-known method types. Parameters and result payloads are opaque to the
// lineage store; their semantics are owned by the analysis engine.
const (
	MethodClusteringKMeans       = "clustering.kmeans"
	MethodFilterManual           = "filter.manual"
	MethodClassifyActiveLearning = "classify.active-learning"
	MethodVisualizationPrefix    = "visualization."
)

// Method is a unit of analysis work applied to one subset, optionally
// producing new subsets. Status advances Created → Processing → Finished or
// Failed; Result is write-once and present only when finished.
type Method struct {
	ID         int64           `json:"id"`
	Type       string          `json:"method_type"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Status     MethodStatus    `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`

	// AppliedOn is the subset this method was applied on (required)
	AppliedOn int64 `json:"applied_on"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// process marks the method as processing
func (m *Method) process() {
	m.Status = StatusProcessing
	m.UpdatedAt = time.Now()
}

// finish marks the method as finished and attaches its write-once result
func (m *Method) finish(result json.RawMessage) {
	m.Status = StatusFinished
	m.Result = result
	m.UpdatedAt = time.Now()
}

// fail marks the method as failed with the engine-reported reason
func (m *Method) fail(reason string) {
	m.Status = StatusFailed
	m.Error = reason
	m.UpdatedAt = time.Now()
}

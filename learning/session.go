package learning

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/siftlab/sift/errors"
	"github.com/siftlab/sift/lineage"
)

// Parameters configures a new session
type Parameters struct {
	Query  string   `json:"query,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// Statistics is the classifier's running summary over the applied-on subset
type Statistics struct {
	Positive int `json:"positive"`
	Total    int `json:"total"`
}

const (
	actionStart  = "start"
	actionLabel  = "label"
	actionFinish = "finish"
)

// updateRequest is the engine-side payload for every session submit. The
// session id correlates the incremental jobs server-side.
type updateRequest struct {
	Session  string   `json:"session"`
	Action   string   `json:"action"`
	Query    string   `json:"query,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Document int64    `json:"document,omitempty"`
	Positive bool     `json:"positive,omitempty"`
}

// sessionState is the engine's response payload after any session action
type sessionState struct {
	Statistics Statistics `json:"statistics"`
	CurrentDoc int64      `json:"currentDoc"`
	Positives  []int64    `json:"positives"`
}

// Session is one live labeling loop. At most one update is in flight at a
// time: Label and Finish return ErrUpdateInFlight while a previous update has
// not resolved, so the caller's view never interleaves.
type Session struct {
	id         string
	appliedOn  int64
	params     Parameters
	controller *Controller
	logger     *zap.SugaredLogger

	mu         sync.Mutex
	inFlight   bool
	closed     bool
	stats      Statistics
	currentDoc int64
	positives  []int64
	labels     map[int64]bool
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// AppliedOn returns the subset the classifier runs over
func (s *Session) AppliedOn() int64 { return s.appliedOn }

// Statistics returns the latest classifier statistics
func (s *Session) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CurrentDoc returns the document currently presented for labeling
func (s *Session) CurrentDoc() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDoc
}

// Positives returns the ids the classifier currently predicts positive
func (s *Session) Positives() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.positives))
	copy(out, s.positives)
	return out
}

// Label records a judgment on a document and submits an incremental update.
// The local label is applied optimistically before the engine confirms; the
// statistics and next document arrive with the resolved update.
func (s *Session) Label(ctx context.Context, docID int64, positive bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrSessionClosed
	}
	if s.inFlight {
		s.mu.Unlock()
		return errors.ErrUpdateInFlight
	}
	s.inFlight = true
	s.labels[docID] = positive
	s.mu.Unlock()

	state, err := s.submit(ctx, updateRequest{
		Session:  s.id,
		Action:   actionLabel,
		Document: docID,
		Positive: positive,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return err
	}
	s.stats = state.Statistics
	s.currentDoc = state.CurrentDoc
	s.positives = state.Positives
	return nil
}

// Finish accepts the classifier's current prediction. The engine materializes
// the final model, then the result is recorded as a method plus a subset
// holding the predicted-positive documents. The session is closed either way
// on success.
func (s *Session) Finish(ctx context.Context, label, description string) (*lineage.Subset, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.ErrSessionClosed
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, errors.ErrUpdateInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	state, err := s.submit(ctx, updateRequest{
		Session: s.id,
		Action:  actionFinish,
	})
	if err != nil {
		s.abortUpdate()
		return nil, err
	}

	params, err := json.Marshal(struct {
		Session string         `json:"session"`
		Query   string         `json:"query,omitempty"`
		Fields  []string       `json:"fields,omitempty"`
		Labels  map[int64]bool `json:"labels"`
	}{
		Session: s.id,
		Query:   s.params.Query,
		Fields:  s.params.Fields,
		Labels:  s.labels,
	})
	if err != nil {
		s.abortUpdate()
		return nil, errors.Wrap(err, "failed to marshal method parameters")
	}

	store := s.controller.store
	method, err := store.CreateMethod(s.appliedOn, lineage.MethodClassifyActiveLearning, params)
	if err != nil {
		s.abortUpdate()
		return nil, err
	}

	result, _ := json.Marshal(state.Statistics)
	if err := store.MarkProcessing(method.ID); err != nil {
		s.abortUpdate()
		return nil, err
	}
	if err := store.MarkFinished(method.ID, result); err != nil {
		s.abortUpdate()
		return nil, err
	}

	subset, err := store.CreateSubset(method.ID, label, description,
		lineage.SelectIDs(state.Positives...))
	if err != nil {
		s.abortUpdate()
		return nil, err
	}

	s.mu.Lock()
	s.closed = true
	s.inFlight = false
	s.mu.Unlock()
	s.controller.remove(s.id)

	s.logger.Infow("Session finished",
		"method_id", method.ID,
		"subset_id", subset.ID,
		"documents", subset.DocumentCount,
	)
	return subset, nil
}

// abortUpdate releases the in-flight slot after a failed update so the
// session stays usable: the caller may retry or stop it
func (s *Session) abortUpdate() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// Stop discards the session without materializing anything
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.controller.remove(s.id)
	s.logger.Infow("Session stopped")
}

// submit sends one session action and waits for the resolved state
func (s *Session) submit(ctx context.Context, req updateRequest) (*sessionState, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session update")
	}

	h, err := s.controller.engine.Submit(ctx, s.appliedOn, lineage.MethodClassifyActiveLearning, body)
	if err != nil {
		return nil, err
	}
	res, err := h.Await(ctx)
	if err != nil {
		return nil, err
	}

	var state sessionState
	if err := json.Unmarshal(res.Payload, &state); err != nil {
		return nil, errors.Wrap(err, "failed to decode session state")
	}
	return &state, nil
}

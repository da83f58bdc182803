// Package learning runs interactive active-learning sessions: an iterative
// label → statistics → next-document loop on top of the engine client, ending
// when the user accepts or stops the session. A finished session is folded
// into an ordinary method/subset pair in the lineage store and discarded.
package learning

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siftlab/sift/engine"
	"github.com/siftlab/sift/errors"
	"github.com/siftlab/sift/lineage"
)

// Controller owns the live sessions for one dataset view
type Controller struct {
	engine Submitter
	store  *lineage.Store
	logger *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*Session
}

// Submitter is the slice of the engine client the controller needs
type Submitter interface {
	Submit(ctx context.Context, appliedOn int64, methodType string, parameters json.RawMessage) (*engine.Handle, error)
}

// NewController creates a controller over the given engine client and store
func NewController(engine Submitter, store *lineage.Store, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		engine:   engine,
		store:    store,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Start creates a session by submitting the initial classify job. The first
// resolved result carries the starting statistics and the first document to
// present for labeling.
func (c *Controller) Start(ctx context.Context, appliedOn int64, params Parameters) (*Session, error) {
	if _, err := c.store.Subset(appliedOn); err != nil {
		return nil, err
	}

	id := uuid.NewString()

	body, err := json.Marshal(updateRequest{
		Session: id,
		Action:  actionStart,
		Query:   params.Query,
		Fields:  params.Fields,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session start")
	}

	h, err := c.engine.Submit(ctx, appliedOn, lineage.MethodClassifyActiveLearning, body)
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

	s := &Session{
		id:         id,
		appliedOn:  appliedOn,
		params:     params,
		controller: c,
		logger:     c.logger.With("session_id", id),
		stats:      state.Statistics,
		currentDoc: state.CurrentDoc,
		positives:  state.Positives,
		labels:     make(map[int64]bool),
	}

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	s.logger.Infow("Active-learning session started",
		"applied_on", appliedOn,
		"current_doc", state.CurrentDoc,
	)
	return s, nil
}

// Session returns a live session by id. Finished and stopped sessions are no
// longer addressable.
func (c *Controller) Session(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, errors.NewNotFound("session %s", id)
	}
	return s, nil
}

// remove discards a session
func (c *Controller) remove(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

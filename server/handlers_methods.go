package server

import (
	"encoding/json"
	"net/http"

	"github.com/siftlab/sift/engine"
	"github.com/siftlab/sift/lineage"
)

// createMethodRequest submits a new analysis method on a subset. Label and
// description name the subset materialized when the job finishes.
type createMethodRequest struct {
	AppliedOn   int64           `json:"applied_on"`
	MethodType  string          `json:"method_type"`
	Parameters  json.RawMessage `json:"parameters"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
}

// HandleCreateMethod records a method, submits the job to the engine, and
// returns 202 while the job runs. Fast jobs may already be finished in the
// response; slow jobs resolve through the poll loop and the WebSocket feed.
func (s *SiftServer) HandleCreateMethod(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req createMethodRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.MethodType == "" {
		writeError(w, http.StatusBadRequest, "method_type is required")
		return
	}

	method, err := view.store.CreateMethod(req.AppliedOn, req.MethodType, req.Parameters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.mirror.SaveMethod(datasetID, method); err != nil {
		writeDomainError(w, err)
		return
	}

	// Submissions use the server context: the job outlives this request
	handle, err := view.engine.Submit(s.ctx, req.AppliedOn, req.MethodType, req.Parameters)
	if err != nil {
		s.failMethod(view, datasetID, method.ID, err)
		writeDomainError(w, err)
		return
	}

	if err := view.store.MarkProcessing(method.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	s.mirrorMethod(view, datasetID, method.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.awaitMethod(view, datasetID, method.ID, req.Label, req.Description, handle)
	}()

	updated, err := view.store.Method(method.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, updated)
}

// awaitMethod blocks on the job handle and folds the outcome into the store:
// finished methods get their result recorded and, when the engine named the
// produced documents, a subset is materialized from them.
func (s *SiftServer) awaitMethod(view *datasetView, datasetID, methodID int64, label, description string, handle *engine.Handle) {
	res, err := handle.Await(s.ctx)
	if err != nil {
		s.failMethod(view, datasetID, methodID, err)
		return
	}

	if err := view.store.MarkFinished(methodID, res.Payload); err != nil {
		s.logger.Errorw("Failed to record method result",
			"dataset_id", datasetID,
			"method_id", methodID,
			"error", err,
		)
		return
	}
	s.mirrorMethod(view, datasetID, methodID)

	if len(res.Produced) == 0 {
		return
	}
	if label == "" {
		method, err := view.store.Method(methodID)
		if err == nil {
			label = method.Type
		}
	}
	subset, err := view.store.CreateSubset(methodID, label, description, lineage.SelectIDs(res.Produced...))
	if err != nil {
		s.logger.Errorw("Failed to materialize subset",
			"dataset_id", datasetID,
			"method_id", methodID,
			"error", err,
		)
		return
	}
	members, err := view.store.Members(subset.ID)
	if err == nil {
		if err := s.mirror.SaveSubset(datasetID, subset, members); err != nil {
			s.logger.Errorw("Failed to mirror subset",
				"dataset_id", datasetID,
				"subset_id", subset.ID,
				"error", err,
			)
		}
	}
}

// failMethod marks a method failed in memory and the mirror
func (s *SiftServer) failMethod(view *datasetView, datasetID, methodID int64, cause error) {
	if err := view.store.MarkFailed(methodID, cause.Error()); err != nil {
		s.logger.Errorw("Failed to record method failure",
			"dataset_id", datasetID,
			"method_id", methodID,
			"error", err,
		)
		return
	}
	s.mirrorMethod(view, datasetID, methodID)
}

// mirrorMethod writes a method's current in-memory state to the mirror
func (s *SiftServer) mirrorMethod(view *datasetView, datasetID, methodID int64) {
	method, err := view.store.Method(methodID)
	if err != nil {
		return
	}
	if err := s.mirror.UpdateMethod(datasetID, method); err != nil {
		s.logger.Errorw("Failed to mirror method",
			"dataset_id", datasetID,
			"method_id", methodID,
			"error", err,
		)
	}
}

// methodResponse pairs a method with the subsets it produced
type methodResponse struct {
	*lineage.Method
	Produced []int64 `json:"produced"`
}

// HandleGetMethod returns one method with its produced subsets
func (s *SiftServer) HandleGetMethod(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	methodID, ok := pathID(w, r, "method")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	method, err := view.store.Method(methodID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	produced, err := view.store.ProducedBy(methodID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, methodResponse{Method: method, Produced: produced})
}

// HandleDeleteMethod removes a method and cascades to everything derived from
// it. The mirror is updated through the store's deletion events.
func (s *SiftServer) HandleDeleteMethod(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	methodID, ok := pathID(w, r, "method")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := view.store.DeleteMethod(methodID); err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Infow("Method deleted",
		"dataset_id", datasetID,
		"method_id", methodID,
	)
	w.WriteHeader(http.StatusNoContent)
}

package server

import (
	"net/http"

	"github.com/siftlab/sift/learning"
)

// startSessionRequest opens an active-learning session on a subset
type startSessionRequest struct {
	AppliedOn int64               `json:"applied_on"`
	Params    learning.Parameters `json:"params"`
}

// sessionResponse is the wire shape of a live session
type sessionResponse struct {
	ID         string              `json:"id"`
	AppliedOn  int64               `json:"applied_on"`
	Statistics learning.Statistics `json:"statistics"`
	CurrentDoc int64               `json:"current_doc"`
	Positives  []int64             `json:"positives"`
}

func describeSession(sess *learning.Session) sessionResponse {
	return sessionResponse{
		ID:         sess.ID(),
		AppliedOn:  sess.AppliedOn(),
		Statistics: sess.Statistics(),
		CurrentDoc: sess.CurrentDoc(),
		Positives:  sess.Positives(),
	}
}

// HandleStartSession opens a session and returns the first document to label
func (s *SiftServer) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req startSessionRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	sess, err := view.learning.Start(r.Context(), req.AppliedOn, req.Params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, describeSession(sess))
}

// HandleGetSession returns the current state of a session
func (s *SiftServer) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.sessionScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeSession(sess))
}

// labelRequest is one judgment on the presented document
type labelRequest struct {
	Document int64 `json:"document"`
	Positive bool  `json:"positive"`
}

// HandleLabel records a label and returns the refreshed session state. While
// an earlier label is still resolving the request is rejected with 429.
func (s *SiftServer) HandleLabel(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.sessionScope(w, r)
	if !ok {
		return
	}

	var req labelRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	if err := sess.Label(r.Context(), req.Document, req.Positive); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describeSession(sess))
}

// finishSessionRequest names the subset materialized from the session
type finishSessionRequest struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// HandleFinishSession accepts the classifier and materializes the
// predicted-positive documents as a method plus subset
func (s *SiftServer) HandleFinishSession(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	view, sess, ok := s.sessionScope(w, r)
	if !ok {
		return
	}

	var req finishSessionRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "Subset label is required")
		return
	}

	subset, err := sess.Finish(r.Context(), req.Label, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Mirror the materialized method and subset
	if subset.ResultedIn != nil {
		if method, err := view.store.Method(*subset.ResultedIn); err == nil {
			if err := s.mirror.SaveMethod(datasetID, method); err != nil {
				s.logger.Errorw("Failed to mirror session method",
					"dataset_id", datasetID,
					"method_id", method.ID,
					"error", err,
				)
			} else {
				s.mirrorMethod(view, datasetID, method.ID)
			}
		}
	}
	if members, err := view.store.Members(subset.ID); err == nil {
		if err := s.mirror.SaveSubset(datasetID, subset, members); err != nil {
			s.logger.Errorw("Failed to mirror session subset",
				"dataset_id", datasetID,
				"subset_id", subset.ID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusCreated, subset)
}

// HandleStopSession discards a session without materializing anything
func (s *SiftServer) HandleStopSession(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.sessionScope(w, r)
	if !ok {
		return
	}
	sess.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// sessionScope resolves the {dataset} and {session} path values
func (s *SiftServer) sessionScope(w http.ResponseWriter, r *http.Request) (*datasetView, *learning.Session, bool) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return nil, nil, false
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return nil, nil, false
	}
	sess, err := view.learning.Session(r.PathValue("session"))
	if err != nil {
		writeDomainError(w, err)
		return nil, nil, false
	}
	return view, sess, true
}

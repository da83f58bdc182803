package server

import (
	"net/http"

	"github.com/siftlab/sift/engine"
	"github.com/siftlab/sift/lineage"
)

// HandleGetSubset returns one subset node
func (s *SiftServer) HandleGetSubset(w http.ResponseWriter, r *http.Request) {
	view, subsetID, ok := s.subsetScope(w, r)
	if !ok {
		return
	}
	subset, err := view.store.Subset(subsetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subset)
}

// updateSubsetRequest edits a subset's label and description. Version must
// match the subset's current version or the edit is rejected as stale.
type updateSubsetRequest struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Version     int64  `json:"version"`
}

// HandleUpdateSubset applies an optimistic label/description edit
func (s *SiftServer) HandleUpdateSubset(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	subsetID, ok := pathID(w, r, "subset")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req updateSubsetRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	subset, err := view.store.UpdateSubsetInfo(subsetID, req.Version, req.Label, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.mirror.UpdateSubsetInfo(datasetID, subset); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subset)
}

// HandleDeleteSubset removes a subset and cascades to everything derived from
// it. The root subset cannot be deleted.
func (s *SiftServer) HandleDeleteSubset(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	subsetID, ok := pathID(w, r, "subset")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := view.store.DeleteSubset(subsetID); err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Infow("Subset deleted",
		"dataset_id", datasetID,
		"subset_id", subsetID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubsetMethods lists the methods applied on a subset
func (s *SiftServer) HandleSubsetMethods(w http.ResponseWriter, r *http.Request) {
	view, subsetID, ok := s.subsetScope(w, r)
	if !ok {
		return
	}
	ids, err := view.store.MethodsOn(subsetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]*lineage.Method, 0, len(ids))
	for _, id := range ids {
		method, err := view.store.Method(id)
		if err != nil {
			continue
		}
		out = append(out, method)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSubsetDocuments proxies a page of subset documents from the engine.
// Pagination, query filtering, and field projection pass straight through.
func (s *SiftServer) HandleSubsetDocuments(w http.ResponseWriter, r *http.Request) {
	view, subsetID, ok := s.subsetScope(w, r)
	if !ok {
		return
	}
	if _, err := view.store.Subset(subsetID); err != nil {
		writeDomainError(w, err)
		return
	}

	page := queryInt(r, "page", 0)
	limit := queryInt(r, "limit", s.cfg.Learning.PageLimit)
	query := r.URL.Query().Get("query")
	fields := engine.FieldContext{Fields: r.URL.Query()["field"]}

	docs, err := view.engine.Documents(r.Context(), subsetID, page, limit, query, fields)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// HandleSubsetAncestors walks the provenance chain from a subset to the root
func (s *SiftServer) HandleSubsetAncestors(w http.ResponseWriter, r *http.Request) {
	view, subsetID, ok := s.subsetScope(w, r)
	if !ok {
		return
	}
	walk, err := view.store.Ancestors(subsetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walk.Collect())
}

// HandleSubsetDescendants walks everything derived from a subset
func (s *SiftServer) HandleSubsetDescendants(w http.ResponseWriter, r *http.Request) {
	view, subsetID, ok := s.subsetScope(w, r)
	if !ok {
		return
	}
	walk, err := view.store.Descendants(subsetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walk.Collect())
}

// subsetScope resolves the {dataset} and {subset} path values to a view
func (s *SiftServer) subsetScope(w http.ResponseWriter, r *http.Request) (*datasetView, int64, bool) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return nil, 0, false
	}
	subsetID, ok := pathID(w, r, "subset")
	if !ok {
		return nil, 0, false
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return nil, 0, false
	}
	return view, subsetID, true
}

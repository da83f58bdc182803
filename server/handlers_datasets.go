package server

import (
	"net/http"
	"time"

	"github.com/siftlab/sift/lineage"
)

// datasetResponse is the wire shape for a dataset and its root subset
type datasetResponse struct {
	ID          int64           `json:"id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Fields      []lineage.Field `json:"fields"`
	Documents   int             `json:"documents"`
	Root        *lineage.Subset `json:"root"`
}

// HandleListDatasets returns every loaded dataset
func (s *SiftServer) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	s.viewsMu.RLock()
	views := make([]*datasetView, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.viewsMu.RUnlock()

	out := make([]datasetResponse, 0, len(views))
	for _, v := range views {
		resp, err := describeDataset(v.store)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out = append(out, *resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetDataset returns one dataset with its root subset
func (s *SiftServer) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := describeDataset(view.store)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func describeDataset(store *lineage.Store) (*datasetResponse, error) {
	ds := store.Dataset()
	root, err := store.Subset(lineage.RootSubsetID)
	if err != nil {
		return nil, err
	}
	return &datasetResponse{
		ID:          ds.ID,
		Label:       ds.Label,
		Description: ds.Description,
		Fields:      ds.Fields,
		Documents:   root.DocumentCount,
		Root:        root,
	}, nil
}

// createDatasetRequest loads a dataset with its schema and documents in one
// call. The root subset is created implicitly and holds every document.
type createDatasetRequest struct {
	Label       string             `json:"label"`
	Description string             `json:"description"`
	Fields      []lineage.Field    `json:"fields"`
	Documents   []lineage.Document `json:"documents"`
}

// HandleCreateDataset ingests a new dataset into the mirror and memory
func (s *SiftServer) HandleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "Dataset label is required")
		return
	}

	ds := &lineage.Dataset{
		Label:       req.Label,
		Description: req.Description,
		Fields:      req.Fields,
		Loaded:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.mirror.SaveDataset(ds); err != nil {
		writeDomainError(w, err)
		return
	}

	store := lineage.NewStore(ds, s.logger)
	for i := range req.Documents {
		doc := &req.Documents[i]
		doc.ID = 0
		if err := s.mirror.SaveDocument(ds.ID, doc); err != nil {
			writeDomainError(w, err)
			return
		}
		store.AddDocument(doc)
	}

	// Persist the root subset so a reload finds the dataset label and version
	root, err := store.Subset(lineage.RootSubsetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.mirror.SaveSubset(ds.ID, root, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	s.openView(store)
	s.logger.Infow("Dataset created",
		"dataset_id", ds.ID,
		"label", ds.Label,
		"documents", len(req.Documents),
	)

	resp, err := describeDataset(store)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// reconcileRequest carries the engine's authoritative node listing
type reconcileRequest struct {
	SubsetIDs []int64 `json:"subset_ids"`
	MethodIDs []int64 `json:"method_ids"`
}

// HandleReconcile drops every node the engine no longer knows, cascading to
// dependents, and reports how many nodes were removed
func (s *SiftServer) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "dataset")
	if !ok {
		return
	}
	view, err := s.view(datasetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req reconcileRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	removedSubsets, removedMethods := view.store.Reconcile(lineage.NewSnapshot(req.SubsetIDs, req.MethodIDs))
	s.logger.Infow("Reconciled dataset",
		"dataset_id", datasetID,
		"removed_subsets", removedSubsets,
		"removed_methods", removedMethods,
	)

	writeJSON(w, http.StatusOK, map[string]int{
		"removed_subsets": removedSubsets,
		"removed_methods": removedMethods,
	})
}

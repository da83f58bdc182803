package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/lineage"
)

// wireMethod mirrors the JSON shape of a method in API responses
type wireMethod struct {
	ID        int64           `json:"id"`
	Type      string          `json:"method_type"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
	AppliedOn int64           `json:"applied_on"`
	Produced  []int64         `json:"produced"`
}

func (h *testHarness) methodPath(datasetID, methodID int64) string {
	return fmt.Sprintf("/api/datasets/%d/methods/%d", datasetID, methodID)
}

func (h *testHarness) subsetPath(datasetID, subsetID int64) string {
	return fmt.Sprintf("/api/datasets/%d/subsets/%d", datasetID, subsetID)
}

// awaitMethodStatus polls the API until the method reaches the wanted status
func (h *testHarness) awaitMethodStatus(t *testing.T, datasetID, methodID int64, want string) wireMethod {
	t.Helper()

	var got wireMethod
	require.Eventually(t, func() bool {
		status := h.request(t, http.MethodGet, h.methodPath(datasetID, methodID), nil, &got)
		return status == http.StatusOK && got.Status == want
	}, 10*time.Second, 50*time.Millisecond, "method never reached status %q", want)
	return got
}

func TestCreateMethodFastPath(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 4)

	var accepted wireMethod
	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  0,
			"method_type": "filter.manual",
			"parameters":  map[string][]int64{"ids": {1, 2}},
		}, &accepted)
	require.Equal(t, http.StatusAccepted, status)
	require.NotZero(t, accepted.ID)

	got := h.awaitMethodStatus(t, id, accepted.ID, "finished")
	assert.JSONEq(t, `{"matched":2}`, string(got.Result))
	assert.Empty(t, got.Produced)
}

func TestCreateMethodRequiresType(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{"applied_on": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateMethodOnMissingSubset(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  7,
			"method_type": "filter.manual",
		}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMethodFailureIsRecorded(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	var accepted wireMethod
	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  0,
			"method_type": "fail.always",
		}, &accepted)
	require.Equal(t, http.StatusAccepted, status)

	got := h.awaitMethodStatus(t, id, accepted.ID, "failed")
	assert.Contains(t, got.Error, "engine exploded")
}

func TestPollingMethodMaterializesSubset(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 4)
	h.engine.mu.Lock()
	h.engine.produced = []int64{1, 3}
	h.engine.mu.Unlock()

	var accepted wireMethod
	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  0,
			"method_type": "clustering.kmeans",
			"label":       "clusters",
		}, &accepted)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "processing", accepted.Status)

	got := h.awaitMethodStatus(t, id, accepted.ID, "finished")
	require.Len(t, got.Produced, 1)

	var subset lineage.Subset
	status = h.request(t, http.MethodGet, h.subsetPath(id, got.Produced[0]), nil, &subset)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "clusters", subset.Label)
	assert.Equal(t, 2, subset.DocumentCount)

	// The materialized subset must survive a reload
	require.Eventually(t, func() bool {
		snap, err := h.srv.mirror.Snapshot(id)
		if err != nil {
			return false
		}
		_, ok := snap.SubsetIDs[got.Produced[0]]
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestDeleteMethodCascadesToSubsets(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 4)
	h.engine.mu.Lock()
	h.engine.produced = []int64{1, 2}
	h.engine.mu.Unlock()

	var accepted wireMethod
	h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  0,
			"method_type": "clustering.kmeans",
		}, &accepted)
	got := h.awaitMethodStatus(t, id, accepted.ID, "finished")
	require.Len(t, got.Produced, 1)

	status := h.request(t, http.MethodDelete, h.methodPath(id, accepted.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodGet, h.methodPath(id, accepted.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodGet, h.subsetPath(id, got.Produced[0]), nil, nil))

	// Deletion reaches the mirror through the event forwarder
	require.Eventually(t, func() bool {
		snap, err := h.srv.mirror.Snapshot(id)
		if err != nil {
			return false
		}
		_, ok := snap.MethodIDs[accepted.ID]
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestUpdateSubsetOptimisticVersioning(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	var updated lineage.Subset
	status := h.request(t, http.MethodPatch, h.subsetPath(id, 0),
		map[string]interface{}{"label": "renamed", "version": 0}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "renamed", updated.Label)
	assert.EqualValues(t, 1, updated.Version)

	status = h.request(t, http.MethodPatch, h.subsetPath(id, 0),
		map[string]interface{}{"label": "stale", "version": 0}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestDeleteRootSubsetRejected(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	status := h.request(t, http.MethodDelete, h.subsetPath(id, 0), nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestSubsetDocumentsProxiesEngine(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	var page struct {
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	status := h.request(t, http.MethodGet,
		h.subsetPath(id, 0)+"/documents?page=2&limit=5", nil, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 5, page.Limit)
}

func TestSubsetAncestors(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 4)
	h.engine.mu.Lock()
	h.engine.produced = []int64{1, 2}
	h.engine.mu.Unlock()

	var accepted wireMethod
	h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  0,
			"method_type": "clustering.kmeans",
		}, &accepted)
	got := h.awaitMethodStatus(t, id, accepted.ID, "finished")
	require.Len(t, got.Produced, 1)

	var refs []struct {
		Kind string `json:"kind"`
		ID   int64  `json:"id"`
	}
	status := h.request(t, http.MethodGet,
		h.subsetPath(id, got.Produced[0])+"/ancestors", nil, &refs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, refs, 3)
	assert.Equal(t, "subset", refs[0].Kind)
	assert.Equal(t, got.Produced[0], refs[0].ID)
	assert.Equal(t, "method", refs[1].Kind)
	assert.Equal(t, "subset", refs[2].Kind)
	assert.EqualValues(t, 0, refs[2].ID)
}

func TestReconcileDropsUnknownNodes(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 4)
	h.engine.mu.Lock()
	h.engine.produced = []int64{1, 2}
	h.engine.mu.Unlock()

	var accepted wireMethod
	h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/methods", id),
		map[string]interface{}{
			"applied_on":  0,
			"method_type": "clustering.kmeans",
		}, &accepted)
	got := h.awaitMethodStatus(t, id, accepted.ID, "finished")
	require.Len(t, got.Produced, 1)

	var removed map[string]int
	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/reconcile", id),
		map[string]interface{}{
			"subset_ids": []int64{0},
			"method_ids": []int64{},
		}, &removed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, removed["removed_subsets"])
	assert.Equal(t, 1, removed["removed_methods"])
}

package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/lineage"
)

func (h *testHarness) startSession(t *testing.T, datasetID int64) sessionResponse {
	t.Helper()

	var sess sessionResponse
	status := h.request(t, http.MethodPost, fmt.Sprintf("/api/datasets/%d/learning", datasetID),
		map[string]interface{}{
			"applied_on": 0,
			"params":     map[string]interface{}{"query": "beatles", "fields": []string{"text"}},
		}, &sess)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, sess.ID)
	return sess
}

func (h *testHarness) sessionPath(datasetID int64, sessionID string) string {
	return fmt.Sprintf("/api/datasets/%d/learning/%s", datasetID, sessionID)
}

func TestLearningSessionLifecycle(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 6)

	sess := h.startSession(t, id)
	assert.EqualValues(t, 1, sess.CurrentDoc)
	assert.Zero(t, sess.Statistics.Total)

	var after sessionResponse
	status := h.request(t, http.MethodPost, h.sessionPath(id, sess.ID)+"/label",
		map[string]interface{}{"document": 1, "positive": true}, &after)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, after.Statistics.Positive)
	assert.Equal(t, 1, after.Statistics.Total)
	assert.EqualValues(t, 2, after.CurrentDoc)

	status = h.request(t, http.MethodPost, h.sessionPath(id, sess.ID)+"/label",
		map[string]interface{}{"document": 2, "positive": false}, &after)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, after.Statistics.Positive)
	assert.Equal(t, 2, after.Statistics.Total)

	var got sessionResponse
	status = h.request(t, http.MethodGet, h.sessionPath(id, sess.ID), nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, after.Statistics, got.Statistics)
}

func TestFinishSessionMaterializesSubset(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 6)

	sess := h.startSession(t, id)
	for doc := int64(1); doc <= 3; doc++ {
		status := h.request(t, http.MethodPost, h.sessionPath(id, sess.ID)+"/label",
			map[string]interface{}{"document": doc, "positive": doc != 2}, nil)
		require.Equal(t, http.StatusOK, status)
	}

	var subset lineage.Subset
	status := h.request(t, http.MethodPost, h.sessionPath(id, sess.ID)+"/finish",
		map[string]interface{}{"label": "relevant"}, &subset)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "relevant", subset.Label)
	assert.Equal(t, 2, subset.DocumentCount)
	require.NotNil(t, subset.ResultedIn)

	// The session is gone once finished
	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodGet, h.sessionPath(id, sess.ID), nil, nil))

	// Both nodes reached the mirror
	snap, err := h.srv.mirror.Snapshot(id)
	require.NoError(t, err)
	assert.Contains(t, snap.SubsetIDs, subset.ID)
	assert.Contains(t, snap.MethodIDs, *subset.ResultedIn)
}

func TestFinishSessionRequiresLabel(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	sess := h.startSession(t, id)
	status := h.request(t, http.MethodPost, h.sessionPath(id, sess.ID)+"/finish",
		map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStopSessionDiscardsState(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	sess := h.startSession(t, id)
	status := h.request(t, http.MethodDelete, h.sessionPath(id, sess.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodGet, h.sessionPath(id, sess.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodPost, h.sessionPath(id, sess.ID)+"/label",
			map[string]interface{}{"document": 1, "positive": true}, nil))
}

func TestUnknownSessionIs404(t *testing.T) {
	h := newTestHarness(t)
	id := h.createDataset(t, 2)

	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodGet, h.sessionPath(id, "deadbeef"), nil, nil))
}

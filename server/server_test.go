package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/config"
	stesting "github.com/siftlab/sift/internal/testing"
)

// fakeEngine stands in for the analysis engine. Behavior is keyed off the
// submitted method type so one instance can serve every test:
//
//	filter.manual            fast path, terminal result in the submit response
//	clustering.kmeans        processing path, finishes on the first status
//	                         poll and reports produced documents
//	fail.always              synchronous failure
//	classify.active-learning stateful session protocol
type fakeEngine struct {
	mu        sync.Mutex
	nextJob   int64
	produced  []int64
	positives []int64
	labeled   int
}

func (f *fakeEngine) jobID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJob++
	return f.nextJob
}

func (f *fakeEngine) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/datasets/{dataset}/methods", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MethodType string          `json:"methodType"`
			Parameters json.RawMessage `json:"parameters"`
			AppliedOn  int64           `json:"appliedOn"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		id := f.jobID()

		switch req.MethodType {
		case "clustering.kmeans":
			writeTestJSON(w, map[string]interface{}{
				"id": id, "status": "processing", "hash": fmt.Sprintf("h%d", id),
			})
		case "fail.always":
			writeTestJSON(w, map[string]interface{}{
				"id": id, "status": "failed", "error": "engine exploded",
			})
		case "classify.active-learning":
			writeTestJSON(w, map[string]interface{}{
				"id": id, "result": f.sessionState(req.Parameters),
			})
		default:
			writeTestJSON(w, map[string]interface{}{
				"id": id, "result": map[string]int{"matched": 2},
			})
		}
	})

	mux.HandleFunc("GET /api/datasets/{dataset}/methods/{method}/status", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]interface{}{"status": "finished"})
	})

	mux.HandleFunc("GET /api/datasets/{dataset}/methods/{method}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		produced := f.produced
		jobID := f.nextJob
		f.mu.Unlock()
		writeTestJSON(w, map[string]interface{}{
			"id":         jobID,
			"methodType": "clustering.kmeans",
			"result":     map[string]int{"clusters": 1},
			"produced":   produced,
		})
	})

	mux.HandleFunc("GET /api/datasets/{dataset}/documents", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		writeTestJSON(w, map[string]interface{}{
			"documents": []json.RawMessage{},
			"total":     42,
			"page":      atoiDefault(q.Get("page"), 0),
			"limit":     atoiDefault(q.Get("limit"), 0),
		})
	})

	return mux
}

// sessionState applies one active-learning update and reports the new state
func (f *fakeEngine) sessionState(params json.RawMessage) map[string]interface{} {
	var update struct {
		Action   string `json:"action"`
		Document int64  `json:"document"`
		Positive bool   `json:"positive"`
	}
	_ = json.Unmarshal(params, &update)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch update.Action {
	case "start":
		f.positives = nil
		f.labeled = 0
	case "label":
		f.labeled++
		if update.Positive {
			f.positives = append(f.positives, update.Document)
		}
	}
	return map[string]interface{}{
		"statistics": map[string]int{"positive": len(f.positives), "total": f.labeled},
		"currentDoc": int64(f.labeled + 1),
		"positives":  f.positives,
	}
}

func writeTestJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func atoiDefault(s string, def int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

// testHarness bundles a server over a migrated in-memory database, an API
// listener, and the fake engine behind it
type testHarness struct {
	srv    *SiftServer
	api    *httptest.Server
	engine *fakeEngine
	cfg    *config.Config
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	fake := &fakeEngine{}
	engineSrv := httptest.NewServer(fake.handler(t))
	t.Cleanup(engineSrv.Close)

	cfg := &config.Config{
		Engine: config.EngineConfig{
			BaseURL:             engineSrv.URL,
			PollIntervalSeconds: 1,
			MaxPolls:            10,
			SubmitRatePerSecond: 1000,
		},
		Learning: config.LearningConfig{PageLimit: 20},
	}

	conn := stesting.CreateMigratedTestDB(t)
	srv, err := NewSiftServer(conn, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })

	api := httptest.NewServer(srv.setupHTTPRoutes())
	t.Cleanup(api.Close)

	return &testHarness{srv: srv, api: api, engine: fake, cfg: cfg}
}

// request performs one API call and decodes the JSON response when out is
// non-nil
func (h *testHarness) request(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, h.api.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// createDataset loads a small dataset with n documents and returns its id
func (h *testHarness) createDataset(t *testing.T, n int) int64 {
	t.Helper()

	docs := make([]map[string]interface{}, n)
	for i := range docs {
		docs[i] = map[string]interface{}{
			"fields": map[string]string{"text": fmt.Sprintf("doc %d", i+1)},
		}
	}
	var created datasetResponse
	status := h.request(t, http.MethodPost, "/api/datasets", map[string]interface{}{
		"label":     "answers",
		"fields":    []map[string]string{{"name": "text", "type": "string"}},
		"documents": docs,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	return created.ID
}

func TestHealthReportsLoadedDatasets(t *testing.T) {
	h := newTestHarness(t)

	var health map[string]interface{}
	status := h.request(t, http.MethodGet, "/health", nil, &health)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 0, health["datasets"])

	h.createDataset(t, 2)
	h.request(t, http.MethodGet, "/health", nil, &health)
	assert.EqualValues(t, 1, health["datasets"])
}

func TestCreateAndGetDataset(t *testing.T) {
	h := newTestHarness(t)

	id := h.createDataset(t, 3)

	var got datasetResponse
	status := h.request(t, http.MethodGet, fmt.Sprintf("/api/datasets/%d", id), nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "answers", got.Label)
	assert.Equal(t, 3, got.Documents)
	require.NotNil(t, got.Root)
	assert.EqualValues(t, 0, got.Root.ID)

	var list []datasetResponse
	status = h.request(t, http.MethodGet, "/api/datasets", nil, &list)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 1)
}

func TestCreateDatasetRequiresLabel(t *testing.T) {
	h := newTestHarness(t)

	status := h.request(t, http.MethodPost, "/api/datasets", map[string]interface{}{
		"description": "no label",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnknownDatasetIs404(t *testing.T) {
	h := newTestHarness(t)

	assert.Equal(t, http.StatusNotFound,
		h.request(t, http.MethodGet, "/api/datasets/99", nil, nil))
	assert.Equal(t, http.StatusBadRequest,
		h.request(t, http.MethodGet, "/api/datasets/abc", nil, nil))
}

func TestDatasetSurvivesRestart(t *testing.T) {
	h := newTestHarness(t)

	id := h.createDataset(t, 3)

	// A second server over the same database must rebuild the view
	srv2, err := NewSiftServer(h.srv.db, h.cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv2.Stop() })

	view, err := srv2.view(id)
	require.NoError(t, err)
	assert.Equal(t, "answers", view.store.Dataset().Label)
	root, err := view.store.Subset(0)
	require.NoError(t, err)
	assert.Equal(t, 3, root.DocumentCount)
}

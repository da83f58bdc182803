package server

import "net/http"

// setupHTTPRoutes configures all HTTP handlers on a fresh mux
func (s *SiftServer) setupHTTPRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("GET /ws", s.corsMiddleware(s.HandleWebSocket))

	mux.HandleFunc("GET /api/datasets", s.corsMiddleware(s.HandleListDatasets))
	mux.HandleFunc("POST /api/datasets", s.corsMiddleware(s.HandleCreateDataset))
	mux.HandleFunc("GET /api/datasets/{dataset}", s.corsMiddleware(s.HandleGetDataset))
	mux.HandleFunc("POST /api/datasets/{dataset}/reconcile", s.corsMiddleware(s.HandleReconcile))

	mux.HandleFunc("POST /api/datasets/{dataset}/methods", s.corsMiddleware(s.HandleCreateMethod))
	mux.HandleFunc("GET /api/datasets/{dataset}/methods/{method}", s.corsMiddleware(s.HandleGetMethod))
	mux.HandleFunc("DELETE /api/datasets/{dataset}/methods/{method}", s.corsMiddleware(s.HandleDeleteMethod))

	mux.HandleFunc("GET /api/datasets/{dataset}/subsets/{subset}", s.corsMiddleware(s.HandleGetSubset))
	mux.HandleFunc("PATCH /api/datasets/{dataset}/subsets/{subset}", s.corsMiddleware(s.HandleUpdateSubset))
	mux.HandleFunc("DELETE /api/datasets/{dataset}/subsets/{subset}", s.corsMiddleware(s.HandleDeleteSubset))
	mux.HandleFunc("GET /api/datasets/{dataset}/subsets/{subset}/methods", s.corsMiddleware(s.HandleSubsetMethods))
	mux.HandleFunc("GET /api/datasets/{dataset}/subsets/{subset}/documents", s.corsMiddleware(s.HandleSubsetDocuments))
	mux.HandleFunc("GET /api/datasets/{dataset}/subsets/{subset}/ancestors", s.corsMiddleware(s.HandleSubsetAncestors))
	mux.HandleFunc("GET /api/datasets/{dataset}/subsets/{subset}/descendants", s.corsMiddleware(s.HandleSubsetDescendants))

	mux.HandleFunc("POST /api/datasets/{dataset}/learning", s.corsMiddleware(s.HandleStartSession))
	mux.HandleFunc("GET /api/datasets/{dataset}/learning/{session}", s.corsMiddleware(s.HandleGetSession))
	mux.HandleFunc("POST /api/datasets/{dataset}/learning/{session}/label", s.corsMiddleware(s.HandleLabel))
	mux.HandleFunc("POST /api/datasets/{dataset}/learning/{session}/finish", s.corsMiddleware(s.HandleFinishSession))
	mux.HandleFunc("DELETE /api/datasets/{dataset}/learning/{session}", s.corsMiddleware(s.HandleStopSession))

	return mux
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *SiftServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// HandleHealth reports liveness and the number of loaded datasets
func (s *SiftServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.viewsMu.RLock()
	datasets := len(s.views)
	s.viewsMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"datasets": datasets,
	})
}

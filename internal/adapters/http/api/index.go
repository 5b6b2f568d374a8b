package api

import "net/http"

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []endpoint{
	{http.MethodGet, "/", "This index"},
	{http.MethodPost, "/recommendation", "Recommend a relaxation technique for the current reading"},
	{http.MethodPost, "/history/readings", "Record a parameter reading"},
	{http.MethodPost, "/history/recommendations", "Record a technique issued to a user"},
	{http.MethodPost, "/history/import", "Bulk import a user's history"},
	{http.MethodGet, "/stats", "Service statistics"},
	{http.MethodGet, "/healthz", "Prometheus metrics"},
	{http.MethodGet, "/api-docs", "API documentation"},
	{http.MethodGet, "/openapi.yaml", "OpenAPI document"},
}

// HandleIndex handles GET / and lists the available endpoints.
func HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "restwell",
		"endpoints": endpoints,
	})
}

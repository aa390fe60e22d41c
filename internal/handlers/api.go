package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mbroumsadja/WonderFilm/pkg/types"
)

// Catalog is the film source shared by the listing page and the JSON API.
// *catalog.Scanner implements it.
type Catalog interface {
	Scan(ctx context.Context) []types.MediaEntry
}

type APIHandler struct {
	catalog Catalog
}

func NewAPIHandler(catalog Catalog) *APIHandler {
	return &APIHandler{
		catalog: catalog,
	}
}

type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ServeHTTP answers GET /films with the catalog as a JSON array, optionally
// narrowed to one folder with ?folder=.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	films := h.catalog.Scan(r.Context())

	if folder := strings.TrimSpace(r.URL.Query().Get("folder")); folder != "" {
		filtered := make([]types.MediaEntry, 0, len(films))
		for _, film := range films {
			if film.Folder == folder {
				filtered = append(filtered, film)
			}
		}
		films = filtered
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(films)
}

func (h *APIHandler) sendError(w http.ResponseWriter, statusCode int, errorMsg string) {
	w.WriteHeader(statusCode)
	response := APIResponse{
		Success: false,
		Error:   errorMsg,
	}
	json.NewEncoder(w).Encode(response)
}

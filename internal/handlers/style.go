package handlers

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
)

//go:embed style.css
var defaultStyle []byte

// StyleHandler serves /style.css verbatim, from disk when a path is
// configured and from the embedded default otherwise.
type StyleHandler struct {
	path   string
	logger *slog.Logger
}

func NewStyleHandler(path string, logger *slog.Logger) *StyleHandler {
	return &StyleHandler{path: path, logger: logger}
}

func (h *StyleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := defaultStyle
	if h.path != "" {
		custom, err := os.ReadFile(h.path)
		if err != nil {
			h.logger.Warn("stylesheet unreadable, serving default", slog.String("path", h.path), slog.String("error", err.Error()))
		} else {
			data = custom
		}
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/mbroumsadja/WonderFilm/internal/media"
	"github.com/mbroumsadja/WonderFilm/internal/metrics"
)

var ErrMissingParameter = errors.New("missing path parameter")

// PlayHandler streams one film, honoring the Range header
type PlayHandler struct {
	library *media.Library
	streams *semaphore.Weighted
	logger  *slog.Logger
}

// NewPlayHandler creates a play handler. maxStreams caps concurrent GET
// streams; 0 means unlimited.
func NewPlayHandler(library *media.Library, maxStreams int, logger *slog.Logger) *PlayHandler {
	h := &PlayHandler{
		library: library,
		logger:  logger,
	}
	if maxStreams > 0 {
		h.streams = semaphore.NewWeighted(int64(maxStreams))
	}
	return h
}

func (h *PlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := r.URL.Query().Get("path")
	if rel == "" {
		metrics.PlayRequestsTotal.WithLabelValues("missing_param").Inc()
		http.Error(w, ErrMissingParameter.Error(), http.StatusBadRequest)
		return
	}

	resp, window, err := h.library.ServeRange(rel, r.Header.Get("Range"))
	if err != nil {
		h.writeServeError(w, r, rel, resp, err)
		return
	}
	defer window.Close()

	if r.Method == http.MethodHead {
		metrics.PlayRequestsTotal.WithLabelValues(outcome(resp.Status)).Inc()
		resp.WriteHeader(w)
		return
	}

	if h.streams != nil {
		if !h.streams.TryAcquire(1) {
			metrics.PlayRequestsTotal.WithLabelValues("busy").Inc()
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many concurrent streams", http.StatusServiceUnavailable)
			return
		}
		defer h.streams.Release(1)
	}

	metrics.PlayRequestsTotal.WithLabelValues(outcome(resp.Status)).Inc()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	resp.WriteHeader(w)
	n, err := media.Copy(r.Context(), w, window)
	metrics.StreamedBytesTotal.Add(float64(n))
	if err != nil {
		h.logger.Debug("stream copy interrupted",
			slog.String("path", rel),
			slog.Int64("start", resp.Start),
			slog.Int64("written", n),
			slog.String("error", err.Error()),
		)
	}
}

func (h *PlayHandler) writeServeError(w http.ResponseWriter, r *http.Request, rel string, resp media.RangeResponse, err error) {
	switch {
	case errors.Is(err, media.ErrPathTraversal):
		metrics.PlayRequestsTotal.WithLabelValues("traversal").Inc()
		h.logger.Warn("rejected path outside media root",
			slog.String("path", rel),
			slog.String("clientIP", ClientIP(r)),
		)
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, media.ErrNotFound):
		metrics.PlayRequestsTotal.WithLabelValues("not_found").Inc()
		http.Error(w, "Film not found", http.StatusNotFound)
	case errors.Is(err, media.ErrMalformedRange):
		metrics.PlayRequestsTotal.WithLabelValues("bad_range").Inc()
		h.logger.Debug("rejected range",
			slog.String("path", rel),
			slog.String("range", r.Header.Get("Range")),
			slog.String("error", err.Error()),
		)
		media.WriteUnsatisfiable(w, resp.TotalSize)
	default:
		metrics.PlayRequestsTotal.WithLabelValues("error").Inc()
		h.logger.Error("media open failed", slog.String("path", rel), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func outcome(status int) string {
	if status == http.StatusPartialContent {
		return "partial"
	}
	return "full"
}

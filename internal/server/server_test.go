package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mbroumsadja/WonderFilm/internal/config"
	"github.com/mbroumsadja/WonderFilm/internal/metrics"
	"github.com/mbroumsadja/WonderFilm/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Port = 8080
	cfg.MediaDir = t.TempDir()
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	server, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	server := newTestServer(t, cfg)

	if server.config != cfg {
		t.Error("Server config not set correctly")
	}
	if server.library == nil {
		t.Error("Library not initialized")
	}
	if server.scanner == nil {
		t.Error("Scanner not initialized")
	}
	if server.store != nil {
		t.Error("Snapshot store should stay disabled without a cache dir")
	}
	if server.playHandler == nil || server.apiHandler == nil || server.browserHandler == nil || server.styleHandler == nil {
		t.Error("Handlers not initialized")
	}

	if server.httpServer.Addr != ":8080" {
		t.Errorf("Expected server address :8080, got %s", server.httpServer.Addr)
	}
	if server.httpServer.WriteTimeout != 0 {
		t.Errorf("Expected no write timeout for streaming, got %v", server.httpServer.WriteTimeout)
	}
}

func TestNew_WithCacheDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheDir = t.TempDir()

	server := newTestServer(t, cfg)
	if server.store == nil {
		t.Fatal("Expected snapshot store when cache dir is set")
	}
}

func TestNew_InvalidCacheDir(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.CacheDir = blocker

	server, err := New(cfg, nil)
	if err == nil {
		server.Stop()
		t.Error("Expected error when the cache dir is a regular file")
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	server := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	want := map[string]string{"status": "healthy", "media_dir": cfg.MediaDir}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Errorf("health response mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_Routes(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.MediaDir, "intro.mp4", []byte("0123456789"))
	writeFile(t, cfg.MediaDir, "Action/chase.MP4", []byte("abcdefghij"))

	server := newTestServer(t, cfg)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	tests := []struct {
		name        string
		path        string
		header      map[string]string
		wantStatus  int
		wantType    string
		wantContain string
	}{
		{name: "listing", path: "/", wantStatus: http.StatusOK, wantType: "text/html", wantContain: "Mon Cinéma Local"},
		{name: "films", path: "/films", wantStatus: http.StatusOK, wantType: "application/json", wantContain: `"folder":"Action"`},
		{name: "style", path: "/style.css", wantStatus: http.StatusOK, wantType: "text/css"},
		{name: "health", path: "/health", wantStatus: http.StatusOK, wantContain: "healthy"},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantContain: "go_goroutines"},
		{name: "play full", path: "/play?path=intro.mp4", wantStatus: http.StatusOK, wantType: "video/mp4", wantContain: "0123456789"},
		{
			name:        "play range",
			path:        "/play?path=Action%2Fchase.MP4",
			header:      map[string]string{"Range": "bytes=2-4"},
			wantStatus:  http.StatusPartialContent,
			wantType:    "video/mp4",
			wantContain: "cde",
		},
		{name: "play traversal", path: "/play?path=..%2F..%2Fetc%2Fpasswd", wantStatus: http.StatusForbidden},
		{name: "unknown", path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := ts.Client().Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantType != "" && !strings.HasPrefix(resp.Header.Get("Content-Type"), tt.wantType) {
				t.Errorf("Expected Content-Type %s, got %s", tt.wantType, resp.Header.Get("Content-Type"))
			}
			if tt.wantContain != "" && !strings.Contains(string(body), tt.wantContain) {
				t.Errorf("Expected body to contain %q, got %q", tt.wantContain, body)
			}
		})
	}
}

func TestServer_SnapshotCacheRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheDir = t.TempDir()
	writeFile(t, cfg.MediaDir, "intro.mp4", []byte("0123456789"))

	server := newTestServer(t, cfg)
	handler := server.Handler()

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/films", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
		var films []types.MediaEntry
		if err := json.Unmarshal(w.Body.Bytes(), &films); err != nil {
			t.Fatalf("decode: %v", err)
		}
		want := []types.MediaEntry{{Name: "intro", Path: "intro.mp4", Folder: types.DefaultFolder, Size: 10}}
		if diff := cmp.Diff(want, films); diff != "" {
			t.Errorf("request %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	snapshot, err := server.store.GetSnapshot(server.scanner.Root())
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snapshot == nil || len(snapshot.Entries) != 1 {
		t.Errorf("Expected a persisted snapshot with one entry, got %+v", snapshot)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})

	req := httptest.NewRequest(http.MethodGet, "/play?path=x.mp4", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Range", "bytes=0-")
	w := httptest.NewRecorder()

	loggingMiddleware(logger, next).ServeHTTP(w, req)

	if !handlerCalled {
		t.Error("Expected underlying handler to be called")
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, w.Code)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "status=404", "bytes=7", `range="bytes=0-"`, "userAgent=test-agent"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	recoveryMiddleware(logger, next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/other", "418")
	before := testutil.ToFloat64(counter)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := httptest.NewRecorder()
	metricsMiddleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/some/random/path", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("Expected counter to increase by 1, got %v", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rateLimitMiddleware(0.001, 1, next)

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	if w := do("/films"); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	w := do("/films")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on 429")
	}
	if w := do("/health"); w.Code != http.StatusOK {
		t.Errorf("health should bypass the limiter, got %d", w.Code)
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := wrap(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code %d, got %d", http.StatusOK, rw.statusCode)
	}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusCreated {
		t.Errorf("Expected first status code %d to stick, got %d", http.StatusCreated, rw.statusCode)
	}
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if rw.size != 5 {
		t.Errorf("Expected size 5, got %d", rw.size)
	}
	if wrap(rw) != rw {
		t.Error("Expected wrap to reuse an existing responseWriter")
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/":          "/",
		"/films":     "/films",
		"/play":      "/play",
		"/style.css": "/style.css",
		"/health":    "/health",
		"/favicon":   "/other",
		"/play/x":    "/other",
	}
	for in, want := range tests {
		if got := normalizeRoute(in); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/play", 500, slog.LevelError},
		{"/play", 416, slog.LevelWarn},
		{"/health", 200, slog.LevelDebug},
		{"/metrics", 200, slog.LevelDebug},
		{"/films", 200, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := pickRequestLogLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("pickRequestLogLevel(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 10); got != "abcdef" {
		t.Errorf("got %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("got %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestServer_Stop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 0
	cfg.CacheDir = t.TempDir()

	server, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		server.httpServer.ListenAndServe()
	}()
	time.Sleep(100 * time.Millisecond)

	if err := server.Stop(); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}
	if server.store != nil {
		t.Error("Expected snapshot store to be released on stop")
	}
}

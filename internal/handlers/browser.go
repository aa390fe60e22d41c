package handlers

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mbroumsadja/WonderFilm/pkg/types"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <title>Mon Cinéma Local</title>
    <link rel="stylesheet" href="/style.css">
</head>
<body>
    <h1>Streaming Local</h1>
    {{if .Count}}<p class="film-count">{{.Count}} film{{if gt .Count 1}}s{{end}}</p>{{end}}
    <div class="film-list">
        {{range .Groups}}
        <section class="film-group">
            <h2>{{.Folder}}</h2>
            {{range .Items}}
            <div class="film-item" data-path="{{.EncodedPath}}">{{.Folder}}: {{.Name}} ({{.SizeMB}} MB)</div>
            {{end}}
        </section>
        {{else}}
        <p class="empty-state">Aucun film trouvé.</p>
        {{end}}
    </div>
    <div class="controls">
        <button type="button" id="stop-button">Arrêter la vidéo</button>
        <button type="button" id="fullscreen-button">Plein écran</button>
    </div>
    <video id="video-player" controls preload="none">
        Votre navigateur ne supporte pas la lecture vidéo.
    </video>

    <script>
        const videoPlayer = document.getElementById('video-player');

        function playFilm(path) {
            videoPlayer.src = '/play?path=' + path;
            videoPlayer.load();
            videoPlayer.play();
        }

        function stopVideo() {
            videoPlayer.pause();
            videoPlayer.currentTime = 0;
            videoPlayer.removeAttribute('src');
            videoPlayer.load();
        }

        function fullscreenVideo() {
            if (videoPlayer.requestFullscreen) {
                videoPlayer.requestFullscreen();
            } else if (videoPlayer.webkitRequestFullscreen) {
                videoPlayer.webkitRequestFullscreen();
            } else if (videoPlayer.msRequestFullscreen) {
                videoPlayer.msRequestFullscreen();
            }
        }

        document.querySelectorAll('.film-item').forEach(function (item) {
            item.addEventListener('click', function () { playFilm(item.dataset.path); });
        });
        document.getElementById('stop-button').addEventListener('click', stopVideo);
        document.getElementById('fullscreen-button').addEventListener('click', fullscreenVideo);
    </script>
</body>
</html>`

// BrowserHandler renders the film listing page
type BrowserHandler struct {
	catalog  Catalog
	template *template.Template
	logger   *slog.Logger
}

// NewBrowserHandler creates a new browser handler
func NewBrowserHandler(catalog Catalog, logger *slog.Logger) *BrowserHandler {
	tmpl := template.Must(template.New("films").Parse(htmlTemplate))
	return &BrowserHandler{
		catalog:  catalog,
		template: tmpl,
		logger:   logger,
	}
}

// ServeHTTP handles browser requests
func (h *BrowserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := h.catalog.Scan(r.Context())
	data := TemplateData{
		Count:  len(entries),
		Groups: groupEntries(entries),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, data); err != nil {
		h.logger.Error("listing render failed", slog.String("error", err.Error()))
		return
	}
}

// TemplateData represents data for the HTML template
type TemplateData struct {
	Count  int
	Groups []TemplateGroup
}

// TemplateGroup holds the films of one folder
type TemplateGroup struct {
	Folder string
	Items  []TemplateItem
}

// TemplateItem represents one clickable film
type TemplateItem struct {
	Name        string
	Folder      string
	EncodedPath string
	SizeMB      string
}

// groupEntries buckets entries by folder and orders folders and names with
// French collation. Only the page is ordered this way; /films keeps scan order.
func groupEntries(entries []types.MediaEntry) []TemplateGroup {
	// Collators are not safe for concurrent use, so one is built per render.
	collator := collate.New(language.French, collate.IgnoreCase)

	byFolder := make(map[string][]types.MediaEntry)
	var folders []string
	for _, e := range entries {
		if _, ok := byFolder[e.Folder]; !ok {
			folders = append(folders, e.Folder)
		}
		byFolder[e.Folder] = append(byFolder[e.Folder], e)
	}

	sort.SliceStable(folders, func(i, j int) bool {
		return collator.CompareString(folders[i], folders[j]) < 0
	})

	groups := make([]TemplateGroup, 0, len(folders))
	for _, folder := range folders {
		films := byFolder[folder]
		sort.SliceStable(films, func(i, j int) bool {
			return collator.CompareString(films[i].Name, films[j].Name) < 0
		})

		items := make([]TemplateItem, len(films))
		for i, film := range films {
			items[i] = TemplateItem{
				Name:        film.Name,
				Folder:      film.Folder,
				EncodedPath: url.QueryEscape(film.Path),
				SizeMB:      formatSizeMB(film.Size),
			}
		}
		groups = append(groups, TemplateGroup{Folder: folder, Items: items})
	}
	return groups
}

// formatSizeMB formats a byte count as mebibytes with two decimals
func formatSizeMB(size int64) string {
	return fmt.Sprintf("%.2f", types.MediaEntry{Size: size}.SizeMB())
}

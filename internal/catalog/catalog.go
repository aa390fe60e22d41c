// Package catalog discovers the playable films under a media root.
//
// Only the root itself and its immediate subdirectories are scanned. Files at
// the root belong to the types.DefaultFolder group; files in a subdirectory
// are grouped under that subdirectory's name.
package catalog

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mbroumsadja/WonderFilm/internal/media"
	"github.com/mbroumsadja/WonderFilm/internal/metrics"
	"github.com/mbroumsadja/WonderFilm/pkg/types"
)

// SnapshotStore persists scans between requests. *storage.SnapshotStore implements it.
type SnapshotStore interface {
	GetSnapshot(root string) (*types.CatalogSnapshot, error)
	SetSnapshot(snapshot *types.CatalogSnapshot) error
}

type Scanner struct {
	root        string
	store       SnapshotStore
	logger      *slog.Logger
	concurrency int
}

type Option func(*Scanner)

// WithSnapshotStore enables reuse of a previous scan while the directory
// fingerprint is unchanged.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *Scanner) {
		s.store = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithConcurrency bounds how many subdirectories are listed at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewScanner(root string, opts ...Option) *Scanner {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	s := &Scanner{
		root:        filepath.Clean(root),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Root returns the absolute media root being scanned.
func (s *Scanner) Root() string {
	return s.root
}

// Build scans rootDir without any snapshot cache. A missing root yields an
// empty catalog, never an error.
func Build(ctx context.Context, rootDir string) []types.MediaEntry {
	return NewScanner(rootDir).Scan(ctx)
}

// Scan returns the current catalog. The result is never nil.
func (s *Scanner) Scan(ctx context.Context) []types.MediaEntry {
	start := time.Now()
	defer func() {
		metrics.CatalogScanDuration.Observe(time.Since(start).Seconds())
	}()

	listing, ok := s.listRoot()
	if !ok {
		metrics.CatalogEntries.Set(0)
		return []types.MediaEntry{}
	}

	fingerprint := listing.fingerprint()
	if s.store != nil {
		snapshot, err := s.store.GetSnapshot(s.root)
		if err != nil {
			s.logger.Warn("catalog snapshot load failed", slog.String("root", s.root), slog.String("error", err.Error()))
		} else if snapshot != nil && snapshot.Fingerprint == fingerprint {
			metrics.CatalogCacheHitsTotal.Inc()
			metrics.CatalogEntries.Set(float64(len(snapshot.Entries)))
			if snapshot.Entries == nil {
				return []types.MediaEntry{}
			}
			return snapshot.Entries
		}
	}

	entries, complete := s.collect(ctx, listing)
	metrics.CatalogEntries.Set(float64(len(entries)))

	// Only a full scan may stand in for later requests.
	if s.store != nil && complete && ctx.Err() == nil {
		snapshot := &types.CatalogSnapshot{
			Root:        s.root,
			Fingerprint: fingerprint,
			Entries:     entries,
			ScannedAt:   time.Now().UTC(),
		}
		if err := s.store.SetSnapshot(snapshot); err != nil {
			s.logger.Warn("catalog snapshot save failed", slog.String("root", s.root), slog.String("error", err.Error()))
		}
	}

	return entries
}

type subdir struct {
	name    string
	modTime time.Time
}

type rootListing struct {
	modTime time.Time
	files   []types.MediaEntry
	dirs    []subdir
}

// fingerprint changes whenever an entry is added, removed or renamed at the
// root or inside one of its subdirectories.
func (l *rootListing) fingerprint() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(l.modTime.UnixNano(), 10))
	for _, d := range l.dirs {
		b.WriteByte('\n')
		b.WriteString(d.name)
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(d.modTime.UnixNano(), 10))
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

func (s *Scanner) listRoot() (*rootListing, bool) {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return nil, false
	}

	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("media root unreadable", slog.String("root", s.root), slog.String("error", err.Error()))
		return nil, false
	}

	listing := &rootListing{modTime: info.ModTime()}
	for _, de := range dirEntries {
		name := de.Name()
		fi, err := os.Stat(filepath.Join(s.root, name))
		if err != nil {
			s.logger.Debug("skipping media root entry", slog.String("name", name), slog.String("error", err.Error()))
			continue
		}

		switch {
		case fi.IsDir():
			listing.dirs = append(listing.dirs, subdir{name: name, modTime: fi.ModTime()})
		case fi.Mode().IsRegular() && isMedia(name):
			listing.files = append(listing.files, types.MediaEntry{
				Name:   baseName(name),
				Path:   name,
				Folder: types.DefaultFolder,
				Size:   fi.Size(),
			})
		}
	}
	return listing, true
}

// collect lists every subdirectory of listing. complete is false when the
// context ended early or a subdirectory could not be read.
func (s *Scanner) collect(ctx context.Context, listing *rootListing) (entries []types.MediaEntry, complete bool) {
	perDir := make([][]types.MediaEntry, len(listing.dirs))
	perDirOK := make([]bool, len(listing.dirs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, d := range listing.dirs {
		i, d := i, d
		g.Go(func() error {
			perDir[i], perDirOK[i] = s.scanDir(ctx, d.name)
			return nil
		})
	}
	_ = g.Wait()

	complete = true
	for _, ok := range perDirOK {
		complete = complete && ok
	}

	entries = make([]types.MediaEntry, 0, len(listing.files))
	entries = append(entries, listing.files...)
	for _, dirEntries := range perDir {
		entries = append(entries, dirEntries...)
	}
	return entries, complete
}

// scanDir returns the films of one subdirectory. ok is false when the
// listing was cut short.
func (s *Scanner) scanDir(ctx context.Context, folder string) (entries []types.MediaEntry, ok bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	dirPath := filepath.Join(s.root, folder)
	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		s.logger.Debug("skipping unreadable folder", slog.String("folder", folder), slog.String("error", err.Error()))
		return nil, false
	}

	for _, de := range dirEntries {
		if ctx.Err() != nil {
			return entries, false
		}
		name := de.Name()
		if !isMedia(name) {
			continue
		}
		fi, err := os.Stat(filepath.Join(dirPath, name))
		if err != nil {
			s.logger.Debug("skipping media file", slog.String("folder", folder), slog.String("name", name), slog.String("error", err.Error()))
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		entries = append(entries, types.MediaEntry{
			Name:   baseName(name),
			Path:   path.Join(folder, name),
			Folder: folder,
			Size:   fi.Size(),
		})
	}
	return entries, true
}

// isMedia reports whether name carries the .mp4 extension in any case. A bare
// ".mp4" is a dotfile, not a film.
func isMedia(name string) bool {
	return media.IsMediaName(name)
}

func baseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

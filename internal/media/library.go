// Package media serves byte windows of the video files under a media root.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Library resolves catalog identifiers to files under a single media root.
type Library struct {
	root string
}

func NewLibrary(root string) (*Library, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	return &Library{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute media root.
func (l *Library) Root() string {
	return l.root
}

// Resolve maps a slash-separated identifier to an absolute path that is a
// strict descendant of the root. Absolute identifiers and any path whose
// cleaned form leaves the root fail with ErrPathTraversal. Symlinks inside the
// root are followed, so only film files are resolvable: any other name is
// ErrNotFound.
func (l *Library) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", ErrNotFound
	}
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrPathTraversal, rel)
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathTraversal, rel)
	}

	joined := filepath.Join(l.root, filepath.FromSlash(rel))
	if joined == l.root {
		return "", ErrNotFound
	}

	prefix := l.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(joined, prefix) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}
	if !IsMediaName(filepath.Base(joined)) {
		return "", fmt.Errorf("%w: %q is not a film", ErrNotFound, rel)
	}
	return joined, nil
}

// ServeRange opens the file behind rel and plans the response for
// rangeHeader (empty for the whole file). On success the caller owns the
// returned Window and must Close it. When the range is rejected the returned
// RangeResponse still carries TotalSize so a 416 can report it.
func (l *Library) ServeRange(rel, rangeHeader string) (RangeResponse, *Window, error) {
	fullPath, err := l.Resolve(rel)
	if err != nil {
		return RangeResponse{TotalSize: -1}, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return RangeResponse{TotalSize: -1}, nil, fmt.Errorf("failed to open %q: %w", rel, err)
		}
		return RangeResponse{TotalSize: -1}, nil, fmt.Errorf("%w: %q", ErrNotFound, rel)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return RangeResponse{TotalSize: -1}, nil, fmt.Errorf("failed to stat %q: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return RangeResponse{TotalSize: -1}, nil, fmt.Errorf("%w: %q is not a regular file", ErrNotFound, rel)
	}

	resp, err := Plan(rangeHeader, info.Size())
	if err != nil {
		file.Close()
		return RangeResponse{TotalSize: info.Size()}, nil, err
	}

	return resp, newWindow(file, resp.Start, resp.ContentLength), nil
}

// Window is a bounded sequential reader over [offset, offset+length) of an
// open file. It never reads past its window and Close releases the file.
type Window struct {
	file    *os.File
	section *io.SectionReader
}

func newWindow(file *os.File, offset, length int64) *Window {
	return &Window{
		file:    file,
		section: io.NewSectionReader(file, offset, length),
	}
}

func (w *Window) Read(p []byte) (int, error) {
	return w.section.Read(p)
}

// Len returns the total number of bytes in the window.
func (w *Window) Len() int64 {
	return w.section.Size()
}

func (w *Window) Close() error {
	return w.file.Close()
}

const copyBufferSize = 32 * 1024

// Copy streams src to dst through a fixed buffer, so memory stays bounded
// however slow dst is. It stops at the next read once ctx is done.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	return io.CopyBuffer(onlyWriter{dst}, &contextReader{ctx: ctx, r: src}, buf)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// onlyWriter hides ReaderFrom so io.CopyBuffer uses the bounded buffer and
// every read goes through contextReader.
type onlyWriter struct {
	io.Writer
}

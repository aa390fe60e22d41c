package media

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// ContentType is the only MIME type served for media files.
const ContentType = "video/mp4"

// Ext is the file extension, matched case-insensitively, of servable films.
const Ext = ".mp4"

// IsMediaName reports whether name carries Ext in any case. A bare ".mp4" is
// a dotfile, not a film.
func IsMediaName(name string) bool {
	ext := path.Ext(name)
	return len(name) > len(ext) && strings.EqualFold(ext, Ext)
}

// RangeRequest is a parsed "bytes=<start>-<end>" header. End is only
// meaningful when HasExplicitEnd is set.
type RangeRequest struct {
	Start          int64
	End            int64
	HasExplicitEnd bool
}

// ParseRange parses a single-range header. The start offset is required:
// suffix ranges ("bytes=-500") and multi-range lists are rejected.
func ParseRange(header string) (RangeRequest, error) {
	value := strings.TrimSpace(header)
	if len(value) < len("bytes=") || !strings.EqualFold(value[:len("bytes=")], "bytes=") {
		return RangeRequest{}, fmt.Errorf("%w: unsupported unit in %q", ErrMalformedRange, header)
	}

	ranges := strings.TrimSpace(value[len("bytes="):])
	if strings.Contains(ranges, ",") {
		return RangeRequest{}, fmt.Errorf("%w: multiple ranges", ErrMalformedRange)
	}

	startStr, endStr, ok := strings.Cut(ranges, "-")
	if !ok {
		return RangeRequest{}, fmt.Errorf("%w: missing '-' in %q", ErrMalformedRange, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		return RangeRequest{}, fmt.Errorf("%w: start offset required", ErrMalformedRange)
	}
	start, err := parseOffset(startStr)
	if err != nil {
		return RangeRequest{}, err
	}

	req := RangeRequest{Start: start}
	if endStr == "" {
		return req, nil
	}

	end, err := parseOffset(endStr)
	if err != nil {
		return RangeRequest{}, err
	}
	if end < start {
		return RangeRequest{}, fmt.Errorf("%w: start %d after end %d", ErrMalformedRange, start, end)
	}
	req.End = end
	req.HasExplicitEnd = true
	return req, nil
}

// parseOffset accepts plain decimal digits only; signs are not valid in a byte range.
func parseOffset(s string) (int64, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: invalid offset %q", ErrMalformedRange, s)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid offset %q", ErrMalformedRange, s)
	}
	return n, nil
}

// RangeResponse describes the status line, headers and byte window of a
// media response. For 206 responses Start <= End < TotalSize holds.
type RangeResponse struct {
	Status        int
	Start         int64
	End           int64
	TotalSize     int64
	ContentLength int64
	ContentType   string
}

// FullResponse plans a 200 response carrying the whole file.
func FullResponse(totalSize int64) RangeResponse {
	return RangeResponse{
		Status:        http.StatusOK,
		Start:         0,
		End:           totalSize - 1,
		TotalSize:     totalSize,
		ContentLength: totalSize,
		ContentType:   ContentType,
	}
}

// Resolve plans a 206 response for req against a file of totalSize bytes.
// An omitted end defaults to the last byte. Out-of-bounds windows are
// rejected rather than clamped.
func (req RangeRequest) Resolve(totalSize int64) (RangeResponse, error) {
	end := totalSize - 1
	if req.HasExplicitEnd {
		end = req.End
	}

	switch {
	case req.Start < 0:
		return RangeResponse{}, fmt.Errorf("%w: negative start", ErrMalformedRange)
	case req.Start >= totalSize:
		return RangeResponse{}, fmt.Errorf("%w: start %d beyond size %d", ErrMalformedRange, req.Start, totalSize)
	case end >= totalSize:
		return RangeResponse{}, fmt.Errorf("%w: end %d beyond size %d", ErrMalformedRange, end, totalSize)
	case req.Start > end:
		return RangeResponse{}, fmt.Errorf("%w: start %d after end %d", ErrMalformedRange, req.Start, end)
	}

	return RangeResponse{
		Status:        http.StatusPartialContent,
		Start:         req.Start,
		End:           end,
		TotalSize:     totalSize,
		ContentLength: end - req.Start + 1,
		ContentType:   ContentType,
	}, nil
}

// Plan picks between a full and a partial response for the given header.
// An empty header means the whole file.
func Plan(rangeHeader string, totalSize int64) (RangeResponse, error) {
	if strings.TrimSpace(rangeHeader) == "" {
		return FullResponse(totalSize), nil
	}
	req, err := ParseRange(rangeHeader)
	if err != nil {
		return RangeResponse{}, err
	}
	return req.Resolve(totalSize)
}

// WriteHeader sets the response headers and writes the status line.
func (r RangeResponse) WriteHeader(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", r.ContentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	if r.Status == http.StatusPartialContent {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.TotalSize))
	}
	w.WriteHeader(r.Status)
}

// WriteUnsatisfiable answers a rejected range with 416 and the total size.
func WriteUnsatisfiable(w http.ResponseWriter, totalSize int64) {
	if totalSize >= 0 {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", totalSize))
	}
	http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
}

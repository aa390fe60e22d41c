package types

import "time"

// DefaultFolder is the group label given to files found directly in the media root.
const DefaultFolder = "Divers"

// MediaEntry represents one playable video discovered under the media root
type MediaEntry struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Folder string `json:"folder"`
	Size   int64  `json:"size"`
}

// SizeMB returns the entry size in mebibytes, as shown in the listing page
func (e MediaEntry) SizeMB() float64 {
	return float64(e.Size) / (1024 * 1024)
}

// CatalogSnapshot is a persisted catalog scan together with the directory
// fingerprint it was taken at
type CatalogSnapshot struct {
	Root        string       `json:"root"`
	Fingerprint string       `json:"fingerprint"`
	Entries     []MediaEntry `json:"entries"`
	ScannedAt   time.Time    `json:"scanned_at"`
}

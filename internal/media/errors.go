package media

import "errors"

var (
	ErrNotFound       = errors.New("media file not found")
	ErrPathTraversal  = errors.New("path escapes media root")
	ErrMalformedRange = errors.New("malformed or unsatisfiable range")
)

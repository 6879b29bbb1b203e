package filestore

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/koustreak/vtapi/internal/errs"
)

// ObjectInfo describes a single file of sequence data.
type ObjectInfo struct {
	// Key is the slash-separated path below the store root
	// (e.g. "demo/seq1/000001.png").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type (e.g. "image/jpeg").
	ContentType string

	// ETag is the object's entity tag, as returned by the backend. Empty for
	// local files.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time

	// IsDir is true when the entry represents a directory (or a virtual
	// prefix), not stored content.
	IsDir bool
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// ListOptions controls how List filters results.
type ListOptions struct {
	// Prefix restricts results to keys below this directory.
	// Use "" to list the root.
	Prefix string

	// Recursive, when true, lists all files under the prefix. When false
	// (default), subdirectories are returned as IsDir entries.
	Recursive bool

	// Limit caps the number of results returned. 0 means no limit.
	Limit int
}

// CleanKey normalises key to a slash-separated path without leading
// slash. Keys that climb above the root are rejected.
func CleanKey(key string) (string, error) {
	slashed := strings.ReplaceAll(key, "\\", "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", errs.Newf(errs.ErrKindInvalidInput, "key %q leaves the store root", key)
		}
	}
	return strings.TrimPrefix(path.Clean("/"+slashed), "/"), nil
}

// JoinKey joins path elements into a key, skipping empty ones.
func JoinKey(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}

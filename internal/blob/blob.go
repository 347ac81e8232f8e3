// Package blob defines the attachment object store used for issue files.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
}

// Info describes a stored blob.
type Info struct {
	Key         string `json:"key"`
	Size        int64  `json:"size_bytes"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url"`
}

// Store is the minimal object store contract: keys are namespaced by entity
// id and deleting a missing key is not an error.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	URL(key string) string
	Driver() Driver
}

// ErrExists is returned by Put when the key is already taken.
var ErrExists = errors.New("blob already exists")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeSegment makes s safe to use as one key path segment.
func SanitizeSegment(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	s = strings.Trim(s, ".")
	if s == "" {
		return "file"
	}
	return s
}

// IssueKey names the object for the i-th file of an upload batch:
// issues/<issue id>/<name>-<unix nanos>-<i><ext>.
func IssueKey(issueID, filename string, at time.Time, i int) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		ext = "." + SanitizeSegment(ext)
	}
	return fmt.Sprintf("issues/%s/%s-%d-%d%s", SanitizeSegment(issueID), SanitizeSegment(name), at.UnixNano(), i, ext)
}

// JoinURL appends an escaped key to a base URL.
func JoinURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

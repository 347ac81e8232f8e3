package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"parceltrack/internal/blob"
)

// Store keeps objects as files under root. Keys map to relative paths.
type Store struct {
	root    string
	baseURL string
}

// New returns a filesystem-backed store rooted at root, creating it if needed.
// baseURL is the public prefix the HTTP server serves root under.
func New(root, baseURL string) (*Store, error) {
	if root == "" {
		root = "./attachments"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = "/files"
	}
	return &Store{root: root, baseURL: baseURL}, nil
}

func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

// Root is the directory objects are written to.
func (s *Store) Root() string { return s.root }

func (s *Store) URL(key string) string { return blob.JoinURL(s.baseURL, key) }

// sanitizeKey ensures key doesn't escape root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.FromSlash(filepath.ToSlash(filepath.Clean(key))), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return blob.Info{}, err
	}
	dataPath := filepath.Join(s.root, k)
	if _, err := os.Stat(dataPath); err == nil {
		return blob.Info{}, fmt.Errorf("%w: %s", blob.ErrExists, key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return blob.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return blob.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	size, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return blob.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return blob.Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return blob.Info{}, err
	}
	return blob.Info{Key: key, Size: size, ContentType: opts.ContentType, URL: s.URL(key)}, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(filepath.Join(s.root, k))
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

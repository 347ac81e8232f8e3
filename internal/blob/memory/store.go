package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"parceltrack/internal/blob"
)

type object struct {
	data        []byte
	contentType string
}

// Store is an in-memory blob store for tests.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
	// FailDelete makes Delete return an error for the listed keys.
	FailDelete map[string]bool
}

func New() *Store {
	return &Store{objects: map[string]object{}, baseURL: "mem://attachments"}
}

func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

func (s *Store) URL(key string) string { return blob.JoinURL(s.baseURL, key) }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return blob.Info{}, fmt.Errorf("%w: %s", blob.ErrExists, key)
	}
	s.objects[key] = object{data: data, contentType: opts.ContentType}
	return blob.Info{Key: key, Size: int64(len(data)), ContentType: opts.ContentType, URL: s.URL(key)}, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete[key] {
		return false, fmt.Errorf("delete %s: simulated failure", key)
	}
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// Get returns a copy of the stored bytes.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys lists stored keys in order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

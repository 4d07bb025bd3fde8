package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Link is one entry of the pre-hierarchy bookmark store.
type Link struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Store is the flat key-value store that predates the bookmark tree.
type Store interface {
	Favorites() []Link
	Bookmarks() []Link
	DeleteAllData() error
}

type fileData struct {
	Favorites []Link `json:"favorites"`
	Bookmarks []Link `json:"bookmarks"`
}

// FileStore implements Store over a JSON file holding a favorites list and
// a bookmarks list.
type FileStore struct {
	path string

	mu   sync.Mutex
	data fileData
}

// OpenFileStore reads the store at path. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse legacy store %s: %w", path, err)
	}
	return s, nil
}

// Path returns the store file path.
func (s *FileStore) Path() string {
	return s.path
}

// Favorites returns a copy of the legacy favorites in stored order.
func (s *FileStore) Favorites() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Link(nil), s.data.Favorites...)
}

// Bookmarks returns a copy of the legacy bookmarks in stored order.
func (s *FileStore) Bookmarks() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Link(nil), s.data.Bookmarks...)
}

// DeleteAllData empties both collections and persists the empty store.
func (s *FileStore) DeleteAllData() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data
	s.data = fileData{}
	if err := s.saveLocked(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

func (s *FileStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0644)
}

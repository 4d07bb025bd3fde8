package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nikbrunner/bmsync/internal/model"
)

// Storage defines the interface for persisting the bookmark tree.
type Storage interface {
	Load() (*model.Tree, error)
	Save(tree *model.Tree) error
}

// Backend is a tree storage that also persists metadata flags.
type Backend interface {
	Storage
	Metadata
	Close() error
}

// JSONStorage implements Storage using a JSON file.
type JSONStorage struct {
	path string
}

// NewJSONStorage creates a new JSONStorage with the given file path.
func NewJSONStorage(path string) *JSONStorage {
	return &JSONStorage{path: path}
}

// Path returns the storage file path.
func (s *JSONStorage) Path() string {
	return s.path
}

// Load reads the tree from the JSON file.
// Returns a tree holding only the roots if the file doesn't exist.
func (s *JSONStorage) Load() (*model.Tree, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewTree(), nil
		}
		return nil, err
	}

	var tree model.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt bookmark file %s: %w", s.path, err)
	}
	return &tree, nil
}

// Initialized reports whether the bookmark file exists.
func (s *JSONStorage) Initialized() (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Save writes the tree to the JSON file.
// Writes to a temp file first so a failed save leaves the old file intact.
func (s *JSONStorage) Save(tree *model.Tree) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// jsonBackend pairs the JSON tree file with a JSON settings file.
type jsonBackend struct {
	*JSONStorage
	*JSONMetadata
}

func (jsonBackend) Close() error { return nil }

// OpenBackend opens the storage backend selected in the config.
func OpenBackend(cfg *Config) (Backend, error) {
	switch cfg.Backend {
	case BackendJSON:
		meta, err := NewJSONMetadata(cfg.SettingsPath())
		if err != nil {
			return nil, err
		}
		return jsonBackend{
			JSONStorage:  NewJSONStorage(cfg.TreePath()),
			JSONMetadata: meta,
		}, nil
	case BackendSQLite, "":
		return NewSQLiteStorage(cfg.TreePath())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Metadata is a small key-value store that survives restarts.
// It holds the migration flag, the sync cursor and sync credentials.
type Metadata interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Well-known metadata keys.
const (
	KeyMigratedFromUserDefaults = "migratedFromUserDefaults"
	KeyBookmarksLastModified    = "syncBookmarksLastModified"
)

// Bool reads a boolean flag; a missing key is false.
func Bool(meta Metadata, key string) (bool, error) {
	raw, err := meta.Get(key)
	if err != nil || raw == "" {
		return false, err
	}
	return strconv.ParseBool(raw)
}

// SetBool writes a boolean flag.
func SetBool(meta Metadata, key string, value bool) error {
	return meta.Set(key, strconv.FormatBool(value))
}

// JSONMetadata implements Metadata using a JSON file.
type JSONMetadata struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

// NewJSONMetadata loads the settings file at path.
// A missing file starts empty.
func NewJSONMetadata(path string) (*JSONMetadata, error) {
	m := &JSONMetadata{path: path, values: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &m.values); err != nil {
		return nil, err
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	return m, nil
}

// Get implements Metadata.Get.
func (m *JSONMetadata) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

// Set implements Metadata.Set.
func (m *JSONMetadata) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.values[key]
	m.values[key] = value
	if err := m.saveLocked(); err != nil {
		if had {
			m.values[key] = prev
		} else {
			delete(m.values, key)
		}
		return err
	}
	return nil
}

// Delete implements Metadata.Delete.
func (m *JSONMetadata) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.values[key]
	if !had {
		return nil
	}
	delete(m.values, key)
	if err := m.saveLocked(); err != nil {
		m.values[key] = prev
		return err
	}
	return nil
}

func (m *JSONMetadata) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0600)
}

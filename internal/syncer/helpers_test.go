package syncer_test

import (
	"bytes"
	"log"
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

type memStorage struct {
	mu    sync.Mutex
	saved *model.Tree
}

func (m *memStorage) Load() (*model.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return model.NewTree(), nil
	}
	return m.saved.Clone(), nil
}

func (m *memStorage) Save(tree *model.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = tree.Clone()
	return nil
}

type memMeta struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemMeta() *memMeta {
	return &memMeta{values: map[string]string{}}
}

func (m *memMeta) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memMeta) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memMeta) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func newDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(&memStorage{})
	assert.NilError(t, err)
	return db
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func addBookmark(t *testing.T, db *storage.DB, parent int64, title, url string, favorite bool) *model.Node {
	t.Helper()
	var n *model.Node
	err := db.Perform(func(tx *storage.Tx) error {
		var err error
		n, err = tx.InsertBookmark(parent, model.NewBookmarkParams{
			UUID:     model.GenerateUUID(),
			Title:    title,
			URL:      url,
			Favorite: favorite,
		})
		return err
	})
	assert.NilError(t, err)
	return n
}

func addFolder(t *testing.T, db *storage.DB, parent int64, title string) *model.Node {
	t.Helper()
	var n *model.Node
	err := db.Perform(func(tx *storage.Tx) error {
		var err error
		n, err = tx.InsertFolder(parent, model.NewFolderParams{UUID: model.GenerateUUID(), Title: title})
		return err
	})
	assert.NilError(t, err)
	return n
}

func rootKey(db *storage.DB, kind model.RootKind) int64 {
	var key int64
	db.View(func(tx *storage.Tx) error {
		key = tx.RootFolder(kind).Key
		return nil
	})
	return key
}

func childTitles(db *storage.DB, key int64) []string {
	var titles []string
	db.View(func(tx *storage.Tx) error {
		for _, n := range tx.Children(key) {
			titles = append(titles, n.Title)
		}
		return nil
	})
	return titles
}

func snapshot(db *storage.DB) *model.Tree {
	var tree *model.Tree
	db.View(func(tx *storage.Tx) error {
		tree = tx.Tree().Clone()
		return nil
	})
	return tree
}

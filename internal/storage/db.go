package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nikbrunner/bmsync/internal/model"
)

var (
	// ErrCommit wraps every failure to persist a transaction.
	ErrCommit = errors.New("storage commit failed")
	// ErrReadOnly is returned when a View block tries to mutate the tree.
	ErrReadOnly = errors.New("read-only transaction")
)

// DB is the single serialization point for all tree reads and writes.
//
// Writers run one at a time against a private copy of the tree; the copy
// replaces the live tree only after it has been saved, so readers never
// observe a partial transaction.
type DB struct {
	backend Storage

	writeMu sync.Mutex   // serializes Perform
	mu      sync.RWMutex // guards tree
	tree    *model.Tree
}

// initializer is implemented by backends that can tell whether anything
// was ever saved.
type initializer interface {
	Initialized() (bool, error)
}

// Open loads the tree from backend. A backend that was never written is
// saved right away so the root folders keep their UUIDs across restarts.
func Open(backend Storage) (*DB, error) {
	tree, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	if ini, ok := backend.(initializer); ok {
		done, err := ini.Initialized()
		if err != nil {
			return nil, fmt.Errorf("inspect bookmarks store: %w", err)
		}
		if !done {
			if err := backend.Save(tree); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCommit, err)
			}
		}
	}
	return &DB{backend: backend, tree: tree}, nil
}

// Perform runs fn as one atomic read-write transaction. If fn returns an
// error or the save fails, none of fn's changes become visible.
func (db *DB) Perform(fn func(tx *Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	db.mu.RLock()
	tx := &Tx{tree: db.tree.Clone()}
	db.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	if err := db.backend.Save(tx.tree); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}

	db.mu.Lock()
	db.tree = tx.tree
	db.mu.Unlock()
	return nil
}

// View runs fn against a consistent snapshot of the tree. Mutations fail
// with ErrReadOnly.
func (db *DB) View(fn func(tx *Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(&Tx{tree: db.tree, readOnly: true})
}

// Tx is a handle on the tree inside Perform or View.
type Tx struct {
	tree     *model.Tree
	readOnly bool
	dirty    bool
}

// Tree returns the transaction's tree for traversal. Callers mutate only
// through Tx methods.
func (tx *Tx) Tree() *model.Tree {
	return tx.tree
}

// RootFolder returns the requested root folder.
func (tx *Tx) RootFolder(kind model.RootKind) *model.Node {
	return tx.tree.Root(kind)
}

// FetchByUUID returns the node with the given uuid, nil if absent.
func (tx *Tx) FetchByUUID(uuid string) *model.Node {
	return tx.tree.ByUUID(uuid)
}

// Node returns the node at key, nil if absent.
func (tx *Tx) Node(key int64) *model.Node {
	return tx.tree.Node(key)
}

// Children returns the ordered children of a folder.
func (tx *Tx) Children(key int64) []*model.Node {
	return tx.tree.Children(key)
}

// NextSibling returns the sibling after key, nil when last.
func (tx *Tx) NextSibling(key int64) *model.Node {
	return tx.tree.NextSibling(key)
}

// HasEntries is the cheap existence probe: anything besides the roots.
func (tx *Tx) HasEntries() bool {
	return tx.tree.HasEntries()
}

func (tx *Tx) write() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.dirty = true
	return nil
}

// InsertBookmark adds a bookmark under parentKey.
func (tx *Tx) InsertBookmark(parentKey int64, params model.NewBookmarkParams) (*model.Node, error) {
	if err := tx.write(); err != nil {
		return nil, err
	}
	return tx.tree.InsertBookmark(parentKey, params)
}

// InsertFolder adds a folder under parentKey.
func (tx *Tx) InsertFolder(parentKey int64, params model.NewFolderParams) (*model.Node, error) {
	if err := tx.write(); err != nil {
		return nil, err
	}
	return tx.tree.InsertFolder(parentKey, params)
}

// Move re-parents key under parentKey before the sibling `before` (0 = last).
func (tx *Tx) Move(key, parentKey, before int64) error {
	if err := tx.write(); err != nil {
		return err
	}
	return tx.tree.Move(key, parentKey, before)
}

// Update applies fn to the node's fields. fn must not touch Key, UUID,
// ParentKey or Children.
func (tx *Tx) Update(key int64, fn func(n *model.Node)) error {
	if err := tx.write(); err != nil {
		return err
	}
	n := tx.tree.Node(key)
	if n == nil {
		return fmt.Errorf("node %d: %w", key, model.ErrNotFound)
	}
	fn(n)
	return nil
}

// MarkFavorites sets the Favorite flag of every bookmark in key's subtree
// to match whether it now lies under the favorites root. It returns the
// keys whose flag changed.
func (tx *Tx) MarkFavorites(key int64) ([]int64, error) {
	if err := tx.write(); err != nil {
		return nil, err
	}
	if tx.tree.Node(key) == nil {
		return nil, fmt.Errorf("node %d: %w", key, model.ErrNotFound)
	}
	favorite := tx.tree.InFavorites(key)
	var changed []int64
	var visit func(n *model.Node)
	visit = func(n *model.Node) {
		if n.IsBookmark() {
			if n.Favorite != favorite {
				n.Favorite = favorite
				changed = append(changed, n.Key)
			}
			return
		}
		for _, c := range tx.tree.Children(n.Key) {
			visit(c)
		}
	}
	visit(tx.tree.Node(key))
	return changed, nil
}

// SetUUID assigns uuid to the node at key.
func (tx *Tx) SetUUID(key int64, uuid string) error {
	if err := tx.write(); err != nil {
		return err
	}
	return tx.tree.SetUUID(key, uuid)
}

// Delete removes the node at key and its subtree.
func (tx *Tx) Delete(key int64) error {
	if err := tx.write(); err != nil {
		return err
	}
	return tx.tree.Delete(key)
}

// DeleteByUUID removes the bookmark or folder with uuid. A miss is not an
// error; it reports whether anything was deleted.
func (tx *Tx) DeleteByUUID(uuid string) (bool, error) {
	n := tx.tree.ByUUID(uuid)
	if n == nil {
		return false, nil
	}
	if err := tx.Delete(n.Key); err != nil {
		return false, err
	}
	return true, nil
}

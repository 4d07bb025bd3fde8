package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrNotFound      = errors.New("node not found")
	ErrRootFolder    = errors.New("root folders cannot be moved or deleted")
	ErrNotFolder     = errors.New("parent is not a folder")
	ErrCycle         = errors.New("folder cannot be moved into its own subtree")
	ErrDuplicateUUID = errors.New("uuid already in use")
)

// Tree is the bookmark arena: every node keyed by its local Key, plus an
// index from UUID to key. The two root folders always exist.
type Tree struct {
	Nodes         map[int64]*Node `json:"nodes"`
	NextKey       int64           `json:"nextKey"`
	BookmarksRoot int64           `json:"bookmarksRoot"`
	FavoritesRoot int64           `json:"favoritesRoot"`

	byUUID map[string]int64
}

// NewTree creates a tree holding only the two root folders.
func NewTree() *Tree {
	t := &Tree{
		Nodes:   map[int64]*Node{},
		NextKey: 1,
		byUUID:  map[string]int64{},
	}
	now := time.Now()
	t.BookmarksRoot = t.add(&Node{UUID: GenerateUUID(), Title: "Bookmarks", Folder: true, CreatedAt: now}).Key
	t.FavoritesRoot = t.add(&Node{UUID: GenerateUUID(), Title: "Favorites", Folder: true, CreatedAt: now}).Key
	return t
}

func (t *Tree) add(n *Node) *Node {
	n.Key = t.NextKey
	t.NextKey++
	t.Nodes[n.Key] = n
	if n.UUID != "" {
		t.index()[n.UUID] = n.Key
	}
	return n
}

// index returns the UUID index, rebuilding it after a decode.
func (t *Tree) index() map[string]int64 {
	if t.byUUID == nil {
		t.byUUID = make(map[string]int64, len(t.Nodes))
		for key, n := range t.Nodes {
			if n.UUID != "" {
				t.byUUID[n.UUID] = key
			}
		}
	}
	return t.byUUID
}

// Validate checks the structural invariants of a decoded tree.
func (t *Tree) Validate() error {
	if t.Nodes == nil {
		return errors.New("tree has no nodes")
	}
	for _, key := range []int64{t.BookmarksRoot, t.FavoritesRoot} {
		root := t.Nodes[key]
		if root == nil || !root.Folder || root.ParentKey != 0 {
			return fmt.Errorf("root folder %d missing or malformed", key)
		}
	}
	seen := make(map[string]int64, len(t.Nodes))
	for key, n := range t.Nodes {
		if n.Key != key {
			return fmt.Errorf("node %d stored under key %d", n.Key, key)
		}
		if key >= t.NextKey {
			return fmt.Errorf("node %d beyond next key %d", key, t.NextKey)
		}
		if n.UUID != "" {
			if other, dup := seen[n.UUID]; dup {
				return fmt.Errorf("nodes %d and %d: %w", other, key, ErrDuplicateUUID)
			}
			seen[n.UUID] = key
		}
		if t.IsRoot(key) {
			continue
		}
		parent := t.Nodes[n.ParentKey]
		if parent == nil || !parent.Folder || !slices.Contains(parent.Children, key) {
			return fmt.Errorf("node %d has no valid parent", key)
		}
	}
	t.byUUID = nil
	return nil
}

// Len returns the number of nodes, roots included.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// HasEntries reports whether anything besides the two roots exists.
func (t *Tree) HasEntries() bool {
	return len(t.Nodes) > 2
}

// Root returns the requested root folder.
func (t *Tree) Root(kind RootKind) *Node {
	if kind == RootFavorites {
		return t.Nodes[t.FavoritesRoot]
	}
	return t.Nodes[t.BookmarksRoot]
}

// DefaultRoot returns the root a node of the given category lives under
// when it has no explicit parent.
func (t *Tree) DefaultRoot(favorite bool) *Node {
	if favorite {
		return t.Root(RootFavorites)
	}
	return t.Root(RootBookmarks)
}

// IsRoot reports whether key is one of the two root folders.
func (t *Tree) IsRoot(key int64) bool {
	return key == t.BookmarksRoot || key == t.FavoritesRoot
}

// InFavorites reports whether key lies in the favorites root's subtree.
func (t *Tree) InFavorites(key int64) bool {
	n := t.Nodes[key]
	for n != nil && n.ParentKey != 0 {
		n = t.Nodes[n.ParentKey]
	}
	return n != nil && n.Key == t.FavoritesRoot
}

// Node finds a node by key, returns nil if not found.
func (t *Tree) Node(key int64) *Node {
	return t.Nodes[key]
}

// ByUUID finds a node by UUID, returns nil if not found.
func (t *Tree) ByUUID(uuid string) *Node {
	if uuid == "" {
		return nil
	}
	key, ok := t.index()[uuid]
	if !ok {
		return nil
	}
	return t.Nodes[key]
}

// Parent returns the node's parent folder, nil for roots.
func (t *Tree) Parent(n *Node) *Node {
	if n == nil || n.ParentKey == 0 {
		return nil
	}
	return t.Nodes[n.ParentKey]
}

// Children returns the ordered children of a folder.
func (t *Tree) Children(key int64) []*Node {
	folder := t.Nodes[key]
	if folder == nil {
		return nil
	}
	result := make([]*Node, 0, len(folder.Children))
	for _, child := range folder.Children {
		if n := t.Nodes[child]; n != nil {
			result = append(result, n)
		}
	}
	return result
}

// NextSibling returns the sibling following key in its parent, nil when
// key is last or has no parent.
func (t *Tree) NextSibling(key int64) *Node {
	n := t.Nodes[key]
	if n == nil {
		return nil
	}
	parent := t.Nodes[n.ParentKey]
	if parent == nil {
		return nil
	}
	idx := slices.Index(parent.Children, key)
	if idx < 0 || idx+1 >= len(parent.Children) {
		return nil
	}
	return t.Nodes[parent.Children[idx+1]]
}

// InsertBookmark adds a bookmark under parentKey.
func (t *Tree) InsertBookmark(parentKey int64, params NewBookmarkParams) (*Node, error) {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return t.insert(parentKey, &Node{
		UUID:      params.UUID,
		Title:     params.Title,
		URL:       params.URL,
		Favorite:  params.Favorite,
		CreatedAt: createdAt,
	}, params.Before)
}

// InsertFolder adds a folder under parentKey.
func (t *Tree) InsertFolder(parentKey int64, params NewFolderParams) (*Node, error) {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return t.insert(parentKey, &Node{
		UUID:      params.UUID,
		Title:     params.Title,
		Folder:    true,
		CreatedAt: createdAt,
	}, params.Before)
}

func (t *Tree) insert(parentKey int64, n *Node, before int64) (*Node, error) {
	parent := t.Nodes[parentKey]
	if parent == nil {
		return nil, fmt.Errorf("parent %d: %w", parentKey, ErrNotFound)
	}
	if !parent.Folder {
		return nil, ErrNotFolder
	}
	if n.UUID != "" {
		if _, taken := t.index()[n.UUID]; taken {
			return nil, fmt.Errorf("%s: %w", n.UUID, ErrDuplicateUUID)
		}
	}
	t.add(n)
	n.ParentKey = parentKey
	parent.Children = insertBefore(parent.Children, n.Key, before)
	return n, nil
}

// Move re-parents key under parentKey, placed before the sibling `before`
// (0 = last). Roots cannot move and folders cannot enter their own subtree.
func (t *Tree) Move(key, parentKey, before int64) error {
	n := t.Nodes[key]
	if n == nil {
		return fmt.Errorf("node %d: %w", key, ErrNotFound)
	}
	if t.IsRoot(key) {
		return ErrRootFolder
	}
	parent := t.Nodes[parentKey]
	if parent == nil {
		return fmt.Errorf("parent %d: %w", parentKey, ErrNotFound)
	}
	if !parent.Folder {
		return ErrNotFolder
	}
	if before == key {
		return nil
	}
	for p := t.Nodes[parentKey]; p != nil; p = t.Nodes[p.ParentKey] {
		if p.Key == key {
			return ErrCycle
		}
	}

	if old := t.Nodes[n.ParentKey]; old != nil {
		old.Children = removeKey(old.Children, key)
	}
	n.ParentKey = parentKey
	parent.Children = insertBefore(parent.Children, key, before)
	return nil
}

// Delete removes a node and, for folders, its whole subtree.
func (t *Tree) Delete(key int64) error {
	n := t.Nodes[key]
	if n == nil {
		return fmt.Errorf("node %d: %w", key, ErrNotFound)
	}
	if t.IsRoot(key) {
		return ErrRootFolder
	}
	if parent := t.Nodes[n.ParentKey]; parent != nil {
		parent.Children = removeKey(parent.Children, key)
	}
	t.drop(n)
	return nil
}

func (t *Tree) drop(n *Node) {
	for _, child := range n.Children {
		if c := t.Nodes[child]; c != nil {
			t.drop(c)
		}
	}
	if n.UUID != "" {
		delete(t.index(), n.UUID)
	}
	delete(t.Nodes, n.Key)
}

// SetUUID assigns uuid to the node at key.
func (t *Tree) SetUUID(key int64, uuid string) error {
	n := t.Nodes[key]
	if n == nil {
		return fmt.Errorf("node %d: %w", key, ErrNotFound)
	}
	idx := t.index()
	if owner, taken := idx[uuid]; taken && owner != key {
		return fmt.Errorf("%s: %w", uuid, ErrDuplicateUUID)
	}
	if n.UUID != "" {
		delete(idx, n.UUID)
	}
	n.UUID = uuid
	idx[uuid] = key
	return nil
}

// Walk visits every node depth-first in sibling order, bookmarks root
// first, then favorites. Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(key int64) bool
	visit = func(key int64) bool {
		n := t.Nodes[key]
		if n == nil {
			return true
		}
		if !fn(n) {
			return false
		}
		for _, child := range n.Children {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	if visit(t.BookmarksRoot) {
		visit(t.FavoritesRoot)
	}
}

// Bookmarks returns every bookmark leaf in walk order.
func (t *Tree) Bookmarks() []*Node {
	var result []*Node
	t.Walk(func(n *Node) bool {
		if n.IsBookmark() {
			result = append(result, n)
		}
		return true
	})
	return result
}

// HasBookmarkURL checks if a bookmark with the given URL exists.
func (t *Tree) HasBookmarkURL(url string) bool {
	for _, n := range t.Nodes {
		if n.IsBookmark() && n.URL == url {
			return true
		}
	}
	return false
}

// Path returns the folder titles from the root down to the node's parent.
func (t *Tree) Path(key int64) []string {
	var path []string
	n := t.Nodes[key]
	for n != nil && n.ParentKey != 0 {
		n = t.Nodes[n.ParentKey]
		if n != nil {
			path = append([]string{n.Title}, path...)
		}
	}
	return path
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		Nodes:         make(map[int64]*Node, len(t.Nodes)),
		NextKey:       t.NextKey,
		BookmarksRoot: t.BookmarksRoot,
		FavoritesRoot: t.FavoritesRoot,
	}
	for key, n := range t.Nodes {
		cp := *n
		cp.Children = slices.Clone(n.Children)
		c.Nodes[key] = &cp
	}
	return c
}

// insertBefore inserts key before the `before` entry, appending when
// before is 0 or absent.
func insertBefore(list []int64, key, before int64) []int64 {
	if before != 0 {
		if idx := slices.Index(list, before); idx >= 0 {
			return slices.Insert(list, idx, key)
		}
	}
	return append(list, key)
}

func removeKey(list []int64, key int64) []int64 {
	if idx := slices.Index(list, key); idx >= 0 {
		return slices.Delete(list, idx, idx+1)
	}
	return list
}

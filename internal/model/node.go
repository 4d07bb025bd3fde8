package model

import "time"

// Node is a bookmark (leaf) or folder entry in the bookmark tree.
//
// Nodes reference each other by Key, never by pointer: a node stores its
// parent's key and a folder stores the ordered keys of its children.
type Node struct {
	Key       int64     `json:"key"`
	UUID      string    `json:"uuid,omitempty"` // empty until assigned
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"` // empty for folders
	Folder    bool      `json:"folder"`
	Favorite  bool      `json:"favorite"`
	ParentKey int64     `json:"parentKey,omitempty"` // 0 = root folder
	Children  []int64   `json:"children,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsBookmark reports whether the node is a bookmark leaf.
func (n *Node) IsBookmark() bool {
	return !n.Folder
}

// NewBookmarkParams holds parameters for inserting a bookmark.
type NewBookmarkParams struct {
	UUID      string // optional; left empty for lazy assignment
	Title     string
	URL       string
	Favorite  bool
	Before    int64 // sibling key to insert before; 0 = append
	CreatedAt time.Time
}

// NewFolderParams holds parameters for inserting a folder.
type NewFolderParams struct {
	UUID      string
	Title     string
	Before    int64
	CreatedAt time.Time
}

// RootKind identifies one of the two permanent root folders.
type RootKind int

const (
	RootBookmarks RootKind = iota
	RootFavorites
)

func (k RootKind) String() string {
	switch k {
	case RootFavorites:
		return "favorites"
	default:
		return "bookmarks"
	}
}

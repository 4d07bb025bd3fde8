package syncer

import (
	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

// BuildBookmarkItem converts a bookmark into its wire form. It returns nil
// when the node is not ready to sync: no UUID, title or URL yet.
func BuildBookmarkItem(tree *model.Tree, n *model.Node) *SavedSiteItem {
	if n == nil || n.Folder || n.UUID == "" || n.Title == "" || n.URL == "" {
		return nil
	}
	item := &SavedSiteItem{
		ID:         n.UUID,
		Title:      n.Title,
		URL:        n.URL,
		IsFavorite: n.Favorite,
	}
	next := nextUUID(tree, n)
	if n.ParentKey == tree.FavoritesRoot {
		item.NextFavorite = next
	} else {
		item.NextItem = next
	}
	item.Parent = wireParent(tree, n, tree.DefaultRoot(n.Favorite))
	return item
}

// BuildFolderItem is the folder analogue of BuildBookmarkItem. Roots are
// never sent.
func BuildFolderItem(tree *model.Tree, n *model.Node) *SavedSiteFolder {
	if n == nil || !n.Folder || n.UUID == "" || n.Title == "" || tree.IsRoot(n.Key) {
		return nil
	}
	return &SavedSiteFolder{
		ID:       n.UUID,
		Title:    n.Title,
		Parent:   wireParent(tree, n, tree.Root(model.RootBookmarks)),
		NextItem: nextUUID(tree, n),
	}
}

func nextUUID(tree *model.Tree, n *model.Node) *string {
	next := tree.NextSibling(n.Key)
	if next == nil || next.UUID == "" {
		return nil
	}
	return strPtr(next.UUID)
}

// wireParent encodes the parent of n: nil for the category's default root,
// a well-known id for the other root, the folder UUID otherwise.
func wireParent(tree *model.Tree, n *model.Node, defaultRoot *model.Node) *string {
	parent := tree.Parent(n)
	switch {
	case parent == nil || parent.Key == defaultRoot.Key:
		return nil
	case parent.Key == tree.FavoritesRoot:
		return strPtr(RootIDFavorites)
	case parent.Key == tree.BookmarksRoot:
		return strPtr(RootIDBookmarks)
	case parent.UUID == "":
		return nil
	}
	return strPtr(parent.UUID)
}

// Outbound builds events for local nodes from a consistent snapshot.
type Outbound struct {
	db *storage.DB
}

// NewOutbound creates an Outbound reading from db.
func NewOutbound(db *storage.DB) *Outbound {
	return &Outbound{db: db}
}

// NodeEvent builds the update event for whatever node lives at key.
func (o *Outbound) NodeEvent(key int64) (SyncEvent, bool) {
	var ev SyncEvent
	ok := false
	o.db.View(func(tx *storage.Tx) error {
		n := tx.Node(key)
		if n == nil {
			return nil
		}
		if n.Folder {
			if f := BuildFolderItem(tx.Tree(), n); f != nil {
				ev, ok = BookmarkFolderUpdated(*f), true
			}
		} else if item := BuildBookmarkItem(tx.Tree(), n); item != nil {
			ev, ok = BookmarkUpdated(*item), true
		}
		return nil
	})
	return ev, ok
}

// SiblingEvents builds update events for key and the sibling before it.
// After an insert or move the previous sibling's next pointer changed too.
func (o *Outbound) SiblingEvents(key int64) []SyncEvent {
	var keys []int64
	o.db.View(func(tx *storage.Tx) error {
		n := tx.Node(key)
		if n == nil {
			return nil
		}
		var prev int64
		for _, child := range tx.Children(n.ParentKey) {
			if child.Key == key {
				break
			}
			prev = child.Key
		}
		if prev != 0 {
			keys = append(keys, prev)
		}
		keys = append(keys, key)
		return nil
	})

	var events []SyncEvent
	for _, k := range keys {
		if ev, ok := o.NodeEvent(k); ok {
			events = append(events, ev)
		}
	}
	return events
}

// DeleteEvent builds the deletion event for uuid.
func DeleteEvent(uuid string) SyncEvent {
	return BookmarkDeleted(uuid)
}

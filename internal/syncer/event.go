package syncer

import (
	"errors"
	"fmt"
)

// EventKind tags the variant held by a SyncEvent.
type EventKind string

const (
	KindBookmarkUpdated       EventKind = "bookmarkUpdated"
	KindBookmarkFolderUpdated EventKind = "bookmarkFolderUpdated"
	KindBookmarkDeleted       EventKind = "bookmarkDeleted"
)

// Well-known parent ids naming the two root folders. Root UUIDs are local
// to each device and never sent.
const (
	RootIDBookmarks = "bookmarks_root"
	RootIDFavorites = "favorites_root"
)

// SavedSiteItem is the wire form of a bookmark. NextItem and NextFavorite
// link each item to the sibling after it; nil means last. A nil Parent
// means the item lives directly under its category's root; the other root
// is named by its well-known id.
type SavedSiteItem struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	IsFavorite   bool    `json:"isFavorite"`
	NextFavorite *string `json:"nextFavorite"`
	NextItem     *string `json:"nextItem"`
	Parent       *string `json:"parent"`
}

// SavedSiteFolder is the wire form of a folder.
type SavedSiteFolder struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Parent   *string `json:"parent"`
	NextItem *string `json:"nextItem"`
}

// SyncEvent is one change exchanged with the sync service. Exactly one of
// Item, Folder or DeletedID is set, matching Kind.
type SyncEvent struct {
	Kind      EventKind        `json:"kind"`
	Item      *SavedSiteItem   `json:"item,omitempty"`
	Folder    *SavedSiteFolder `json:"folder,omitempty"`
	DeletedID string           `json:"deletedId,omitempty"`
}

// BookmarkUpdated wraps a bookmark payload.
func BookmarkUpdated(item SavedSiteItem) SyncEvent {
	return SyncEvent{Kind: KindBookmarkUpdated, Item: &item}
}

// BookmarkFolderUpdated wraps a folder payload.
func BookmarkFolderUpdated(folder SavedSiteFolder) SyncEvent {
	return SyncEvent{Kind: KindBookmarkFolderUpdated, Folder: &folder}
}

// BookmarkDeleted announces the removal of a bookmark or folder.
func BookmarkDeleted(id string) SyncEvent {
	return SyncEvent{Kind: KindBookmarkDeleted, DeletedID: id}
}

// ID returns the identifier the event refers to.
func (e SyncEvent) ID() string {
	switch e.Kind {
	case KindBookmarkUpdated:
		if e.Item != nil {
			return e.Item.ID
		}
	case KindBookmarkFolderUpdated:
		if e.Folder != nil {
			return e.Folder.ID
		}
	case KindBookmarkDeleted:
		return e.DeletedID
	}
	return ""
}

var errMalformedEvent = errors.New("malformed sync event")

// Validate checks that the payload matches the kind.
func (e SyncEvent) Validate() error {
	switch e.Kind {
	case KindBookmarkUpdated:
		if e.Item == nil || e.Item.ID == "" {
			return fmt.Errorf("%w: %s without item", errMalformedEvent, e.Kind)
		}
	case KindBookmarkFolderUpdated:
		if e.Folder == nil || e.Folder.ID == "" {
			return fmt.Errorf("%w: %s without folder", errMalformedEvent, e.Kind)
		}
	case KindBookmarkDeleted:
		if e.DeletedID == "" {
			return fmt.Errorf("%w: %s without id", errMalformedEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errMalformedEvent, e.Kind)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

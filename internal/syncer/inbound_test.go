package syncer_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
	"github.com/nikbrunner/bmsync/internal/syncer"
)

func ptr(s string) *string { return &s }

func TestApplier_RoundTrip(t *testing.T) {
	src := newDB(t)
	folder := addFolder(t, src, rootKey(src, model.RootBookmarks), "Dev")
	b := addBookmark(t, src, folder.Key, "Go", "https://go.dev", false)
	fav := addBookmark(t, src, rootKey(src, model.RootFavorites), "Fav", "https://fav.com", true)

	out := syncer.NewOutbound(src)
	var events []syncer.SyncEvent
	for _, key := range []int64{folder.Key, b.Key, fav.Key} {
		ev, ok := out.NodeEvent(key)
		assert.Assert(t, ok)
		events = append(events, ev)
	}

	dst := newDB(t)
	applier := syncer.NewApplier(dst, quietLogger())
	for _, ev := range events {
		assert.NilError(t, applier.Apply(ev))
	}

	dst.View(func(tx *storage.Tx) error {
		got := tx.FetchByUUID(b.UUID)
		assert.Assert(t, got != nil)
		assert.Equal(t, got.Title, "Go")
		assert.Equal(t, got.URL, "https://go.dev")
		assert.Assert(t, !got.Favorite)
		assert.Equal(t, tx.Node(got.ParentKey).UUID, folder.UUID)

		gotFav := tx.FetchByUUID(fav.UUID)
		assert.Assert(t, gotFav != nil)
		assert.Assert(t, gotFav.Favorite)
		assert.Equal(t, gotFav.ParentKey, tx.RootFolder(model.RootFavorites).Key)

		gotFolder := tx.FetchByUUID(folder.UUID)
		assert.Equal(t, gotFolder.ParentKey, tx.RootFolder(model.RootBookmarks).Key)
		return nil
	})
}

func TestApplier_DeleteMissingIsNoop(t *testing.T) {
	db := newDB(t)
	applier := syncer.NewApplier(db, quietLogger())

	assert.NilError(t, applier.Apply(syncer.BookmarkDeleted(model.GenerateUUID())))
	db.View(func(tx *storage.Tx) error {
		assert.Assert(t, !tx.HasEntries())
		return nil
	})
}

func TestApplier_DeleteFolderRemovesSubtree(t *testing.T) {
	db := newDB(t)
	folder := addFolder(t, db, rootKey(db, model.RootBookmarks), "Dev")
	child := addBookmark(t, db, folder.Key, "Go", "https://go.dev", false)

	applier := syncer.NewApplier(db, quietLogger())
	assert.NilError(t, applier.Apply(syncer.BookmarkDeleted(folder.UUID)))

	db.View(func(tx *storage.Tx) error {
		assert.Assert(t, tx.FetchByUUID(folder.UUID) == nil)
		assert.Assert(t, tx.FetchByUUID(child.UUID) == nil)
		return nil
	})
}

func TestApplier_RefusesRootDeletion(t *testing.T) {
	db := newDB(t)
	var rootUUID string
	db.View(func(tx *storage.Tx) error {
		rootUUID = tx.RootFolder(model.RootFavorites).UUID
		return nil
	})

	applier := syncer.NewApplier(db, quietLogger())
	assert.NilError(t, applier.Apply(syncer.BookmarkDeleted(rootUUID)))
	db.View(func(tx *storage.Tx) error {
		assert.Assert(t, tx.FetchByUUID(rootUUID) != nil)
		return nil
	})
}

func TestApplier_RejectsInvalidURL(t *testing.T) {
	db := newDB(t)
	applier := syncer.NewApplier(db, quietLogger())

	for _, raw := range []string{"not a url", "/relative/path", "%zz"} {
		id := model.GenerateUUID()
		err := applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{ID: id, Title: "Bad", URL: raw}))
		assert.NilError(t, err)
		db.View(func(tx *storage.Tx) error {
			assert.Assert(t, tx.FetchByUUID(id) == nil, "created bookmark for %q", raw)
			return nil
		})
	}
}

func TestApplier_UnknownParentFallsBackToDefaultRoot(t *testing.T) {
	db := newDB(t)
	applier := syncer.NewApplier(db, quietLogger())
	id := model.GenerateUUID()

	err := applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{
		ID: id, Title: "Orphan", URL: "https://orphan.com", Parent: ptr(model.GenerateUUID()),
	}))
	assert.NilError(t, err)
	assert.DeepEqual(t, childTitles(db, rootKey(db, model.RootBookmarks)), []string{"Orphan"})
}

func TestApplier_UpdatesExistingBookmark(t *testing.T) {
	db := newDB(t)
	root := rootKey(db, model.RootBookmarks)
	a := addBookmark(t, db, root, "A", "https://a.com", false)
	b := addBookmark(t, db, root, "B", "https://b.com", false)
	folder := addFolder(t, db, root, "Dev")

	applier := syncer.NewApplier(db, quietLogger())
	err := applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{
		ID: b.UUID, Title: "B2", URL: "https://b2.com", NextItem: ptr(a.UUID),
	}))
	assert.NilError(t, err)
	assert.DeepEqual(t, childTitles(db, root), []string{"B2", "A", "Dev"})

	err = applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{
		ID: a.UUID, Title: "A", URL: "https://a.com", Parent: ptr(folder.UUID),
	}))
	assert.NilError(t, err)
	assert.DeepEqual(t, childTitles(db, root), []string{"B2", "Dev"})
	assert.DeepEqual(t, childTitles(db, folder.Key), []string{"A"})
}

func TestApplier_UnknownNextLeavesExistingInPlace(t *testing.T) {
	db := newDB(t)
	root := rootKey(db, model.RootBookmarks)
	a := addBookmark(t, db, root, "A", "https://a.com", false)
	addBookmark(t, db, root, "B", "https://b.com", false)

	applier := syncer.NewApplier(db, quietLogger())
	err := applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{
		ID: a.UUID, Title: "A", URL: "https://a.com", NextItem: ptr(model.GenerateUUID()),
	}))
	assert.NilError(t, err)
	assert.DeepEqual(t, childTitles(db, root), []string{"A", "B"})
}

func chainEvents(ids []string, titles []string, favorite bool) []syncer.SyncEvent {
	events := make([]syncer.SyncEvent, len(ids))
	for i := range ids {
		var next *string
		if i+1 < len(ids) {
			next = ptr(ids[i+1])
		}
		item := syncer.SavedSiteItem{ID: ids[i], Title: titles[i], URL: "https://" + titles[i] + ".com", IsFavorite: favorite}
		if favorite {
			item.NextFavorite = next
		} else {
			item.NextItem = next
		}
		events[i] = syncer.BookmarkUpdated(item)
	}
	return events
}

func TestApplier_OrderConvergesForAnyArrivalOrder(t *testing.T) {
	ids := []string{model.GenerateUUID(), model.GenerateUUID(), model.GenerateUUID()}
	chain := chainEvents(ids, []string{"A", "B", "C"}, false)

	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, order := range orders {
		events := make([]syncer.SyncEvent, len(order))
		for i, idx := range order {
			events[i] = chain[idx]
		}

		db := newDB(t)
		applier := syncer.NewApplier(db, quietLogger())
		assert.NilError(t, applier.ApplyAll(events))
		assert.DeepEqual(t, childTitles(db, rootKey(db, model.RootBookmarks)), []string{"A", "B", "C"})

		assert.NilError(t, applier.ApplyAll(events))
		assert.DeepEqual(t, childTitles(db, rootKey(db, model.RootBookmarks)), []string{"A", "B", "C"})
	}
}

func TestApplier_FavoritesOrder(t *testing.T) {
	ids := []string{model.GenerateUUID(), model.GenerateUUID()}
	events := chainEvents(ids, []string{"X", "Y"}, true)

	db := newDB(t)
	applier := syncer.NewApplier(db, quietLogger())
	assert.NilError(t, applier.ApplyAll([]syncer.SyncEvent{events[1], events[0]}))

	assert.DeepEqual(t, childTitles(db, rootKey(db, model.RootFavorites)), []string{"X", "Y"})
	assert.Equal(t, len(childTitles(db, rootKey(db, model.RootBookmarks))), 0)
}

func TestApplier_FolderCycleIsSkipped(t *testing.T) {
	db := newDB(t)
	outer := addFolder(t, db, rootKey(db, model.RootBookmarks), "Outer")
	inner := addFolder(t, db, outer.Key, "Inner")

	applier := syncer.NewApplier(db, quietLogger())
	err := applier.Apply(syncer.BookmarkFolderUpdated(syncer.SavedSiteFolder{
		ID: outer.UUID, Title: "Outer renamed", Parent: ptr(inner.UUID),
	}))
	assert.NilError(t, err)

	db.View(func(tx *storage.Tx) error {
		n := tx.FetchByUUID(outer.UUID)
		assert.Equal(t, n.ParentKey, tx.RootFolder(model.RootBookmarks).Key)
		assert.Equal(t, n.Title, "Outer renamed")
		return nil
	})
}

func TestApplier_KindMismatchIsSkipped(t *testing.T) {
	db := newDB(t)
	folder := addFolder(t, db, rootKey(db, model.RootBookmarks), "Dev")

	applier := syncer.NewApplier(db, quietLogger())
	err := applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{
		ID: folder.UUID, Title: "Not a bookmark", URL: "https://x.com",
	}))
	assert.NilError(t, err)

	db.View(func(tx *storage.Tx) error {
		n := tx.FetchByUUID(folder.UUID)
		assert.Assert(t, n.Folder)
		assert.Equal(t, n.Title, "Dev")
		return nil
	})
}

func TestApplier_MalformedEventIsSkipped(t *testing.T) {
	db := newDB(t)
	applier := syncer.NewApplier(db, quietLogger())
	assert.NilError(t, applier.Apply(syncer.SyncEvent{Kind: syncer.KindBookmarkUpdated}))
	assert.NilError(t, applier.Apply(syncer.SyncEvent{Kind: "bogus"}))
}

// replicate sends the current state of keys from src into a fresh database.
func replicate(t *testing.T, src *storage.DB, keys ...int64) *storage.DB {
	t.Helper()
	out := syncer.NewOutbound(src)
	var events []syncer.SyncEvent
	for _, key := range keys {
		ev, ok := out.NodeEvent(key)
		assert.Assert(t, ok, "node %d not ready", key)
		events = append(events, ev)
	}
	dst := newDB(t)
	assert.NilError(t, syncer.NewApplier(dst, quietLogger()).ApplyAll(events))
	return dst
}

func TestApplier_FolderInFavoritesRootRoundTrip(t *testing.T) {
	src := newDB(t)
	work := addFolder(t, src, rootKey(src, model.RootFavorites), "Work")
	inner := addBookmark(t, src, work.Key, "Wiki", "https://wiki.example.com", true)

	dst := replicate(t, src, work.Key, inner.Key)

	assert.DeepEqual(t, childTitles(dst, rootKey(dst, model.RootFavorites)), []string{"Work"})
	assert.Equal(t, len(childTitles(dst, rootKey(dst, model.RootBookmarks))), 0)
	dst.View(func(tx *storage.Tx) error {
		got := tx.FetchByUUID(inner.UUID)
		assert.Equal(t, tx.Node(got.ParentKey).UUID, work.UUID)
		return nil
	})
}

func TestApplier_NonFavoriteInFavoritesRootRoundTrip(t *testing.T) {
	src := newDB(t)
	favRoot := rootKey(src, model.RootFavorites)
	a := addBookmark(t, src, favRoot, "A", "https://a.com", true)
	b := addBookmark(t, src, favRoot, "B", "https://b.com", false)

	dst := replicate(t, src, b.Key, a.Key)

	assert.DeepEqual(t, childTitles(dst, rootKey(dst, model.RootFavorites)), []string{"A", "B"})
	assert.Equal(t, len(childTitles(dst, rootKey(dst, model.RootBookmarks))), 0)
	dst.View(func(tx *storage.Tx) error {
		assert.Assert(t, !tx.FetchByUUID(b.UUID).Favorite)
		return nil
	})
}

func TestApplier_FavoriteInBookmarksRootRoundTrip(t *testing.T) {
	src := newDB(t)
	bookmarksRoot := rootKey(src, model.RootBookmarks)
	x := addBookmark(t, src, bookmarksRoot, "X", "https://x.com", false)
	fav := addBookmark(t, src, rootKey(src, model.RootFavorites), "Fav", "https://fav.com", true)
	err := src.Perform(func(tx *storage.Tx) error {
		return tx.Move(fav.Key, bookmarksRoot, x.Key)
	})
	assert.NilError(t, err)

	dst := replicate(t, src, x.Key, fav.Key)

	assert.DeepEqual(t, childTitles(dst, rootKey(dst, model.RootBookmarks)), []string{"Fav", "X"})
	assert.Equal(t, len(childTitles(dst, rootKey(dst, model.RootFavorites))), 0)
}

func TestApplier_LaterEventForSameNodeWins(t *testing.T) {
	db := newDB(t)
	root := rootKey(db, model.RootBookmarks)
	folder := addFolder(t, db, root, "F")
	x := addBookmark(t, db, root, "X", "https://x.com", false)

	id := model.GenerateUUID()
	events := []syncer.SyncEvent{
		syncer.BookmarkUpdated(syncer.SavedSiteItem{ID: id, Title: "A", URL: "https://a.com", Parent: ptr(folder.UUID)}),
		syncer.BookmarkUpdated(syncer.SavedSiteItem{ID: id, Title: "A", URL: "https://a.com", NextItem: ptr(x.UUID)}),
	}
	assert.NilError(t, syncer.NewApplier(db, quietLogger()).ApplyAll(events))

	assert.DeepEqual(t, childTitles(db, root), []string{"F", "A", "X"})
	assert.Equal(t, len(childTitles(db, folder.Key)), 0)
}

func TestApplier_NonUUIDIdentifierIsSkipped(t *testing.T) {
	db := newDB(t)
	applier := syncer.NewApplier(db, quietLogger())

	err := applier.Apply(syncer.BookmarkUpdated(syncer.SavedSiteItem{ID: "not-a-uuid", Title: "A", URL: "https://a.com"}))
	assert.NilError(t, err)
	db.View(func(tx *storage.Tx) error {
		assert.Assert(t, !tx.HasEntries())
		return nil
	})
}

package ui_test

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/search"
	"github.com/nikbrunner/bmsync/internal/ui"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWidth int
		want     string
	}{
		{"fits", "short", 10, "short"},
		{"exact", "exact", 5, "exact"},
		{"truncated", "https://example.com/long", 10, "https://e…"},
		{"zero width", "text", 0, ""},
		{"unicode", "日本語のテキスト", 4, "日本語…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ui.Truncate(tt.text, tt.maxWidth), tt.want)
		})
	}
}

func TestRenderTree_ListsBothRootsInOrder(t *testing.T) {
	tree := model.NewTree()
	dev, _ := tree.InsertFolder(tree.BookmarksRoot, model.NewFolderParams{Title: "Dev"})
	tree.InsertBookmark(dev.Key, model.NewBookmarkParams{Title: "Go", URL: "https://go.dev"})
	tree.InsertBookmark(tree.BookmarksRoot, model.NewBookmarkParams{Title: "Example", URL: "https://example.com"})

	out := ui.StripANSI(ui.DefaultStyles().RenderTree(tree, ui.TreeOptions{}))
	want := "Bookmarks\n" +
		"  Dev/\n" +
		"    Go  https://go.dev\n" +
		"  Example  https://example.com\n" +
		"Favorites\n" +
		"  (empty)\n"
	assert.Equal(t, out, want)
}

func TestRenderTree_ShowsUUIDsAndFavoriteMarker(t *testing.T) {
	tree := model.NewTree()
	id := model.GenerateUUID()
	tree.InsertBookmark(tree.FavoritesRoot, model.NewBookmarkParams{UUID: id, Title: "Fav", URL: "https://fav.com", Favorite: true})

	out := ui.StripANSI(ui.DefaultStyles().RenderTree(tree, ui.TreeOptions{ShowUUIDs: true}))
	assert.Check(t, is.Contains(out, "Fav * "))
	assert.Check(t, is.Contains(out, id))
	assert.Check(t, is.Contains(out, tree.Root(model.RootFavorites).UUID))
}

func TestRenderResults(t *testing.T) {
	tree := model.NewTree()
	dev, _ := tree.InsertFolder(tree.BookmarksRoot, model.NewFolderParams{Title: "Dev"})
	tree.InsertBookmark(dev.Key, model.NewBookmarkParams{Title: "GitHub", URL: "https://github.com"})

	results := search.FuzzySearchBookmarks(tree, "git")
	out := ui.StripANSI(ui.DefaultStyles().RenderResults(results, "git"))

	assert.Check(t, is.Contains(out, "Search: git (1 results)"))
	assert.Check(t, is.Contains(out, "  GitHub\n"))
	assert.Check(t, is.Contains(out, "https://github.com"))
	assert.Check(t, is.Contains(out, "Bookmarks / Dev"))
}

func TestRenderResults_Empty(t *testing.T) {
	out := ui.StripANSI(ui.DefaultStyles().RenderResults(nil, "zzz"))
	assert.Check(t, strings.Contains(out, "No bookmarks found for 'zzz'"))
}

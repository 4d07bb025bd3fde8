package exporter_test

import (
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/golden"

	"github.com/nikbrunner/bmsync/internal/exporter"
	"github.com/nikbrunner/bmsync/internal/model"
)

var created = time.Unix(1700000000, 0)

func TestExportHTML_EmptyTree(t *testing.T) {
	html := exporter.ExportHTML(model.NewTree())

	// Should have basic structure even when empty
	if !strings.Contains(html, "<!DOCTYPE NETSCAPE-Bookmark-file-1>") {
		t.Error("expected DOCTYPE declaration")
	}
	if !strings.Contains(html, "<TITLE>Bookmarks</TITLE>") {
		t.Error("expected TITLE element")
	}
	if strings.Contains(html, "Favorites</H3>") {
		t.Error("empty favorites should not be exported")
	}
}

func TestExportHTML_SingleBookmark(t *testing.T) {
	tree := model.NewTree()
	tree.InsertBookmark(tree.BookmarksRoot, model.NewBookmarkParams{
		Title:     "GitHub",
		URL:       "https://github.com",
		CreatedAt: created,
	})

	html := exporter.ExportHTML(tree)

	if !strings.Contains(html, `<A HREF="https://github.com"`) {
		t.Error("expected bookmark URL")
	}
	if !strings.Contains(html, "GitHub</A>") {
		t.Error("expected bookmark title")
	}
	if !strings.Contains(html, `ADD_DATE="1700000000"`) {
		t.Error("expected ADD_DATE timestamp")
	}
}

func TestExportHTML_EscapesSpecialCharacters(t *testing.T) {
	tree := model.NewTree()
	tree.InsertFolder(tree.BookmarksRoot, model.NewFolderParams{Title: "Tom & Jerry"})
	tree.InsertBookmark(tree.BookmarksRoot, model.NewBookmarkParams{
		Title:     "<script>",
		URL:       "https://example.com?a=1&b=2",
		CreatedAt: created,
	})

	html := exporter.ExportHTML(tree)

	if !strings.Contains(html, "Tom &amp; Jerry") {
		t.Error("expected escaped folder name")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("expected escaped title")
	}
	if !strings.Contains(html, "a=1&amp;b=2") {
		t.Error("expected escaped URL")
	}
}

func TestExportHTML_NestedTreeGolden(t *testing.T) {
	tree := model.NewTree()
	dev, _ := tree.InsertFolder(tree.BookmarksRoot, model.NewFolderParams{Title: "Development", CreatedAt: created})
	react, _ := tree.InsertFolder(dev.Key, model.NewFolderParams{Title: "React", CreatedAt: created})
	tree.InsertBookmark(react.Key, model.NewBookmarkParams{Title: "React Docs", URL: "https://react.dev", CreatedAt: created})
	tree.InsertBookmark(dev.Key, model.NewBookmarkParams{Title: "GitHub", URL: "https://github.com", CreatedAt: created})
	tree.InsertBookmark(tree.BookmarksRoot, model.NewBookmarkParams{Title: "Google", URL: "https://google.com", CreatedAt: created})
	tree.InsertBookmark(tree.FavoritesRoot, model.NewBookmarkParams{Title: "Go", URL: "https://go.dev", Favorite: true, CreatedAt: created})

	golden.Assert(t, exporter.ExportHTML(tree), "golden/nested_tree.golden")
}

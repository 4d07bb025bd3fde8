package ui

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/search"
)

// ansiRegex matches ANSI escape sequences.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes ANSI escape codes from a string.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// Truncate shortens text to maxWidth runes, ending in an ellipsis.
func Truncate(text string, maxWidth int) string {
	const ellipsis = "…"
	if maxWidth <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxWidth {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxWidth-1]) + ellipsis
}

// TreeOptions controls RenderTree.
type TreeOptions struct {
	ShowUUIDs bool
	URLWidth  int // 0 = untruncated
}

// RenderTree lists both roots and their subtrees in sibling order.
func (s Styles) RenderTree(tree *model.Tree, opts TreeOptions) string {
	var b strings.Builder
	for _, kind := range []model.RootKind{model.RootBookmarks, model.RootFavorites} {
		root := tree.Root(kind)
		b.WriteString(s.Root.Render(root.Title))
		if opts.ShowUUIDs {
			b.WriteString(" " + s.UUID.Render(root.UUID))
		}
		b.WriteString("\n")
		children := tree.Children(root.Key)
		if len(children) == 0 {
			b.WriteString("  " + s.Empty.Render("(empty)") + "\n")
		}
		for _, n := range children {
			s.renderNode(&b, tree, n, 1, opts)
		}
	}
	return b.String()
}

func (s Styles) renderNode(b *strings.Builder, tree *model.Tree, n *model.Node, depth int, opts TreeOptions) {
	indent := strings.Repeat("  ", depth)
	var line string
	if n.Folder {
		line = indent + s.Folder.Render(n.Title+"/")
	} else {
		line = indent + s.Bookmark.Render(n.Title)
		if n.Favorite {
			line += " " + s.Favorite.Render("*")
		}
		url := n.URL
		if opts.URLWidth > 0 {
			url = Truncate(url, opts.URLWidth)
		}
		line += "  " + s.URL.Render(url)
	}
	if opts.ShowUUIDs && n.UUID != "" {
		line += "  " + s.UUID.Render(n.UUID)
	}
	b.WriteString(line + "\n")

	if n.Folder {
		for _, c := range tree.Children(n.Key) {
			s.renderNode(b, tree, c, depth+1, opts)
		}
	}
}

// RenderResults lists fuzzy search hits with matched runes highlighted.
func (s Styles) RenderResults(results []search.SearchResult, query string) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(fmt.Sprintf("Search: %s (%d results)", query, len(results))))
	b.WriteString("\n")
	if len(results) == 0 {
		b.WriteString(s.Empty.Render(fmt.Sprintf("No bookmarks found for '%s'", query)) + "\n")
		return b.String()
	}
	for _, r := range results {
		b.WriteString("  " + s.highlight(r.Bookmark.Title, r.MatchedIndexes) + "\n")
		b.WriteString("    " + s.URL.Render(r.Bookmark.URL) + "\n")
		if len(r.Path) > 0 {
			b.WriteString("    " + s.Path.Render(strings.Join(r.Path, " / ")) + "\n")
		}
	}
	return b.String()
}

// highlight styles the runes at the matched byte offsets reported by fuzzy.
func (s Styles) highlight(title string, matched []int) string {
	if len(matched) == 0 {
		return s.Bookmark.Render(title)
	}
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range title {
		if hit[i] {
			b.WriteString(s.Match.Render(string(r)))
		} else {
			b.WriteString(s.Bookmark.Render(string(r)))
		}
	}
	return b.String()
}

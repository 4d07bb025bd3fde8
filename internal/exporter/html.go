package exporter

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nikbrunner/bmsync/internal/model"
)

// DefaultExportPath returns the default export file path.
// Format: ~/Downloads/bookmarks-export-YYYY-MM-DD.html
func DefaultExportPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("bookmarks-export-%s.html", time.Now().Format("2006-01-02"))
	return filepath.Join(home, "Downloads", filename), nil
}

// ExportHTML renders the tree as Netscape bookmark HTML. The bookmarks root
// forms the top level; favorites follow in a "Favorites" folder.
func ExportHTML(tree *model.Tree) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	b.WriteString("<TITLE>Bookmarks</TITLE>\n")
	b.WriteString("<H1>Bookmarks</H1>\n")
	b.WriteString("<DL><p>\n")

	writeItems(&b, tree, tree.BookmarksRoot, 1)

	if favorites := tree.Root(model.RootFavorites); len(favorites.Children) > 0 {
		writeFolder(&b, tree, favorites, 1)
	}

	b.WriteString("</DL><p>\n")

	return b.String()
}

// writeItems writes the children of a folder in sibling order.
func writeItems(b *strings.Builder, tree *model.Tree, parentKey int64, indent int) {
	prefix := strings.Repeat("    ", indent)

	for _, n := range tree.Children(parentKey) {
		if n.Folder {
			writeFolder(b, tree, n, indent)
			continue
		}
		fmt.Fprintf(b,
			"%s<DT><A HREF=\"%s\" ADD_DATE=\"%d\">%s</A>\n",
			prefix,
			html.EscapeString(n.URL),
			n.CreatedAt.Unix(),
			html.EscapeString(n.Title),
		)
	}
}

func writeFolder(b *strings.Builder, tree *model.Tree, folder *model.Node, indent int) {
	prefix := strings.Repeat("    ", indent)
	fmt.Fprintf(b, "%s<DT><H3>%s</H3>\n", prefix, html.EscapeString(folder.Title))
	fmt.Fprintf(b, "%s<DL><p>\n", prefix)
	writeItems(b, tree, folder.Key, indent+1)
	fmt.Fprintf(b, "%s</DL><p>\n", prefix)
}

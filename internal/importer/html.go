package importer

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

// Entry is a parsed bookmark or folder, before it is placed in the tree.
type Entry struct {
	Title     string
	URL       string // empty for folders
	Folder    bool
	CreatedAt time.Time
	Children  []Entry
}

// Result summarizes an import.
type Result struct {
	Added   int     // bookmarks created
	Skipped int     // bookmarks whose URL already existed or was invalid
	Folders int     // folders created
	Keys    []int64 // every node created, in insertion order
}

// ParseHTMLBookmarks parses Netscape bookmark HTML into a nested entry list.
func ParseHTMLBookmarks(r io.Reader) ([]Entry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var root []Entry
	// Each DL appends into the slice on top of the stack.
	stack := []*[]Entry{&root}
	var pendingFolder *Entry // folder waiting to be pushed on next DL

	var parse func(*html.Node)
	parse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				name := getTextContent(n)
				if name != "" {
					dest := stack[len(stack)-1]
					*dest = append(*dest, Entry{
						Title:     name,
						Folder:    true,
						CreatedAt: parseAddDate(n),
					})
					// Pushed when we see the next DL
					pendingFolder = &(*dest)[len(*dest)-1]
				}
				return // Don't recurse into H3

			case "a":
				href := getAttr(n, "href")
				if href == "" {
					return
				}
				title := getTextContent(n)
				if title == "" {
					title = href
				}
				pendingFolder = nil // folder had no DL
				dest := stack[len(stack)-1]
				*dest = append(*dest, Entry{
					Title:     title,
					URL:       href,
					CreatedAt: parseAddDate(n),
				})
				return

			case "dl":
				pushed := false
				if pendingFolder != nil {
					stack = append(stack, &pendingFolder.Children)
					pendingFolder = nil
					pushed = true
				}

				for c := n.FirstChild; c != nil; c = c.NextSibling {
					parse(c)
				}

				if pushed {
					stack = stack[:len(stack)-1]
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}

	parse(doc)
	return root, nil
}

// ImportHTML parses r and merges the result under parentKey.
func ImportHTML(tx *storage.Tx, parentKey int64, r io.Reader) (Result, error) {
	entries, err := ParseHTMLBookmarks(r)
	if err != nil {
		return Result{}, fmt.Errorf("parse bookmarks: %w", err)
	}
	return ImportInto(tx, parentKey, entries)
}

// ImportInto merges entries under parentKey. Folders with the same title at
// the same level are reused; bookmarks whose URL already exists anywhere in
// the tree, or that are not absolute URLs, are skipped. Imported nodes get
// fresh UUIDs and inherit the favorite flag of the root they land in.
func ImportInto(tx *storage.Tx, parentKey int64, entries []Entry) (Result, error) {
	var result Result
	parent := tx.Node(parentKey)
	if parent == nil {
		return result, fmt.Errorf("import target %d: %w", parentKey, model.ErrNotFound)
	}
	if !parent.Folder {
		return result, model.ErrNotFolder
	}
	favorite := parentKey == tx.Tree().FavoritesRoot
	for p := tx.Tree().Parent(parent); p != nil; p = tx.Tree().Parent(p) {
		if p.Key == tx.Tree().FavoritesRoot {
			favorite = true
		}
	}

	seen := map[string]bool{}
	for _, n := range tx.Tree().Bookmarks() {
		seen[n.URL] = true
	}

	var insert func(parentKey int64, entries []Entry) error
	insert = func(parentKey int64, entries []Entry) error {
		for _, e := range entries {
			if e.Folder {
				key, err := findOrCreateFolder(tx, parentKey, e, &result)
				if err != nil {
					return err
				}
				if err := insert(key, e.Children); err != nil {
					return err
				}
				continue
			}

			if seen[e.URL] || !validURL(e.URL) {
				result.Skipped++
				continue
			}
			n, err := tx.InsertBookmark(parentKey, model.NewBookmarkParams{
				UUID:      model.GenerateUUID(),
				Title:     e.Title,
				URL:       e.URL,
				Favorite:  favorite,
				CreatedAt: e.CreatedAt,
			})
			if err != nil {
				return err
			}
			seen[e.URL] = true
			result.Added++
			result.Keys = append(result.Keys, n.Key)
		}
		return nil
	}

	if err := insert(parentKey, entries); err != nil {
		return result, err
	}
	return result, nil
}

func findOrCreateFolder(tx *storage.Tx, parentKey int64, e Entry, result *Result) (int64, error) {
	for _, child := range tx.Children(parentKey) {
		if child.Folder && child.Title == e.Title {
			return child.Key, nil
		}
	}
	n, err := tx.InsertFolder(parentKey, model.NewFolderParams{
		UUID:      model.GenerateUUID(),
		Title:     e.Title,
		CreatedAt: e.CreatedAt,
	})
	if err != nil {
		return 0, err
	}
	result.Folders++
	result.Keys = append(result.Keys, n.Key)
	return n.Key, nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs()
}

// parseAddDate reads the ADD_DATE attribute, defaulting to now.
func parseAddDate(n *html.Node) time.Time {
	if addDate := getAttr(n, "add_date"); addDate != "" {
		if ts, err := strconv.ParseInt(addDate, 10, 64); err == nil {
			return time.Unix(ts, 0)
		}
	}
	return time.Now()
}

// getTextContent returns the text content of a node.
func getTextContent(n *html.Node) string {
	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(text.String())
}

// getAttr returns the value of an attribute, case-insensitive.
func getAttr(n *html.Node, key string) string {
	key = strings.ToLower(key)
	for _, attr := range n.Attr {
		if strings.ToLower(attr.Key) == key {
			return attr.Val
		}
	}
	return ""
}

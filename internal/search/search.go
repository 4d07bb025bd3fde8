package search

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/nikbrunner/bmsync/internal/model"
)

// SearchResult represents a fuzzy search match.
type SearchResult struct {
	Bookmark       *model.Node
	Path           []string // folder titles from the root down
	MatchedIndexes []int
	Score          int
}

// bookmarkTitles implements fuzzy.Source for a bookmark slice.
type bookmarkTitles []*model.Node

func (bt bookmarkTitles) String(i int) string {
	return bt[i].Title
}

func (bt bookmarkTitles) Len() int {
	return len(bt)
}

// FuzzySearchBookmarks searches all bookmarks in the tree by title using
// fuzzy matching. Returns results sorted by match score (best first).
func FuzzySearchBookmarks(tree *model.Tree, query string) []SearchResult {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	bookmarks := bookmarkTitles(tree.Bookmarks())
	matches := fuzzy.FindFrom(query, bookmarks)

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		n := bookmarks[m.Index]
		results[i] = SearchResult{
			Bookmark:       n,
			Path:           tree.Path(n.Key),
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}

	return results
}

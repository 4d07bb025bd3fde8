package syncer

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

// Applier writes remote events into the local tree, one transaction per
// event. Every transition is idempotent.
type Applier struct {
	db     *storage.DB
	logger *log.Logger
}

// NewApplier creates an Applier. A nil logger writes to stderr.
func NewApplier(db *storage.DB, logger *log.Logger) *Applier {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Applier{db: db, logger: logger}
}

// placement is where an applied node wants to sit among its siblings.
type placement struct {
	key       int64
	parentKey int64
	next      *string
}

// Apply applies a single event.
func (a *Applier) Apply(ev SyncEvent) error {
	_, err := a.apply(ev)
	return err
}

// ApplyAll applies events in order and stops at the first storage error.
// Once all events are in, sibling order is settled again from the tail of
// each next-pointer chain, so the result does not depend on arrival order.
func (a *Applier) ApplyAll(events []SyncEvent) error {
	var placed []placement
	for i, ev := range events {
		p, err := a.apply(ev)
		if err != nil {
			return fmt.Errorf("apply event %d (%s %s): %w", i, ev.Kind, ev.ID(), err)
		}
		if p != nil {
			placed = append(placed, *p)
		}
	}
	placed = latestPlacements(placed)
	if len(placed) < 2 {
		return nil
	}
	return a.db.Perform(func(tx *storage.Tx) error {
		return settleOrder(tx, placed)
	})
}

// latestPlacements keeps only the last placement of each node, in the
// order those last placements were made.
func latestPlacements(placed []placement) []placement {
	last := make(map[int64]int, len(placed))
	for i, p := range placed {
		last[p.key] = i
	}
	kept := placed[:0:0]
	for i, p := range placed {
		if last[p.key] == i {
			kept = append(kept, p)
		}
	}
	return kept
}

func (a *Applier) apply(ev SyncEvent) (*placement, error) {
	if err := ev.Validate(); err != nil {
		a.logger.Printf("skipping event: %v", err)
		return nil, nil
	}
	if !model.ValidUUID(ev.ID()) {
		a.logger.Printf("skipping %s: id %q is not a uuid", ev.Kind, ev.ID())
		return nil, nil
	}

	var p *placement
	err := a.db.Perform(func(tx *storage.Tx) error {
		var err error
		switch ev.Kind {
		case KindBookmarkDeleted:
			err = a.applyDelete(tx, ev.DeletedID)
		case KindBookmarkUpdated:
			p, err = a.applyItem(tx, ev.Item)
		case KindBookmarkFolderUpdated:
			p, err = a.applyFolder(tx, ev.Folder)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *Applier) applyDelete(tx *storage.Tx, id string) error {
	if n := tx.FetchByUUID(id); n != nil && tx.Tree().IsRoot(n.Key) {
		a.logger.Printf("refusing to delete root folder %s", id)
		return nil
	}
	_, err := tx.DeleteByUUID(id)
	return err
}

func (a *Applier) applyItem(tx *storage.Tx, item *SavedSiteItem) (*placement, error) {
	u, err := url.Parse(item.URL)
	if err != nil || !u.IsAbs() {
		a.logger.Printf("skipping bookmark %s: invalid url %q", item.ID, item.URL)
		return nil, nil
	}

	existing := tx.FetchByUUID(item.ID)
	if existing != nil && existing.Folder {
		a.logger.Printf("skipping bookmark %s: id belongs to a folder", item.ID)
		return nil, nil
	}

	parent := resolveParent(tx, item.Parent, tx.Tree().DefaultRoot(item.IsFavorite))
	next := item.NextItem
	if parent.Key == tx.Tree().FavoritesRoot {
		next = item.NextFavorite
	}

	if existing == nil {
		before, _ := siblingBefore(tx, parent.Key, next, 0)
		n, err := tx.InsertBookmark(parent.Key, model.NewBookmarkParams{
			UUID:     item.ID,
			Title:    item.Title,
			URL:      item.URL,
			Favorite: item.IsFavorite,
			Before:   before,
		})
		if err != nil {
			return nil, err
		}
		return &placement{key: n.Key, parentKey: parent.Key, next: next}, nil
	}

	err = tx.Update(existing.Key, func(n *model.Node) {
		n.Title = item.Title
		n.URL = item.URL
		n.Favorite = item.IsFavorite
	})
	if err != nil {
		return nil, err
	}
	if err := a.place(tx, existing, parent.Key, next); err != nil {
		return nil, err
	}
	return &placement{key: existing.Key, parentKey: parent.Key, next: next}, nil
}

func (a *Applier) applyFolder(tx *storage.Tx, folder *SavedSiteFolder) (*placement, error) {
	existing := tx.FetchByUUID(folder.ID)
	if existing != nil && !existing.Folder {
		a.logger.Printf("skipping folder %s: id belongs to a bookmark", folder.ID)
		return nil, nil
	}
	if existing != nil && tx.Tree().IsRoot(existing.Key) {
		return nil, nil
	}

	parent := resolveParent(tx, folder.Parent, tx.RootFolder(model.RootBookmarks))

	if existing == nil {
		before, _ := siblingBefore(tx, parent.Key, folder.NextItem, 0)
		n, err := tx.InsertFolder(parent.Key, model.NewFolderParams{
			UUID:   folder.ID,
			Title:  folder.Title,
			Before: before,
		})
		if err != nil {
			return nil, err
		}
		return &placement{key: n.Key, parentKey: parent.Key, next: folder.NextItem}, nil
	}

	err := tx.Update(existing.Key, func(n *model.Node) {
		n.Title = folder.Title
	})
	if err != nil {
		return nil, err
	}
	if err := a.place(tx, existing, parent.Key, folder.NextItem); err != nil {
		if errors.Is(err, model.ErrCycle) {
			a.logger.Printf("skipping move of folder %s: %v", folder.ID, err)
			return nil, nil
		}
		return nil, err
	}
	return &placement{key: existing.Key, parentKey: parent.Key, next: folder.NextItem}, nil
}

// place moves an existing node into parentKey according to its next
// pointer. An unknown pointer leaves a node that is already in the right
// folder where it is.
func (a *Applier) place(tx *storage.Tx, n *model.Node, parentKey int64, next *string) error {
	before, known := siblingBefore(tx, parentKey, next, n.Key)
	if !known && n.ParentKey == parentKey {
		return nil
	}
	return tx.Move(n.Key, parentKey, before)
}

// resolveParent finds the folder named by id, falling back to def.
func resolveParent(tx *storage.Tx, id *string, def *model.Node) *model.Node {
	if id == nil {
		return def
	}
	switch *id {
	case RootIDBookmarks:
		return tx.RootFolder(model.RootBookmarks)
	case RootIDFavorites:
		return tx.RootFolder(model.RootFavorites)
	}
	if p := tx.FetchByUUID(*id); p != nil && p.Folder {
		return p
	}
	return def
}

// siblingBefore maps a next pointer to the sibling key to insert before.
// A nil pointer means last (0, known). A pointer to a node outside the
// parent, or to self, is unknown.
func siblingBefore(tx *storage.Tx, parentKey int64, next *string, self int64) (int64, bool) {
	if next == nil {
		return 0, true
	}
	n := tx.FetchByUUID(*next)
	if n == nil || n.ParentKey != parentKey || n.Key == self {
		return 0, false
	}
	return n.Key, true
}

// settleOrder re-applies the next pointers of a batch starting from the
// anchors of each chain: nodes that go last, nodes whose successor is
// unknown, and siblings outside the batch that batch nodes point at. Every
// predecessor is then placed directly before its successor, walking
// backwards. placed holds at most one entry per node.
func settleOrder(tx *storage.Tx, placed []placement) error {
	inBatch := make(map[int64]bool, len(placed))
	preds := map[int64][]int64{}
	var anchors []int64
	seenAnchor := map[int64]bool{}

	for _, p := range placed {
		n := tx.Node(p.key)
		if n == nil || n.ParentKey != p.parentKey {
			continue
		}
		inBatch[p.key] = true
	}
	for _, p := range placed {
		if !inBatch[p.key] {
			continue
		}
		if p.next == nil {
			if err := tx.Move(p.key, p.parentKey, 0); err != nil {
				return err
			}
			if !seenAnchor[p.key] {
				seenAnchor[p.key] = true
				anchors = append(anchors, p.key)
			}
			continue
		}
		succ, known := siblingBefore(tx, p.parentKey, p.next, p.key)
		if !known {
			if !seenAnchor[p.key] {
				seenAnchor[p.key] = true
				anchors = append(anchors, p.key)
			}
			continue
		}
		preds[succ] = append(preds[succ], p.key)
		if !inBatch[succ] && !seenAnchor[succ] {
			seenAnchor[succ] = true
			anchors = append(anchors, succ)
		}
	}

	visited := map[int64]bool{}
	var placeBefore func(succ int64) error
	placeBefore = func(succ int64) error {
		visited[succ] = true
		for _, pred := range preds[succ] {
			if visited[pred] {
				continue
			}
			n := tx.Node(pred)
			if err := tx.Move(pred, n.ParentKey, succ); err != nil {
				return err
			}
			if err := placeBefore(pred); err != nil {
				return err
			}
		}
		return nil
	}
	for _, anchor := range anchors {
		if err := placeBefore(anchor); err != nil {
			return err
		}
	}
	return nil
}

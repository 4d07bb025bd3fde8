package migration

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/nikbrunner/bmsync/internal/legacy"
	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

// ErrMigrationFailed wraps a failure to commit migrated bookmarks.
// Callers treat it as fatal.
var ErrMigrationFailed = errors.New("legacy bookmark migration failed")

// Migrator moves the flat legacy store into the bookmark tree once.
type Migrator struct {
	Legacy legacy.Store
	DB     *storage.DB
	Meta   storage.Metadata
	Logger *log.Logger
}

// Migrate runs a Migrator with the default logger.
func Migrate(src legacy.Store, db *storage.DB, meta storage.Metadata) (bool, error) {
	return (&Migrator{Legacy: src, DB: db, Meta: meta}).Run()
}

// Run performs the migration. It returns false when the migration flag was
// already set and true once the migration is complete, including when the
// tree already had entries and nothing was copied.
func (m *Migrator) Run() (bool, error) {
	logger := m.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}

	done, err := storage.Bool(m.Meta, storage.KeyMigratedFromUserDefaults)
	if err != nil {
		return false, fmt.Errorf("read migration flag: %w", err)
	}
	if done {
		return false, nil
	}

	favorites := m.Legacy.Favorites()
	bookmarks := m.Legacy.Bookmarks()

	created := 0
	err = m.DB.Perform(func(tx *storage.Tx) error {
		created = 0
		if tx.HasEntries() {
			return nil
		}
		favRoot := tx.RootFolder(model.RootFavorites).Key
		for _, link := range favorites {
			if _, err := tx.InsertBookmark(favRoot, model.NewBookmarkParams{
				Title:    link.Title,
				URL:      link.URL,
				Favorite: true,
			}); err != nil {
				return err
			}
			created++
		}
		bmRoot := tx.RootFolder(model.RootBookmarks).Key
		for _, link := range bookmarks {
			if _, err := tx.InsertBookmark(bmRoot, model.NewBookmarkParams{
				Title: link.Title,
				URL:   link.URL,
			}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if created > 0 {
		logger.Printf("migrated %d favorites and %d bookmarks", len(favorites), len(bookmarks))
		if err := m.Legacy.DeleteAllData(); err != nil {
			logger.Printf("warning: failed to clear legacy store: %v", err)
		}
	} else if len(favorites)+len(bookmarks) > 0 {
		logger.Printf("bookmark tree already populated, left %d legacy entries untouched", len(favorites)+len(bookmarks))
	}

	if err := storage.SetBool(m.Meta, storage.KeyMigratedFromUserDefaults, true); err != nil {
		// The next run sees a populated tree and creates nothing.
		logger.Printf("warning: failed to persist migration flag: %v", err)
	}
	return true, nil
}

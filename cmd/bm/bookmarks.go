package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

var (
	addParent   string
	addFavorite bool
	mkdirParent string
	mvParent    string
	mvBefore    string
)

var addCmd = &cobra.Command{
	Use:   "add <title> <url>",
	Short: "Add a bookmark",
	Long: `Add a bookmark at the end of a folder.

Without --parent the bookmark goes into the Bookmarks root, or the
Favorites root with --favorite.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		title, rawURL := args[0], args[1]
		if u, err := url.Parse(rawURL); err != nil || !u.IsAbs() {
			exitf("invalid url %q", rawURL)
		}

		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		var created *model.Node
		err = a.db.Perform(func(tx *storage.Tx) error {
			parent := tx.RootFolder(model.RootBookmarks).Key
			if addFavorite {
				parent = tx.RootFolder(model.RootFavorites).Key
			}
			if addParent != "" {
				parent, err = resolveFolder(tx, addParent)
				if err != nil {
					return err
				}
			}
			created, err = tx.InsertBookmark(parent, model.NewBookmarkParams{
				UUID:      model.GenerateUUID(),
				Title:     title,
				URL:       rawURL,
				Favorite:  addFavorite || parent == tx.RootFolder(model.RootFavorites).Key,
				CreatedAt: time.Now(),
			})
			return err
		})
		if err != nil {
			exitf("adding bookmark: %v", err)
		}

		a.session.PersistNode(cmd.Context(), created.Key)
		fmt.Printf("Added %s %s\n", a.styles.Bookmark.Render(title), a.styles.UUID.Render(created.UUID))
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <title>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		var created *model.Node
		err = a.db.Perform(func(tx *storage.Tx) error {
			parent, err := resolveFolder(tx, mkdirParent)
			if err != nil {
				return err
			}
			created, err = tx.InsertFolder(parent, model.NewFolderParams{
				UUID:      model.GenerateUUID(),
				Title:     args[0],
				CreatedAt: time.Now(),
			})
			return err
		})
		if err != nil {
			exitf("creating folder: %v", err)
		}

		a.session.PersistNode(cmd.Context(), created.Key)
		fmt.Printf("Created %s %s\n", a.styles.Folder.Render(args[0]+"/"), a.styles.UUID.Render(created.UUID))
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <uuid>",
	Short: "Move a bookmark or folder",
	Long: `Move a node into another folder, or reorder it among its siblings.

--parent names the destination folder (default: the current folder).
--before names the sibling to place the node in front of (default: last).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		var moved moveResult
		err = a.db.Perform(func(tx *storage.Tx) error {
			moved, err = moveNode(tx, args[0], mvParent, mvBefore)
			return err
		})
		if err != nil {
			exitf("moving: %v", err)
		}

		ctx := cmd.Context()
		if moved.oldPrev != 0 {
			a.session.PersistNode(ctx, moved.oldPrev)
		}
		a.session.PersistNode(ctx, moved.key)
		for _, k := range moved.flagged {
			if k != moved.key {
				a.session.PersistNode(ctx, k)
			}
		}
		fmt.Println("Moved", args[0])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <uuid>",
	Short: "Delete a bookmark or folder",
	Long:  `Delete a node. Deleting a folder removes everything inside it.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		var prev int64
		err = a.db.Perform(func(tx *storage.Tx) error {
			n := tx.FetchByUUID(args[0])
			if n == nil {
				return fmt.Errorf("%s: %w", args[0], model.ErrNotFound)
			}
			prev = previousSibling(tx, n.Key)
			return tx.Delete(n.Key)
		})
		if err != nil {
			exitf("deleting: %v", err)
		}

		ctx := cmd.Context()
		a.session.PersistDeletion(ctx, args[0])
		if prev != 0 {
			a.session.PersistNode(ctx, prev)
		}
		fmt.Println("Deleted", args[0])
	},
}

func init() {
	addCmd.Flags().StringVar(&addParent, "parent", "", "uuid of the destination folder")
	addCmd.Flags().BoolVar(&addFavorite, "favorite", false, "add to favorites")
	mkdirCmd.Flags().StringVar(&mkdirParent, "parent", "", "uuid of the parent folder")
	mvCmd.Flags().StringVar(&mvParent, "parent", "", "uuid of the destination folder")
	mvCmd.Flags().StringVar(&mvBefore, "before", "", "uuid of the sibling to move in front of")

	rootCmd.AddCommand(addCmd, mkdirCmd, mvCmd, rmCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/bmsync/internal/exporter"
	"github.com/nikbrunner/bmsync/internal/importer"
	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/search"
	"github.com/nikbrunner/bmsync/internal/storage"
	"github.com/nikbrunner/bmsync/internal/ui"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bm",
	Short: "Bookmark manager with sync",
	Long: `bm keeps a hierarchical bookmark tree with a Favorites root and a
Bookmarks root, and syncs it with other devices through a sync service.

Legacy flat bookmarks are migrated into the tree on first run.

Data Storage:
  ~/.config/bm/config.json   configuration
  ~/.config/bm/bookmarks.db  bookmark tree (sqlite backend)`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy bookmarks into the tree",
	Long: `Copy the legacy favorites and bookmarks lists into the bookmark tree.

Migration runs automatically before every command and happens only once.
This command reports whether this run performed it.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		if a.migrated {
			fmt.Println(a.styles.Success.Render("Legacy bookmarks migrated"))
			return
		}
		fmt.Println("Nothing to migrate")
	},
}

var lsIDs bool

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the bookmark tree",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		a.db.View(func(tx *storage.Tx) error {
			fmt.Print(a.styles.RenderTree(tx.Tree(), ui.TreeOptions{ShowUUIDs: lsIDs, URLWidth: 60}))
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search bookmarks by title",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		a.db.View(func(tx *storage.Tx) error {
			results := search.FuzzySearchBookmarks(tx.Tree(), args[0])
			fmt.Print(a.styles.RenderResults(results, args[0]))
			return nil
		})
	},
}

var importParent string

var importCmd = &cobra.Command{
	Use:   "import <file.html>",
	Short: "Import bookmarks from browser HTML",
	Long: `Import a Netscape bookmark file exported by a browser.

Folders with an existing title are merged and URLs already in the tree
are skipped. Imported entries are sent to the sync service when signed in.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		file, err := os.Open(args[0])
		if err != nil {
			exitf("opening file: %v", err)
		}
		defer file.Close()

		var result importer.Result
		err = a.db.Perform(func(tx *storage.Tx) error {
			parent, err := resolveFolder(tx, importParent)
			if err != nil {
				return err
			}
			result, err = importer.ImportHTML(tx, parent, file)
			return err
		})
		if err != nil {
			exitf("importing bookmarks: %v", err)
		}

		ctx := cmd.Context()
		for _, key := range result.Keys {
			a.session.PersistNode(ctx, key)
		}

		fmt.Printf("Imported %d bookmarks, %d folders", result.Added, result.Folders)
		if result.Skipped > 0 {
			fmt.Printf(" (%d skipped)", result.Skipped)
		}
		fmt.Println()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export bookmarks to browser HTML",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		outputPath := ""
		if len(args) == 1 {
			outputPath = args[0]
		}
		if outputPath == "" {
			var err error
			outputPath, err = exporter.DefaultExportPath()
			if err != nil {
				exitf("getting default export path: %v", err)
			}
		}

		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		var html string
		var count int
		a.db.View(func(tx *storage.Tx) error {
			html = exporter.ExportHTML(tx.Tree())
			count = len(tx.Tree().Bookmarks())
			return nil
		})

		if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
			exitf("writing file: %v", err)
		}
		fmt.Printf("Exported %d bookmarks to %s\n", count, outputPath)
	},
}

// resolveFolder maps a folder uuid flag to a key. Empty means the
// bookmarks root.
func resolveFolder(tx *storage.Tx, id string) (int64, error) {
	if id == "" {
		return tx.RootFolder(model.RootBookmarks).Key, nil
	}
	if !model.ValidUUID(id) {
		return 0, fmt.Errorf("%q is not a uuid", id)
	}
	n := tx.FetchByUUID(id)
	if n == nil {
		return 0, fmt.Errorf("folder %s: %w", id, model.ErrNotFound)
	}
	if !n.Folder {
		return 0, fmt.Errorf("%s: %w", id, model.ErrNotFolder)
	}
	return n.Key, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/bm/config.json)")

	lsCmd.Flags().BoolVar(&lsIDs, "ids", false, "show node uuids")
	importCmd.Flags().StringVar(&importParent, "parent", "", "uuid of the folder to import into")

	rootCmd.AddCommand(migrateCmd, lsCmd, searchCmd, importCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

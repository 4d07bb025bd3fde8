package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/bmsync/internal/culler"
	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
)

var (
	checkDelete      bool
	checkConcurrency int
	checkExclude     []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Find bookmarks whose URL is dead",
	Long: `Probe every bookmark URL and report 404 and 410 responses.

With --delete the dead bookmarks are removed and the deletions are sent to
the sync service.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		// dead bookmarks are deleted by uuid
		if checkDelete {
			if _, err := storage.AssignUUIDsWhereNeeded(a.db); err != nil {
				exitf("assigning ids: %v", err)
			}
		}

		var bookmarks []*model.Node
		a.db.View(func(tx *storage.Tx) error {
			for _, n := range tx.Tree().Bookmarks() {
				c := *n
				bookmarks = append(bookmarks, &c)
			}
			return nil
		})

		ctx := cmd.Context()
		results := culler.Check(ctx, bookmarks, culler.Options{
			Concurrency:    checkConcurrency,
			ExcludeDomains: checkExclude,
			OnProgress: func(completed, total int) {
				fmt.Fprintf(os.Stderr, "\rChecked %d/%d", completed, total)
			},
		})
		fmt.Fprintln(os.Stderr)

		dead := culler.DeadResults(results)
		for _, r := range results {
			if r.Status == culler.Unreachable {
				fmt.Printf("%s %s  %s\n", a.styles.Empty.Render("?"), r.Title, a.styles.URL.Render(r.Error))
			}
		}
		for _, r := range dead {
			fmt.Printf("%s %s  %s\n", a.styles.Error.Render("x"), r.Title, a.styles.URL.Render(r.URL))
		}
		fmt.Printf("%d dead of %d checked\n", len(dead), len(results))

		if !checkDelete || len(dead) == 0 {
			return
		}

		var prevs []int64
		var deleted []string
		err = a.db.Perform(func(tx *storage.Tx) error {
			prevs, deleted = nil, nil
			for _, r := range dead {
				n := tx.FetchByUUID(r.UUID)
				if n == nil {
					continue
				}
				if prev := previousSibling(tx, n.Key); prev != 0 {
					prevs = append(prevs, prev)
				}
				if err := tx.Delete(n.Key); err != nil {
					return err
				}
				deleted = append(deleted, r.UUID)
			}
			return nil
		})
		if err != nil {
			exitf("deleting dead bookmarks: %v", err)
		}
		for _, id := range deleted {
			a.session.PersistDeletion(ctx, id)
		}
		a.db.View(func(tx *storage.Tx) error {
			for i, key := range prevs {
				if tx.Node(key) == nil {
					prevs[i] = 0
				}
			}
			return nil
		})
		for _, key := range prevs {
			if key != 0 {
				a.session.PersistNode(ctx, key)
			}
		}
		fmt.Printf("Deleted %d dead bookmarks\n", len(deleted))
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDelete, "delete", false, "delete dead bookmarks")
	checkCmd.Flags().IntVar(&checkConcurrency, "concurrency", 8, "parallel requests")
	checkCmd.Flags().StringSliceVar(&checkExclude, "exclude", nil, "domains whose 404s may be private")

	rootCmd.AddCommand(checkCmd)
}

package storage

import (
	"maps"
	"slices"

	"github.com/nikbrunner/bmsync/internal/model"
)

// AssignUUIDsWhereNeeded gives every node lacking a UUID a fresh one and
// commits once. Nodes that already have a UUID are never touched. It
// returns the number of nodes that received an identifier.
func AssignUUIDsWhereNeeded(db *DB) (int, error) {
	assigned := 0
	err := db.Perform(func(tx *Tx) error {
		tree := tx.Tree()
		for _, key := range slices.Sorted(maps.Keys(tree.Nodes)) {
			if tree.Node(key).UUID != "" {
				continue
			}
			if err := tx.SetUUID(key, model.GenerateUUID()); err != nil {
				return err
			}
			assigned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

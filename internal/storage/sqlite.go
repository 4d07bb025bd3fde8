package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nikbrunner/bmsync/internal/model"
)

const currentSchemaVersion = 2

// SQLiteStorage implements Backend using a SQLite database.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLiteStorage with the given database path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &SQLiteStorage{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist or is empty, start fresh
		version = 0
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	if version < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}

	return nil
}

// migrateV1 creates the node tables.
func (s *SQLiteStorage) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS nodes (
			key INTEGER PRIMARY KEY NOT NULL,
			uuid TEXT UNIQUE,
			title TEXT NOT NULL,
			url TEXT,
			folder INTEGER NOT NULL DEFAULT 0,
			favorite INTEGER NOT NULL DEFAULT 0,
			parent_key INTEGER,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_key, position);

		CREATE TABLE IF NOT EXISTS roots (
			kind TEXT PRIMARY KEY NOT NULL,
			node_key INTEGER NOT NULL
		);

		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 adds the metadata table for persisted flags and sync cursors.
func (s *SQLiteStorage) migrateV2() error {
	migration := `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY NOT NULL,
			value TEXT NOT NULL
		);
		UPDATE schema_version SET version = 2;
	`
	_, err := s.db.Exec(migration)
	return err
}

// Initialized reports whether the root folders were ever saved.
func (s *SQLiteStorage) Initialized() (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM roots`).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Load reads the tree from the SQLite database.
// An empty database yields a tree holding only the roots.
func (s *SQLiteStorage) Load() (*model.Tree, error) {
	roots := map[string]int64{}
	rows, err := s.db.Query(`SELECT kind, node_key FROM roots`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var kind string
		var key int64
		if err := rows.Scan(&kind, &key); err != nil {
			rows.Close()
			return nil, err
		}
		roots[kind] = key
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(roots) == 0 {
		return model.NewTree(), nil
	}

	tree := &model.Tree{
		Nodes:         map[int64]*model.Node{},
		NextKey:       1,
		BookmarksRoot: roots[model.RootBookmarks.String()],
		FavoritesRoot: roots[model.RootFavorites.String()],
	}

	rows, err = s.db.Query(`
		SELECT key, uuid, title, url, folder, favorite, parent_key, created_at
		FROM nodes
		ORDER BY parent_key, position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Rows arrive in sibling order; parents may come after their children.
	var ordered []*model.Node
	for rows.Next() {
		var n model.Node
		var uuid, url sql.NullString
		var parentKey sql.NullInt64
		var folder, favorite int
		var createdAtStr string

		if err := rows.Scan(&n.Key, &uuid, &n.Title, &url, &folder, &favorite, &parentKey, &createdAtStr); err != nil {
			return nil, err
		}

		n.UUID = uuid.String
		n.URL = url.String
		n.Folder = folder == 1
		n.Favorite = favorite == 1
		n.ParentKey = parentKey.Int64
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)

		tree.Nodes[n.Key] = &n
		ordered = append(ordered, &n)
		if n.Key >= tree.NextKey {
			tree.NextKey = n.Key + 1
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, n := range ordered {
		if n.ParentKey == 0 {
			continue
		}
		parent := tree.Nodes[n.ParentKey]
		if parent == nil {
			return nil, fmt.Errorf("node %d references missing parent %d", n.Key, n.ParentKey)
		}
		parent.Children = append(parent.Children, n.Key)
	}

	if err := tree.Validate(); err != nil {
		return nil, err
	}
	return tree, nil
}

// Save writes the tree to the SQLite database.
// Uses a transaction for atomicity - all or nothing.
func (s *SQLiteStorage) Save(tree *model.Tree) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM roots"); err != nil {
		return err
	}

	nodeStmt, err := tx.Prepare(`
		INSERT INTO nodes (key, uuid, title, url, folder, favorite, parent_key, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()

	var insertErr error
	var insert func(n *model.Node, position int)
	insert = func(n *model.Node, position int) {
		if insertErr != nil {
			return
		}
		if _, err := nodeStmt.Exec(
			n.Key, nullString(n.UUID), n.Title, nullString(n.URL),
			boolInt(n.Folder), boolInt(n.Favorite), nullKey(n.ParentKey),
			position, n.CreatedAt.Format(time.RFC3339),
		); err != nil {
			insertErr = fmt.Errorf("insert node %d: %w", n.Key, err)
			return
		}
		for i, child := range tree.Children(n.Key) {
			insert(child, i)
		}
	}
	insert(tree.Root(model.RootBookmarks), 0)
	insert(tree.Root(model.RootFavorites), 1)
	if insertErr != nil {
		return insertErr
	}

	for kind, key := range map[string]int64{
		model.RootBookmarks.String(): tree.BookmarksRoot,
		model.RootFavorites.String(): tree.FavoritesRoot,
	} {
		if _, err := tx.Exec(`INSERT INTO roots (kind, node_key) VALUES (?, ?)`, kind, key); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get implements Metadata.Get.
func (s *SQLiteStorage) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Set implements Metadata.Set.
func (s *SQLiteStorage) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Delete implements Metadata.Delete.
func (s *SQLiteStorage) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM metadata WHERE key = ?`, key)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullKey(key int64) any {
	if key == 0 {
		return nil
	}
	return key
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

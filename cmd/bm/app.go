package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"slices"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nikbrunner/bmsync/internal/legacy"
	"github.com/nikbrunner/bmsync/internal/migration"
	"github.com/nikbrunner/bmsync/internal/model"
	"github.com/nikbrunner/bmsync/internal/storage"
	"github.com/nikbrunner/bmsync/internal/syncer"
	"github.com/nikbrunner/bmsync/internal/ui"
)

// app holds everything a command needs. It is built once per invocation.
type app struct {
	cfg       *storage.Config
	backend   storage.Backend
	db        *storage.DB
	transport *syncer.HTTPTransport
	queue     *syncer.FileQueue
	session   *syncer.Session
	styles    ui.Styles
	logOut    io.Closer

	migrated bool // legacy data was migrated during this run
}

// newLogWriter returns the destination for sync and migration logs: a
// rotating file when logFile is set, stderr otherwise.
func newLogWriter(logFile string) (io.Writer, io.Closer) {
	if logFile == "" {
		return os.Stderr, nil
	}
	rotating := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return rotating, rotating
}

// openApp loads config, opens storage, runs the one-time legacy migration
// and wires the sync session.
func openApp() (*app, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = storage.DefaultConfigFilePath()
		if err != nil {
			return nil, fmt.Errorf("getting config path: %w", err)
		}
	}
	cfg, err := storage.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logWriter, logCloser := newLogWriter(cfg.LogFile)
	syncLog := log.New(logWriter, "[sync] ", log.LstdFlags)
	migrateLog := log.New(logWriter, "[migrate] ", log.LstdFlags)

	backend, err := storage.OpenBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, backend: backend, styles: ui.DefaultStyles(), logOut: logCloser}

	a.db, err = storage.Open(backend)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading bookmarks: %w", err)
	}

	legacyStore, err := legacy.OpenFileStore(cfg.LegacyPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening legacy store: %w", err)
	}
	migrator := &migration.Migrator{Legacy: legacyStore, DB: a.db, Meta: backend, Logger: migrateLog}
	a.migrated, err = migrator.Run()
	if err != nil {
		a.Close()
		return nil, err
	}

	applier := syncer.NewApplier(a.db, syncLog)
	a.transport, err = syncer.NewHTTPTransport(cfg.SyncURL, backend, syncer.NewStorePersistence(applier, backend), nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating sync transport: %w", err)
	}
	a.queue, err = syncer.NewFileQueue(cfg.OutboxPath(), 0)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening outbox: %w", err)
	}
	a.session = syncer.NewSession(a.db, a.transport, &syncer.SessionConfig{
		Interval:   cfg.Interval(),
		DeviceName: cfg.DeviceName,
		Queue:      a.queue,
		Logger:     syncLog,
	})
	return a, nil
}

// Close stops the session and releases storage and log files.
func (a *app) Close() {
	if a.session != nil {
		a.session.Stop()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing storage: %v\n", err)
		}
	}
	if a.logOut != nil {
		_ = a.logOut.Close()
	}
}

// previousSibling returns the key of the sibling placed directly before
// key, or 0 when key is first.
func previousSibling(tx *storage.Tx, key int64) int64 {
	n := tx.Node(key)
	if n == nil {
		return 0
	}
	parent := tx.Node(n.ParentKey)
	if parent == nil {
		return 0
	}
	i := slices.Index(parent.Children, key)
	if i <= 0 {
		return 0
	}
	return parent.Children[i-1]
}

// moveResult describes a committed move.
type moveResult struct {
	key     int64
	oldPrev int64   // sibling that used to point at the node
	flagged []int64 // bookmarks whose Favorite flag followed the move
}

// moveNode moves the node id into parentID (empty: its current folder)
// before beforeID (empty: last). Bookmarks that cross between the roots
// take the Favorite flag of their new root.
func moveNode(tx *storage.Tx, id, parentID, beforeID string) (moveResult, error) {
	var res moveResult
	n := tx.FetchByUUID(id)
	if n == nil {
		return res, fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	res.key = n.Key
	res.oldPrev = previousSibling(tx, n.Key)

	parent := n.ParentKey
	if parentID != "" {
		var err error
		if parent, err = resolveFolder(tx, parentID); err != nil {
			return res, err
		}
	}
	var before int64
	if beforeID != "" {
		sib := tx.FetchByUUID(beforeID)
		if sib == nil || sib.ParentKey != parent {
			return res, fmt.Errorf("sibling %s: %w", beforeID, model.ErrNotFound)
		}
		before = sib.Key
	}
	if err := tx.Move(n.Key, parent, before); err != nil {
		return res, err
	}
	flagged, err := tx.MarkFavorites(n.Key)
	if err != nil {
		return res, err
	}
	res.flagged = flagged
	return res, nil
}

func encodeRecoveryCode(code []byte) string {
	return base64.StdEncoding.EncodeToString(code)
}

func decodeRecoveryCode(s string) ([]byte, error) {
	code, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("recovery code is not valid base64: %w", err)
	}
	return code, nil
}

// exitf prints an error and exits with status 1.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error "+format+"\n", args...)
	os.Exit(1)
}

package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nikbrunner/bmsync/internal/storage"
)

func TestLoadConfig_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := storage.LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.Backend != storage.BackendSQLite {
		t.Errorf("expected sqlite backend, got %q", cfg.Backend)
	}
	if cfg.Interval() != 60*time.Second {
		t.Errorf("expected 60s interval, got %s", cfg.Interval())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be written: %v", err)
	}
}

func TestLoadConfig_FillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"backend":"json","dataDir":"`+dir+`"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := storage.LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.Backend != storage.BackendJSON {
		t.Errorf("expected json backend, got %q", cfg.Backend)
	}
	if cfg.LegacyPath != filepath.Join(dir, "legacy-bookmarks.json") {
		t.Errorf("unexpected legacy path %q", cfg.LegacyPath)
	}
	if cfg.TreePath() != filepath.Join(dir, "bookmarks.json") {
		t.Errorf("unexpected tree path %q", cfg.TreePath())
	}
	if cfg.DeviceName == "" {
		t.Error("expected a default device name")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("BM_SYNC_URL", "https://sync.example.com")
	t.Setenv("BM_FETCH_INTERVAL", "5s")

	cfg, err := storage.LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.SyncURL != "https://sync.example.com" {
		t.Errorf("env override ignored: %q", cfg.SyncURL)
	}
	if cfg.Interval() != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.Interval())
	}
}

func TestConfig_InvalidIntervalFallsBack(t *testing.T) {
	cfg := storage.Config{FetchInterval: "soon"}
	if cfg.Interval() != 60*time.Second {
		t.Errorf("expected fallback interval, got %s", cfg.Interval())
	}
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nikbrunner/bmsync/internal/storage"
)

// ErrNotAuthenticated is returned by transport calls that need an account.
var ErrNotAuthenticated = errors.New("not signed in to sync")

// Transport is the remote sync service.
type Transport interface {
	IsAuthenticated() bool
	RecoveryCode() []byte
	CreateAccount(ctx context.Context, deviceName string) error
	Login(ctx context.Context, recoveryCode []byte, deviceName string) error
	Disconnect() error
	FetchLatest(ctx context.Context) error
	Send(ctx context.Context, ev SyncEvent) error
}

// Persistence receives what FetchLatest downloads.
type Persistence interface {
	PersistEvents(ctx context.Context, events []SyncEvent) error
	LastModified() (string, error)
	UpdateLastModified(lastModified string) error
}

// TransportError is a network or service failure. It is recoverable and
// only ever surfaces as a message.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-success response from the sync service.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// ErrorMessage converts a sync failure into a short user-facing message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Not signed in to sync."
	case errors.Is(err, ErrBusy):
		return "Sync is busy, try again shortly."
	case errors.Is(err, storage.ErrCommit):
		return "Could not save synced bookmarks."
	case errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden):
		return "Sync credentials were rejected. Sign in again."
	case errors.As(err, &httpErr):
		return fmt.Sprintf("Sync service error (%d).", httpErr.StatusCode)
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "Sync service unreachable."
	}
	return "Sync failed: " + err.Error()
}

// StorePersistence applies downloaded events to the tree and keeps the
// last-modified cursor in metadata.
type StorePersistence struct {
	applier *Applier
	meta    storage.Metadata
}

// NewStorePersistence creates a StorePersistence.
func NewStorePersistence(applier *Applier, meta storage.Metadata) *StorePersistence {
	return &StorePersistence{applier: applier, meta: meta}
}

// PersistEvents implements Persistence.
func (p *StorePersistence) PersistEvents(ctx context.Context, events []SyncEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.applier.ApplyAll(events)
}

// LastModified implements Persistence.
func (p *StorePersistence) LastModified() (string, error) {
	return p.meta.Get(storage.KeyBookmarksLastModified)
}

// UpdateLastModified implements Persistence. An empty value clears the
// cursor.
func (p *StorePersistence) UpdateLastModified(lastModified string) error {
	if lastModified == "" {
		return p.meta.Delete(storage.KeyBookmarksLastModified)
	}
	return p.meta.Set(storage.KeyBookmarksLastModified, lastModified)
}

package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nikbrunner/bmsync/internal/storage"
)

// ErrBusy is returned by account operations while another sync operation
// is in flight.
var ErrBusy = errors.New("sync operation already in progress")

// SessionConfig configures a Session.
type SessionConfig struct {
	// Interval between periodic fetches
	Interval time.Duration
	// DeviceName is sent when creating an account or logging in
	DeviceName string
	// Queue holds events whose send failed; nil disables retry
	Queue Queue
	// Logger for sync activity
	Logger *log.Logger
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Interval: 60 * time.Second,
		Logger:   log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Session coordinates local storage with the sync service for the life of
// the process. It is built once at startup and passed to whoever needs it.
type Session struct {
	db        *storage.DB
	transport Transport
	outbound  *Outbound
	config    *SessionConfig

	busy atomic.Bool

	mu      sync.Mutex
	lastErr string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession creates a Session. A nil config uses DefaultSessionConfig.
func NewSession(db *storage.DB, transport Transport, config *SessionConfig) *Session {
	defaults := DefaultSessionConfig()
	if config == nil {
		config = defaults
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Session{
		db:        db,
		transport: transport,
		outbound:  NewOutbound(db),
		config:    config,
	}
}

// IsAuthenticated reports whether the transport holds an account.
func (s *Session) IsAuthenticated() bool {
	return s.transport.IsAuthenticated()
}

// IsBusy reports whether a sync operation is in flight.
func (s *Session) IsBusy() bool {
	return s.busy.Load()
}

// RecoveryCode returns the account recovery code, nil when signed out.
func (s *Session) RecoveryCode() []byte {
	return s.transport.RecoveryCode()
}

// LastError returns the message for the most recent failure, empty after
// a success.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) record(err error) error {
	s.mu.Lock()
	s.lastErr = ErrorMessage(err)
	s.mu.Unlock()
	return err
}

// FetchNow pulls remote changes. A call made while another sync operation
// is in flight returns nil without contacting the service. Signed out, it
// only assigns identifiers.
func (s *Session) FetchNow(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return nil
	}
	defer s.busy.Store(false)

	if _, err := storage.AssignUUIDsWhereNeeded(s.db); err != nil {
		return s.record(err)
	}
	if !s.transport.IsAuthenticated() {
		return s.record(nil)
	}
	s.flushQueue(ctx)
	if err := s.transport.FetchLatest(ctx); err != nil {
		return s.record(err)
	}
	return s.record(nil)
}

func (s *Session) flushQueue(ctx context.Context) {
	if s.config.Queue == nil || s.config.Queue.Depth() == 0 {
		return
	}
	sent, err := s.config.Queue.Flush(ctx, s.transport.Send)
	if sent > 0 {
		s.config.Logger.Printf("resent %d queued events", sent)
	}
	if err != nil {
		s.config.Logger.Printf("queued events not delivered: %v", err)
	}
}

// CreateAccount registers a new sync account for this device.
func (s *Session) CreateAccount(ctx context.Context, deviceName string) error {
	return s.authenticate(func() error {
		return s.transport.CreateAccount(ctx, s.deviceName(deviceName))
	})
}

// Login signs this device in with an existing account's recovery code.
func (s *Session) Login(ctx context.Context, recoveryCode []byte, deviceName string) error {
	return s.authenticate(func() error {
		return s.transport.Login(ctx, recoveryCode, s.deviceName(deviceName))
	})
}

func (s *Session) deviceName(name string) string {
	if name != "" {
		return name
	}
	return s.config.DeviceName
}

func (s *Session) authenticate(fn func() error) error {
	if !s.busy.CompareAndSwap(false, true) {
		return s.record(ErrBusy)
	}
	defer s.busy.Store(false)

	if _, err := storage.AssignUUIDsWhereNeeded(s.db); err != nil {
		return s.record(err)
	}
	return s.record(fn())
}

// Disconnect signs the device out. A fetch already in flight runs to
// completion.
func (s *Session) Disconnect() error {
	return s.record(s.transport.Disconnect())
}

// Start begins fetching every Interval until ctx ends or Stop is called.
// Calling Start again while running does nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.FetchNow(ctx); err != nil && ctx.Err() == nil {
				s.config.Logger.Printf("periodic fetch failed: %v", err)
			}
		}
	}
}

// Stop cancels the periodic fetch and waits for it to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Running reports whether the periodic fetch is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// PersistNode sends the current state of the node at key and of the
// sibling whose next pointer now names it. Nodes without the fields needed
// to sync are skipped. Failed sends are queued, never rolled back.
func (s *Session) PersistNode(ctx context.Context, key int64) {
	if !s.transport.IsAuthenticated() {
		return
	}
	for _, ev := range s.outbound.SiblingEvents(key) {
		s.send(ctx, ev)
	}
}

// PersistDeletion announces the removal of uuid.
func (s *Session) PersistDeletion(ctx context.Context, uuid string) {
	if uuid == "" || !s.transport.IsAuthenticated() {
		return
	}
	s.send(ctx, DeleteEvent(uuid))
}

func (s *Session) send(ctx context.Context, ev SyncEvent) {
	err := s.transport.Send(ctx, ev)
	if err == nil {
		return
	}
	s.config.Logger.Printf("send %s %s failed: %v", ev.Kind, ev.ID(), err)
	if s.config.Queue == nil {
		return
	}
	if !s.config.Queue.TryEnqueue(ev) {
		s.config.Logger.Printf("could not queue %s %s", ev.Kind, ev.ID())
	}
}

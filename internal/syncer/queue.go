package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidQueuePath is returned when a queue is opened without a path.
var ErrInvalidQueuePath = errors.New("queue path is required")

const defaultQueueCapacity = 1024

// Queue holds outbound events whose send failed, for later retry.
type Queue interface {
	TryEnqueue(ev SyncEvent) bool
	Flush(ctx context.Context, send func(context.Context, SyncEvent) error) (int, error)
	Depth() int
}

// FileQueue is a Queue persisted as a JSON file. Events are delivered at
// least once, oldest first.
type FileQueue struct {
	path     string
	capacity int
	mu       sync.Mutex
	items    []SyncEvent
	dropped  int // events evicted by overflow, used by Flush to spot an evicted head
}

type fileQueueState struct {
	Items []SyncEvent `json:"items"`
}

// NewFileQueue opens the queue at path. When the stored backlog exceeds
// capacity the oldest events are dropped.
func NewFileQueue(path string, capacity int) (*FileQueue, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidQueuePath
	}
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	q := &FileQueue{path: path, capacity: capacity}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

// TryEnqueue appends ev. A full queue drops its oldest events to make
// room. It reports false when ev is malformed or the file cannot be
// written.
func (q *FileQueue) TryEnqueue(ev SyncEvent) bool {
	if ev.Validate() != nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.items
	items := append(q.items[:len(q.items):len(q.items)], ev)
	overflow := 0
	if len(items) > q.capacity {
		overflow = len(items) - q.capacity
		items = items[overflow:]
	}
	q.items = items
	if err := q.saveLocked(); err != nil {
		q.items = prev
		return false
	}
	q.dropped += overflow
	return true
}

// Flush sends queued events in order, removing each after a successful
// send. It stops at the first failure and returns the number sent.
func (q *FileQueue) Flush(ctx context.Context, send func(context.Context, SyncEvent) error) (int, error) {
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return sent, nil
		}
		head, dropped := q.items[0], q.dropped
		q.mu.Unlock()

		if err := send(ctx, head); err != nil {
			return sent, err
		}
		sent++

		q.mu.Lock()
		if q.dropped != dropped {
			// head was evicted while sending
			q.mu.Unlock()
			continue
		}
		q.items = q.items[1:]
		err := q.saveLocked()
		q.mu.Unlock()
		if err != nil {
			return sent, err
		}
	}
}

// Depth returns the number of queued events.
func (q *FileQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the maximum number of queued events.
func (q *FileQueue) Capacity() int {
	return q.capacity
}

// Snapshot returns a copy of the queued events.
func (q *FileQueue) Snapshot() []SyncEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]SyncEvent(nil), q.items...)
}

func (q *FileQueue) load() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snapshot fileQueueState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if len(snapshot.Items) > q.capacity {
		q.items = append([]SyncEvent(nil), snapshot.Items[len(snapshot.Items)-q.capacity:]...)
		return q.saveLocked()
	}
	q.items = append([]SyncEvent(nil), snapshot.Items...)
	return nil
}

func (q *FileQueue) saveLocked() error {
	data, err := json.Marshal(fileQueueState{Items: q.items})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

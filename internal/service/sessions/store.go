// Package sessions keeps the bounded, persisted list of saved prompt/code snapshots.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/model/session"
	"github.com/echocode/echo/backend/internal/storage"
)

const (
	// DefaultKey is the well-known storage key holding the saved-session list.
	DefaultKey = "echo.savedSessions"
	// MaxSessions bounds the persisted list; saving past it evicts the oldest entry.
	MaxSessions = 15
)

var ErrNotFound = errors.New("saved session not found")

// Option customises a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if strings.TrimSpace(key) != "" {
			s.key = key
		}
	}
}

// WithClock replaces the wall clock used for ids, default names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store owns the saved-session list. It assumes a single writer per storage key.
type Store struct {
	kv     storage.KV
	key    string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	items []session.SavedSession
	// lastID is the highest id ever allocated or loaded. Ids are never reused,
	// even after the entry holding them is deleted or evicted.
	lastID int64
}

// New returns a Store initialised from the persisted list. Absent or unreadable data
// starts the store empty.
func New(ctx context.Context, kv storage.KV, logger *slog.Logger, opts ...Option) *Store {
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reload(ctx)
	return s
}

// Reload replaces the in-memory list with the persisted one.
func (s *Store) Reload(ctx context.Context) {
	items := s.read(ctx)

	s.mu.Lock()
	s.items = items
	for _, item := range items {
		s.lastID = max(s.lastID, item.ID)
	}
	s.mu.Unlock()
}

func (s *Store) read(ctx context.Context) []session.SavedSession {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("saved sessions unreadable, starting empty", "key", s.key, "err", err)
		return nil
	}
	if !ok || len(raw) == 0 {
		return nil
	}

	var items []session.SavedSession
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("saved sessions corrupted, starting empty", "key", s.key, "err", err)
		return nil
	}
	if len(items) > MaxSessions {
		items = items[:MaxSessions]
	}
	return items
}

// List returns the saved sessions, most recent first.
func (s *Store) List() []session.SavedSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]session.SavedSession(nil), s.items...)
}

// Load looks up a saved session by id without touching the store.
func (s *Store) Load(id int64) (session.SavedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return session.SavedSession{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Save prepends a new snapshot, evicts past MaxSessions and persists the whole list.
// A blank name is replaced with a generated label.
func (s *Store) Save(ctx context.Context, name, code, prompt string) (session.SavedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := max(now.UnixMilli(), s.lastID+1)

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Session " + now.Format(time.Stamp)
	}

	saved := session.SavedSession{
		ID:        id,
		Name:      name,
		Code:      code,
		Prompt:    prompt,
		Timestamp: now.Format(time.RFC3339),
	}

	next := make([]session.SavedSession, 0, len(s.items)+1)
	next = append(next, saved)
	next = append(next, s.items...)
	if len(next) > MaxSessions {
		for _, evicted := range next[MaxSessions:] {
			s.logger.Debug("saved session evicted", "id", evicted.ID, "name", evicted.Name)
		}
		next = next[:MaxSessions]
	}

	if err := s.persist(ctx, next); err != nil {
		return session.SavedSession{}, err
	}
	s.items = next
	s.lastID = id
	s.logger.Info("session saved", "id", saved.ID, "name", saved.Name, "count", len(next))
	return saved, nil
}

// Delete removes the session with id. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]session.SavedSession, 0, len(s.items))
	for _, item := range s.items {
		if item.ID != id {
			next = append(next, item)
		}
	}

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	if len(next) != len(s.items) {
		s.logger.Info("session deleted", "id", id)
	}
	s.items = next
	return nil
}

func (s *Store) persist(ctx context.Context, items []session.SavedSession) error {
	if items == nil {
		items = []session.SavedSession{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode saved sessions: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist saved sessions: %w", err)
	}
	return nil
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/logging"
)

// Manager stores sessions by ID and expires idle ones.
type Manager struct {
	deps  Deps
	store *cache.Cache
	idle  time.Duration
}

// NewManager creates a manager whose sessions expire after idle time without use.
func NewManager(deps Deps, idle time.Duration) *Manager {
	m := &Manager{
		deps:  deps,
		store: cache.New(idle, idle/4),
		idle:  idle,
	}
	m.store.OnEvicted(func(id string, _ any) {
		logging.Debug(logging.Fields{"session": id}, "session expired")
	})
	return m
}

// Create starts a new session with a random ID.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.deps)
	m.store.Set(s.ID, s, cache.DefaultExpiration)
	return s
}

// Get returns a live session and extends its lifetime.
func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.store.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	m.store.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// GetOrCreate returns the session for id, creating a new one when it is
// unknown or expired.
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s
		}
	}
	return m.Create()
}

// Delete drops a session.
func (m *Manager) Delete(id string) {
	m.store.Delete(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.store.ItemCount()
}

// CachedClassifiers memoises one classifier per model.
func CachedClassifiers(build ClassifierProvider) ClassifierProvider {
	var mu sync.Mutex
	built := make(map[catalog.Model]classify.Classifier)
	return func(ctx context.Context, model catalog.Model) (classify.Classifier, error) {
		mu.Lock()
		defer mu.Unlock()
		if c, ok := built[model]; ok {
			return c, nil
		}
		c, err := build(ctx, model)
		if err != nil {
			return nil, err
		}
		built[model] = c
		return c, nil
	}
}

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"reconagent/internal/agent"
	"reconagent/internal/models"
)

// Errors returned by session operations.
var (
	ErrNotFound   = errors.New("session not found")
	ErrRunActive  = errors.New("a reconciliation run is already in progress")
	ErrNoDatasets = errors.New("session has no uploaded datasets")
)

// Session holds everything attached to one reconciliation session: the
// parsed datasets, their upload metadata, and the run state once a
// reconciliation has been started.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu sync.RWMutex

	DatasetA *models.Dataset
	DatasetB *models.Dataset
	MetaA    *models.FileMetadata
	MetaB    *models.FileMetadata

	State *agent.State

	running    bool
	cancelRun  context.CancelFunc
	lastRunErr string
}

// SetLastRunError records why the most recent run attempt stopped early.
func (s *Session) SetLastRunError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunErr = msg
}

// LastRunError returns the most recent run error, if any.
func (s *Session) LastRunError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunErr
}

// SetDatasets attaches both parsed datasets. Re-uploading replaces the pair
// and discards any previous run state.
func (s *Session) SetDatasets(a, b *models.Dataset, metaA, metaB *models.FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DatasetA, s.DatasetB = a, b
	s.MetaA, s.MetaB = metaA, metaB
	s.State = nil
}

// Datasets returns the uploaded pair, or ErrNoDatasets.
func (s *Session) Datasets() (*models.Dataset, *models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.DatasetA == nil || s.DatasetB == nil {
		return nil, nil, ErrNoDatasets
	}
	return s.DatasetA, s.DatasetB, nil
}

// CurrentState returns the latest run state snapshot, which may be nil
// before the first run. Stored states are immutable: the run goroutine works
// on its own copy and publishes clones here, so callers can read the returned
// state without further locking.
func (s *Session) CurrentState() *agent.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetState replaces the run state snapshot. The state must not be mutated
// after it is stored.
func (s *Session) SetState(state *agent.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
}

// BeginRun marks the session as running and stores the cancel func for the
// run's context. Returns ErrRunActive when a run is already in flight.
func (s *Session) BeginRun(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunActive
	}
	s.running = true
	s.cancelRun = cancel
	return nil
}

// EndRun clears the running flag.
func (s *Session) EndRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.cancelRun = nil
}

// Running reports whether a run is in flight.
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// CancelRun cancels an in-flight run, if any.
func (s *Session) CancelRun() {
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Store manages sessions in memory with TTL eviction. Evicted sessions get
// their in-flight runs canceled; persisted state snapshots outlive the
// eviction and are cleaned up separately by the retention job.
type Store struct {
	cache *cache.Cache
}

// NewStore creates a session store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	c := cache.New(ttl, ttl/2)

	c.OnEvicted(func(key string, value interface{}) {
		if sess, ok := value.(*Session); ok {
			log.Printf("🗑️ [SESSION] Evicting session %s - canceling any active run", sess.ID)
			sess.CancelRun()
		}
	})

	return &Store{cache: c}
}

// Create registers a new session.
func (st *Store) Create(id string) *Session {
	sess := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
	}
	st.cache.Set(id, sess, cache.DefaultExpiration)
	log.Printf("📦 [SESSION] Created session %s", id)
	return sess
}

// Get retrieves a session and refreshes its TTL.
func (st *Store) Get(id string) (*Session, error) {
	value, found := st.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	sess, ok := value.(*Session)
	if !ok {
		return nil, ErrNotFound
	}
	// Sliding expiration: activity keeps the session alive.
	st.cache.Set(id, sess, cache.DefaultExpiration)
	return sess, nil
}

// Delete removes a session, canceling any active run.
func (st *Store) Delete(id string) error {
	value, found := st.cache.Get(id)
	if !found {
		return ErrNotFound
	}
	if sess, ok := value.(*Session); ok {
		sess.CancelRun()
	}
	st.cache.Delete(id)
	log.Printf("🗑️ [SESSION] Deleted session %s", id)
	return nil
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	return st.cache.ItemCount()
}

package session

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

// Store keeps per-thread conversation state in memory with TTL
// eviction. Each thread owns a mutex so turns on one thread are
// serialized while distinct threads proceed in parallel.
type Store struct {
	mu    sync.Mutex
	cache *gocache.Cache
	ttl   time.Duration
}

type entry struct {
	mu    sync.Mutex
	state *domain.ConversationState
}

func NewStore(ttl, sweepInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Store{
		cache: gocache.New(ttl, sweepInterval),
		ttl:   ttl,
	}
}

// Acquire returns the thread's state, creating it on first use, and
// locks the thread until the returned release function is called.
// Every access refreshes the TTL.
func (s *Store) Acquire(threadID string) (*domain.ConversationState, func()) {
	s.mu.Lock()
	var e *entry
	if v, ok := s.cache.Get(threadID); ok {
		e = v.(*entry)
	} else {
		e = &entry{state: &domain.ConversationState{
			ThreadID:  threadID,
			CreatedAt: time.Now().UTC(),
		}}
	}
	s.cache.Set(threadID, e, s.ttl)
	s.mu.Unlock()

	e.mu.Lock()
	return e.state, e.mu.Unlock
}

// Len reports the number of live sessions, expired entries included
// until the next sweep.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

package session

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
)

var ErrNotFound = errors.New("conversation state not found")

// ConversationState is the continuation handle returned by the completion
// service for one sender.
type ConversationState struct {
	ConversationID  string    `json:"conversation_id"`
	ParentMessageID string    `json:"parent_message_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store holds at most one ConversationState per sender. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(key string) (ConversationState, error)
	Set(key string, state ConversationState) error
	Delete(key string) error
	Len() int
	// Range stops early when fn returns false.
	Range(fn func(key string, state ConversationState) bool) error
	Close() error
}

// MapStore never evicts.
type MapStore struct {
	mu     sync.RWMutex
	states map[string]ConversationState
}

func NewMapStore() *MapStore {
	return &MapStore{states: make(map[string]ConversationState)}
}

func (s *MapStore) Get(key string) (ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	if !ok {
		return ConversationState{}, ErrNotFound
	}
	return state, nil
}

func (s *MapStore) Set(key string, state ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

func (s *MapStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

func (s *MapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

func (s *MapStore) Range(fn func(key string, state ConversationState) bool) error {
	s.mu.RLock()
	snapshot := make(map[string]ConversationState, len(s.states))
	for k, v := range s.states {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			break
		}
	}
	return nil
}

func (s *MapStore) Close() error { return nil }

// LRUStore keeps the most recently used senders up to a fixed size.
type LRUStore struct {
	cache *lru.Cache[string, ConversationState]
}

func NewLRUStore(size int) (*LRUStore, error) {
	c, err := lru.New[string, ConversationState](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: c}, nil
}

func (s *LRUStore) Get(key string) (ConversationState, error) {
	state, ok := s.cache.Get(key)
	if !ok {
		return ConversationState{}, ErrNotFound
	}
	return state, nil
}

func (s *LRUStore) Set(key string, state ConversationState) error {
	s.cache.Add(key, state)
	return nil
}

func (s *LRUStore) Delete(key string) error {
	s.cache.Remove(key)
	return nil
}

func (s *LRUStore) Len() int {
	return s.cache.Len()
}

func (s *LRUStore) Range(fn func(key string, state ConversationState) bool) error {
	for _, key := range s.cache.Keys() {
		state, ok := s.cache.Peek(key)
		if !ok {
			continue
		}
		if !fn(key, state) {
			break
		}
	}
	return nil
}

func (s *LRUStore) Close() error {
	s.cache.Purge()
	return nil
}

// TTLStore forgets a sender once ttl has passed since its last exchange.
type TTLStore struct {
	cache *gocache.Cache
}

func NewTTLStore(ttl time.Duration) *TTLStore {
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &TTLStore{cache: gocache.New(ttl, cleanup)}
}

func (s *TTLStore) Get(key string) (ConversationState, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return ConversationState{}, ErrNotFound
	}
	state, ok := v.(ConversationState)
	if !ok {
		return ConversationState{}, ErrNotFound
	}
	return state, nil
}

func (s *TTLStore) Set(key string, state ConversationState) error {
	s.cache.Set(key, state, gocache.DefaultExpiration)
	return nil
}

func (s *TTLStore) Delete(key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *TTLStore) Len() int {
	return s.cache.ItemCount()
}

func (s *TTLStore) Range(fn func(key string, state ConversationState) bool) error {
	for key, item := range s.cache.Items() {
		state, ok := item.Object.(ConversationState)
		if !ok {
			continue
		}
		if !fn(key, state) {
			break
		}
	}
	return nil
}

func (s *TTLStore) Close() error {
	s.cache.Flush()
	return nil
}

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

// SessionManager maps a sender identity to the last successful
// continuation handle. Only successful exchanges reach Record.
type SessionManager struct {
	store Store
	now   func() time.Time
}

func NewSessionManager(store Store) *SessionManager {
	return &SessionManager{
		store: store,
		now:   time.Now,
	}
}

// OpenStore builds the backend selected by cfg.Backend.
func OpenStore(cfg config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case "", "lru":
		size := cfg.MaxEntries
		if size <= 0 {
			size = 1000
		}
		store, err := NewLRUStore(size)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return NewMapStore(), nil
	case "ttl":
		minutes := cfg.TTLMinutes
		if minutes <= 0 {
			minutes = 24 * 60
		}
		return NewTTLStore(time.Duration(minutes) * time.Minute), nil
	case "sqlite":
		store, err := NewSQLiteStore(config.ExpandHome(cfg.Path))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func (sm *SessionManager) Lookup(key string) (ConversationState, bool) {
	state, err := sm.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WarnCF("session", "Conversation lookup failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return ConversationState{}, false
	}
	return state, true
}

// Record overwrites the state for key (last write wins).
func (sm *SessionManager) Record(key, conversationID, parentMessageID string) {
	state := ConversationState{
		ConversationID:  conversationID,
		ParentMessageID: parentMessageID,
		UpdatedAt:       sm.now(),
	}
	if err := sm.store.Set(key, state); err != nil {
		logger.WarnCF("session", "Conversation save failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (sm *SessionManager) Forget(key string) {
	if err := sm.store.Delete(key); err != nil {
		logger.WarnCF("session", "Conversation delete failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (sm *SessionManager) Count() int {
	return sm.store.Len()
}

// Sweep drops every entry idle for longer than maxIdle and returns how many
// were removed.
func (sm *SessionManager) Sweep(maxIdle time.Duration) int {
	cutoff := sm.now().Add(-maxIdle)

	var stale []string
	err := sm.store.Range(func(key string, state ConversationState) bool {
		if state.UpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil {
		logger.WarnCF("session", "Conversation sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}

	for _, key := range stale {
		sm.Forget(key)
	}
	if len(stale) > 0 {
		logger.InfoCF("session", "Swept idle conversations", map[string]interface{}{
			"removed":   len(stale),
			"remaining": sm.store.Len(),
		})
	}
	return len(stale)
}

func (sm *SessionManager) Close() error {
	return sm.store.Close()
}

package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore — Store в памяти процесса. Используется в тестах и при
// запуске без Redis; семантика инкремента и окна совпадает с RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore создаёт пустое хранилище счётчиков.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

// Incr атомарно увеличивает счётчик; просроченное окно начинается заново.
func (s *MemoryStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowLen)}
		s.windows[key] = w
	}

	w.count++
	return w.count, nil
}

// Reset удаляет все счётчики с данным префиксом.
func (s *MemoryStore) Reset(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.windows {
		if strings.HasPrefix(key, prefix) {
			delete(s.windows, key)
		}
	}

	return nil
}

var _ Store = (*MemoryStore)(nil)

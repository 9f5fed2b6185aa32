// ratelimit реализует ограничение частоты запросов окном фиксированной
// длины на пару (маршрут, идентичность).
//
// Счётчики живут во внешнем Store (Redis в проде, память в тестах), поэтому
// несколько экземпляров сервера видят согласованное состояние. Инкремент
// обязан быть атомарным на стороне Store: параллельные запросы по одному
// ключу не теряют обновления. Пространство имён (namespace) позволяет
// изолировать и сбрасывать счётчики по-арендно или по-тестово.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store — внешнее хранилище оконных счётчиков.
type Store interface {
	// Incr атомарно увеличивает счётчик ключа и возвращает новое значение.
	// При первом инкременте окно начинает отсчёт: ключ живёт window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Reset удаляет все счётчики с данным префиксом.
	Reset(ctx context.Context, prefix string) error
}

// Policy — лимит запросов в окне для одного маршрута.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Limiter применяет политики к парам (маршрут, идентичность).
type Limiter struct {
	store     Store
	namespace string
	policies  map[string]Policy
}

// New создает Limiter в пространстве имён namespace.
func New(store Store, namespace string) *Limiter {
	return &Limiter{
		store:     store,
		namespace: namespace,
		policies:  make(map[string]Policy),
	}
}

// SetPolicy задаёт лимит для маршрута. Маршрут без политики не ограничен.
func (l *Limiter) SetPolicy(route string, limit int64, window time.Duration) {
	l.policies[route] = Policy{Limit: limit, Window: window}
}

// Allow сообщает, укладывается ли очередной запрос (route, key) в лимит.
// Счётчик инкрементируется и для отклонённых запросов: окно считает
// попытки, а не успехи.
func (l *Limiter) Allow(ctx context.Context, route, key string) (bool, error) {
	const op = "ratelimit.Allow"

	policy, ok := l.policies[route]
	if !ok {
		return true, nil
	}

	n, err := l.store.Incr(ctx, l.counterKey(route, key), policy.Window)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n <= policy.Limit, nil
}

// Reset сбрасывает все счётчики пространства имён.
func (l *Limiter) Reset(ctx context.Context) error {
	const op = "ratelimit.Reset"

	if err := l.store.Reset(ctx, l.namespace+":"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (l *Limiter) counterKey(route, key string) string {
	return l.namespace + ":" + route + ":" + key
}

// audit фиксирует события безопасности (блокировка аккаунта, повторное
// использование refresh-токена) для последующего расследования.
//
// Recorder — узкий интерфейс, чтобы компоненты не зависели от способа
// доставки; базовая реализация пишет структурированные записи через slog.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/pkg/log"
)

// Виды событий безопасности.
const (
	// EventAccountLocked — аккаунт заблокирован после серии неудачных входов.
	EventAccountLocked = "account_locked"
	// EventTokenReuse — предъявлен уже использованный refresh-токен;
	// сигнал возможной кражи, вся цепочка сессии отозвана.
	EventTokenReuse = "refresh_token_reuse"
	// EventSessionsRevoked — все активные refresh-токены пользователя отозваны.
	EventSessionsRevoked = "sessions_revoked"
)

// Recorder записывает события безопасности.
type Recorder interface {
	Record(ctx context.Context, kind string, userID uuid.UUID, attrs ...slog.Attr)
}

// Log — Recorder поверх slog. Нулевое значение пригодно к использованию
// и пишет через логгер из контекста (или slog.Default()).
type Log struct{}

// NewLog создаёт slog-рекордер.
func NewLog() *Log {
	return &Log{}
}

// Record пишет одну запись уровня Warn с меткой audit и временем события.
func (l *Log) Record(ctx context.Context, kind string, userID uuid.UUID, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("audit", kind),
		slog.String("user_id", userID.String()),
		slog.Time("at", time.Now().UTC()),
	}

	log.From(ctx).LogAttrs(ctx, slog.LevelWarn, "security_event", append(base, attrs...)...)
}

var _ Recorder = (*Log)(nil)

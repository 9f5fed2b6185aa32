package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись refresh-токена.
//
// В БД хранится только необратимый хэш токена (TokenHash); сам секрет
// возвращается клиенту ровно один раз при выпуске. UsedAt == nil означает,
// что токен активен; любое ненулевое значение — токен был потреблён
// (ротация или logout) и больше никогда не принимается.
type RefreshToken struct {
	TokenHash string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Active сообщает, пригоден ли токен для ротации в момент now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// service содержит бизнес-логику session-сервиса: регистрацию и вход
// пользователей, ротацию refresh-токенов, выход и проверку access-токенов.
// Работа с внешним миром идёт через интерфейсы из пакетов storage,
// ratelimit и audit.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при
//     условии, что переданное хранилище потокобезопасно.
//   - Все коллабораторы передаются явно в конструктор, что позволяет
//     подменять их фейками в тестах.
//   - Ошибки возвращаются и далее маппятся транспортом на HTTP-коды
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/fluxline/session-service/internal/lockout"
	"github.com/fluxline/session-service/internal/ratelimit"
	"github.com/fluxline/session-service/internal/refresh"
	"github.com/fluxline/session-service/internal/storage"
	"github.com/fluxline/session-service/internal/token"
)

// Маршруты, по которым считаются лимиты запросов.
const (
	RouteLogin   = "login"
	RouteRefresh = "refresh"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь
	// не найден. Транспорт: 401 INVALID_CREDENTIALS.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked — аккаунт временно заблокирован после серии неудач.
	// Наружу НЕ отличим от ErrInvalidCredentials (транспорт отдаёт тот же
	// 401 INVALID_CREDENTIALS), но внутри различается для аудита и тестов.
	ErrAccountLocked = errors.New("account locked")

	// ErrRateLimited — превышен лимит запросов в окне.
	// Транспорт: 429 RATE_LIMITED.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidToken — токен (access/refresh) отсутствует, некорректен
	// или просрочен. Транспорт: 401 UNAUTHORIZED.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenReused — предъявлен уже использованный refresh-токен;
	// вся цепочка сессии отозвана. Транспорт: 419 TOKEN_REUSED.
	ErrTokenReused = errors.New("token reused")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: 409 EMAIL_TAKEN.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: 400 INVALID_ARGUMENT.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	// Транспорт: 400 INVALID_ARGUMENT.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: 400 INVALID_ARGUMENT.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику session-сервиса.
type Service struct {
	storage storage.Storage
	issuer  *token.Issuer
	refresh *refresh.Store
	guard   *lockout.Guard
	limiter *ratelimit.Limiter
}

// New создаёт новый экземпляр Service со всеми коллабораторами.
// События безопасности (блокировка, replay) пишут сами guard и refresh-store
// через свой audit.Recorder.
func New(
	st storage.Storage,
	issuer *token.Issuer,
	rt *refresh.Store,
	guard *lockout.Guard,
	limiter *ratelimit.Limiter,
) *Service {
	return &Service{
		storage: st,
		issuer:  issuer,
		refresh: rt,
		guard:   guard,
		limiter: limiter,
	}
}

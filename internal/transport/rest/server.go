// rest содержит реализацию HTTP-эндпоинтов session-сервиса.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service)
// в HTTP: разбор JSON, работа с cookie и коды ответов. Вся валидация и
// бизнес-логика находятся в пакете service.
//
// Маппинг ошибок:
//   - ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword -> 400 INVALID_ARGUMENT;
//   - ErrEmailTaken -> 409 EMAIL_TAKEN;
//   - ErrInvalidCredentials и ErrAccountLocked -> 401 INVALID_CREDENTIALS
//     (блокировка наружу неотличима от неверного пароля);
//   - ErrInvalidToken -> 401 UNAUTHORIZED;
//   - ErrTokenReused -> 419 TOKEN_REUSED;
//   - ErrRateLimited -> 429 RATE_LIMITED;
//   - иные ошибки -> 500 c единым безопасным сообщением.
//
// Безопасность:
//   - Для 500 наружу не утекают детали внутренних ошибок; подробности
//     попадают в логи через middleware на уровне сервера;
//   - Клиенту никогда не сообщается, какое из полей (email/пароль) неверно
//     и сколько осталось до снятия блокировки.
package rest

import (
	"net"
	"net/http"
	"strings"

	"github.com/fluxline/session-service/internal/config"
	"github.com/fluxline/session-service/internal/service"
)

// tenantHeader — заголовок с идентичностью запроса для rate-limit
// (арендатор или тестовый прогон); при отсутствии используется IP клиента.
const tenantHeader = "X-Fx-Tenant"

type Server struct {
	service *service.Service
	cookies config.CookieConfig
	auth    config.AuthConfig
}

// NewServer создаёт HTTP-сервер авторизации поверх сервисного слоя.
func NewServer(svc *service.Service, cookies config.CookieConfig, auth config.AuthConfig) *Server {
	return &Server{
		service: svc,
		cookies: cookies,
		auth:    auth,
	}
}

// Routes регистрирует эндпоинты и возвращает корневой обработчик.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/me", s.handleMe)

	return mux
}

// identity возвращает ключ rate-limit запроса: заголовок арендатора,
// первый адрес из X-Forwarded-For либо IP клиента.
func identity(r *http.Request) string {
	if v := r.Header.Get(tenantHeader); v != "" {
		return v
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

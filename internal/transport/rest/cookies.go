package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/fluxline/session-service/internal/models"
)

// setSessionCookies выставляет обе cookie пары токенов.
//
// Access-cookie живёт до истечения access-токена на корневом пути;
// refresh-cookie живёт весь срок refresh-токена, но ограничена путём
// auth-эндпоинтов, чтобы секрет не уходил с каждым запросом к API.
func (s *Server) setSessionCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.SessionName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.RefreshName,
		Value:    pair.RefreshToken,
		Path:     s.cookies.RefreshPath,
		Expires:  time.Now().Add(s.auth.RefreshTokenTTL),
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookies безусловно гасит обе cookie (MaxAge=-1).
func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.SessionName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.RefreshName,
		Value:    "",
		Path:     s.cookies.RefreshPath,
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// readCookie возвращает непустое обрезанное значение cookie name.
func readCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie == nil {
		return "", false
	}

	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}

	return value, true
}

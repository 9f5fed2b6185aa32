package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fluxline/session-service/internal/pkg/log"
	"github.com/fluxline/session-service/internal/pkg/redact"
)

const maxJSONBodyBytes = 1 << 20

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID string `json:"userId"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument)
		return false
	}

	return true
}

// handleRegister регистрирует пользователя и сразу открывает сессию.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, uid, err := s.service.RegisterUser(r.Context(), body.Email, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, userResponse{UserID: uid.String()})
}

// handleLogin выполняет вход и ставит обе cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, uid, err := s.service.LoginUser(r.Context(), body.Email, body.Password, identity(r))
	if err != nil {
		log.From(r.Context()).Warn("login_rejected",
			slog.String("email", redact.Email(body.Email)),
		)
		writeServiceError(w, r, err)
		return
	}

	s.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, userResponse{UserID: uid.String()})
}

// handleRefresh ротирует refresh-токен из cookie и ставит новую пару.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	plain, ok := readCookie(r, s.cookies.RefreshName)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized)
		return
	}

	pair, uid, err := s.service.Refresh(r.Context(), plain, identity(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, userResponse{UserID: uid.String()})
}

// handleLogout отзывает refresh-токен и безусловно гасит обе cookie.
// Всегда отвечает 204: повторный logout с мёртвой cookie не ошибка.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if plain, ok := readCookie(r, s.cookies.RefreshName); ok {
		if err := s.service.Logout(r.Context(), plain); err != nil {
			// Ошибка хранилища не мешает погасить cookie; токен добьёт janitor.
			log.From(r.Context()).Error("logout_revoke_failed",
				slog.String("err", err.Error()),
			)
		}
	}

	s.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe возвращает ID пользователя по access-cookie.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := readCookie(r, s.cookies.SessionName)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized)
		return
	}

	uid, err := s.service.Authenticate(r.Context(), accessToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{UserID: uid.String()})
}

package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fluxline/session-service/internal/pkg/log"
	"github.com/fluxline/session-service/internal/service"
)

// Коды ошибок, отдаваемые клиенту в envelope {"error":{"code":...}}.
const (
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeRateLimited        = "RATE_LIMITED"
	codeUnauthorized       = "UNAUTHORIZED"
	codeTokenReused        = "TOKEN_REUSED"
	codeEmailTaken         = "EMAIL_TAKEN"
	codeInvalidArgument    = "INVALID_ARGUMENT"
	codeInternal           = "INTERNAL"
)

// statusTokenReused — нестандартный статус для replay refresh-токена:
// сильный сигнал, клиент обязан пройти полный вход заново.
const statusTokenReused = 419

type errorBody struct {
	Code string `json:"code"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code}})
}

// writeServiceError транслирует ошибку доменного слоя в HTTP-ответ.
// Ошибки, не входящие в таксономию, логируются с контекстом и уходят
// клиенту как безликий 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccountLocked):
		// Блокировка не раскрывается: тот же ответ, что и на неверный пароль.
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials)
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, codeRateLimited)
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, codeUnauthorized)
	case errors.Is(err, service.ErrTokenReused):
		writeError(w, statusTokenReused, codeTokenReused)
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, codeEmailTaken)
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		writeError(w, http.StatusBadRequest, codeInvalidArgument)
	default:
		log.From(r.Context()).Error("internal_error",
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal)
	}
}

// auth.go — вход и выход администратора: POST/DELETE /api/auth.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/portfolio/internal/api/errors"
	"github.com/bigkaa/portfolio/internal/auth"
)

// maxAuthBody — ограничение тела запроса входа.
const maxAuthBody = 64 << 10

// AuthHandler — обработчик входа и выхода.
type AuthHandler struct {
	guard  *auth.Guard
	logger *slog.Logger
}

// NewAuthHandler создаёт обработчик входа и выхода.
func NewAuthHandler(guard *auth.Guard, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		guard:  guard,
		logger: logger.With(slog.String("component", "auth_handler")),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login обрабатывает POST /api/auth.
// При верных учётных данных выставляет session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid request body")
		return
	}

	if !h.guard.CheckCredentials(req.Username, req.Password) {
		h.logger.Warn("Неудачная попытка входа",
			slog.String("username", req.Username),
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.InvalidCredentials(w, "Invalid credentials")
		return
	}

	h.guard.SetSessionCookie(w)
	h.logger.Info("Администратор вошёл", slog.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Logout обрабатывает DELETE /api/auth.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.guard.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

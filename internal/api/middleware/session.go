// session.go — middleware проверки admin-сессии.
// Все изменяющие маршруты (загрузка, запись контента) закрыты им:
// неавторизованный запрос получает 401 до чтения тела.
package middleware

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/portfolio/internal/api/errors"
)

// SessionChecker — проверка сессии по запросу.
type SessionChecker interface {
	Authorized(r *http.Request) bool
}

// RequireSession возвращает middleware, пропускающий только запросы
// с действующей session cookie.
func RequireSession(guard SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "session_guard"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guard.Authorized(r) {
				log.Warn("Запрос без действующей сессии",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respond.go — общие помощники формирования JSON-ответов.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/portfolio/internal/api/errors"
)

// writeJSON записывает JSON-ответ с указанным статус-кодом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// successResponse — ответ без данных.
type successResponse struct {
	Success bool `json:"success"`
}

// NotFound обрабатывает неизвестные маршруты /api/*.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	apierrors.NotFound(w, "Resource not found")
}

// media.go — обработчик GET <prefix>/* (отдача загруженных файлов).
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/portfolio/internal/service"
)

// MediaHandler — обработчик отдачи загруженных файлов.
type MediaHandler struct {
	svc *service.MediaService
}

// NewMediaHandler создаёт обработчик отдачи файлов.
func NewMediaHandler(svc *service.MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// ServeFile отдаёт файл по пути из wildcard-параметра маршрута.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	h.svc.Serve(w, r, chi.URLParam(r, "*"))
}

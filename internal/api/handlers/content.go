// content.go — чтение и запись контента портфолио: GET/POST /api/data.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/portfolio/internal/api/errors"
	"github.com/bigkaa/portfolio/internal/storage/content"
)

// maxContentBody — ограничение тела запроса записи секции.
const maxContentBody = 10 << 20

// ContentHandler — обработчик endpoints контента.
type ContentHandler struct {
	store  *content.Store
	logger *slog.Logger
}

// NewContentHandler создаёт обработчик endpoints контента.
func NewContentHandler(store *content.Store, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		store:  store,
		logger: logger.With(slog.String("component", "content_handler")),
	}
}

type sectionRequest struct {
	Section string          `json:"section"`
	Data    json.RawMessage `json:"data"`
}

// GetContent обрабатывает GET /api/data. Возвращает документ целиком.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.Error("Ошибка чтения данных",
			slog.String("path", h.store.Path()),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Failed to read data")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, doc)
}

// SaveSection обрабатывает POST /api/data.
// Тело: {"section": "<имя>", "data": <значение секции>}.
func (h *ContentHandler) SaveSection(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContentBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid data format")
		return
	}
	if req.Section == "" || len(req.Data) == 0 || bytes.Equal(req.Data, []byte("null")) {
		apierrors.ValidationError(w, "Missing section or data")
		return
	}

	err := h.store.ReplaceSection(r.Context(), req.Section, req.Data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	case errors.Is(err, content.ErrUnknownSection), errors.Is(err, content.ErrInvalidSection):
		h.logger.Warn("Некорректная секция",
			slog.String("section", req.Section),
			slog.String("error", err.Error()),
		)
		apierrors.ValidationError(w, "Invalid data format")
	default:
		h.logger.Error("Ошибка сохранения данных",
			slog.String("section", req.Section),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Failed to save data")
	}
}

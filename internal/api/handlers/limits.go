// limits.go — обработчик GET /api/upload/limits.
// Админка показывает пользователю потолки размеров и свободное место
// до начала загрузки.
package handlers

import (
	"net/http"

	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/domain/media"
	"github.com/bigkaa/portfolio/internal/service"
	"github.com/bigkaa/portfolio/internal/storage/diskspace"
)

// LimitsHandler — обработчик endpoint лимитов загрузки.
type LimitsHandler struct {
	cfg       *config.Config
	estimator diskspace.Estimator
	uploadDir string
}

// NewLimitsHandler создаёт обработчик лимитов.
// uploadDir — корень загрузок, для которого оценивается свободное место.
func NewLimitsHandler(cfg *config.Config, estimator diskspace.Estimator, uploadDir string) *LimitsHandler {
	return &LimitsHandler{
		cfg:       cfg,
		estimator: estimator,
		uploadDir: uploadDir,
	}
}

type classLimits struct {
	MaxSize      int64    `json:"maxSize"`
	MaxSizeLabel string   `json:"maxSizeLabel"`
	Types        []string `json:"types"`
}

type chunkLimits struct {
	MaxChunkSize int64 `json:"maxChunkSize"`
	MaxChunks    int   `json:"maxChunks"`
}

type limitsResponse struct {
	Success        bool        `json:"success"`
	Image          classLimits `json:"image"`
	Video          classLimits `json:"video"`
	Chunked        chunkLimits `json:"chunked"`
	MaxRequestBody int64       `json:"maxRequestBody"`
	// FreeBytes — null, если оценка свободного места недоступна
	FreeBytes *int64 `json:"freeBytes"`
}

// GetLimits обрабатывает GET /api/upload/limits.
func (h *LimitsHandler) GetLimits(w http.ResponseWriter, _ *http.Request) {
	resp := limitsResponse{
		Success: true,
		Image: classLimits{
			MaxSize:      h.cfg.ImageMaxSize,
			MaxSizeLabel: media.LimitLabel(h.cfg.ImageMaxSize),
			Types:        media.AllowedImageTypes,
		},
		Video: classLimits{
			MaxSize:      h.cfg.VideoMaxSize,
			MaxSizeLabel: media.LimitLabel(h.cfg.VideoMaxSize),
			Types:        media.AllowedVideoTypes,
		},
		Chunked: chunkLimits{
			MaxChunkSize: h.cfg.ChunkMaxSize,
			MaxChunks:    service.MaxChunks,
		},
		MaxRequestBody: h.cfg.MaxRequestBody,
	}

	if h.estimator != nil {
		if free, err := h.estimator.FreeBytes(h.uploadDir); err == nil {
			resp.FreeBytes = &free
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

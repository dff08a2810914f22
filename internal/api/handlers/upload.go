// upload.go — HTTP handlers загрузки файлов:
// POST /api/upload, POST /api/upload/streaming, POST /api/upload/thumbnail.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/service"
)

// multipartMemory — часть multipart-формы, хранимая в памяти;
// остальное буферизуется во временных файлах.
const multipartMemory = 32 << 20

// chunkBodySlack — запас на заголовки и поля формы поверх размера чанка.
const chunkBodySlack = 1 << 20

// UploadHandler — обработчик endpoints загрузки.
type UploadHandler struct {
	uploadSvc  *service.UploadService
	chunkedSvc *service.ChunkedUploadService
	cfg        *config.Config
	logger     *slog.Logger
}

// NewUploadHandler создаёт обработчик endpoints загрузки.
func NewUploadHandler(
	uploadSvc *service.UploadService,
	chunkedSvc *service.ChunkedUploadService,
	cfg *config.Config,
	logger *slog.Logger,
) *UploadHandler {
	return &UploadHandler{
		uploadSvc:  uploadSvc,
		chunkedSvc: chunkedSvc,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "upload_handler")),
	}
}

// uploadResponse — ответ POST /api/upload.
type uploadResponse struct {
	Success bool `json:"success"`
	*service.UploadResult
}

// thumbnailResponse — ответ POST /api/upload/thumbnail.
type thumbnailResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// chunkProgressResponse — ответ на промежуточный чанк.
type chunkProgressResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UploadID string `json:"uploadId"`
	Received int    `json:"received"`
	Total    int    `json:"total"`
}

// chunkCompleteResponse — ответ на последний чанк.
type chunkCompleteResponse struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	UploadID string `json:"uploadId"`
	Size     int64  `json:"size"`
}

// Upload обрабатывает POST /api/upload.
// Multipart form: file (обязательно). Изображения и видео.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	result, err := h.uploadFile(w, r, service.ProfileMedia)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, UploadResult: result})
}

// UploadThumbnail обрабатывает POST /api/upload/thumbnail.
// Multipart form: file (обязательно). Только изображения.
func (h *UploadHandler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	result, err := h.uploadFile(w, r, service.ProfileThumbnail)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thumbnailResponse{Success: true, Path: result.URL})
}

// uploadFile применяет бюджет времени и лимит тела, извлекает поле
// file и передаёт его оркестратору. Тип файла — объявленный в части
// формы, имя файла на классификацию не влияет.
func (h *UploadHandler) uploadFile(w http.ResponseWriter, r *http.Request, profile service.Profile) (*service.UploadResult, error) {
	ctx, cancel := h.withBudget(w, r, h.uploadSvc.Timeout(profile), h.cfg.MaxRequestBody)
	defer cancel()

	form, err := h.parseForm(ctx, r)
	if err != nil {
		return nil, err
	}
	defer form.RemoveAll()

	file, header, err := formFile(form)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return h.uploadSvc.Upload(ctx, service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Size:             header.Size,
	}, profile)
}

// UploadChunk обрабатывает POST /api/upload/streaming.
// Multipart form: file (чанк), chunkIndex, totalChunks, fileName,
// uploadId (необязательно, со второго чанка).
func (h *UploadHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withBudget(w, r, h.cfg.UploadTimeout, h.cfg.ChunkMaxSize+chunkBodySlack)
	defer cancel()

	form, err := h.parseForm(ctx, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer form.RemoveAll()

	file, header, err := formFile(form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer file.Close()

	index, errIndex := strconv.Atoi(formValue(form, "chunkIndex"))
	total, errTotal := strconv.Atoi(formValue(form, "totalChunks"))
	if errIndex != nil || errTotal != nil {
		h.fail(w, r, service.ValidationError(service.MsgMissingFields))
		return
	}

	res, err := h.chunkedSvc.AcceptChunk(ctx, service.ChunkParams{
		UploadID:    formValue(form, "uploadId"),
		Index:       index,
		Total:       total,
		FileName:    formValue(form, "fileName"),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if !res.Complete {
		writeJSON(w, http.StatusOK, chunkProgressResponse{
			Success:  true,
			Message:  res.Message,
			UploadID: res.UploadID,
			Received: res.Received,
			Total:    res.Total,
		})
		return
	}
	writeJSON(w, http.StatusOK, chunkCompleteResponse{
		Success:  true,
		URL:      res.URL,
		FileName: res.FileName,
		UploadID: res.UploadID,
		Size:     res.Size,
	})
}

// withBudget ограничивает запрос по времени (дедлайн чтения соединения
// и дедлайн контекста) и по размеру тела.
func (h *UploadHandler) withBudget(w http.ResponseWriter, r *http.Request, timeout time.Duration, maxBody int64) (context.Context, context.CancelFunc) {
	deadline := time.Now().Add(timeout)
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("Не удалось установить дедлайн чтения",
			slog.String("error", err.Error()),
		)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	return context.WithDeadline(r.Context(), deadline)
}

// parseForm разбирает multipart-тело. Ошибки чтения тела (таймаут,
// превышение лимита) сопоставляются с классами ошибок загрузки.
func (h *UploadHandler) parseForm(ctx context.Context, r *http.Request) (*multipart.Form, error) {
	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case err == nil:
		return r.MultipartForm, nil
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return nil, service.MissingFileError(service.MsgNoFile)
	default:
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
		return nil, service.MapFailure(ctx, err)
	}
}

// formFile возвращает единственное поле file.
func formFile(form *multipart.Form) (multipart.File, *multipart.FileHeader, error) {
	headers := form.File["file"]
	if len(headers) == 0 {
		return nil, nil, service.MissingFileError(service.MsgNoFile)
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, nil, service.MapFailure(context.Background(), err)
	}
	return f, headers[0], nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// fail записывает ошибку загрузки в ответ.
func (h *UploadHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ue := service.MapFailure(r.Context(), err)
	if ue.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("Загрузка завершилась ошибкой",
			slog.String("path", r.URL.Path),
			slog.String("kind", string(ue.Kind)),
			slog.String("error", err.Error()),
		)
	}
	ue.Write(w)
}

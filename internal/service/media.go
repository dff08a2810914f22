// media.go — отдача загруженных файлов по /uploads/*.
package service

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	apierrors "github.com/bigkaa/portfolio/internal/api/errors"
	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

// mediaCacheControl — имена загруженных файлов уникальны и не меняются.
const mediaCacheControl = "public, max-age=31536000, immutable"

// MediaService — отдача загруженных файлов.
type MediaService struct {
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewMediaService создаёт сервис отдачи файлов.
func NewMediaService(store *filestore.FileStore, logger *slog.Logger) *MediaService {
	return &MediaService{
		store:  store,
		logger: logger.With(slog.String("component", "media_service")),
	}
}

// Serve отдаёт файл rel (путь относительно корня загрузок) через
// http.ServeContent: Range requests, If-Modified-Since, Content-Length.
// Скрытые пути (.chunks), незавершённые .part файлы и директории
// считаются несуществующими.
func (s *MediaService) Serve(w http.ResponseWriter, r *http.Request, rel string) {
	if !servable(rel) {
		apierrors.NotFound(w, "File not found")
		return
	}

	file, err := s.store.Open(rel)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, filestore.ErrUnsafePath) {
			s.logger.Error("Ошибка открытия файла",
				slog.String("path", rel),
				slog.String("error", err.Error()),
			)
		}
		apierrors.NotFound(w, "File not found")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Failed to read file")
		return
	}
	if stat.IsDir() {
		apierrors.NotFound(w, "File not found")
		return
	}

	w.Header().Set("Cache-Control", mediaCacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
}

// servable отсекает пути, которые не должны отдаваться наружу.
func servable(rel string) bool {
	if rel == "" || strings.HasSuffix(rel, filestore.PartSuffix) {
		return false
	}
	for _, seg := range strings.Split(path.Clean(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return true
}

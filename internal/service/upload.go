// Пакет service — бизнес-логика portfolio-server.
// upload.go — оркестратор загрузки файла одним запросом.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/portfolio/internal/api/middleware"
	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/domain/media"
	"github.com/bigkaa/portfolio/internal/storage/diskspace"
	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

// spaceFactor — во сколько раз свободное место должно превышать размер файла.
const spaceFactor = 2

// Profile — профиль загрузки.
type Profile int

const (
	// ProfileMedia — изображения и видео в корень загрузок.
	ProfileMedia Profile = iota
	// ProfileThumbnail — только изображения в thumbnails/.
	ProfileThumbnail
)

// String возвращает имя профиля (лейбл метрик).
func (p Profile) String() string {
	if p == ProfileThumbnail {
		return "thumbnail"
	}
	return "single"
}

// profileSpec — параметры профиля.
type profileSpec struct {
	dir        string
	prefix     string
	allowVideo bool
	limits     media.Limits
	timeout    time.Duration
}

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// ContentType — объявленный MIME-тип файла
	ContentType string
	// Size — объявленный размер файла (из multipart part)
	Size int64
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	// URL — публичный относительный URL файла
	URL string `json:"url"`
	// Filename — сгенерированное имя файла
	Filename string `json:"filename"`
	// Size — размер в байтах
	Size int64 `json:"size"`
	// Type — объявленный MIME-тип
	Type string `json:"type"`
	// SizeMB — размер в MiB с одним знаком после запятой
	SizeMB string `json:"sizeMB"`
}

// UploadService — оркестратор загрузки: классификация, проверка места,
// генерация имени, chunked-запись на диск.
type UploadService struct {
	store     *filestore.FileStore
	writer    *filestore.ChunkedWriter
	estimator diskspace.Estimator
	profiles  map[Profile]profileSpec
	logger    *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	store *filestore.FileStore,
	writer *filestore.ChunkedWriter,
	estimator diskspace.Estimator,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		store:     store,
		writer:    writer,
		estimator: estimator,
		profiles: map[Profile]profileSpec{
			ProfileMedia: {
				dir:        "",
				prefix:     "upload",
				allowVideo: true,
				limits:     media.Limits{Image: cfg.ImageMaxSize, Video: cfg.VideoMaxSize},
				timeout:    cfg.UploadTimeout,
			},
			ProfileThumbnail: {
				dir:        "thumbnails",
				prefix:     "thumb",
				allowVideo: false,
				limits:     media.Limits{Image: cfg.ImageMaxSize},
				timeout:    cfg.ThumbnailTimeout,
			},
		},
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Timeout возвращает бюджет времени запроса для профиля.
func (s *UploadService) Timeout(p Profile) time.Duration {
	return s.profiles[p].timeout
}

// Upload проверяет и записывает файл.
//
// Поток:
//  1. Классификация по объявленному типу и размеру (без I/O)
//  2. Создание директории профиля
//  3. Проверка свободного места (fail open)
//  4. Генерация уникального имени
//  5. Chunked-запись в .part и rename
//
// При ошибке записи незавершённый файл удаляется.
func (s *UploadService) Upload(ctx context.Context, params UploadParams, profile Profile) (*UploadResult, error) {
	spec, ok := s.profiles[profile]
	if !ok {
		return nil, fmt.Errorf("неизвестный профиль загрузки %d", profile)
	}
	mode := profile.String()

	// 1. Классификация
	if _, err := media.Check(params.ContentType, params.Size, spec.limits, spec.allowVideo); err != nil {
		var rej *media.Rejection
		if errors.As(err, &rej) {
			middleware.UploadsTotal.WithLabelValues(mode, "rejected").Inc()
			s.logger.Info("Файл отклонён",
				slog.String("filename", params.OriginalFilename),
				slog.String("content_type", params.ContentType),
				slog.String("size", humanize.IBytes(uint64(max(params.Size, 0)))),
				slog.String("reason", rej.Reason),
			)
			return nil, rejectionError(rej)
		}
		return nil, err
	}

	// 2. Директория профиля
	dir, err := s.store.EnsureDir(spec.dir)
	if err != nil {
		middleware.UploadsTotal.WithLabelValues(mode, "failed").Inc()
		s.logger.Error("Ошибка создания директории загрузок",
			slog.String("dir", spec.dir),
			slog.String("error", err.Error()),
		)
		return nil, MapFailure(ctx, err)
	}

	// 3. Свободное место
	if ue := s.checkSpace(dir, params.Size); ue != nil {
		middleware.UploadsTotal.WithLabelValues(mode, "no_space").Inc()
		return nil, ue
	}

	// 4. Имя файла
	name := s.store.GenerateName(spec.prefix, params.OriginalFilename)
	fullPath := filepath.Join(dir, name)

	// 5. Запись
	start := time.Now()
	res, err := s.writer.WriteFrom(ctx, fullPath, params.Reader, params.Size)
	if err != nil {
		var we *filestore.WriteError
		if errors.As(err, &we) {
			if derr := s.store.Discard(we.PartialPath); derr != nil {
				s.logger.Warn("Не удалось удалить незавершённый файл",
					slog.String("path", we.PartialPath),
					slog.String("error", derr.Error()),
				)
			}
		}
		failure := MapFailure(ctx, err)
		middleware.UploadsTotal.WithLabelValues(mode, string(failure.Kind)).Inc()
		s.logger.Error("Ошибка записи файла",
			slog.String("filename", name),
			slog.String("kind", string(failure.Kind)),
			slog.String("reason", failure.Reason),
			slog.String("error", err.Error()),
		)
		return nil, failure
	}

	middleware.UploadsTotal.WithLabelValues(mode, "success").Inc()
	middleware.UploadBytesTotal.WithLabelValues(mode).Add(float64(res.Bytes))

	s.logger.Info("Файл загружен",
		slog.String("filename", name),
		slog.String("content_type", params.ContentType),
		slog.String("size", humanize.IBytes(uint64(res.Bytes))),
		slog.Int("chunks", res.Chunks),
		slog.Duration("duration", time.Since(start)),
	)

	return &UploadResult{
		URL:      s.store.PublicURL(path.Join(spec.dir, name)),
		Filename: name,
		Size:     res.Bytes,
		Type:     params.ContentType,
		SizeMB:   media.FormatMB(res.Bytes),
	}, nil
}

// checkSpace применяет политику свободного места: нужно не менее
// spaceFactor × size. Если оценка недоступна, загрузка продолжается.
func (s *UploadService) checkSpace(dir string, size int64) *UploadError {
	return checkFreeSpace(s.estimator, s.logger, dir, size)
}

func checkFreeSpace(est diskspace.Estimator, logger *slog.Logger, dir string, size int64) *UploadError {
	if est == nil || size <= 0 {
		return nil
	}
	free, err := est.FreeBytes(dir)
	if err != nil {
		logger.Warn("Не удалось оценить свободное место, загрузка продолжается",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	required := spaceFactor * size
	if free < required {
		logger.Warn("Недостаточно свободного места",
			slog.String("free", humanize.IBytes(uint64(max(free, 0)))),
			slog.String("required", humanize.IBytes(uint64(required))),
		)
		return insufficientStorageError(free, required)
	}
	return nil
}

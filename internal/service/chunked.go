// chunked.go — chunked-загрузка, управляемая клиентом.
// Клиент делит файл на пронумерованные чанки и отправляет их по порядку.
// Каждый чанк пишется в <root>/.chunks/<uploadId>/chunk_<i>; на последнем
// чанке части склеиваются в <root>/<uploadId>/<fileName> и удаляются.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/bigkaa/portfolio/internal/api/middleware"
	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/domain/media"
	"github.com/bigkaa/portfolio/internal/storage/diskspace"
	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

// MaxChunks — максимальное число чанков одной загрузки.
const MaxChunks = 10000

const chunkedMode = "chunked"

// ChunkParams — параметры одного чанка.
type ChunkParams struct {
	// UploadID — идентификатор сессии, выданный на чанке 0; может
	// отсутствовать, тогда сессия ищется по FileName, Total и Index
	UploadID string
	Index    int
	Total    int
	// FileName — исходное имя собираемого файла
	FileName string
	// ContentType — объявленный тип части (часто application/octet-stream)
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ChunkResult — результат приёма чанка.
type ChunkResult struct {
	UploadID string
	// Complete — файл собран
	Complete bool
	Received int
	Total    int
	Message  string
	// Поля заполняются при Complete
	URL      string
	FileName string
	Size     int64
}

// ChunkedUploadService — приём chunked-загрузок.
type ChunkedUploadService struct {
	store        *filestore.FileStore
	writer       *filestore.ChunkedWriter
	estimator    diskspace.Estimator
	registry     *SessionRegistry
	limits       media.Limits
	chunkMaxSize int64
	logger       *slog.Logger
	now          func() time.Time
}

// NewChunkedUploadService создаёт сервис chunked-загрузок.
func NewChunkedUploadService(
	cfg *config.Config,
	store *filestore.FileStore,
	writer *filestore.ChunkedWriter,
	estimator diskspace.Estimator,
	registry *SessionRegistry,
	logger *slog.Logger,
) *ChunkedUploadService {
	return &ChunkedUploadService{
		store:        store,
		writer:       writer,
		estimator:    estimator,
		registry:     registry,
		limits:       media.Limits{Image: cfg.ImageMaxSize, Video: cfg.VideoMaxSize},
		chunkMaxSize: cfg.ChunkMaxSize,
		logger:       logger.With(slog.String("component", "chunked_upload")),
		now:          time.Now,
	}
}

// AcceptChunk принимает один чанк.
//
// Поток:
//  1. Валидация индексов и имени
//  2. Открытие сессии (чанк 0 без uploadId) или поиск существующей
//  3. Проверка порядка: чанк из будущего отклоняется, повтор перезаписывается
//  4. Потолки размера чанка и суммарного размера, проверка места
//  5. Запись chunk_<i>
//  6. На последнем чанке: склейка, удаление частей, закрытие сессии
func (s *ChunkedUploadService) AcceptChunk(ctx context.Context, p ChunkParams) (*ChunkResult, error) {
	// 1. Валидация
	if p.FileName == "" || p.Reader == nil {
		return nil, ValidationError(MsgMissingFields)
	}
	if p.Total < 1 || p.Total > MaxChunks {
		return nil, ValidationError(fmt.Sprintf("Invalid totalChunks: must be between 1 and %d", MaxChunks))
	}
	if p.Index < 0 || p.Index >= p.Total {
		return nil, ValidationError(fmt.Sprintf("Invalid chunkIndex %d for %d chunks", p.Index, p.Total))
	}
	if p.Size > s.chunkMaxSize {
		middleware.UploadsTotal.WithLabelValues(chunkedMode, "rejected").Inc()
		return nil, tooLargeError(fmt.Sprintf("Chunk too large (%sMB). Maximum chunk size is %s.",
			media.FormatMB(p.Size), media.LimitLabel(s.chunkMaxSize)))
	}

	// 2. Сессия
	sess, ue := s.session(p)
	if ue != nil {
		return nil, ue
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.done.Load() {
		return nil, notFoundError(MsgSessionNotFound)
	}
	if p.Total != sess.Total || filestore.SanitizeName(p.FileName) != sess.FileName {
		return nil, ValidationError("Chunk does not match the upload session")
	}

	// 3. Порядок
	if p.Index > sess.Next {
		return nil, ValidationError(fmt.Sprintf("Out-of-order chunk: expected %d, got %d", sess.Next, p.Index))
	}

	// 4. Потолки
	if total := sess.projected(p.Index, p.Size); total > sess.Limit {
		middleware.UploadsTotal.WithLabelValues(chunkedMode, "rejected").Inc()
		s.abort(sess)
		return nil, tooLargeError(fmt.Sprintf("File too large (%sMB). Maximum for %ss is %s.",
			media.FormatMB(total), sess.Class, media.LimitLabel(sess.Limit)))
	}

	chunkDir, err := s.store.EnsureDir(path.Join(filestore.ChunksDir, sess.ID))
	if err != nil {
		return nil, MapFailure(ctx, err)
	}
	if ue := checkFreeSpace(s.estimator, s.logger, chunkDir, p.Size); ue != nil {
		middleware.UploadsTotal.WithLabelValues(chunkedMode, "no_space").Inc()
		return nil, ue
	}

	// 5. Запись чанка
	res, err := s.writer.WriteFrom(ctx, chunkPath(chunkDir, p.Index), p.Reader, p.Size)
	if err != nil {
		s.discard(err)
		failure := MapFailure(ctx, err)
		s.logger.Error("Ошибка записи чанка",
			slog.String("upload_id", sess.ID),
			slog.Int("chunk", p.Index),
			slog.String("kind", string(failure.Kind)),
			slog.String("error", err.Error()),
		)
		return nil, failure
	}
	sess.record(p.Index, res.Bytes)
	s.registry.Touch(sess)

	s.logger.Debug("Чанк принят",
		slog.String("upload_id", sess.ID),
		slog.Int("chunk", p.Index),
		slog.Int("total", sess.Total),
		slog.String("size", humanize.IBytes(uint64(res.Bytes))),
	)

	if p.Index < sess.Total-1 || sess.Next < sess.Total {
		return &ChunkResult{
			UploadID: sess.ID,
			Received: sess.Next,
			Total:    sess.Total,
			Message:  fmt.Sprintf("Chunk %d/%d received", p.Index+1, sess.Total),
		}, nil
	}

	// 6. Склейка
	return s.assemble(ctx, sess, chunkDir)
}

// session открывает новую сессию или находит существующую.
func (s *ChunkedUploadService) session(p ChunkParams) (*ChunkSession, *UploadError) {
	if p.UploadID == "" {
		if p.Index == 0 {
			return s.open(p)
		}
		// Клиент не передаёт uploadId: сессия ищется по имени файла,
		// числу чанков и индексу
		sess, matches := s.registry.Find(filestore.SanitizeName(p.FileName), p.Total, p.Index)
		switch matches {
		case 1:
			return sess, nil
		case 0:
			return nil, ValidationError(MsgNoMatchingSession)
		default:
			return nil, ValidationError(MsgAmbiguousSession)
		}
	}

	if _, err := uuid.Parse(p.UploadID); err != nil {
		return nil, ValidationError("Invalid uploadId")
	}
	sess, ok := s.registry.Get(p.UploadID)
	if !ok {
		return nil, notFoundError(MsgSessionNotFound)
	}
	return sess, nil
}

// open создаёт сессию. Класс файла определяется по объявленному типу
// или расширению; неподдерживаемый тип отклоняется до записи.
func (s *ChunkedUploadService) open(p ChunkParams) (*ChunkSession, *UploadError) {
	contentType := media.DetectType(p.FileName, p.ContentType)
	class, err := media.Check(contentType, 0, s.limits, true)
	if err != nil {
		var rej *media.Rejection
		if errors.As(err, &rej) {
			middleware.UploadsTotal.WithLabelValues(chunkedMode, "rejected").Inc()
			return nil, rejectionError(rej)
		}
		return nil, ValidationError(err.Error())
	}

	sess := &ChunkSession{
		ID:          uuid.NewString(),
		FileName:    filestore.SanitizeName(p.FileName),
		ContentType: contentType,
		Class:       class,
		Limit:       s.limits.For(class),
		Total:       p.Total,
		CreatedAt:   s.now(),
	}
	s.registry.Open(sess)

	s.logger.Info("Chunked-загрузка начата",
		slog.String("upload_id", sess.ID),
		slog.String("file_name", sess.FileName),
		slog.String("content_type", contentType),
		slog.Int("total", sess.Total),
	)
	return sess, nil
}

// assemble склеивает части в финальный файл. Вызывается под sess.mu.
func (s *ChunkedUploadService) assemble(ctx context.Context, sess *ChunkSession, chunkDir string) (*ChunkResult, error) {
	finalDir, err := s.store.EnsureDir(sess.ID)
	if err != nil {
		s.abort(sess)
		return nil, MapFailure(ctx, err)
	}

	parts := make([]string, sess.Total)
	for i := range parts {
		parts[i] = chunkPath(chunkDir, i)
	}

	start := time.Now()
	finalPath := filepath.Join(finalDir, sess.FileName)
	res, err := s.writer.Concat(ctx, finalPath, parts)
	if err != nil {
		// Часть чанков уже удалена: сессию не восстановить
		s.discard(err)
		s.abort(sess)
		failure := MapFailure(ctx, err)
		middleware.UploadsTotal.WithLabelValues(chunkedMode, string(failure.Kind)).Inc()
		s.logger.Error("Ошибка склейки чанков",
			slog.String("upload_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return nil, failure
	}

	if err := os.RemoveAll(chunkDir); err != nil {
		s.logger.Warn("Не удалось удалить директорию чанков",
			slog.String("dir", chunkDir),
			slog.String("error", err.Error()),
		)
	}
	sess.done.Store(true)
	s.registry.Close(sess.ID)

	middleware.UploadsTotal.WithLabelValues(chunkedMode, "success").Inc()
	middleware.UploadBytesTotal.WithLabelValues(chunkedMode).Add(float64(res.Bytes))

	s.logger.Info("Chunked-загрузка завершена",
		slog.String("upload_id", sess.ID),
		slog.String("file_name", sess.FileName),
		slog.String("size", humanize.IBytes(uint64(res.Bytes))),
		slog.Int("chunks", sess.Total),
		slog.Duration("assemble_duration", time.Since(start)),
		slog.Duration("total_duration", s.now().Sub(sess.CreatedAt)),
	)

	return &ChunkResult{
		UploadID: sess.ID,
		Complete: true,
		Received: sess.Total,
		Total:    sess.Total,
		URL:      s.store.PublicURL(path.Join(sess.ID, sess.FileName)),
		FileName: sess.FileName,
		Size:     res.Bytes,
	}, nil
}

// abort завершает сессию без результата и удаляет её части.
// Вызывается под sess.mu.
func (s *ChunkedUploadService) abort(sess *ChunkSession) {
	sess.done.Store(true)
	s.registry.Close(sess.ID)
	if dir, err := s.store.Resolve(path.Join(filestore.ChunksDir, sess.ID)); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Не удалось удалить директорию чанков",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}
}

// discard удаляет незавершённый файл неудачной записи.
func (s *ChunkedUploadService) discard(err error) {
	var we *filestore.WriteError
	if errors.As(err, &we) {
		_ = s.store.Discard(we.PartialPath)
	}
}

func chunkPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%d", index))
}

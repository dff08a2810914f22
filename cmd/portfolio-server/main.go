// Точка входа portfolio-server — backend админки портфолио:
// загрузка медиафайлов, отдача загруженных файлов, хранение контента.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/portfolio/internal/api/handlers"
	"github.com/bigkaa/portfolio/internal/auth"
	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/server"
	"github.com/bigkaa/portfolio/internal/service"
	"github.com/bigkaa/portfolio/internal/storage/content"
	"github.com/bigkaa/portfolio/internal/storage/diskspace"
	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

func main() {
	// .env не переопределяет реальные переменные окружения
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка чтения .env: %v\n", err)
		os.Exit(1)
	}

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("portfolio-server запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
		slog.String("data_path", cfg.DataPath),
	)
	if cfg.UsesDefaultCredentials() {
		logger.Warn("Используются учётные данные администратора по умолчанию, задайте PF_ADMIN_USER и PF_ADMIN_PASSWORD")
	}

	// --- Инициализация компонентов ---

	// 1. Session Guard
	guard, err := auth.NewGuard(auth.Config{
		CookieName: cfg.SessionCookie,
		Sentinel:   cfg.SessionValue,
		MaxAge:     cfg.SessionMaxAge,
		Secure:     cfg.CookieSecure,
		Username:   cfg.AdminUser,
		Password:   cfg.AdminPassword,
	})
	if err != nil {
		logger.Error("Ошибка инициализации Session Guard", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Файловое хранилище загрузок
	store, err := filestore.New(cfg.UploadDir, cfg.UploadURLPrefix)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}
	writer := filestore.NewChunkedWriter(cfg.WriteChunkSize)

	// 3. Оценка свободного места
	estimator := diskspace.New()
	logDiskUsage(logger, estimator, store.Root())

	// 4. Хранилище контента: создаёт документ по умолчанию и мигрирует старые данные
	contentStore := content.New(cfg.DataPath, logger)
	if _, err := contentStore.Load(context.Background()); err != nil {
		logger.Error("Ошибка чтения данных портфолио", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Сервисы
	registry := service.NewSessionRegistry(cfg.ChunkSessionLimit, cfg.ChunkSessionTTL, logger)
	uploadSvc := service.NewUploadService(cfg, store, writer, estimator, logger)
	chunkedSvc := service.NewChunkedUploadService(cfg, store, writer, estimator, registry, logger)
	mediaSvc := service.NewMediaService(store, logger)

	// 6. Фоновые процессы
	ctx := context.Background()

	// 6.1 GC — очистка брошенных chunked-загрузок
	gcSvc := service.NewGCService(store, registry, cfg.GCInterval, logger)
	gcSvc.Start(ctx)

	// 7. Handlers
	h := server.Handlers{
		Upload:  handlers.NewUploadHandler(uploadSvc, chunkedSvc, cfg, logger),
		Limits:  handlers.NewLimitsHandler(cfg, estimator, store.Root()),
		Auth:    handlers.NewAuthHandler(guard, logger),
		Content: handlers.NewContentHandler(contentStore, logger),
		Media:   handlers.NewMediaHandler(mediaSvc),
		Health:  handlers.NewHealthHandler(store.Root(), filepath.Dir(cfg.DataPath)),
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, guard, h)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		gcSvc.Stop()
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	gcSvc.Stop()

	logger.Info("portfolio-server остановлен")
}

// logDiskUsage пишет в лог ёмкость диска с директорией загрузок.
func logDiskUsage(logger *slog.Logger, est *diskspace.StatfsEstimator, dir string) {
	u, err := est.Usage(dir)
	if err != nil {
		logger.Warn("Оценка свободного места недоступна, проверка места при загрузке отключена",
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("Диск директории загрузок",
		slog.String("total", humanize.IBytes(uint64(u.Total))),
		slog.String("used", humanize.IBytes(uint64(u.Used))),
		slog.String("available", humanize.IBytes(uint64(u.Available))),
	)
}

// Пакет server — HTTP-сервер portfolio-server с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/portfolio/internal/api/handlers"
	"github.com/bigkaa/portfolio/internal/api/middleware"
	"github.com/bigkaa/portfolio/internal/config"
)

// readSlack — запас ReadTimeout сервера поверх бюджета загрузки.
// Handlers загрузки выставляют собственный дедлайн чтения.
const readSlack = 30 * time.Second

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Upload  *handlers.UploadHandler
	Limits  *handlers.LimitsHandler
	Auth    *handlers.AuthHandler
	Content *handlers.ContentHandler
	Media   *handlers.MediaHandler
	Health  *handlers.HealthHandler
}

// Server — HTTP-сервер portfolio-server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// guard закрывает все изменяющие маршруты.
func New(cfg *config.Config, logger *slog.Logger, guard middleware.SessionChecker, h Handlers) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, logger, guard, h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.UploadTimeout + readSlack,
		// Запись ответа не ограничена: отдача видео может длиться
		// дольше бюджета загрузки
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Настройка TLS
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами.
func NewRouter(cfg *config.Config, logger *slog.Logger, guard middleware.SessionChecker, h Handlers) http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware(cfg.UploadURLPrefix))

	// Служебные endpoints
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	// Загруженные файлы
	router.Get(cfg.UploadURLPrefix+"/*", h.Media.ServeFile)

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth", h.Auth.Login)
		r.Delete("/auth", h.Auth.Logout)
		r.Get("/data", h.Content.GetContent)

		// Изменяющие маршруты — только с действующей сессией
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(guard, logger))

			r.Post("/data", h.Content.SaveSection)
			r.Post("/upload", h.Upload.Upload)
			r.Post("/upload/streaming", h.Upload.UploadChunk)
			r.Post("/upload/thumbnail", h.Upload.UploadThumbnail)
			r.Get("/upload/limits", h.Limits.GetLimits)
		})

		r.NotFound(handlers.NotFound)
		r.MethodNotAllowed(handlers.NotFound)
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// PF_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}

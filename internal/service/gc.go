// gc.go — сервис фоновой очистки брошенных загрузок.
//
// GC выполняет две задачи:
//  1. Удаляет директории .chunks/<uploadId>, для которых нет активной
//     сессии и которые не менялись дольше TTL сессии
//  2. Удаляет осиротевшие .part файлы старше TTL (остаются после
//     аварийного завершения процесса посреди записи)
//
// Готовые загруженные файлы GC не трогает.
// Запускается как горутина с периодическим тикером (PF_GC_INTERVAL).
package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pf_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcSessionsRemovedTotal — количество удалённых брошенных chunked-сессий.
	gcSessionsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pf_gc_sessions_removed_total",
		Help: "Общее количество директорий брошенных chunked-загрузок, удалённых GC",
	})

	// gcPartialsRemovedTotal — количество удалённых .part файлов.
	gcPartialsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pf_gc_partials_removed_total",
		Help: "Общее количество незавершённых .part файлов, удалённых GC",
	})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pf_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// SessionsRemoved — количество удалённых директорий чанков
	SessionsRemoved int
	// PartialsRemoved — количество удалённых .part файлов
	PartialsRemoved int
	// Errors — количество ошибок при удалении
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// GCService — сервис фоновой очистки.
type GCService struct {
	store    *filestore.FileStore
	registry *SessionRegistry
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCService создаёт сервис GC. Порог возраста равен TTL сессии.
func NewGCService(
	store *filestore.FileStore,
	registry *SessionRegistry,
	interval time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		store:    store,
		registry: registry,
		interval: interval,
		maxAge:   registry.TTL(),
		logger:   logger.With(slog.String("component", "gc")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
// Вызывается один раз при старте приложения.
func (gc *GCService) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
		slog.String("max_age", gc.maxAge.String()),
	)
}

// Stop останавливает фоновый процесс GC и дожидается его завершения.
func (gc *GCService) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	defer close(gc.done)

	// Первый запуск — сразу после старта: подбирает сессии,
	// потерянные при рестарте
	gc.RunOnce()

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл GC.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (gc *GCService) RunOnce() *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{}
	cutoff := gc.now().Add(-gc.maxAge)

	gc.logger.Debug("GC запуск начат")

	gc.sweepSessions(cutoff, result)
	gc.sweepPartials(cutoff, result)

	// Реестр вытесняет истёкшие сессии сам, gauge выравниваем здесь
	gc.registry.syncGauge()

	result.Duration = time.Since(start)

	gcRunsTotal.Inc()
	gcSessionsRemovedTotal.Add(float64(result.SessionsRemoved))
	gcPartialsRemovedTotal.Add(float64(result.PartialsRemoved))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	gc.logger.Info("GC завершён",
		slog.Int("sessions_removed", result.SessionsRemoved),
		slog.Int("partials_removed", result.PartialsRemoved),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepSessions удаляет брошенные директории .chunks/<uploadId>.
func (gc *GCService) sweepSessions(cutoff time.Time, result *GCResult) {
	chunksRoot := filepath.Join(gc.store.Root(), filestore.ChunksDir)
	entries, err := os.ReadDir(chunksRoot)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			gc.logger.Error("GC: ошибка чтения директории чанков",
				slog.String("dir", chunksRoot),
				slog.String("error", err.Error()),
			)
			result.Errors++
		}
		return
	}

	for _, e := range entries {
		id := e.Name()
		if gc.registry.Active(id) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(chunksRoot, id)); err != nil {
			gc.logger.Error("GC: ошибка удаления директории чанков",
				slog.String("upload_id", id),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		gc.logger.Debug("GC: брошенная chunked-загрузка удалена",
			slog.String("upload_id", id),
		)
		result.SessionsRemoved++
	}
}

// sweepPartials удаляет старые .part файлы вне .chunks.
func (gc *GCService) sweepPartials(cutoff time.Time, result *GCResult) {
	root := gc.store.Root()
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && d.Name() == filestore.ChunksDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), filestore.PartSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			gc.logger.Error("GC: ошибка удаления .part файла",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			result.Errors++
			return nil
		}
		result.PartialsRemoved++
		return nil
	})
}

// registry.go — реестр незавершённых chunked-загрузок.
// Сессии живут только в памяти: ограниченный LRU с TTL, который
// продлевается каждым принятым чанком. После рестарта сессии
// теряются, их директории удаляет GC.
package service

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/portfolio/internal/api/middleware"
	"github.com/bigkaa/portfolio/internal/domain/media"
)

// ChunkSession — состояние одной chunked-загрузки.
type ChunkSession struct {
	ID          string
	FileName    string
	ContentType string
	Class       media.Class
	// Limit — потолок суммарного размера для класса файла
	Limit int64
	Total int
	// Next — индекс следующего ожидаемого чанка
	Next      int
	CreatedAt time.Time

	// mu сериализует чанки одной загрузки
	mu    sync.Mutex
	sizes []int64
	bytes int64
	done  atomic.Bool
	// next дублирует Next для чтения без mu (поиск сессии по полям чанка)
	next atomic.Int64
}

// record учитывает записанный чанк. Повторная отправка заменяет размер.
func (cs *ChunkSession) record(index int, size int64) {
	cs.bytes += size - cs.sizes[index]
	cs.sizes[index] = size
	if index == cs.Next {
		cs.Next++
		cs.next.Store(int64(cs.Next))
	}
}

// projected возвращает суммарный размер, если чанк index будет размера size.
func (cs *ChunkSession) projected(index int, size int64) int64 {
	return cs.bytes - cs.sizes[index] + size
}

// SessionRegistry — реестр chunked-сессий.
type SessionRegistry struct {
	cache  *expirable.LRU[string, *ChunkSession]
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionRegistry создаёт реестр на limit сессий с временем жизни ttl.
// При переполнении вытесняется самая давно активная сессия.
func NewSessionRegistry(limit int, ttl time.Duration, logger *slog.Logger) *SessionRegistry {
	log := logger.With(slog.String("component", "chunk_registry"))
	onEvict := func(id string, sess *ChunkSession) {
		// Вызывается под блокировкой LRU и, при Close, под sess.mu:
		// ни реестр, ни мьютекс сессии здесь трогать нельзя
		if !sess.done.Load() {
			log.Info("Chunked-сессия вытеснена или истекла",
				slog.String("upload_id", id),
				slog.String("file_name", sess.FileName),
				slog.Int("total", sess.Total),
			)
		}
	}
	return &SessionRegistry{
		cache:  expirable.NewLRU[string, *ChunkSession](limit, onEvict, ttl),
		ttl:    ttl,
		logger: log,
	}
}

// TTL возвращает время жизни неактивной сессии.
func (r *SessionRegistry) TTL() time.Duration {
	return r.ttl
}

// Open регистрирует новую сессию.
func (r *SessionRegistry) Open(sess *ChunkSession) {
	sess.sizes = make([]int64, sess.Total)
	r.cache.Add(sess.ID, sess)
	r.syncGauge()
}

// Get возвращает активную сессию.
func (r *SessionRegistry) Get(id string) (*ChunkSession, bool) {
	return r.cache.Get(id)
}

// Find ищет открытую сессию для чанка, пришедшего без uploadId:
// совпадают имя файла и число чанков, а index — ожидаемый чанк
// или повтор последнего принятого. Возвращает сессию и число
// совпадений; сессия определена, только если совпадение одно.
func (r *SessionRegistry) Find(fileName string, total, index int) (*ChunkSession, int) {
	var (
		found   *ChunkSession
		matches int
	)
	for _, sess := range r.cache.Values() {
		if sess.done.Load() || sess.FileName != fileName || sess.Total != total {
			continue
		}
		next := int(sess.next.Load())
		if index != next && index != next-1 {
			continue
		}
		found = sess
		matches++
	}
	if matches != 1 {
		return nil, matches
	}
	return found, 1
}

// Touch продлевает время жизни сессии.
func (r *SessionRegistry) Touch(sess *ChunkSession) {
	r.cache.Add(sess.ID, sess)
}

// Close удаляет сессию из реестра.
func (r *SessionRegistry) Close(id string) {
	r.cache.Remove(id)
	r.syncGauge()
}

// Active сообщает, что сессия id существует и не истекла.
func (r *SessionRegistry) Active(id string) bool {
	_, ok := r.cache.Peek(id)
	return ok
}

// Len возвращает количество сессий в реестре.
func (r *SessionRegistry) Len() int {
	return r.cache.Len()
}

func (r *SessionRegistry) syncGauge() {
	middleware.ChunkSessionsActive.Set(float64(r.cache.Len()))
}

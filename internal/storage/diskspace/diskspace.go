// Пакет diskspace — оценка свободного места рядом с директорией загрузок.
// Оценка может быть недоступна на платформах без statfs.
package diskspace

import "errors"

// ErrUnavailable — оценка свободного места на этой платформе недоступна.
var ErrUnavailable = errors.New("оценка свободного места недоступна")

// Estimator оценивает свободное место в байтах на файловой системе,
// содержащей path.
type Estimator interface {
	FreeBytes(path string) (int64, error)
}

// Usage — ёмкость файловой системы в байтах.
type Usage struct {
	Total     int64
	Used      int64
	Available int64
}

// New возвращает платформенный estimator.
func New() *StatfsEstimator {
	return &StatfsEstimator{}
}

// StatfsEstimator — estimator на основе statfs(2).
type StatfsEstimator struct{}

// FreeBytes возвращает место, доступное непривилегированному процессу.
func (e *StatfsEstimator) FreeBytes(path string) (int64, error) {
	u, err := e.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.Available, nil
}

// Fixed возвращает estimator, всегда сообщающий n свободных байт.
func Fixed(n int64) Estimator {
	return fixed(n)
}

type fixed int64

func (f fixed) FreeBytes(string) (int64, error) { return int64(f), nil }

// Unavailable возвращает estimator, для которого оценка всегда недоступна.
func Unavailable() Estimator {
	return unavailable{}
}

type unavailable struct{}

func (unavailable) FreeBytes(string) (int64, error) { return 0, ErrUnavailable }

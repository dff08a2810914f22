// Пакет filestore — операции с загруженными файлами на диске.
// Обеспечивает безопасное разрешение путей под корнем загрузок,
// генерацию уникальных имён и chunked-запись с rename-on-completion.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PartSuffix — суффикс незавершённого файла. Финальное имя появляется
// только после flush + fsync + close.
const PartSuffix = ".part"

// ChunksDir — служебная директория для chunked-загрузок под корнем.
const ChunksDir = ".chunks"

// maxNameLen — максимальная длина санитизированного имени в байтах.
const maxNameLen = 100

// ErrUnsafePath — путь выходит за пределы корня загрузок.
var ErrUnsafePath = errors.New("небезопасный путь")

// FileStore — управление загруженными файлами под корневой директорией.
type FileStore struct {
	// root — абсолютный путь корня загрузок (PF_UPLOAD_DIR)
	root string
	// urlPrefix — публичный URL-префикс (PF_UPLOAD_URL_PREFIX)
	urlPrefix string
	// now — источник времени для генерации имён
	now func() time.Time
}

// New создаёт новый FileStore. Создаёт корневую директорию
// если она не существует.
func New(root, urlPrefix string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь корня загрузок %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", abs, err)
	}

	return &FileStore{
		root:      abs,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		now:       time.Now,
	}, nil
}

// SetClock подменяет источник времени (для тестов).
func (s *FileStore) SetClock(now func() time.Time) {
	s.now = now
}

// Root возвращает абсолютный путь корня загрузок.
func (s *FileStore) Root() string {
	return s.root
}

// Resolve преобразует относительный путь (со слэшами) в абсолютный путь
// под корнем. Абсолютные пути, ".." и выход за корень отклоняются.
// Пустой путь и "." означают сам корень.
func (s *FileStore) Resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return s.root, nil
	}
	if strings.ContainsRune(rel, 0) || strings.Contains(rel, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}
	if path.IsAbs(rel) {
		return "", fmt.Errorf("%w: абсолютный путь %q", ErrUnsafePath, rel)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
		}
	}

	local := filepath.FromSlash(path.Clean(rel))
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}

	full := filepath.Join(s.root, local)
	// Контрольная проверка после Join
	if r, err := filepath.Rel(s.root, full); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}
	return full, nil
}

// EnsureDir создаёт поддиректорию под корнем (если отсутствует)
// и возвращает её абсолютный путь.
func (s *FileStore) EnsureDir(sub string) (string, error) {
	dir, err := s.Resolve(sub)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}
	return dir, nil
}

// GenerateName генерирует уникальное имя файла.
// Формат: {prefix}-{unixMillis}-{12 hex}-{sanitized}
// Пример: upload-1760000000000-3f9a1c0b7d2e-my_photo.jpg
//
// Уникальность при одинаковом времени обеспечивает случайный суффикс.
func (s *FileStore) GenerateName(prefix, originalFilename string) string {
	if prefix == "" {
		prefix = "upload"
	}
	ts := s.now().UnixMilli()
	uid := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s-%s", prefix, ts, uid, SanitizeName(originalFilename))
}

// PublicURL возвращает публичный URL файла по относительному пути.
func (s *FileStore) PublicURL(rel string) string {
	return s.urlPrefix + "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// Open открывает файл по относительному пути для чтения.
// Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(rel string) (*os.File, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", rel, err)
	}
	return f, nil
}

// Discard удаляет файл (обычно незавершённый .part).
// Возвращает nil если файл уже не существует.
func (s *FileStore) Discard(fullPath string) error {
	if fullPath == "" {
		return nil
	}
	err := os.Remove(fullPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", fullPath, err)
	}
	return nil
}

// SanitizeName убирает небезопасные символы из исходного имени файла.
// Берётся только базовое имя; символы вне [A-Za-z0-9.-] заменяются на '_';
// ведущие точки удаляются; длина ограничена с сохранением расширения.
func SanitizeName(name string) string {
	// Базовое имя с учётом обоих разделителей (имена из браузеров Windows)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	result := strings.TrimLeft(b.String(), ".")
	if result == "" {
		return "file"
	}
	// Суффикс .part зарезервирован за незавершёнными файлами
	if strings.HasSuffix(result, PartSuffix) {
		result += "_"
	}

	if len(result) > maxNameLen {
		ext := filepath.Ext(result)
		if len(ext) > 16 {
			ext = ""
		}
		result = result[:maxNameLen-len(ext)] + ext
	}
	return result
}

// Пакет content — хранилище контента портфолио в одном JSON-файле.
// Документ читается и записывается целиком; конкурентные сохранения
// не координируются, побеждает последний писатель.
// Запись атомарна: temp → fsync → rename.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/portfolio/internal/domain/model"
)

var (
	// ErrUnknownSection — имя секции не входит в документ.
	ErrUnknownSection = errors.New("неизвестная секция")
	// ErrInvalidSection — данные секции не соответствуют её структуре.
	ErrInvalidSection = errors.New("некорректные данные секции")
)

// Store — файловое хранилище документа портфолио.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Store для файла path. Файл создаётся при первом Load.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With(slog.String("component", "content_store")),
		now:    time.Now,
	}
}

// Path возвращает путь к файлу документа.
func (s *Store) Path() string {
	return s.path
}

// Load читает документ. Отсутствующий файл создаётся с содержимым
// по умолчанию. Проекты без категории мигрируются и документ
// сохраняется. Повреждённый JSON возвращается как ошибка, файл
// не перезаписывается.
func (s *Store) Load(ctx context.Context) (*model.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("Файл данных не найден, создаётся документ по умолчанию",
			slog.String("path", s.path),
		)
		doc := model.DefaultPortfolio(s.now())
		if err := s.Save(ctx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", s.path, err)
	}

	var doc model.Portfolio
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ошибка десериализации %s: %w", s.path, err)
	}
	doc.Normalize()

	if doc.MigrateProjectCategories() {
		s.logger.Info("Проектам без категории назначена категория по умолчанию",
			slog.String("category", model.DefaultProjectCategory),
		)
		if err := s.Save(ctx, &doc); err != nil {
			// Миграция будет повторена при следующем чтении
			s.logger.Warn("Не удалось сохранить миграцию категорий",
				slog.String("error", err.Error()),
			)
		}
	}

	return &doc, nil
}

// Save атомарно записывает документ целиком.
func (s *Store) Save(ctx context.Context, doc *model.Portfolio) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации документа: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// CreateTemp создаёт файл с правами 0600
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка установки прав: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// ReplaceSection заменяет одну секцию документа: чтение всего документа,
// замена секции, запись всего документа. Блокировок нет.
func (s *Store) ReplaceSection(ctx context.Context, section string, raw json.RawMessage) error {
	if !model.IsSection(section) {
		return fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		return err
	}

	// Секция декодируется в нулевое значение: поля старых элементов не наследуются
	var target any
	switch section {
	case model.SectionSettings:
		doc.Settings = model.SiteSettings{}
		target = &doc.Settings
	case model.SectionSkills:
		doc.Skills = nil
		target = &doc.Skills
	case model.SectionTools:
		doc.Tools = nil
		target = &doc.Tools
	case model.SectionProjects:
		doc.Projects = nil
		target = &doc.Projects
	case model.SectionLanguages:
		doc.Languages = nil
		target = &doc.Languages
	case model.SectionExperience:
		doc.Experience = nil
		target = &doc.Experience
	case model.SectionSections:
		doc.Sections = nil
		target = &doc.Sections
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSection, section, err)
	}
	doc.Normalize()
	if section == model.SectionProjects {
		doc.MigrateProjectCategories()
	}

	if err := s.Save(ctx, doc); err != nil {
		return err
	}

	s.logger.Info("Секция сохранена",
		slog.String("section", section),
		slog.Int("bytes", len(raw)),
	)
	return nil
}

package content

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/portfolio/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "nested", "data.json"), testLogger())
}

// TestLoad_CreatesDefaults проверяет создание документа по умолчанию.
func TestLoad_CreatesDefaults(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("ошибка Load: %v", err)
	}
	if doc.Settings.Name != "Bala Murugan S" {
		t.Errorf("Settings.Name = %q", doc.Settings.Name)
	}
	if doc.Projects == nil || len(doc.Projects) != 0 {
		t.Errorf("Projects должен быть пустым массивом, получено %v", doc.Projects)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("файл не создан: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	for _, key := range model.Sections {
		if _, ok := raw[key]; !ok {
			t.Errorf("в документе нет ключа %q", key)
		}
	}
	if string(raw["skills"]) != "[]" {
		t.Errorf("skills = %s, ожидалось []", raw["skills"])
	}
}

// TestLoad_MigratesProjectCategory проверяет миграцию проектов без категории.
func TestLoad_MigratesProjectCategory(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	legacy := `{"settings":{"id":"1","name":"X","title":"Y"},
		"projects":[{"id":"p1","title":"Reel"},{"id":"p2","title":"Logo","category":"Design"}]}`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("ошибка Load: %v", err)
	}
	if doc.Projects[0].Category != model.DefaultProjectCategory {
		t.Errorf("категория p1 = %q, ожидалось %q", doc.Projects[0].Category, model.DefaultProjectCategory)
	}
	if doc.Projects[1].Category != "Design" {
		t.Errorf("категория p2 изменена: %q", doc.Projects[1].Category)
	}

	// Миграция сохранена на диск
	reloaded := New(s.Path(), testLogger())
	data, _ := os.ReadFile(reloaded.Path())
	var persisted model.Portfolio
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("невалидный JSON после миграции: %v", err)
	}
	if persisted.Projects[0].Category != model.DefaultProjectCategory {
		t.Error("миграция не сохранена на диск")
	}
}

// TestLoad_CorruptFile проверяет, что повреждённый файл не перезаписывается.
func TestLoad_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	os.MkdirAll(filepath.Dir(s.Path()), 0o755)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("ожидалась ошибка для повреждённого файла")
	}
	data, _ := os.ReadFile(s.Path())
	if string(data) != "{not json" {
		t.Error("повреждённый файл не должен перезаписываться")
	}
}

// TestReplaceSection проверяет замену секции с сохранением остальных.
func TestReplaceSection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skills := json.RawMessage(`[{"id":"s1","name":"Premiere Pro","category":"Editing","proficiency":90,"sort_order":1}]`)
	if err := s.ReplaceSection(ctx, model.SectionSkills, skills); err != nil {
		t.Fatalf("ошибка ReplaceSection: %v", err)
	}
	settings := json.RawMessage(`{"id":"1","name":"New Name","title":"Editor"}`)
	if err := s.ReplaceSection(ctx, model.SectionSettings, settings); err != nil {
		t.Fatalf("ошибка ReplaceSection: %v", err)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("ошибка Load: %v", err)
	}
	if len(doc.Skills) != 1 || doc.Skills[0].Name != "Premiere Pro" {
		t.Errorf("skills = %+v", doc.Skills)
	}
	if doc.Settings.Name != "New Name" {
		t.Errorf("settings.name = %q", doc.Settings.Name)
	}
	// Поля, отсутствующие в новой секции, не наследуются от старой
	if doc.Settings.Bio != nil {
		t.Errorf("settings.bio должен быть null, получено %q", *doc.Settings.Bio)
	}
}

// TestReplaceSection_DropsStaleProjectFields проверяет, что повторное
// сохранение проекта без полей локального видео их удаляет.
func TestReplaceSection_DropsStaleProjectFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	local := json.RawMessage(`[{"id":"p1","title":"Reel","category":"Video Editing",` +
		`"video_url":"/uploads/a.mp4","video_type":"local","video_local_path":"/uploads/a.mp4"},` +
		`{"id":"p2","title":"Promo","category":"Video Editing"}]`)
	if err := s.ReplaceSection(ctx, model.SectionProjects, local); err != nil {
		t.Fatalf("ошибка ReplaceSection: %v", err)
	}

	link := json.RawMessage(`[{"id":"p1","title":"Reel","category":"Video Editing","link":"https://example.com/reel"}]`)
	if err := s.ReplaceSection(ctx, model.SectionProjects, link); err != nil {
		t.Fatalf("ошибка ReplaceSection: %v", err)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("ошибка Load: %v", err)
	}
	if len(doc.Projects) != 1 {
		t.Fatalf("проектов: ожидалось 1, получено %d", len(doc.Projects))
	}
	p := doc.Projects[0]
	if p.VideoType != "" {
		t.Errorf("video_type должен быть пустым, получено %q", p.VideoType)
	}
	if p.VideoLocalPath != nil {
		t.Errorf("video_local_path должен отсутствовать, получено %q", *p.VideoLocalPath)
	}
	if p.VideoURL != nil {
		t.Errorf("video_url должен быть null, получено %q", *p.VideoURL)
	}
	if p.Link == nil || *p.Link != "https://example.com/reel" {
		t.Errorf("link = %v", p.Link)
	}
}

// TestReplaceSection_Errors проверяет ошибки валидации.
func TestReplaceSection_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceSection(ctx, "secrets", json.RawMessage(`[]`)); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("ожидалась ErrUnknownSection, получено %v", err)
	}
	if err := s.ReplaceSection(ctx, model.SectionSkills, json.RawMessage(`{"id":1}`)); !errors.Is(err, ErrInvalidSection) {
		t.Errorf("ожидалась ErrInvalidSection, получено %v", err)
	}
}

// TestSave_NoTempFilesLeft проверяет отсутствие временных файлов после записи.
func TestSave_NoTempFilesLeft(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(context.Background(), model.DefaultPortfolio(s.now())); err != nil {
		t.Fatalf("ошибка Save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "data.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("ожидался только data.json, получено %v", names)
	}
}

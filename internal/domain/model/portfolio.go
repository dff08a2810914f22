// Пакет model — доменные модели портфолио.
// Portfolio — единый JSON-документ с контентом сайта, читается и
// записывается целиком. Загруженные файлы хранятся вне документа
// и упоминаются в нём относительными URL.
package model

import (
	"slices"
	"time"
)

// Имена секций документа.
const (
	SectionSettings   = "settings"
	SectionSkills     = "skills"
	SectionTools      = "tools"
	SectionProjects   = "projects"
	SectionLanguages  = "languages"
	SectionExperience = "experience"
	SectionSections   = "sections"
)

// Sections — все допустимые имена секций.
var Sections = []string{
	SectionSettings,
	SectionSkills,
	SectionTools,
	SectionProjects,
	SectionLanguages,
	SectionExperience,
	SectionSections,
}

// IsSection проверяет, что name — допустимое имя секции.
func IsSection(name string) bool {
	return slices.Contains(Sections, name)
}

// DefaultProjectCategory — категория проектов, созданных до появления поля.
const DefaultProjectCategory = "Video Editing"

// Portfolio — корневой документ.
type Portfolio struct {
	Settings   SiteSettings     `json:"settings"`
	Skills     []Skill          `json:"skills"`
	Tools      []Tool           `json:"tools"`
	Projects   []Project        `json:"projects"`
	Languages  []Language       `json:"languages"`
	Experience []WorkExperience `json:"experience"`
	Sections   []ContentSection `json:"sections"`
}

// SiteSettings — профиль владельца сайта.
type SiteSettings struct {
	ID              string  `json:"id"`
	ProfileImageURL *string `json:"profile_image_url"`
	Name            string  `json:"name"`
	Title           string  `json:"title"`
	Bio             *string `json:"bio"`
	Phone           *string `json:"phone"`
	Email           *string `json:"email"`
	Address         *string `json:"address"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type Skill struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Proficiency int     `json:"proficiency"`
	IconURL     *string `json:"icon_url"`
	Description *string `json:"description"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type Tool struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Proficiency int     `json:"proficiency"`
	Level       string  `json:"level"`
	IconURL     *string `json:"icon_url"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Project — работа в портфолио. VideoType: "file" (загруженный файл)
// или "embed" (внешняя ссылка).
type Project struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    *string `json:"description"`
	Category       string  `json:"category"`
	ThumbnailURL   *string `json:"thumbnail_url"`
	VideoURL       *string `json:"video_url"`
	VideoType      string  `json:"video_type,omitempty"`
	VideoLocalPath *string `json:"video_local_path,omitempty"`
	Link           *string `json:"link"`
	Featured       bool    `json:"featured"`
	SortOrder      int     `json:"sort_order"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type Language struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Level     string `json:"level"`
	SortOrder int    `json:"sort_order"`
	CreatedAt string `json:"created_at"`
}

type WorkExperience struct {
	ID          string  `json:"id"`
	Company     string  `json:"company"`
	Role        string  `json:"role"`
	Description *string `json:"description"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	IsCurrent   bool    `json:"is_current"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ContentField — поле пользовательской секции.
// Type: text, textarea, image, video, number.
type ContentField struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ContentSection — пользовательская секция (camelCase, как в редакторе).
type ContentSection struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Fields      []ContentField `json:"fields"`
	IsExpanded  *bool          `json:"isExpanded,omitempty"`
	IsVisible   bool           `json:"isVisible"`
	SortOrder   int            `json:"sortOrder"`
}

// DefaultPortfolio возвращает документ по умолчанию для первого запуска.
func DefaultPortfolio(now time.Time) *Portfolio {
	ts := now.UTC().Format(time.RFC3339Nano)
	empty := ""
	return &Portfolio{
		Settings: SiteSettings{
			ID:        "1",
			Name:      "Bala Murugan S",
			Title:     "Video Editor & Graphic Designer",
			Bio:       &empty,
			Phone:     &empty,
			Email:     &empty,
			Address:   &empty,
			CreatedAt: ts,
			UpdatedAt: ts,
		},
		Skills:     []Skill{},
		Tools:      []Tool{},
		Projects:   []Project{},
		Languages:  []Language{},
		Experience: []WorkExperience{},
		Sections:   []ContentSection{},
	}
}

// MigrateProjectCategories проставляет категорию по умолчанию проектам
// без категории. Возвращает true, если документ изменился.
func (p *Portfolio) MigrateProjectCategories() bool {
	changed := false
	for i := range p.Projects {
		if p.Projects[i].Category == "" {
			p.Projects[i].Category = DefaultProjectCategory
			changed = true
		}
	}
	return changed
}

// Normalize заменяет отсутствующие массивы пустыми, чтобы в JSON
// они сериализовались как [], а не null.
func (p *Portfolio) Normalize() {
	if p.Skills == nil {
		p.Skills = []Skill{}
	}
	if p.Tools == nil {
		p.Tools = []Tool{}
	}
	if p.Projects == nil {
		p.Projects = []Project{}
	}
	if p.Languages == nil {
		p.Languages = []Language{}
	}
	if p.Experience == nil {
		p.Experience = []WorkExperience{}
	}
	if p.Sections == nil {
		p.Sections = []ContentSection{}
	}
}

// Пакет screens — декларативное описание экранов консоли: коллекция,
// поля поиска и фильтров, сортировка, справочники, экспорт. Описания
// загружаются из YAML (встроенный screens.yaml или внешний файл).
package screens

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/domain/value"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
	"github.com/bigkaa/siteadmin/internal/domain/xref"
)

//go:embed screens.yaml
var defaultYAML []byte

// DefaultStatusField — поле статуса, если не задано.
const DefaultStatusField = "status"

// Reference — справочник, подтягиваемый к записям экрана.
type Reference struct {
	// Поле внешнего ключа в записи экрана.
	Field string `yaml:"field"`
	// Справочная коллекция.
	Collection string `yaml:"collection"`
	// Ограничения на справочник (например, только активные).
	Base map[string]string `yaml:"base"`
	// Префикс денормализованных полей: category → category_name, category_url.
	As string `yaml:"as"`
	// Поле для родителя (state_name у города).
	ParentAs string      `yaml:"parent_as"`
	Source   xref.Source `yaml:"source"`
}

// NameField — имя денормализованного поля с названием.
func (r Reference) NameField() string { return r.As + "_name" }

// URLField — имя денормализованного поля со slug.
func (r Reference) URLField() string { return r.As + "_url" }

// Column — колонка CSV-экспорта. Fields склеиваются через пробел
// (код страны и номер телефона), из Fallback берётся первое непустое.
type Column struct {
	Header   string   `yaml:"header"`
	Field    string   `yaml:"field"`
	Fields   []string `yaml:"fields"`
	Fallback []string `yaml:"fallback"`
	// Date — выводить как дату в UTC (02 Jan 2006, 03:04 pm).
	Date bool `yaml:"date"`
}

// Export — настройки CSV-экспорта экрана.
type Export struct {
	FilePrefix string   `yaml:"file_prefix"`
	Columns    []Column `yaml:"columns"`
}

// Screen — описание одного экрана.
type Screen struct {
	Name         string            `yaml:"-"`
	Title        string            `yaml:"title"`
	Collection   string            `yaml:"collection"`
	Base         map[string]string `yaml:"base"`
	SearchFields []string          `yaml:"search_fields"`
	Filters      []string          `yaml:"filters"`
	DateField    string            `yaml:"date_field"`
	DateKeys     []string          `yaml:"date_keys"`
	SortKeys     []string          `yaml:"sort_keys"`
	DefaultSort  string            `yaml:"default_sort"`
	DefaultDir   string            `yaml:"default_dir"`
	PageSize     int               `yaml:"page_size"`
	StatusField  string            `yaml:"status_field"`
	StatusKind   workflow.Kind     `yaml:"status_kind"`
	// StatusDefault подставляется при чтении записи без статуса;
	// по умолчанию — начальный статус машины StatusKind.
	StatusDefault string `yaml:"status_default"`
	Facets       []string          `yaml:"facets"`
	LinkField    string            `yaml:"link_field"`
	HiddenFields []string          `yaml:"hidden_fields"`
	References   []Reference       `yaml:"references"`
	Export       *Export           `yaml:"export"`
}

// Schema возвращает схему для движка фильтрации.
func (s *Screen) Schema() listing.Schema {
	return listing.Schema{
		SearchFields: s.SearchFields,
		DateField:    s.DateField,
		DateKeys:     s.DateKeys,
	}
}

// HasFilter проверяет, объявлен ли фильтр равенства по полю.
func (s *Screen) HasFilter(field string) bool {
	return slices.Contains(s.Filters, field)
}

// HasSortKey проверяет, разрешена ли сортировка по ключу.
func (s *Screen) HasSortKey(key string) bool {
	return slices.Contains(s.SortKeys, key)
}

// IsDerived сообщает, что поле вычисляется при денормализации
// и не может быть передано в хранилище как фильтр.
func (s *Screen) IsDerived(field string) bool {
	if field == s.LinkField && field != "" {
		return true
	}
	for _, r := range s.References {
		if field == r.NameField() || field == r.URLField() || (r.ParentAs != "" && field == r.ParentAs) {
			return true
		}
	}
	return false
}

// StatusValue возвращает статус записи с учётом StatusDefault.
func (s *Screen) StatusValue(v any) any {
	if s.StatusDefault != "" && value.String(v) == "" {
		return s.StatusDefault
	}
	return v
}

// Registry — набор экранов по имени.
type Registry struct {
	screens map[string]*Screen
}

// Default загружает встроенные описания экранов.
func Default() (*Registry, error) {
	return Parse(defaultYAML)
}

// LoadFile загружает описания из файла.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение описаний экранов: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML и проверяет описания.
func Parse(data []byte) (*Registry, error) {
	raw := make(map[string]*Screen)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("разбор описаний экранов: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("описания экранов пусты")
	}
	for name, s := range raw {
		if s == nil {
			return nil, fmt.Errorf("экран %q: пустое описание", name)
		}
		s.Name = name
		if err := s.normalize(); err != nil {
			return nil, fmt.Errorf("экран %q: %w", name, err)
		}
	}
	return &Registry{screens: raw}, nil
}

func (s *Screen) normalize() error {
	if s.Collection == "" {
		return fmt.Errorf("не задана коллекция")
	}
	if s.StatusField == "" {
		s.StatusField = DefaultStatusField
	}
	if s.PageSize < 0 {
		return fmt.Errorf("отрицательный page_size")
	}
	if s.DefaultSort != "" && !s.HasSortKey(s.DefaultSort) {
		return fmt.Errorf("default_sort %q отсутствует в sort_keys", s.DefaultSort)
	}
	if s.DefaultDir == "" {
		s.DefaultDir = string(listing.Asc)
	}
	if s.DefaultDir != string(listing.Asc) && s.DefaultDir != string(listing.Desc) {
		return fmt.Errorf("default_dir %q: допустимые asc, desc", s.DefaultDir)
	}
	if s.StatusKind != "" {
		m, err := workflow.For(s.StatusKind)
		if err != nil {
			return err
		}
		if s.StatusDefault == "" {
			s.StatusDefault = m.Initial()
		} else if !m.IsValid(s.StatusDefault) {
			return fmt.Errorf("status_default %q не входит в статусы %s", s.StatusDefault, s.StatusKind)
		}
	} else if s.StatusDefault != "" {
		return fmt.Errorf("status_default без status_kind")
	}
	for i, r := range s.References {
		if r.Field == "" || r.Collection == "" || r.As == "" {
			return fmt.Errorf("справочник #%d: обязательны field, collection, as", i)
		}
	}
	if s.Export != nil {
		if len(s.Export.Columns) == 0 {
			return fmt.Errorf("экспорт без колонок")
		}
		for i, c := range s.Export.Columns {
			if c.Field == "" && len(c.Fields) == 0 && len(c.Fallback) == 0 {
				return fmt.Errorf("колонка экспорта #%d: не задано поле", i)
			}
			if c.Field != "" {
				s.Export.Columns[i].Fields = []string{c.Field}
			}
		}
	}
	return nil
}

// Get возвращает экран по имени.
func (r *Registry) Get(name string) (*Screen, bool) {
	s, ok := r.screens[name]
	return s, ok
}

// ByCollection возвращает экран, работающий с коллекцией.
func (r *Registry) ByCollection(collection string) (*Screen, bool) {
	for _, name := range r.Names() {
		if s := r.screens[name]; s.Collection == collection {
			return s, true
		}
	}
	return nil, false
}

// Names возвращает имена экранов по алфавиту.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.screens))
	for name := range r.screens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

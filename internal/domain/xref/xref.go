// Пакет xref — разрешение ссылок между коллекциями (страница → категория,
// страница → город → штат). Ключи приводятся к строке: одна коллекция может
// хранить ID числом, другая — строкой, совпадение от типа не зависит.
package xref

import (
	"fmt"
	"strings"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/value"
)

// NotAvailable — отображаемое значение отсутствующего родителя.
const NotAvailable = "N/A"

// Entry — отображаемые данные связанной записи.
type Entry struct {
	// Имя для отображения.
	Name string `json:"name"`
	// Фрагмент URL (slug), может быть пустым.
	URL string `json:"url"`
	// Ключ родителя (для города — название штата).
	Parent string `json:"parent"`
}

// Source описывает, какие поля справочной коллекции что означают.
type Source struct {
	// Подпись для текста-заглушки: "Category" → "Category ID: 7".
	Label string `yaml:"label"`
	// Поле ключа (по умолчанию "id"; без поля — ID документа).
	KeyField string `yaml:"key_field"`
	// Поля имени в порядке приоритета.
	NameFields []string `yaml:"name_fields"`
	// Поле slug для построения URL.
	URLField string `yaml:"url_field"`
	// Поле родителя.
	ParentField string `yaml:"parent_field"`
}

// Map — справочник, построенный один раз на цикл отображения.
type Map struct {
	label   string
	entries map[string]Entry
	// Порядок ключей как в исходной коллекции.
	keys []string
}

// Build строит справочник из записей справочной коллекции.
// При повторяющемся ключе побеждает первая запись.
func Build(records []docstore.Record, src Source) *Map {
	keyField := src.KeyField
	if keyField == "" {
		keyField = "id"
	}
	m := &Map{label: src.Label, entries: make(map[string]Entry, len(records))}
	for _, r := range records {
		key := r.String(keyField)
		if key == "" {
			continue
		}
		if _, dup := m.entries[key]; dup {
			continue
		}
		e := Entry{URL: r.String(src.URLField)}
		for _, f := range src.NameFields {
			if name := r.String(f); name != "" {
				e.Name = name
				break
			}
		}
		if src.ParentField != "" {
			e.Parent = r.String(src.ParentField)
		}
		m.entries[key] = e
		m.keys = append(m.keys, key)
	}
	return m
}

// Len возвращает количество записей справочника.
func (m *Map) Len() int { return len(m.entries) }

// Lookup ищет запись по ключу любого типа.
func (m *Map) Lookup(key any) (Entry, bool) {
	e, ok := m.entries[value.String(key)]
	return e, ok
}

// Resolve возвращает запись по ключу; при промахе — заглушку
// "<Label> ID: <key>" с пустым URL и родителем N/A. Строку не теряем никогда.
// Найденная запись без имени тоже получает имя-заглушку.
func (m *Map) Resolve(key any) Entry {
	raw := value.String(key)
	fallback := fmt.Sprintf("%s ID: %s", m.label, raw)

	e, ok := m.entries[raw]
	if !ok {
		return Entry{Name: fallback, Parent: NotAvailable}
	}
	if e.Name == "" {
		e.Name = fallback
	}
	if e.Parent == "" {
		e.Parent = NotAvailable
	}
	return e
}

// KeysWhere возвращает ключи записей, удовлетворяющих условию,
// например ID всех городов штата.
func (m *Map) KeysWhere(pred func(Entry) bool) []string {
	var out []string
	for _, k := range m.keys {
		if pred(m.entries[k]) {
			out = append(out, k)
		}
	}
	return out
}

// Parents возвращает уникальные непустые значения родителя в порядке появления.
func (m *Map) Parents() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range m.keys {
		p := m.entries[k].Parent
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ComposeURL строит публичный URL страницы из slug города и категории:
// оба — /{city}/{category}; один — /{он}; ни одного — собственный
// page_url записи или "#".
func ComposeURL(citySlug, categorySlug, pageURL string) string {
	citySlug = strings.Trim(citySlug, "/")
	categorySlug = strings.Trim(categorySlug, "/")
	switch {
	case citySlug != "" && categorySlug != "":
		return "/" + citySlug + "/" + categorySlug
	case categorySlug != "":
		return "/" + categorySlug
	case citySlug != "":
		return "/" + citySlug
	case pageURL != "":
		return pageURL
	default:
		return "#"
	}
}

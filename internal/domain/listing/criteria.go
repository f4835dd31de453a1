// Пакет listing — фильтрация, поиск, сортировка и постраничный вывод
// слабо типизированных документов. Все функции чистые: входной срез
// не изменяется, результат — новый срез.
package listing

import (
	"strings"
	"time"
)

// All — значение фильтра равенства, снимающее ограничение.
const All = "all"

// Direction — направление сортировки.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection разбирает направление; всё, кроме "desc", — по возрастанию.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// DateRange — диапазон дат. Ограничивает выборку, только если заданы
// обе границы. End включается целиком, до 23:59:59.999 своих календарных суток.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero сообщает, что диапазон ничего не ограничивает.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() || r.End.IsZero()
}

// Contains проверяет попадание t в диапазон.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	return !t.Before(r.Start) && !t.After(EndOfDay(r.End))
}

// EndOfDay возвращает 23:59:59.999 календарного дня t в его часовом поясе.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// Criteria — условия выборки списка.
type Criteria struct {
	// Поисковая строка, регистр не учитывается.
	Search string
	// Фильтры равенства: поле → значение; "all" и "" не ограничивают.
	Equality map[string]string
	// Диапазон по полю даты схемы.
	Range DateRange
	// Ключ сортировки; пустой — порядок источника.
	SortKey string
	SortDir Direction
}

// Schema описывает, как экран трактует поля документа.
type Schema struct {
	// Поля, по которым идёт поиск (могут включать денормализованные имена).
	SearchFields []string
	// Поле даты для фильтра по диапазону.
	DateField string
	// Ключи сортировки, сравниваемые как метки времени.
	DateKeys []string
}

func (s Schema) isDateKey(key string) bool {
	if key == s.DateField && key != "" {
		return true
	}
	for _, k := range s.DateKeys {
		if k == key {
			return true
		}
	}
	return false
}

// activeEquality возвращает только ограничивающие фильтры равенства.
func (c Criteria) activeEquality() map[string]string {
	out := make(map[string]string, len(c.Equality))
	for field, v := range c.Equality {
		if v == "" || v == All {
			continue
		}
		out[field] = v
	}
	return out
}

// Equal сравнивает критерии по смыслу (для сброса страницы при изменении).
func (c Criteria) Equal(o Criteria) bool {
	if strings.TrimSpace(c.Search) != strings.TrimSpace(o.Search) ||
		c.SortKey != o.SortKey || c.SortDir != o.SortDir ||
		!c.Range.Start.Equal(o.Range.Start) || !c.Range.End.Equal(o.Range.End) {
		return false
	}
	a, b := c.activeEquality(), o.activeEquality()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

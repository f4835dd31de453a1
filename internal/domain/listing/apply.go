package listing

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/value"
)

// Apply применяет критерии к записям в фиксированном порядке:
// равенство → диапазон дат → поиск → стабильная сортировка.
// Повторное применение тех же критериев результат не меняет.
func Apply(records []docstore.Record, c Criteria, s Schema) []docstore.Record {
	eq := c.activeEquality()
	term := strings.ToLower(strings.TrimSpace(c.Search))
	useRange := !c.Range.IsZero() && s.DateField != ""

	out := make([]docstore.Record, 0, len(records))
	for _, r := range records {
		if !matchEquality(r, eq) {
			continue
		}
		if useRange {
			t, ok := value.Time(r.Get(s.DateField))
			if !ok || !c.Range.Contains(t) {
				continue
			}
		}
		if term != "" && !matchSearch(r, term, s.SearchFields) {
			continue
		}
		out = append(out, r)
	}

	if c.SortKey != "" {
		sortRecords(out, c.SortKey, c.SortDir, s.isDateKey(c.SortKey))
	}
	return out
}

func matchEquality(r docstore.Record, eq map[string]string) bool {
	for field, want := range eq {
		if r.String(field) != want {
			return false
		}
	}
	return true
}

func matchSearch(r docstore.Record, term string, fields []string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(r.String(f)), term) {
			return true
		}
	}
	return false
}

// sortRecords сортирует на месте; при равенстве сохраняется исходный порядок.
func sortRecords(records []docstore.Record, key string, dir Direction, dateKey bool) {
	compare := func(a, b docstore.Record) int {
		if dateKey {
			return compareTime(a.Get(key), b.Get(key))
		}
		return cmp.Compare(a.String(key), b.String(key))
	}
	if dir == Desc {
		slices.SortStableFunc(records, func(a, b docstore.Record) int { return compare(b, a) })
		return
	}
	slices.SortStableFunc(records, compare)
}

// compareTime сравнивает значения как метки времени; неразобранное значение —
// нулевое время, такие записи идут первыми по возрастанию.
func compareTime(a, b any) int {
	ta, _ := value.Time(a)
	tb, _ := value.Time(b)
	return ta.Compare(tb)
}

// Facet возвращает отсортированные уникальные непустые значения поля,
// например список штатов для выпадающего фильтра.
func Facet(records []docstore.Record, field string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := r.String(field)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// ParseRange разбирает границы диапазона из строк вида 2006-01-02
// (или любых форматов, понятных value.Time). Пустая строка — открытая граница.
func ParseRange(start, end string) (DateRange, error) {
	var r DateRange
	if start != "" {
		t, ok := value.Time(start)
		if !ok {
			return DateRange{}, fmt.Errorf("некорректная дата начала: %q", start)
		}
		r.Start = dayStart(t)
	}
	if end != "" {
		t, ok := value.Time(end)
		if !ok {
			return DateRange{}, fmt.Errorf("некорректная дата окончания: %q", end)
		}
		r.End = t
	}
	return r, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Пакет value — приведение слабо типизированных значений полей документа
// к строке и ко времени. Документы приходят из разных бэкендов: одно и то же
// поле может быть числом, строкой, временем или отсутствовать вовсе.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// String приводит значение к строке. nil даёт пустую строку.
// Числа без дробной части печатаются как целые: 42 и "42" равны.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case json.Number:
		return x.String()
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Форматы строковых дат, встречающиеся в документах.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time приводит значение ко времени. Понимает time.Time, строки в ISO-форматах,
// числа (миллисекунды Unix) и сериализованные метки времени вида
// {"seconds": N, "nanoseconds": M} или {"_seconds": N}.
// Второе значение false, если привести не удалось.
func Time(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(x)).UTC(), true
	case int64:
		return time.UnixMilli(x).UTC(), true
	case int:
		return time.UnixMilli(int64(x)).UTC(), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(n).UTC(), true
	case map[string]any:
		sec, ok := x["seconds"]
		if !ok {
			sec, ok = x["_seconds"]
		}
		if !ok {
			return time.Time{}, false
		}
		s, ok := sec.(float64)
		if !ok {
			return time.Time{}, false
		}
		var nsec float64
		if n, ok := x["nanoseconds"].(float64); ok {
			nsec = n
		} else if n, ok := x["_nanoseconds"].(float64); ok {
			nsec = n
		}
		return time.Unix(int64(s), int64(nsec)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// Int приводит значение к целому. Второе значение false, если это не число.
func Int(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

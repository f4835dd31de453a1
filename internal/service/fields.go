package service

import (
	"maps"
	"net/url"
	"regexp"
	"strings"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/value"
)

var (
	httpURLRe = regexp.MustCompile(`^https?://.+`)
	slugRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// str возвращает строковое значение поля без пробелов по краям.
func str(fields map[string]any, key string) string {
	return strings.TrimSpace(value.String(fields[key]))
}

// present сообщает, передано ли поле.
func present(fields map[string]any, key string) bool {
	_, ok := fields[key]
	return ok
}

// require проверяет обязательные строковые поля. partial — проверяются
// только переданные поля (частичное обновление).
func require(verr *ValidationError, fields map[string]any, partial bool, keys ...string) {
	for _, k := range keys {
		if partial && !present(fields, k) {
			continue
		}
		if str(fields, k) == "" {
			verr.Add(k, "обязательное поле")
		}
	}
}

// trimAll возвращает копию полей с обрезанными строковыми значениями.
func trimAll(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out[k] = v
	}
	return out
}

// merge накладывает patch на поля существующей записи.
func merge(r docstore.Record, patch map[string]any) map[string]any {
	out := make(map[string]any, len(r.Fields)+len(patch))
	maps.Copy(out, r.Fields)
	maps.Copy(out, patch)
	delete(out, docstore.FieldCreatedAt)
	delete(out, docstore.FieldUpdatedAt)
	return out
}

// isHTTPURL проверяет абсолютный http(s) URL.
func isHTTPURL(s string) bool {
	if !httpURLRe.MatchString(s) {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// Slugify строит slug: латиница в нижнем регистре, цифры, дефисы.
func Slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// setDefault задаёт значение поля, если оно не передано или пустое.
func setDefault(fields map[string]any, key string, v any) {
	if str(fields, key) == "" {
		fields[key] = v
	}
}

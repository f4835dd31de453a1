// Пакет docstore — адаптер хранилища документов. Документ — запись со
// стабильным ID и произвольным набором полей (map[string]any). Реализации:
// PostgreSQL (JSONB), SQLite (modernc.org/sqlite) и in-memory для тестов
// и локальной разработки.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/bigkaa/siteadmin/internal/domain/value"
)

// Ошибки хранилища.
var (
	// ErrNotFound — документ не найден.
	ErrNotFound = errors.New("документ не найден")
	// ErrDuplicate — документ с таким ID уже существует.
	ErrDuplicate = errors.New("документ уже существует")
)

// Служебные поля, проставляемые хранилищем.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// StoreError — сбой бэкенда (сеть, таймаут, драйвер).
// Retryable означает, что операцию можно повторить вручную.
type StoreError struct {
	Op         string
	Collection string
	Retryable  bool
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("docstore %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("docstore %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable сообщает, можно ли повторить операцию, завершившуюся ошибкой err.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable
}

// Record — документ коллекции.
type Record struct {
	ID     string
	Fields map[string]any
}

// Get возвращает значение поля. Поле "id" без явного значения
// в документе возвращает ID документа. Отсутствующее поле — nil.
func (r Record) Get(field string) any {
	if v, ok := r.Fields[field]; ok {
		return v
	}
	if field == "id" {
		return r.ID
	}
	return nil
}

// String возвращает значение поля, приведённое к строке.
func (r Record) String(field string) string {
	return value.String(r.Get(field))
}

// Clone возвращает копию записи с независимой картой полей (неглубокая копия значений).
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: maps.Clone(r.Fields)}
}

// Filter — условие равенства поля значению. Сравниваются строковые формы,
// поэтому 1 и "1" совпадают. Пустое значение совпадает с отсутствующим полем.
type Filter struct {
	Field string
	Value any
}

// Eq — сокращение для Filter{Field, Value}.
func Eq(field string, v any) Filter {
	return Filter{Field: field, Value: v}
}

// Matches проверяет, удовлетворяет ли запись всем фильтрам.
func Matches(r Record, filters []Filter) bool {
	for _, f := range filters {
		if r.String(f.Field) != value.String(f.Value) {
			return false
		}
	}
	return true
}

// Store — интерфейс хранилища документов. Все методы блокирующие и
// уважают отмену контекста.
type Store interface {
	// List возвращает документы коллекции, удовлетворяющие фильтрам равенства.
	List(ctx context.Context, collection string, filters ...Filter) ([]Record, error)
	// CountWhere возвращает количество документов, удовлетворяющих фильтрам.
	CountWhere(ctx context.Context, collection string, filters ...Filter) (int, error)
	// GetByID возвращает документ или ErrNotFound.
	GetByID(ctx context.Context, collection, id string) (Record, error)
	// Create создаёт документ. Пустой id — генерируется UUID.
	// Занятый id — ErrDuplicate. Проставляет createdAt и updatedAt.
	Create(ctx context.Context, collection, id string, fields map[string]any) (string, error)
	// Update сливает patch с документом и обновляет updatedAt. Нет документа — ErrNotFound.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Delete удаляет документ. Отсутствие документа ошибкой не считается.
	Delete(ctx context.Context, collection, id string) error
	// NextSequence атомарно увеличивает счётчик и возвращает новое значение.
	NextSequence(ctx context.Context, counter string) (int64, error)
}

// Closer — хранилище, владеющее ресурсами (подключение к БД).
type Closer interface {
	Close() error
}

// stamp проставляет служебные временные метки.
func stamp(fields map[string]any, now time.Time, create bool) map[string]any {
	out := make(map[string]any, len(fields)+2)
	maps.Copy(out, fields)
	delete(out, FieldCreatedAt)
	if create {
		out[FieldCreatedAt] = now
	}
	out[FieldUpdatedAt] = now
	return out
}

// wrap оборачивает ошибку бэкенда в StoreError, оставляя доменные ошибки как есть.
func wrap(op, collection string, err error, retryable func(error) bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	r := errors.Is(err, context.DeadlineExceeded)
	if !r && retryable != nil {
		r = retryable(err)
	}
	return &StoreError{Op: op, Collection: collection, Retryable: r, Err: err}
}

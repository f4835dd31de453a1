// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bigkaa/siteadmin/internal/docstore"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = docstore.ErrNotFound
	// ErrDuplicate — запись с таким ключом уже существует.
	ErrDuplicate = docstore.ErrDuplicate
	// ErrUnknownScreen — экран не описан.
	ErrUnknownScreen = errors.New("неизвестный экран")
	// ErrConfirmationRequired — разрушительное действие без подтверждения.
	ErrConfirmationRequired = errors.New("требуется подтверждение действия")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrNotSupported — операция не поддерживается экраном.
	ErrNotSupported = errors.New("операция не поддерживается")
)

// ValidationError — ошибки валидации по полям. Проверяется до любого
// обращения к хранилищу.
type ValidationError struct {
	Fields map[string]string
}

// Add добавляет сообщение для поля; первое сообщение поля сохраняется.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// Err возвращает nil, если ошибок нет.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "ошибка валидации: " + strings.Join(parts, "; ")
}

// invalid — ValidationError с одним полем.
func invalid(field, message string) error {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

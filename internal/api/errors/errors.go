// Пакет errors — ответы с ошибками в едином формате siteadmin:
// {"error": {"code": "...", "message": "...", "fields": {...}}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или FromError.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/siteadmin/internal/blobstore"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
	"github.com/bigkaa/siteadmin/internal/service"
)

// Коды ошибок.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeNotSupported         = "NOT_SUPPORTED"
	CodeTooLarge             = "PAYLOAD_TOO_LARGE"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeInternalError        = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError записывает ответ ошибки.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, errorDetail{Code: code, Message: message})
}

func write(w http.ResponseWriter, statusCode int, d errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: d})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка сервера.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// Detail — описание ошибки сервисного слоя для клиента.
type Detail struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// FromError преобразует ошибку сервисного слоя в HTTP-ответ.
// Возвращает HTTP статус-код записанного ответа.
func FromError(w http.ResponseWriter, err error) int {
	d := Describe(err)
	write(w, d.Status, errorDetail{Code: d.Code, Message: d.Message, Fields: d.Fields})
	return d.Status
}

// Describe сопоставляет ошибке HTTP статус, код и сообщение.
func Describe(err error) Detail {
	var verr *service.ValidationError
	if stderrors.As(err, &verr) {
		return Detail{
			Status:  http.StatusBadRequest,
			Code:    CodeValidationError,
			Message: "Некорректные данные формы",
			Fields:  verr.Fields,
		}
	}

	var terr *workflow.TransitionError
	if stderrors.As(err, &terr) {
		status := http.StatusBadRequest
		if terr.Code == workflow.CodeToggleNotSupported {
			status = http.StatusConflict
		}
		return Detail{Status: status, Code: terr.Code, Message: terr.Message}
	}

	var serr *docstore.StoreError
	if stderrors.As(err, &serr) {
		return Detail{
			Status:  http.StatusServiceUnavailable,
			Code:    CodeStoreUnavailable,
			Message: "Хранилище временно недоступно, повторите попытку",
		}
	}

	switch {
	case stderrors.Is(err, service.ErrNotFound):
		return Detail{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Запись не найдена"}
	case stderrors.Is(err, service.ErrUnknownScreen):
		return Detail{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Экран не найден"}
	case stderrors.Is(err, service.ErrDuplicate):
		return Detail{Status: http.StatusConflict, Code: CodeConflict, Message: "Запись с таким идентификатором уже существует"}
	case stderrors.Is(err, service.ErrConfirmationRequired):
		return Detail{Status: http.StatusBadRequest, Code: CodeConfirmationRequired, Message: "Требуется подтверждение: добавьте ?confirm=true"}
	case stderrors.Is(err, service.ErrForbidden):
		return Detail{Status: http.StatusForbidden, Code: CodeForbidden, Message: "Недостаточно прав"}
	case stderrors.Is(err, service.ErrNotSupported):
		return Detail{Status: http.StatusBadRequest, Code: CodeNotSupported, Message: "Операция не поддерживается для этого экрана"}
	case stderrors.Is(err, blobstore.ErrTooLarge):
		return Detail{Status: http.StatusRequestEntityTooLarge, Code: CodeTooLarge, Message: "Файл превышает допустимый размер"}
	case stderrors.Is(err, blobstore.ErrInvalidPath):
		return Detail{Status: http.StatusBadRequest, Code: CodeValidationError, Message: "Недопустимое имя файла"}
	default:
		return Detail{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "Внутренняя ошибка сервера"}
	}
}

// handler.go — основной обработчик API консоли.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/siteadmin/internal/api/errors"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/screens"
	"github.com/bigkaa/siteadmin/internal/service"
)

// maxJSONBody — предельный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// Зарезервированные параметры строки запроса списка.
const (
	paramSearch = "q"
	paramSort   = "sort"
	paramDir    = "dir"
	paramPage   = "page"
	paramFrom   = "from"
	paramTo     = "to"
)

// Services — сервисы, которые обслуживает API.
type Services struct {
	Listing   *service.ListingService
	Entities  *service.EntityService
	Status    *service.StatusService
	Blogs     *service.BlogService
	Users     *service.UserService
	Export    *service.ExportService
	Dashboard *service.DashboardService
	// Broker — лента изменений для WebSocket-подписок.
	Broker *docstore.Broker
}

// APIHandler — основной обработчик API консоли.
type APIHandler struct {
	Services
	health *HealthHandler
	// Предельный размер одного загружаемого файла; 0 — без ограничения.
	maxUpload int64
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(svc Services, health *HealthHandler, maxUpload int64, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		Services:  svc,
		health:    health,
		maxUpload: maxUpload,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// Health возвращает обработчик health endpoints.
func (h *APIHandler) Health() *HealthHandler { return h.health }

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst.
func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректное JSON-тело запроса: %w", err)
	}
	return nil
}

// fail пишет ответ с ошибкой сервисного слоя и логирует серверные сбои.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apierrors.FromError(w, err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.Bool("retryable", docstore.IsRetryable(err)),
			slog.String("error", err.Error()),
		)
	}
}

// recordJSON — представление документа в API: поля документа плюс _id.
func recordJSON(r docstore.Record) map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["_id"] = r.ID
	return out
}

func recordsJSON(records []docstore.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = recordJSON(r)
	}
	return out
}

// pageResponse — страница списка.
type pageResponse struct {
	Screen     string              `json:"screen,omitempty"`
	Items      []map[string]any    `json:"items"`
	Window     listing.Window      `json:"window"`
	TotalPages int                 `json:"total_pages"`
	Buttons    []int               `json:"buttons"`
	From       int                 `json:"from"`
	To         int                 `json:"to"`
	Facets     map[string][]string `json:"facets,omitempty"`
}

func newPageResponse(screen string, p listing.Page, facets map[string][]string) pageResponse {
	buttons := p.Buttons
	if buttons == nil {
		buttons = []int{}
	}
	return pageResponse{
		Screen:     screen,
		Items:      recordsJSON(p.Items),
		Window:     p.Window,
		TotalPages: p.TotalPages,
		Buttons:    buttons,
		From:       p.From,
		To:         p.To,
		Facets:     facets,
	}
}

// criteriaFromQuery разбирает критерии списка из строки запроса:
// q, sort, dir, from, to и фильтры равенства по именам полей экрана.
func criteriaFromQuery(sc *screens.Screen, q map[string][]string) (listing.Criteria, error) {
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	c := listing.Criteria{
		Search:  get(paramSearch),
		SortKey: get(paramSort),
	}
	if dir := get(paramDir); dir != "" {
		c.SortDir = listing.ParseDirection(dir)
	}

	for _, f := range sc.Filters {
		if v := get(f); v != "" {
			if c.Equality == nil {
				c.Equality = make(map[string]string)
			}
			c.Equality[f] = v
		}
	}

	from, to := get(paramFrom), get(paramTo)
	if from != "" || to != "" {
		rng, err := listing.ParseRange(from, to)
		if err != nil {
			verr := &service.ValidationError{}
			verr.Add("date", err.Error())
			return listing.Criteria{}, verr
		}
		c.Range = rng
	}
	return c, nil
}

// pageFromQuery — номер страницы; некорректное значение — первая страница.
func pageFromQuery(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get(paramPage))
	if err != nil {
		return 1
	}
	return n
}

// confirmed сообщает, что клиент подтвердил разрушающую операцию.
func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func screenParam(r *http.Request) string { return chi.URLParam(r, "screen") }

func idParam(r *http.Request) string { return chi.URLParam(r, "id") }

// screen возвращает экран из пути; при ошибке ответ уже записан.
func (h *APIHandler) screen(w http.ResponseWriter, r *http.Request) (*screens.Screen, bool) {
	sc, err := h.Listing.Screen(screenParam(r))
	if err != nil {
		h.fail(w, r, "screen", err)
		return nil, false
	}
	return sc, true
}

// badJSON — ответ на нечитаемое тело запроса.
func badJSON(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		apierrors.WriteError(w, http.StatusRequestEntityTooLarge, apierrors.CodeTooLarge, "Слишком большое тело запроса")
		return
	}
	apierrors.ValidationError(w, err.Error())
}

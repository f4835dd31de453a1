// screens.go — обработчики /api/v1/screens endpoints.
// Списки экранов, чтение и редактирование записей, смена статуса.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/siteadmin/internal/api/errors"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/rbac"
	"github.com/bigkaa/siteadmin/internal/service"
)

// Экраны с собственными обработчиками записи.
const (
	screenBlog  = "blog"
	screenUsers = "users"
)

// screenInfo — краткое описание экрана для меню консоли.
type screenInfo struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Collection  string   `json:"collection"`
	Filters     []string `json:"filters"`
	SortKeys    []string `json:"sort_keys"`
	DefaultSort string   `json:"default_sort,omitempty"`
	DateField   string   `json:"date_field,omitempty"`
	States      []string `json:"states,omitempty"`
	Exportable  bool     `json:"exportable"`
}

// ListScreens — GET /api/v1/screens.
func (h *APIHandler) ListScreens(w http.ResponseWriter, r *http.Request) {
	reg := h.Listing.Screens()
	out := make([]screenInfo, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		sc, _ := reg.Get(name)
		states, _ := h.Status.States(name)
		out = append(out, screenInfo{
			Name:        name,
			Title:       sc.Title,
			Collection:  sc.Collection,
			Filters:     nonNil(sc.Filters),
			SortKeys:    nonNil(sc.SortKeys),
			DefaultSort: sc.DefaultSort,
			DateField:   sc.DateField,
			States:      states,
			Exportable:  sc.Export != nil,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// ListRecords — GET /api/v1/screens/{screen}/records.
// Параметры: q, sort, dir, page, from, to и фильтры по полям экрана.
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	if sc.Name == screenUsers && !h.allowed(w, r, rbac.ActionManageUsers) {
		return
	}

	c, err := criteriaFromQuery(sc, r.URL.Query())
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	res, err := h.Listing.ListScreen(r.Context(), sc.Name, service.Query{Criteria: c, Page: pageFromQuery(r)})
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(res.Screen, res.Page, res.Facets))
}

// GetRecord — GET /api/v1/screens/{screen}/records/{id}.
func (h *APIHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	if sc.Name == screenUsers {
		if !h.allowed(w, r, rbac.ActionManageUsers) {
			return
		}
		rec, err := h.Users.Get(r.Context(), idParam(r))
		if err != nil {
			h.fail(w, r, "get", err)
			return
		}
		writeJSON(w, http.StatusOK, recordJSON(rec))
		return
	}

	rec, err := h.Entities.Get(r.Context(), sc.Name, idParam(r))
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

// CreateRecord — POST /api/v1/screens/{screen}/records.
// Блог и пользователи создаются через /api/v1/blogs и /api/v1/users.
func (h *APIHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		badJSON(w, err)
		return
	}
	rec, err := h.Entities.Create(r.Context(), sc.Name, fields)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, recordJSON(rec))
}

// UpdateRecord — PATCH /api/v1/screens/{screen}/records/{id}.
func (h *APIHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		badJSON(w, err)
		return
	}
	rec, err := h.Entities.Update(r.Context(), sc.Name, idParam(r), patch)
	if err != nil {
		h.fail(w, r, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

// DeleteRecord — DELETE /api/v1/screens/{screen}/records/{id}?confirm=true.
// Записи блога удаляются вместе с изображениями.
func (h *APIHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	if sc.Name == screenUsers && !h.allowed(w, r, rbac.ActionManageUsers) {
		return
	}

	var err error
	if sc.Name == screenBlog {
		err = h.Blogs.Delete(r.Context(), idParam(r), confirmed(r))
	} else {
		err = h.Entities.Delete(r.Context(), sc.Name, idParam(r), confirmed(r))
	}
	if err != nil {
		h.fail(w, r, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleStatus — POST /api/v1/screens/{screen}/records/{id}/toggle.
func (h *APIHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	if sc.Name == screenUsers && !h.allowed(w, r, rbac.ActionManageUsers) {
		return
	}
	next, err := h.Status.Toggle(r.Context(), sc.Name, idParam(r))
	if err != nil {
		h.fail(w, r, "toggle", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: idParam(r), Status: next})
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SetStatus — PUT /api/v1/screens/{screen}/records/{id}/status.
func (h *APIHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	if sc.Name == screenUsers && !h.allowed(w, r, rbac.ActionManageUsers) {
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, err)
		return
	}
	if err := h.Status.SetStatus(r.Context(), sc.Name, idParam(r), req.Status); err != nil {
		h.fail(w, r, "set_status", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: idParam(r), Status: req.Status})
}

// ListStates — GET /api/v1/screens/{screen}/states.
func (h *APIHandler) ListStates(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	states, err := h.Status.States(sc.Name)
	if err != nil {
		h.fail(w, r, "states", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"screen": sc.Name, "states": states})
}

// SuggestLocationID — GET /api/v1/locations/next-id.
func (h *APIHandler) SuggestLocationID(w http.ResponseWriter, r *http.Request) {
	id, err := h.Entities.SuggestLocationID(r.Context())
	if err != nil {
		h.fail(w, r, "next_location_id", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// Me — GET /api/v1/me. Текущая сессия и её права.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFrom(r.Context())
	if sess == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия пользователя")
		return
	}
	actions := make([]rbac.Action, 0, 4)
	for _, a := range []rbac.Action{rbac.ActionRead, rbac.ActionWrite, rbac.ActionDelete, rbac.ActionManageUsers} {
		if rbac.Allows(sess.Role, a) {
			actions = append(actions, a)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject": sess.Subject,
		"email":   sess.Email,
		"name":    sess.Name,
		"role":    sess.Role,
		"actions": actions,
	})
}

// allowed проверяет право сессии на действие; при отказе ответ уже записан.
func (h *APIHandler) allowed(w http.ResponseWriter, r *http.Request, action rbac.Action) bool {
	sess := model.SessionFrom(r.Context())
	if sess == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия пользователя")
		return false
	}
	if !rbac.Allows(sess.Role, action) {
		apierrors.Forbidden(w, "Недостаточно прав")
		return false
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

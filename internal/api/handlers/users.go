// users.go — обработчики /api/v1/users endpoints.
// Доступ: только admin (проверяется middleware маршрута).
package handlers

import (
	"net/http"

	"github.com/bigkaa/siteadmin/internal/service"
)

// CreateUser — POST /api/v1/users.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := decodeJSON(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	rec, err := h.Users.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create_user", err)
		return
	}
	writeJSON(w, http.StatusCreated, recordJSON(rec))
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Users.Get(r.Context(), idParam(r))
	if err != nil {
		h.fail(w, r, "get_user", err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

// UpdateUser — PATCH /api/v1/users/{id}.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var p service.UserPatch
	if err := decodeJSON(r, &p); err != nil {
		badJSON(w, err)
		return
	}
	rec, err := h.Users.Update(r.Context(), idParam(r), p)
	if err != nil {
		h.fail(w, r, "update_user", err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

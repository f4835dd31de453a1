// export.go — выгрузка отфильтрованного списка в CSV и сводка для дашборда.
package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ExportCSV — GET /api/v1/screens/{screen}/export.
// Выгружает все записи, прошедшие фильтры, без разбиения на страницы.
func (h *APIHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	filename, err := h.Export.Prepare(sc.Name)
	if err != nil {
		h.fail(w, r, "export", err)
		return
	}
	c, err := criteriaFromQuery(sc, r.URL.Query())
	if err != nil {
		h.fail(w, r, "export", err)
		return
	}

	// Ответ собирается целиком, чтобы сбой хранилища вернул код ошибки,
	// а не обрезанный файл.
	var buf bytes.Buffer
	rows, err := h.Export.Export(r.Context(), sc.Name, c, &buf)
	if err != nil {
		h.fail(w, r, "export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Export-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("Ошибка отправки CSV",
			slog.String("screen", sc.Name),
			slog.String("error", err.Error()),
		)
	}
}

// Dashboard — GET /api/v1/dashboard.
func (h *APIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Services.Dashboard.Summary(r.Context())
	if err != nil {
		h.fail(w, r, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"screens": counts})
}

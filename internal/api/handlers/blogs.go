// blogs.go — обработчики /api/v1/blogs endpoints.
// Форма записи блога приходит как multipart/form-data: текстовые поля
// и необязательные файлы image и cover. Правка без файлов принимает JSON.
package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bigkaa/siteadmin/internal/service"
)

// Имена файловых полей формы.
const (
	formFileImage = "image"
	formFileCover = "cover"
)

// maxMultipartMemory — часть формы, которая держится в памяти; остальное
// уходит во временные файлы.
const maxMultipartMemory = 8 << 20

// blogForm — разобранная форма записи блога.
type blogForm struct {
	fields map[string]any
	images service.BlogImages
	close  func()
}

// CreateBlog — POST /api/v1/blogs.
func (h *APIHandler) CreateBlog(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseBlogForm(w, r)
	if err != nil {
		badJSON(w, err)
		return
	}
	defer form.close()

	rec, err := h.Blogs.Create(r.Context(), form.fields, form.images)
	if err != nil {
		h.fail(w, r, "create_blog", err)
		return
	}
	writeJSON(w, http.StatusCreated, recordJSON(rec))
}

// UpdateBlog — PATCH /api/v1/blogs/{id}.
func (h *APIHandler) UpdateBlog(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseBlogForm(w, r)
	if err != nil {
		badJSON(w, err)
		return
	}
	defer form.close()

	rec, err := h.Blogs.Update(r.Context(), idParam(r), form.fields, form.images)
	if err != nil {
		h.fail(w, r, "update_blog", err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

// parseBlogForm разбирает multipart-форму или JSON-тело.
func (h *APIHandler) parseBlogForm(w http.ResponseWriter, r *http.Request) (*blogForm, error) {
	form := &blogForm{close: func() {}}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(r, &form.fields); err != nil {
			return nil, err
		}
		if form.fields == nil {
			form.fields = map[string]any{}
		}
		return form, nil
	}

	if h.maxUpload > 0 {
		// Два файла плюс текстовые поля.
		r.Body = http.MaxBytesReader(w, r.Body, 2*h.maxUpload+maxJSONBody)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, fmt.Errorf("некорректная multipart-форма: %w", err)
	}
	mf := r.MultipartForm
	var opened []multipart.File
	form.close = func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = mf.RemoveAll()
	}

	form.fields = make(map[string]any, len(mf.Value))
	for k, v := range mf.Value {
		if len(v) > 0 {
			form.fields[k] = v[0]
		}
	}

	for _, slot := range []struct {
		field string
		dst   **service.Upload
	}{
		{formFileImage, &form.images.Image},
		{formFileCover, &form.images.Cover},
	} {
		files := mf.File[slot.field]
		if len(files) == 0 {
			continue
		}
		f, err := files[0].Open()
		if err != nil {
			form.close()
			return nil, fmt.Errorf("чтение файла %s: %w", slot.field, err)
		}
		opened = append(opened, f)
		*slot.dst = &service.Upload{Filename: files[0].Filename, Body: f}
	}
	return form, nil
}

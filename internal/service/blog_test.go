package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/siteadmin/internal/blobstore"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/model"
)

// brokenBlobs — хранилище файлов, которое не принимает загрузки.
type brokenBlobs struct{}

func (brokenBlobs) Upload(context.Context, string, io.Reader) (blobstore.Ref, error) {
	return blobstore.Ref{}, errors.New("диск переполнен")
}
func (brokenBlobs) DownloadURL(blobstore.Ref) string { return "" }
func (brokenBlobs) Delete(context.Context, string) error { return nil }

var longContent = "<p>" + strings.Repeat("слово ", 30) + "</p>"

func blogForm(overrides map[string]any) map[string]any {
	f := map[string]any{
		"blog_title":       "Как выбрать франшизу",
		"blog_description": longContent,
		"blog_cat_id":      "1",
		"status":           "published",
	}
	for k, v := range overrides {
		f[k] = v
	}
	return f
}

func newBlog(t *testing.T, store docstore.Store, blobs blobstore.Store) *BlogService {
	t.Helper()
	svc := NewBlogService(store, blobs, discardLogger())
	svc.now = func() time.Time { return time.UnixMilli(1700000000000).UTC() }
	return svc
}

func newDisk(t *testing.T) *blobstore.Disk {
	t.Helper()
	d, err := blobstore.NewDisk(filepath.Join(t.TempDir(), "blobs"), "/media", 0)
	if err != nil {
		t.Fatalf("NewDisk() вернул ошибку: %v", err)
	}
	return d
}

func TestValidateBlog(t *testing.T) {
	tests := []struct {
		name      string
		form      map[string]any
		wantField string
	}{
		{"нет заголовка", blogForm(map[string]any{"blog_title": ""}), "blog_title"},
		{"нет текста", blogForm(map[string]any{"blog_description": " "}), "blog_description"},
		{"нет категории", blogForm(map[string]any{"blog_cat_id": ""}), "blog_cat_id"},
		{"короткий текст", blogForm(map[string]any{"blog_description": "<b>" + strings.Repeat("a", 99) + "</b>"}), "blog_description"},
		{"неизвестный статус", blogForm(map[string]any{"status": "archived"}), "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validationFields(t, validateBlog(trimAll(tt.form), false))
			if fields[tt.wantField] == "" {
				t.Errorf("ожидалась ошибка по %s: %v", tt.wantField, fields)
			}
		})
	}

	draft := blogForm(map[string]any{"blog_description": "коротко", "status": "draft"})
	if err := validateBlog(draft, false); err != nil {
		t.Errorf("черновик не проверяется на длину: %v", err)
	}
	exact := blogForm(map[string]any{"blog_description": "<i>" + strings.Repeat("a", 100) + "</i>"})
	if err := validateBlog(exact, false); err != nil {
		t.Errorf("100 символов без разметки допустимы: %v", err)
	}
}

func TestBlogService_Create(t *testing.T) {
	store := docstore.NewMemoryStore()
	disk := newDisk(t)
	svc := newBlog(t, store, disk)
	ctx := context.Background()

	rec, err := svc.Create(ctx, blogForm(nil), BlogImages{
		Image: &Upload{Filename: "Cover Photo.JPG", Body: strings.NewReader("jpeg")},
	})
	if err != nil {
		t.Fatalf("Create() вернул ошибку: %v", err)
	}
	if got, _ := rec.Get("blog_id").(int64); got != 1 {
		t.Errorf("blog_id = %v, ожидается 1", rec.Get("blog_id"))
	}
	if rec.String("word_count") != "30" || rec.String("reading_time") != "1" {
		t.Errorf("word_count = %s, reading_time = %s", rec.String("word_count"), rec.String("reading_time"))
	}
	wantPath := "blogs/1700000000000_Cover_Photo.jpg"
	if rec.String("blog_image_path") != wantPath {
		t.Errorf("blog_image_path = %q, ожидается %q", rec.String("blog_image_path"), wantPath)
	}
	if rec.String("blog_image") != "/media/"+wantPath {
		t.Errorf("blog_image = %q", rec.String("blog_image"))
	}
	if _, err := os.Stat(filepath.Join(disk.Root(), "blogs", "1700000000000_Cover_Photo.jpg")); err != nil {
		t.Errorf("файл изображения не сохранён: %v", err)
	}
	if rec.String("blog_url") == "" || rec.String("meta_description") == "" {
		t.Errorf("производные поля не заполнены: %v", rec.Fields)
	}

	second, err := svc.Create(ctx, blogForm(map[string]any{"status": "draft"}), BlogImages{})
	if err != nil {
		t.Fatalf("второй Create() вернул ошибку: %v", err)
	}
	if got, _ := second.Get("blog_id").(int64); got != 2 {
		t.Errorf("второй blog_id = %v, ожидается 2", second.Get("blog_id"))
	}
}

func TestBlogService_ImageFailureAbortsSave(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newBlog(t, store, brokenBlobs{})
	ctx := context.Background()

	_, err := svc.Create(ctx, blogForm(nil), BlogImages{
		Image: &Upload{Filename: "a.png", Body: strings.NewReader("png")},
	})
	if err == nil {
		t.Fatal("ожидалась ошибка загрузки изображения")
	}
	n, _ := store.CountWhere(ctx, model.CollectionBlogs)
	if n != 0 {
		t.Errorf("запись не должна сохраняться, в коллекции %d", n)
	}
	// Счётчик не расходуется на неудачное сохранение.
	if next, _ := store.NextSequence(ctx, model.CounterBlog); next != 1 {
		t.Errorf("blogCounter = %d, ожидается 1", next)
	}
}

func TestBlogService_UpdateAndDelete(t *testing.T) {
	store := docstore.NewMemoryStore()
	disk := newDisk(t)
	svc := newBlog(t, store, disk)
	ctx := context.Background()

	rec, err := svc.Create(ctx, blogForm(nil), BlogImages{
		Image: &Upload{Filename: "old.png", Body: strings.NewReader("old")},
	})
	if err != nil {
		t.Fatalf("Create() вернул ошибку: %v", err)
	}
	oldPath := filepath.Join(disk.Root(), filepath.FromSlash(rec.String("blog_image_path")))

	svc.now = func() time.Time { return time.UnixMilli(1700000005000).UTC() }
	updated, err := svc.Update(ctx, rec.ID, map[string]any{"blog_title": "Новый заголовок"}, BlogImages{
		Image: &Upload{Filename: "new.png", Body: strings.NewReader("new")},
	})
	if err != nil {
		t.Fatalf("Update() вернул ошибку: %v", err)
	}
	if updated.String("blog_title") != "Новый заголовок" || updated.String("blog_cat_id") != "1" {
		t.Errorf("запись после обновления: %v", updated.Fields)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("заменённое изображение должно быть удалено")
	}

	if err := svc.Delete(ctx, rec.ID, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("удаление без подтверждения: получено %v", err)
	}
	if err := svc.Delete(ctx, rec.ID, true); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}
	newPath := filepath.Join(disk.Root(), filepath.FromSlash(updated.String("blog_image_path")))
	if _, err := os.Stat(newPath); !os.IsNotExist(err) {
		t.Error("изображение удалённой записи должно быть удалено")
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct{ words, want int }{{0, 0}, {1, 1}, {200, 1}, {201, 2}, {650, 4}}
	for _, tt := range tests {
		if got := ReadingTime(tt.words); got != tt.want {
			t.Errorf("ReadingTime(%d) = %d, ожидается %d", tt.words, got, tt.want)
		}
	}
	if got := WordCount("<p>раз  два</p>\n<p>три</p>"); got != 3 {
		t.Errorf("WordCount = %d, ожидается 3", got)
	}
}

package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newDisk(t *testing.T, maxSize int64) *Disk {
	t.Helper()
	d, err := NewDisk(filepath.Join(t.TempDir(), "blobs"), "https://cdn.example.com/media/", maxSize)
	if err != nil {
		t.Fatalf("ошибка создания Disk: %v", err)
	}
	return d
}

func TestUpload(t *testing.T) {
	d := newDisk(t, 0)
	content := []byte("картинка записи блога")

	ref, err := d.Upload(context.Background(), "blogs/1700000000000_photo.jpg", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка загрузки: %v", err)
	}
	if ref.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), ref.Size)
	}
	sum := sha256.Sum256(content)
	if ref.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum: получено %s", ref.Checksum)
	}

	data, err := os.ReadFile(filepath.Join(d.Root(), "blogs", "1700000000000_photo.jpg"))
	if err != nil {
		t.Fatalf("файл не записан: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
	if _, err := os.Stat(filepath.Join(d.Root(), "blogs", "1700000000000_photo.jpg.tmp")); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}
}

func TestUpload_TooLarge(t *testing.T) {
	d := newDisk(t, 4)
	_, err := d.Upload(context.Background(), "blogs/big.jpg", strings.NewReader("12345"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(d.Root(), "blogs"))
	if len(entries) != 0 {
		t.Errorf("после ошибки остались файлы: %d", len(entries))
	}

	if _, err := d.Upload(context.Background(), "blogs/ok.jpg", strings.NewReader("1234")); err != nil {
		t.Errorf("файл ровно maxSize отклонён: %v", err)
	}
}

func TestUpload_CanceledContext(t *testing.T) {
	d := newDisk(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Upload(ctx, "blogs/x.jpg", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
}

func TestUpload_PathIsConfinedToRoot(t *testing.T) {
	d := newDisk(t, 0)
	ref, err := d.Upload(context.Background(), "../../escape.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("ошибка загрузки: %v", err)
	}
	if ref.Path != "escape.txt" {
		t.Errorf("Path = %q, ожидается escape.txt", ref.Path)
	}
	if _, err := os.Stat(filepath.Join(d.Root(), "escape.txt")); err != nil {
		t.Errorf("файл должен лежать внутри корня: %v", err)
	}

	for _, p := range []string{"", "  ", "blogs/"} {
		if _, err := d.Upload(context.Background(), p, strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Upload(%q) = %v, ожидается ErrInvalidPath", p, err)
		}
	}
}

func TestDownloadURL(t *testing.T) {
	d := newDisk(t, 0)
	got := d.DownloadURL(Ref{Path: "blogs/1_my photo.jpg"})
	want := "https://cdn.example.com/media/blogs/1_my%20photo.jpg"
	if got != want {
		t.Errorf("DownloadURL() = %q, ожидается %q", got, want)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	d := newDisk(t, 0)
	ctx := context.Background()
	d.Upload(ctx, "blogs/a.jpg", strings.NewReader("a"))

	if err := d.Delete(ctx, "blogs/a.jpg"); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}
	if err := d.Delete(ctx, "blogs/a.jpg"); err != nil {
		t.Errorf("повторный Delete() вернул ошибку: %v", err)
	}
}

func TestObjectName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		in, want string
	}{
		{"photo.JPG", "blogs/1700000000123_photo.jpg"},
		{"my summer photo.png", "blogs/1700000000123_my_summer_photo.png"},
		{"../../etc/passwd", "blogs/1700000000123_passwd"},
		{"фото.jpg", "blogs/1700000000123_file.jpg"},
	}
	for _, tt := range tests {
		if got := ObjectName("blogs", tt.in, now); got != tt.want {
			t.Errorf("ObjectName(%q) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	d := newDisk(t, 0)
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping() вернул ошибку: %v", err)
	}
	os.RemoveAll(d.Root())
	if err := d.Ping(context.Background()); err == nil {
		t.Error("Ping() отсутствующего каталога должен вернуть ошибку")
	}
}

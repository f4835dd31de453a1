// Пакет blobstore — хранилище файлов (изображения записей блога).
// Реализация Disk пишет файлы в локальный каталог: временный файл →
// запись с подсчётом SHA-256 → fsync → атомарное переименование.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Ошибки хранилища файлов.
var (
	// ErrTooLarge — файл превышает допустимый размер.
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrInvalidPath — путь пустой или выходит за пределы хранилища.
	ErrInvalidPath = errors.New("недопустимый путь файла")
)

// Ref — ссылка на сохранённый файл.
type Ref struct {
	// Path — относительный путь внутри хранилища (blogs/1700000000000_photo.jpg)
	Path string `json:"path"`
	// Size — размер в байтах
	Size int64 `json:"size"`
	// Checksum — SHA-256 содержимого
	Checksum string `json:"checksum"`
}

// Store — адаптер хранилища файлов.
type Store interface {
	// Upload сохраняет содержимое reader по относительному пути.
	Upload(ctx context.Context, path string, r io.Reader) (Ref, error)
	// DownloadURL возвращает публичный URL файла.
	DownloadURL(ref Ref) string
	// Delete удаляет файл; отсутствие файла ошибкой не считается.
	Delete(ctx context.Context, path string) error
}

// Disk — хранилище файлов в локальном каталоге.
type Disk struct {
	root      string
	publicURL string
	maxSize   int64
}

// NewDisk создаёт хранилище и каталог root, если его нет.
// maxSize <= 0 — без ограничения.
func NewDisk(root, publicURL string, maxSize int64) (*Disk, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию файлов %s: %w", root, err)
	}
	return &Disk{root: root, publicURL: strings.TrimRight(publicURL, "/"), maxSize: maxSize}, nil
}

// Root возвращает корневой каталог.
func (d *Disk) Root() string { return d.root }

// Upload записывает файл атомарно. При превышении maxSize файл не создаётся.
func (d *Disk) Upload(ctx context.Context, relPath string, r io.Reader) (Ref, error) {
	clean, err := cleanPath(relPath)
	if err != nil {
		return Ref{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	fullPath := filepath.Join(d.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return Ref{}, fmt.Errorf("ошибка создания директории: %w", err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Ref{}, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := &ctxReader{ctx: ctx, r: r}
	var limited io.Reader = src
	if d.maxSize > 0 {
		limited = io.LimitReader(src, d.maxSize+1)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(limited, hasher))
	if err == nil && d.maxSize > 0 && size > d.maxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Ref{}, err
		}
		return Ref{}, fmt.Errorf("ошибка записи файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return Ref{Path: clean, Size: size, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// DownloadURL возвращает publicURL/<путь> с экранированием сегментов.
func (d *Disk) DownloadURL(ref Ref) string {
	segments := strings.Split(ref.Path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return d.publicURL + "/" + strings.Join(segments, "/")
}

// Delete удаляет файл.
func (d *Disk) Delete(ctx context.Context, relPath string) error {
	clean, err := cleanPath(relPath)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(d.root, filepath.FromSlash(clean)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", clean, err)
	}
	return nil
}

// Ping проверяет доступность каталога (для readiness).
func (d *Disk) Ping(ctx context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", d.root)
	}
	return nil
}

// cleanPath нормализует относительный путь и запрещает выход за корень.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean == "." || strings.HasSuffix(p, "/") {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// ObjectName формирует путь объекта: <prefix>/<unix-ms>_<имя>.
// Имя очищается от небезопасных символов.
func ObjectName(prefix, originalFilename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	name := sanitize(strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename)))
	if len(name) > 50 {
		name = name[:50]
	}
	return fmt.Sprintf("%s/%d_%s%s", strings.Trim(prefix, "/"), now.UnixMilli(), name, sanitizeExt(ext))
}

// sanitize оставляет буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	return "." + sanitize(ext[1:])
}

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// blog.go — записи блога: валидация, загрузка изображений, порядковый
// blog_id, подсчёт слов и времени чтения.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/siteadmin/internal/blobstore"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
)

const (
	// MinBlogContentLength — минимальная длина текста записи без разметки.
	MinBlogContentLength = 100
	// WordsPerMinute — скорость чтения для reading_time.
	WordsPerMinute = 200
	// blogImagePrefix — каталог изображений блога в хранилище файлов.
	blogImagePrefix = "blogs"
)

// Поля записи блога.
const (
	blogFieldTitle     = "blog_title"
	blogFieldContent   = "blog_description"
	blogFieldCategory  = "blog_cat_id"
	blogFieldURL       = "blog_url"
	blogFieldImage     = "blog_image"
	blogFieldImagePath = "blog_image_path"
	blogFieldCover     = "blog_image_cover"
	blogFieldCoverPath = "blog_image_cover_path"
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Upload — загружаемый файл.
type Upload struct {
	Filename string
	Body     io.Reader
}

// BlogImages — изображения, приложенные к форме записи.
type BlogImages struct {
	Image *Upload
	Cover *Upload
}

// BlogService — записи блога.
type BlogService struct {
	store  docstore.Store
	blobs  blobstore.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewBlogService создаёт сервис блога.
func NewBlogService(store docstore.Store, blobs blobstore.Store, logger *slog.Logger) *BlogService {
	return &BlogService{
		store:  store,
		blobs:  blobs,
		now:    time.Now,
		logger: logger.With(slog.String("component", "blog_service")),
	}
}

// PlainText убирает HTML-разметку.
func PlainText(html string) string {
	return htmlTagRe.ReplaceAllString(html, "")
}

// WordCount — количество слов в тексте без разметки.
func WordCount(html string) int {
	return len(strings.Fields(PlainText(html)))
}

// ReadingTime — время чтения в минутах, ceil(words / 200).
func ReadingTime(words int) int {
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// validateBlog проверяет форму записи. Черновики не проверяются на длину текста.
func validateBlog(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, blogFieldTitle, blogFieldContent, blogFieldCategory)

	status := str(fields, "status")
	if status != "" {
		m, _ := workflow.For(workflow.KindBlog)
		if !m.IsValid(status) {
			verr.Add("status", fmt.Sprintf("недопустимый статус %q", status))
		}
	}
	// Длина проверяется по итоговой записи: статус может прийти не в этом patch.
	if content := str(fields, blogFieldContent); content != "" && !partial && status != workflow.StatusDraft {
		if utf8.RuneCountInString(PlainText(content)) < MinBlogContentLength {
			verr.Add(blogFieldContent, fmt.Sprintf("текст записи должен содержать не менее %d символов", MinBlogContentLength))
		}
	}
	if len([]rune(str(fields, blogFieldTitle))) > 100 {
		verr.Add(blogFieldTitle, "заголовок длиннее 100 символов")
	}
	return verr.Err()
}

// Create проверяет форму, загружает изображения и создаёт запись.
// Ошибка загрузки изображения отменяет сохранение.
func (s *BlogService) Create(ctx context.Context, fields map[string]any, images BlogImages) (docstore.Record, error) {
	fields = trimAll(fields)
	setDefault(fields, "status", workflow.StatusDraft)
	if err := validateBlog(fields, false); err != nil {
		return docstore.Record{}, err
	}

	uploaded, err := s.uploadImages(ctx, fields, images)
	if err != nil {
		return docstore.Record{}, err
	}

	s.fillDerived(fields)
	n, err := s.store.NextSequence(ctx, model.CounterBlog)
	if err != nil {
		s.discard(uploaded)
		return docstore.Record{}, fmt.Errorf("выдача blog_id: %w", err)
	}
	fields["blog_id"] = n

	id, err := s.store.Create(ctx, model.CollectionBlogs, "", fields)
	if err != nil {
		s.discard(uploaded)
		return docstore.Record{}, err
	}
	s.logger.Info("Запись блога создана",
		slog.String("id", id),
		slog.Int64("blog_id", n),
		slog.String("status", str(fields, "status")),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return s.store.GetByID(ctx, model.CollectionBlogs, id)
}

// Update проверяет изменения, при необходимости заменяет изображения
// и сохраняет запись.
func (s *BlogService) Update(ctx context.Context, id string, patch map[string]any, images BlogImages) (docstore.Record, error) {
	patch = trimAll(patch)
	if err := validateBlog(patch, true); err != nil {
		return docstore.Record{}, err
	}
	existing, err := s.store.GetByID(ctx, model.CollectionBlogs, id)
	if err != nil {
		return docstore.Record{}, err
	}
	merged := merge(existing, patch)
	if err := validateBlog(merged, false); err != nil {
		return docstore.Record{}, err
	}

	uploaded, err := s.uploadImages(ctx, merged, images)
	if err != nil {
		return docstore.Record{}, err
	}
	s.fillDerived(merged)

	if err := s.store.Update(ctx, model.CollectionBlogs, id, merged); err != nil {
		s.discard(uploaded)
		return docstore.Record{}, err
	}

	// Заменённые изображения больше не нужны.
	var replaced []string
	if images.Image != nil {
		replaced = append(replaced, existing.String(blogFieldImagePath))
	}
	if images.Cover != nil {
		replaced = append(replaced, existing.String(blogFieldCoverPath))
	}
	s.discard(replaced)

	s.logger.Info("Запись блога обновлена",
		slog.String("id", id),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return s.store.GetByID(ctx, model.CollectionBlogs, id)
}

// Delete удаляет запись и её изображения.
func (s *BlogService) Delete(ctx context.Context, id string, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	existing, err := s.store.GetByID(ctx, model.CollectionBlogs, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, model.CollectionBlogs, id); err != nil {
		return err
	}
	s.discard([]string{existing.String(blogFieldImagePath), existing.String(blogFieldCoverPath)})
	s.logger.Info("Запись блога удалена",
		slog.String("id", id),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return nil
}

// uploadImages загружает изображения и записывает их URL в поля.
// Возвращает пути загруженных файлов.
func (s *BlogService) uploadImages(ctx context.Context, fields map[string]any, images BlogImages) ([]string, error) {
	var uploaded []string
	for _, img := range []struct {
		upload          *Upload
		urlField, field string
	}{
		{images.Image, blogFieldImage, blogFieldImagePath},
		{images.Cover, blogFieldCover, blogFieldCoverPath},
	} {
		if img.upload == nil {
			continue
		}
		name := blobstore.ObjectName(blogImagePrefix, img.upload.Filename, s.now())
		ref, err := s.blobs.Upload(ctx, name, img.upload.Body)
		if err != nil {
			s.discard(uploaded)
			return nil, fmt.Errorf("загрузка изображения %s: %w", img.upload.Filename, err)
		}
		uploaded = append(uploaded, ref.Path)
		fields[img.urlField] = s.blobs.DownloadURL(ref)
		fields[img.field] = ref.Path
	}
	return uploaded, nil
}

// fillDerived заполняет slug, мета-поля и статистику текста.
func (s *BlogService) fillDerived(fields map[string]any) {
	title := str(fields, blogFieldTitle)
	setDefault(fields, blogFieldURL, Slugify(title))
	setDefault(fields, "meta_title", truncate(title, 60))
	plain := strings.TrimSpace(PlainText(str(fields, blogFieldContent)))
	if utf8.RuneCountInString(plain) > 10 {
		setDefault(fields, "meta_description", truncate(plain, 160))
	}
	setDefault(fields, "blog_date", s.now().Format(time.DateOnly))

	words := WordCount(str(fields, blogFieldContent))
	fields["word_count"] = words
	fields["reading_time"] = ReadingTime(words)
}

// discard удаляет файлы; ошибки только логируются.
func (s *BlogService) discard(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.blobs.Delete(context.Background(), p); err != nil {
			s.logger.Warn("Не удалось удалить файл изображения",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

// truncate обрезает строку до n символов, заменяя хвост многоточием.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

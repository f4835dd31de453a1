// entity.go — создание, редактирование и удаление записей экранов
// с простыми формами: ссылки, категории, города, франчайзи, страницы,
// категории блога. Записи блога и пользователи — в BlogService и UserService.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/value"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
	"github.com/bigkaa/siteadmin/internal/screens"
)

// actionDateLayout — формат action_date_time у ссылок подвала.
const actionDateLayout = "2006-01-02 15:04:05"

// form — правила формы экрана.
type form struct {
	// validate проверяет поля; partial — только переданные.
	validate func(fields map[string]any, partial bool) error
	// prepare дополняет поля перед записью; для создания возвращает ID документа
	// ("" — сгенерирует хранилище).
	prepare func(ctx context.Context, fields map[string]any, docID string, create bool) (string, error)
}

// EntityService — CRUD записей экранов.
type EntityService struct {
	store   docstore.Store
	screens *screens.Registry
	forms   map[string]form
	now     func() time.Time
	logger  *slog.Logger
}

// NewEntityService создаёт сервис записей.
func NewEntityService(store docstore.Store, reg *screens.Registry, logger *slog.Logger) *EntityService {
	s := &EntityService{
		store:   store,
		screens: reg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "entity_service")),
	}
	s.forms = map[string]form{
		"links":         {validate: validateLink, prepare: s.prepareLink},
		"categories":    {validate: validateCategory, prepare: s.prepareFlagged},
		"cities":        {validate: validateCity, prepare: s.prepareCity},
		"pages":         {validate: validatePage, prepare: s.prepareFlagged},
		"blog_category": {validate: validateBlogCategory, prepare: s.prepareBlogCategory},
		"locations":     {validate: validateLocation, prepare: s.prepareLocation},
	}
	return s
}

func (s *EntityService) screen(name string) (*screens.Screen, error) {
	sc, ok := s.screens.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	return sc, nil
}

// Get возвращает запись экрана без скрытых полей.
func (s *EntityService) Get(ctx context.Context, name, id string) (docstore.Record, error) {
	sc, err := s.screen(name)
	if err != nil {
		return docstore.Record{}, err
	}
	r, err := s.store.GetByID(ctx, sc.Collection, id)
	if err != nil {
		return docstore.Record{}, err
	}
	return hide(sc, r), nil
}

// Create проверяет и создаёт запись.
func (s *EntityService) Create(ctx context.Context, name string, fields map[string]any) (docstore.Record, error) {
	sc, err := s.screen(name)
	if err != nil {
		return docstore.Record{}, err
	}
	f, ok := s.forms[name]
	if !ok {
		return docstore.Record{}, fmt.Errorf("%w: создание записей экрана %s", ErrNotSupported, name)
	}
	fields = trimAll(fields)
	if err := f.validate(fields, false); err != nil {
		return docstore.Record{}, err
	}
	docID, err := f.prepare(ctx, fields, "", true)
	if err != nil {
		return docstore.Record{}, err
	}
	id, err := s.store.Create(ctx, sc.Collection, docID, fields)
	if err != nil {
		return docstore.Record{}, err
	}
	s.logger.Info("Запись создана",
		slog.String("screen", name),
		slog.String("id", id),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return s.store.GetByID(ctx, sc.Collection, id)
}

// Update проверяет переданные поля, сливает их с записью и сохраняет.
func (s *EntityService) Update(ctx context.Context, name, id string, patch map[string]any) (docstore.Record, error) {
	sc, err := s.screen(name)
	if err != nil {
		return docstore.Record{}, err
	}
	f, ok := s.forms[name]
	if !ok {
		return docstore.Record{}, fmt.Errorf("%w: редактирование записей экрана %s", ErrNotSupported, name)
	}
	patch = trimAll(patch)
	if err := f.validate(patch, true); err != nil {
		return docstore.Record{}, err
	}
	existing, err := s.store.GetByID(ctx, sc.Collection, id)
	if err != nil {
		return docstore.Record{}, err
	}
	merged := merge(existing, patch)
	if err := f.validate(merged, false); err != nil {
		return docstore.Record{}, err
	}
	if _, err := f.prepare(ctx, merged, id, false); err != nil {
		return docstore.Record{}, err
	}
	if err := s.store.Update(ctx, sc.Collection, id, merged); err != nil {
		return docstore.Record{}, err
	}
	s.logger.Info("Запись обновлена",
		slog.String("screen", name),
		slog.String("id", id),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return s.store.GetByID(ctx, sc.Collection, id)
}

// Delete удаляет запись. Без подтверждения — ErrConfirmationRequired.
func (s *EntityService) Delete(ctx context.Context, name, id string, confirm bool) error {
	sc, err := s.screen(name)
	if err != nil {
		return err
	}
	if !confirm {
		return ErrConfirmationRequired
	}
	if err := s.store.Delete(ctx, sc.Collection, id); err != nil {
		return err
	}
	s.logger.Info("Запись удалена",
		slog.String("screen", name),
		slog.String("id", id),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return nil
}

// SuggestLocationID предлагает ID нового франчайзи: максимум числовых ID + 1.
func (s *EntityService) SuggestLocationID(ctx context.Context) (int64, error) {
	sc, err := s.screen("locations")
	if err != nil {
		return 0, err
	}
	records, err := s.store.List(ctx, sc.Collection)
	if err != nil {
		return 0, err
	}
	return nextNumericID(records, "id"), nil
}

// nextNumericID = max(числовые значения поля) + 1; без числовых — 1.
func nextNumericID(records []docstore.Record, field string) int64 {
	var maxID int64
	for _, r := range records {
		n, err := strconv.ParseInt(r.String(field), 10, 64)
		if err == nil && n > maxID {
			maxID = n
		}
	}
	return maxID + 1
}

// --- Формы ---

func validateLink(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, "name", "url")
	if u := str(fields, "url"); u != "" && !isHTTPURL(u) {
		verr.Add("url", "URL должен начинаться с http:// или https://")
	}
	return verr.Err()
}

func (s *EntityService) prepareLink(_ context.Context, fields map[string]any, _ string, create bool) (string, error) {
	now := s.now()
	fields["action_date_time"] = now.Format(actionDateLayout)
	if create {
		setDefault(fields, "status", workflow.StatusActive)
		setDefault(fields, "id", strconv.FormatInt(now.UnixMilli(), 10))
	}
	return "", nil
}

func validateCategory(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, "category_name", "category_url")
	return verr.Err()
}

func validateCity(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, "city_name", "state_name")
	return verr.Err()
}

func validatePage(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, "page_title")
	return verr.Err()
}

// prepareFlagged — записи со статусом "1"/"0" (активна по умолчанию).
func (s *EntityService) prepareFlagged(_ context.Context, fields map[string]any, _ string, create bool) (string, error) {
	if create {
		setDefault(fields, "status", workflow.FlagOn)
	}
	return "", nil
}

func (s *EntityService) prepareCity(ctx context.Context, fields map[string]any, docID string, create bool) (string, error) {
	setDefault(fields, "city_url", Slugify(str(fields, "city_name")))
	return s.prepareFlagged(ctx, fields, docID, create)
}

func validateBlogCategory(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, "name")
	return verr.Err()
}

// prepareBlogCategory: новая категория получает числовой ID из счётчика
// categoryCounter; ID документа совпадает с ним.
func (s *EntityService) prepareBlogCategory(ctx context.Context, fields map[string]any, _ string, create bool) (string, error) {
	setDefault(fields, "category_url", Slugify(str(fields, "name")))
	if !create {
		return "", nil
	}
	setDefault(fields, "status", workflow.StatusActive)
	n, err := s.store.NextSequence(ctx, model.CounterBlogCategory)
	if err != nil {
		return "", fmt.Errorf("выдача ID категории блога: %w", err)
	}
	id := strconv.FormatInt(n, 10)
	fields["id"] = id
	return id, nil
}

func validateLocation(fields map[string]any, partial bool) error {
	verr := &ValidationError{}
	require(verr, fields, partial, "branch", "city_name", "address")
	if present(fields, "id") && str(fields, "id") == "" && partial {
		verr.Add("id", "обязательное поле")
	}
	for _, k := range []string{"map", "map_link"} {
		if v := str(fields, k); v != "" && !isHTTPURL(v) {
			verr.Add(k, "URL должен начинаться с http:// или https://")
		}
	}
	return verr.Err()
}

// prepareLocation: пустой ID при создании — предложенный max+1;
// ID, занятый другим франчайзи, — ErrDuplicate.
func (s *EntityService) prepareLocation(ctx context.Context, fields map[string]any, docID string, create bool) (string, error) {
	collection := model.CollectionLocations
	if create && str(fields, "id") == "" {
		n, err := s.SuggestLocationID(ctx)
		if err != nil {
			return "", err
		}
		fields["id"] = strconv.FormatInt(n, 10)
		return "", nil
	}
	id := value.String(fields["id"])
	taken, err := s.store.List(ctx, collection, docstore.Eq("id", id))
	if err != nil {
		return "", err
	}
	for _, r := range taken {
		if r.ID != docID {
			return "", fmt.Errorf("%w: ID франчайзи %s уже занят", ErrDuplicate, id)
		}
	}
	return "", nil
}

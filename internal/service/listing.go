// listing.go — сервис списков экранов: загрузка из хранилища, подтягивание
// справочников, денормализация, фильтрация и постраничный вывод.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/domain/value"
	"github.com/bigkaa/siteadmin/internal/domain/xref"
	"github.com/bigkaa/siteadmin/internal/screens"
)

var (
	listingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sa_listing_duration_seconds",
			Help:    "Длительность построения списка экрана в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"screen"},
	)

	listingSourceRecords = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sa_listing_source_records",
			Help:    "Количество записей, загруженных для списка экрана",
			Buckets: prometheus.ExponentialBuckets(10, 4, 6),
		},
		[]string{"screen"},
	)
)

// Query — запрос списка экрана.
type Query struct {
	Criteria listing.Criteria
	Page     int
}

// Result — страница списка экрана.
type Result struct {
	Screen string
	listing.Page
	// Уникальные значения полей-фасетов по всем записям экрана.
	Facets map[string][]string
}

// ListingService — списки экранов.
type ListingService struct {
	store    docstore.Store
	screens  *screens.Registry
	cache    *RefCache
	pageSize int
	logger   *slog.Logger
}

// NewListingService создаёт сервис списков. pageSize — размер страницы
// для экранов без собственного page_size.
func NewListingService(store docstore.Store, reg *screens.Registry, cache *RefCache, pageSize int, logger *slog.Logger) *ListingService {
	if cache == nil {
		cache = NewRefCache(0, 0)
	}
	if pageSize <= 0 {
		pageSize = listing.DefaultPageSize
	}
	return &ListingService{
		store:    store,
		screens:  reg,
		cache:    cache,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "listing_service")),
	}
}

// Screen возвращает описание экрана.
func (s *ListingService) Screen(name string) (*screens.Screen, error) {
	sc, ok := s.screens.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	return sc, nil
}

// Screens возвращает реестр экранов.
func (s *ListingService) Screens() *screens.Registry { return s.screens }

// PageSize возвращает размер страницы экрана.
func (s *ListingService) PageSize(sc *screens.Screen) int {
	if sc.PageSize > 0 {
		return sc.PageSize
	}
	return s.pageSize
}

// NormalizeCriteria проверяет критерии против описания экрана и
// подставляет сортировку по умолчанию.
func NormalizeCriteria(sc *screens.Screen, c listing.Criteria) (listing.Criteria, error) {
	verr := &ValidationError{}
	for field, v := range c.Equality {
		if v == "" || v == listing.All {
			continue
		}
		if !sc.HasFilter(field) {
			verr.Add(field, "фильтр по полю не поддерживается")
		}
	}
	if c.SortKey == "" {
		c.SortKey = sc.DefaultSort
		if c.SortDir == "" {
			c.SortDir = listing.Direction(sc.DefaultDir)
		}
	} else if !sc.HasSortKey(c.SortKey) {
		verr.Add("sort", fmt.Sprintf("сортировка по %q не поддерживается", c.SortKey))
	}
	if c.SortDir == "" {
		c.SortDir = listing.Asc
	}
	if !c.Range.IsZero() {
		if sc.DateField == "" {
			verr.Add("date", "экран не поддерживает фильтр по дате")
		} else if c.Range.Start.After(c.Range.End) {
			verr.Add("date", "начало диапазона позже конца")
		}
	}
	if err := verr.Err(); err != nil {
		return c, err
	}
	return c, nil
}

// ListScreen строит страницу списка экрана.
func (s *ListingService) ListScreen(ctx context.Context, name string, q Query) (*Result, error) {
	start := time.Now()
	sc, err := s.Screen(name)
	if err != nil {
		return nil, err
	}
	c, err := NormalizeCriteria(sc, q.Criteria)
	if err != nil {
		return nil, err
	}

	all, err := s.load(ctx, sc, s.pushdown(sc, c))
	if err != nil {
		return nil, err
	}
	filtered := listing.Apply(all, c, sc.Schema())
	page := listing.Paginate(filtered, s.PageSize(sc), q.Page)
	for i := range page.Items {
		page.Items[i] = hide(sc, page.Items[i])
	}

	res := &Result{Screen: sc.Name, Page: page}
	if len(sc.Facets) > 0 {
		res.Facets = make(map[string][]string, len(sc.Facets))
		for _, f := range sc.Facets {
			res.Facets[f] = listing.Facet(all, f)
		}
	}

	listingDuration.WithLabelValues(sc.Name).Observe(time.Since(start).Seconds())
	listingSourceRecords.WithLabelValues(sc.Name).Observe(float64(len(all)))
	s.logger.Debug("Список экрана построен",
		slog.String("screen", sc.Name),
		slog.Int("source", len(all)),
		slog.Int("filtered", len(filtered)),
		slog.Int("page", page.Window.CurrentPage),
	)
	return res, nil
}

// Filtered возвращает все записи экрана, прошедшие критерии, без разбиения
// на страницы (для экспорта).
func (s *ListingService) Filtered(ctx context.Context, name string, c listing.Criteria) ([]docstore.Record, error) {
	sc, err := s.Screen(name)
	if err != nil {
		return nil, err
	}
	c, err = NormalizeCriteria(sc, c)
	if err != nil {
		return nil, err
	}
	all, err := s.load(ctx, sc, s.pushdown(sc, c))
	if err != nil {
		return nil, err
	}
	out := listing.Apply(all, c, sc.Schema())
	for i := range out {
		out[i] = hide(sc, out[i])
	}
	return out, nil
}

// OpenSession загружает все записи экрана в сессию списка.
func (s *ListingService) OpenSession(ctx context.Context, name string, c listing.Criteria) (*listing.Session, error) {
	sc, err := s.Screen(name)
	if err != nil {
		return nil, err
	}
	c, err = NormalizeCriteria(sc, c)
	if err != nil {
		return nil, err
	}
	sess := listing.NewSession(sc.Schema(), s.PageSize(sc))
	if err := s.Reload(ctx, name, sess); err != nil {
		return nil, err
	}
	sess.SetCriteria(c)
	return sess, nil
}

// Reload перечитывает записи экрана в сессию; критерии и страница сохраняются.
func (s *ListingService) Reload(ctx context.Context, name string, sess *listing.Session) error {
	sc, err := s.Screen(name)
	if err != nil {
		return err
	}
	all, err := s.load(ctx, sc, nil)
	if err != nil {
		return err
	}
	for i := range all {
		all[i] = hide(sc, all[i])
	}
	sess.Load(all)
	return nil
}

// pushdown отбирает фильтры равенства, которые можно передать хранилищу:
// по полям документа, не вычисляемым. Экраны с фасетами читают все записи,
// чтобы значения фасетов не зависели от выбранных фильтров. Статус по
// умолчанию остаётся движку: записи без статуса хранилище не найдёт.
func (s *ListingService) pushdown(sc *screens.Screen, c listing.Criteria) []docstore.Filter {
	if len(sc.Facets) > 0 {
		return nil
	}
	var out []docstore.Filter
	for field, v := range c.Equality {
		if v == "" || v == listing.All || sc.IsDerived(field) {
			continue
		}
		if field == sc.StatusField && v == sc.StatusDefault {
			continue
		}
		out = append(out, docstore.Eq(field, v))
	}
	return out
}

// load читает записи экрана с базовыми ограничениями, подставляет статус
// по умолчанию и денормализует записи.
func (s *ListingService) load(ctx context.Context, sc *screens.Screen, extra []docstore.Filter) ([]docstore.Record, error) {
	filters := append(baseFilters(sc.Base), extra...)
	records, err := s.store.List(ctx, sc.Collection, filters...)
	if err != nil {
		return nil, fmt.Errorf("загрузка %s: %w", sc.Collection, err)
	}
	records = defaultStatus(sc, records)
	if len(sc.References) == 0 {
		return records, nil
	}
	maps, err := s.references(ctx, sc)
	if err != nil {
		return nil, err
	}
	return denormalize(sc, records, maps), nil
}

// references загружает справочники экрана параллельно.
func (s *ListingService) references(ctx context.Context, sc *screens.Screen) ([]*xref.Map, error) {
	maps := make([]*xref.Map, len(sc.References))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range sc.References {
		if m, ok := s.cache.Get(ref); ok {
			maps[i] = m
			continue
		}
		g.Go(func() error {
			records, err := s.store.List(gctx, ref.Collection, baseFilters(ref.Base)...)
			if err != nil {
				return fmt.Errorf("загрузка справочника %s: %w", ref.Collection, err)
			}
			m := xref.Build(records, ref.Source)
			s.cache.Set(ref, m)
			maps[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return maps, nil
}

// denormalize добавляет к копиям записей имена, slug и родителей из
// справочников. Запись с неразрешённой ссылкой не теряется.
func denormalize(sc *screens.Screen, records []docstore.Record, maps []*xref.Map) []docstore.Record {
	out := make([]docstore.Record, len(records))
	for i, r := range records {
		r = r.Clone()
		if r.Fields == nil {
			r.Fields = make(map[string]any)
		}
		for j, ref := range sc.References {
			e := maps[j].Resolve(r.Get(ref.Field))
			r.Fields[ref.NameField()] = e.Name
			r.Fields[ref.URLField()] = e.URL
			if ref.ParentAs != "" {
				r.Fields[ref.ParentAs] = e.Parent
			}
		}
		if sc.LinkField != "" {
			r.Fields[sc.LinkField] = xref.ComposeURL(r.String("city_url"), r.String("category_url"), r.String("page_url"))
		}
		out[i] = r
	}
	return out
}

// defaultStatus заполняет отсутствующий статус значением экрана по умолчанию.
func defaultStatus(sc *screens.Screen, records []docstore.Record) []docstore.Record {
	if sc.StatusDefault == "" {
		return records
	}
	for i, r := range records {
		if value.String(r.Get(sc.StatusField)) != "" {
			continue
		}
		r = r.Clone()
		if r.Fields == nil {
			r.Fields = make(map[string]any)
		}
		r.Fields[sc.StatusField] = sc.StatusDefault
		records[i] = r
	}
	return records
}

// hide убирает скрытые поля экрана (хеш пароля).
func hide(sc *screens.Screen, r docstore.Record) docstore.Record {
	if len(sc.HiddenFields) == 0 {
		return r
	}
	r = r.Clone()
	for _, f := range sc.HiddenFields {
		delete(r.Fields, f)
	}
	return r
}

func baseFilters(base map[string]string) []docstore.Filter {
	out := make([]docstore.Filter, 0, len(base))
	for k, v := range base {
		out = append(out, docstore.Eq(k, v))
	}
	return out
}

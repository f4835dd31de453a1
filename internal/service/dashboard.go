// dashboard.go — сводка по коллекциям для главной страницы консоли.
package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
	"github.com/bigkaa/siteadmin/internal/screens"
)

// ScreenCount — количество записей экрана.
type ScreenCount struct {
	Screen     string         `json:"screen"`
	Title      string         `json:"title"`
	Collection string         `json:"collection"`
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status,omitempty"`
}

// DashboardService — сводка.
type DashboardService struct {
	store   docstore.Store
	screens *screens.Registry
	logger  *slog.Logger
}

// NewDashboardService создаёт сервис сводки.
func NewDashboardService(store docstore.Store, reg *screens.Registry, logger *slog.Logger) *DashboardService {
	return &DashboardService{
		store:   store,
		screens: reg,
		logger:  logger.With(slog.String("component", "dashboard_service")),
	}
}

// Summary считает записи каждого экрана и разбивку по статусам.
// Счётчики запрашиваются параллельно.
func (s *DashboardService) Summary(ctx context.Context) ([]ScreenCount, error) {
	names := s.screens.Names()
	out := make([]ScreenCount, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		sc, _ := s.screens.Get(name)
		out[i] = ScreenCount{Screen: name, Title: sc.Title, Collection: sc.Collection}
		base := baseFilters(sc.Base)

		g.Go(func() error {
			n, err := s.store.CountWhere(gctx, sc.Collection, base...)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i].Total = n
			mu.Unlock()
			return nil
		})

		if sc.StatusKind == "" {
			continue
		}
		m, err := workflow.For(sc.StatusKind)
		if err != nil || sc.Base[sc.StatusField] != "" {
			continue
		}
		out[i].ByStatus = make(map[string]int)
		for _, state := range m.States() {
			g.Go(func() error {
				filters := append(baseFilters(sc.Base), docstore.Eq(sc.StatusField, state))
				n, err := s.store.CountWhere(gctx, sc.Collection, filters...)
				if err != nil {
					return err
				}
				if n > 0 {
					mu.Lock()
					out[i].ByStatus[state] = n
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Записи без статуса (и с неизвестным значением) хранилище по статусам
	// не находит; они читаются как статус по умолчанию.
	for i := range out {
		if out[i].ByStatus == nil {
			continue
		}
		sc, _ := s.screens.Get(out[i].Screen)
		rest := out[i].Total
		for _, n := range out[i].ByStatus {
			rest -= n
		}
		if rest > 0 {
			out[i].ByStatus[sc.StatusDefault] += rest
		}
	}
	return out, nil
}

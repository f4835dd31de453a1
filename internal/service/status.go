// status.go — смена статусов записей: переключатель и явный выбор.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
	"github.com/bigkaa/siteadmin/internal/screens"
)

// StatusService — смена статусов записей экранов.
type StatusService struct {
	store   docstore.Store
	screens *screens.Registry
	logger  *slog.Logger
}

// NewStatusService создаёт сервис статусов.
func NewStatusService(store docstore.Store, reg *screens.Registry, logger *slog.Logger) *StatusService {
	return &StatusService{
		store:   store,
		screens: reg,
		logger:  logger.With(slog.String("component", "status_service")),
	}
}

// machine возвращает экран и правила его статусов.
func (s *StatusService) machine(name string) (*screens.Screen, *workflow.Machine, error) {
	sc, ok := s.screens.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	if sc.StatusKind == "" {
		return nil, nil, fmt.Errorf("%w: у экрана %s нет статусов", ErrNotSupported, name)
	}
	m, err := workflow.For(sc.StatusKind)
	if err != nil {
		return nil, nil, err
	}
	return sc, m, nil
}

// States возвращает допустимые статусы экрана.
func (s *StatusService) States(name string) ([]string, error) {
	_, m, err := s.machine(name)
	if err != nil {
		return nil, err
	}
	return m.States(), nil
}

// Toggle переключает статус записи по актуальному значению из хранилища.
func (s *StatusService) Toggle(ctx context.Context, name, id string) (string, error) {
	sc, m, err := s.machine(name)
	if err != nil {
		return "", err
	}
	rec, err := s.store.GetByID(ctx, sc.Collection, id)
	if err != nil {
		return "", err
	}
	next, err := m.Toggle(sc.StatusValue(rec.Get(sc.StatusField)))
	if err != nil {
		return "", err
	}
	if err := s.store.Update(ctx, sc.Collection, id, map[string]any{sc.StatusField: next}); err != nil {
		return "", err
	}
	s.logChange(ctx, sc, id, rec.String(sc.StatusField), next)
	return next, nil
}

// SetStatus устанавливает статус явным выбором.
func (s *StatusService) SetStatus(ctx context.Context, name, id, target string) error {
	sc, m, err := s.machine(name)
	if err != nil {
		return err
	}
	if err := m.Select(target); err != nil {
		return err
	}
	if err := s.store.Update(ctx, sc.Collection, id, map[string]any{sc.StatusField: target}); err != nil {
		return err
	}
	s.logChange(ctx, sc, id, "", target)
	return nil
}

// ToggleInSession переключает статус записи в списке сессии: сразу меняет
// запись в памяти, затем сохраняет в хранилище. При ошибке хранилища запись
// возвращается к снимку, ошибка возвращается вызывающему.
func (s *StatusService) ToggleInSession(ctx context.Context, name string, sess *listing.Session, id string) (string, error) {
	sc, m, err := s.machine(name)
	if err != nil {
		return "", err
	}
	rec, ok := sess.Find(id)
	if !ok {
		return "", ErrNotFound
	}
	next, err := m.Toggle(sc.StatusValue(rec.Get(sc.StatusField)))
	if err != nil {
		return "", err
	}
	if err := s.persistInSession(ctx, sc, sess, id, next); err != nil {
		return "", err
	}
	s.logChange(ctx, sc, id, rec.String(sc.StatusField), next)
	return next, nil
}

// SetStatusInSession — явный выбор статуса с тем же откатом, что и ToggleInSession.
func (s *StatusService) SetStatusInSession(ctx context.Context, name string, sess *listing.Session, id, target string) error {
	sc, m, err := s.machine(name)
	if err != nil {
		return err
	}
	if err := m.Select(target); err != nil {
		return err
	}
	rec, ok := sess.Find(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.persistInSession(ctx, sc, sess, id, target); err != nil {
		return err
	}
	s.logChange(ctx, sc, id, rec.String(sc.StatusField), target)
	return nil
}

func (s *StatusService) persistInSession(ctx context.Context, sc *screens.Screen, sess *listing.Session, id, next string) error {
	snapshot, ok := sess.Patch(id, map[string]any{sc.StatusField: next})
	if !ok {
		return ErrNotFound
	}
	if err := s.store.Update(ctx, sc.Collection, id, map[string]any{sc.StatusField: next}); err != nil {
		sess.Restore(snapshot)
		s.logger.Warn("Статус не сохранён, изменение отменено",
			slog.String("screen", sc.Name),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (s *StatusService) logChange(ctx context.Context, sc *screens.Screen, id, from, to string) {
	s.logger.Info("Статус изменён",
		slog.String("screen", sc.Name),
		slog.String("id", id),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
}

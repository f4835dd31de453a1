// guard.go — обёртка хранилища: таймаут операции, Prometheus метрики
// (sa_store_operations_total, sa_store_operation_duration_seconds) и логирование сбоев.
package docstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultOpTimeout — таймаут операции хранилища по умолчанию.
const DefaultOpTimeout = 30 * time.Second

var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sa_store_operations_total",
			Help: "Количество операций с хранилищем документов",
		},
		[]string{"op", "collection", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sa_store_operation_duration_seconds",
			Help:    "Длительность операций с хранилищем документов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// Guarded ограничивает каждую операцию таймаутом. Чтение по истечении
// таймаута прерывается с StoreError{Retryable: true}, даже если бэкенд не
// реагирует на контекст. Запись дожидается ответа бэкенда: результат
// зафиксированной записи не подменяется ошибкой, иначе повтор создал бы
// дубликат или пропустил номер счётчика.
type Guarded struct {
	next    Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewGuarded оборачивает хранилище. timeout <= 0 — DefaultOpTimeout.
func NewGuarded(next Store, timeout time.Duration, logger *slog.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &Guarded{
		next:    next,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "docstore")),
	}
}

// Unwrap возвращает обёрнутое хранилище.
func (g *Guarded) Unwrap() Store { return g.next }

// run выполняет чтение с таймаутом и учитывает результат в метриках.
func run[T any](g *Guarded, ctx context.Context, op, collection string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	var res result
	select {
	case res = <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.err = &StoreError{Op: op, Collection: collection, Retryable: true, Err: context.DeadlineExceeded}
		}
	case <-ctx.Done():
		res.err = &StoreError{
			Op: op, Collection: collection,
			Retryable: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:       ctx.Err(),
		}
	}

	g.observe(op, collection, start, res.err)
	return res.v, res.err
}

// runWrite выполняет запись с таймаутом в контексте и ждёт ответа бэкенда.
func runWrite[T any](g *Guarded, ctx context.Context, op, collection string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &StoreError{Op: op, Collection: collection, Retryable: true, Err: context.DeadlineExceeded}
	}
	g.observe(op, collection, start, err)
	return v, err
}

func (g *Guarded) observe(op, collection string, start time.Time, err error) {
	storeOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	storeOperationsTotal.WithLabelValues(op, collection, statusLabel(err)).Inc()

	var se *StoreError
	if errors.As(err, &se) {
		g.logger.Warn("Сбой операции хранилища",
			slog.String("op", op),
			slog.String("collection", collection),
			slog.Bool("retryable", se.Retryable),
			slog.String("error", se.Err.Error()),
		)
	}
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case IsRetryable(err):
		return "retryable"
	default:
		return "error"
	}
}

func (g *Guarded) List(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	return run(g, ctx, "list", collection, func(ctx context.Context) ([]Record, error) {
		return g.next.List(ctx, collection, filters...)
	})
}

func (g *Guarded) CountWhere(ctx context.Context, collection string, filters ...Filter) (int, error) {
	return run(g, ctx, "count", collection, func(ctx context.Context) (int, error) {
		return g.next.CountWhere(ctx, collection, filters...)
	})
}

func (g *Guarded) GetByID(ctx context.Context, collection, id string) (Record, error) {
	return run(g, ctx, "get", collection, func(ctx context.Context) (Record, error) {
		return g.next.GetByID(ctx, collection, id)
	})
}

func (g *Guarded) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	return runWrite(g, ctx, "create", collection, func(ctx context.Context) (string, error) {
		return g.next.Create(ctx, collection, id, fields)
	})
}

func (g *Guarded) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	_, err := runWrite(g, ctx, "update", collection, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Update(ctx, collection, id, patch)
	})
	return err
}

func (g *Guarded) Delete(ctx context.Context, collection, id string) error {
	_, err := runWrite(g, ctx, "delete", collection, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Delete(ctx, collection, id)
	})
	return err
}

func (g *Guarded) NextSequence(ctx context.Context, counter string) (int64, error) {
	return runWrite(g, ctx, "sequence", counter, func(ctx context.Context) (int64, error) {
		return g.next.NextSequence(ctx, counter)
	})
}

package docstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// stuckStore игнорирует контекст и не отвечает, пока не закрыт release.
type stuckStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *stuckStore) List(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	<-s.release
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuarded_TimeoutIsRetryable(t *testing.T) {
	inner := &stuckStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	defer close(inner.release)

	g := NewGuarded(inner, 20*time.Millisecond, discardLogger())

	start := time.Now()
	_, err := g.List(context.Background(), "blogs")
	if time.Since(start) > time.Second {
		t.Fatal("Guarded не прервал операцию по таймауту")
	}

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("ожидается StoreError, получено %v", err)
	}
	if !se.Retryable {
		t.Error("таймаут должен давать Retryable=true")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ошибка должна оборачивать DeadlineExceeded: %v", err)
	}
}

// slowWriteStore фиксирует запись уже после истечения таймаута вызывающего.
type slowWriteStore struct {
	*MemoryStore
	delay time.Duration
}

func (s *slowWriteStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.Create(context.Background(), collection, id, fields)
}

func (s *slowWriteStore) NextSequence(ctx context.Context, counter string) (int64, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.NextSequence(context.Background(), counter)
}

// Update ждёт отмены контекста, как pgx и SQLite.
func (s *slowWriteStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	<-ctx.Done()
	return wrap("update", collection, ctx.Err(), nil)
}

func TestGuarded_WriteReportsBackendOutcome(t *testing.T) {
	inner := &slowWriteStore{MemoryStore: NewMemoryStore(), delay: 50 * time.Millisecond}
	g := NewGuarded(inner, 10*time.Millisecond, discardLogger())
	ctx := context.Background()

	id, err := g.Create(ctx, "blogs", "b1", map[string]any{"title": "t"})
	if err != nil || id != "b1" {
		t.Fatalf("Create() = %q, %v; запись зафиксирована, ошибки быть не должно", id, err)
	}
	if _, err := inner.MemoryStore.GetByID(ctx, "blogs", "b1"); err != nil {
		t.Fatalf("запись не найдена: %v", err)
	}

	for want := int64(1); want <= 2; want++ {
		n, err := g.NextSequence(ctx, "blogCounter")
		if err != nil || n != want {
			t.Fatalf("NextSequence() = %d, %v; ожидается %d", n, err, want)
		}
	}

	err = g.Update(ctx, "blogs", "b1", map[string]any{"title": "x"})
	var se *StoreError
	if !errors.As(err, &se) || !se.Retryable || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Update() по таймауту = %v, ожидается retryable StoreError", err)
	}
}

func TestGuarded_PassesDomainErrors(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), time.Second, discardLogger())
	ctx := context.Background()

	if _, err := g.GetByID(ctx, "blogs", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() = %v, ожидается ErrNotFound", err)
	}
	id, err := g.Create(ctx, "blogs", "1", map[string]any{"title": "t"})
	if err != nil || id != "1" {
		t.Fatalf("Create() = %q, %v", id, err)
	}
	if _, err := g.Create(ctx, "blogs", "1", nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create() = %v, ожидается ErrDuplicate", err)
	}
	if IsRetryable(ErrNotFound) {
		t.Error("ErrNotFound не должен быть retryable")
	}
}

func TestGuarded_DefaultTimeout(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), 0, discardLogger())
	if g.timeout != DefaultOpTimeout {
		t.Errorf("timeout = %v, ожидается %v", g.timeout, DefaultOpTimeout)
	}
}

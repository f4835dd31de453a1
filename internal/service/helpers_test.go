package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/screens"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultScreens(t *testing.T) *screens.Registry {
	t.Helper()
	reg, err := screens.Default()
	if err != nil {
		t.Fatalf("screens.Default() вернул ошибку: %v", err)
	}
	return reg
}

// seed создаёт документы; пустой ID — сгенерирует хранилище.
func seed(t *testing.T, store docstore.Store, collection string, docs ...docstore.Record) {
	t.Helper()
	for _, d := range docs {
		if _, err := store.Create(context.Background(), collection, d.ID, d.Fields); err != nil {
			t.Fatalf("seed %s/%s: %v", collection, d.ID, err)
		}
	}
}

func doc(id string, fields map[string]any) docstore.Record {
	return docstore.Record{ID: id, Fields: fields}
}

var errBackend = &docstore.StoreError{Op: "update", Retryable: true, Err: errors.New("соединение сброшено")}

// flakyStore — хранилище в памяти, у которого можно сломать отдельные
// операции, и счётчик обращений.
type flakyStore struct {
	*docstore.MemoryStore
	failList   bool
	failUpdate bool
	calls      atomic.Int64
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: docstore.NewMemoryStore()}
}

func (s *flakyStore) List(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Record, error) {
	s.calls.Add(1)
	if s.failList {
		return nil, errBackend
	}
	return s.MemoryStore.List(ctx, collection, filters...)
}

func (s *flakyStore) GetByID(ctx context.Context, collection, id string) (docstore.Record, error) {
	s.calls.Add(1)
	return s.MemoryStore.GetByID(ctx, collection, id)
}

func (s *flakyStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	s.calls.Add(1)
	if s.failUpdate {
		return errBackend
	}
	return s.MemoryStore.Update(ctx, collection, id, patch)
}

func (s *flakyStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	s.calls.Add(1)
	return s.MemoryStore.Create(ctx, collection, id, fields)
}

// validationFields извлекает поля ValidationError или проваливает тест.
func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ожидалась ValidationError, получено: %v", err)
	}
	return verr.Fields
}

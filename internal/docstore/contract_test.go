package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// runContract проверяет общее поведение любого бэкенда Store.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateGetUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Create(ctx, "footer_url", "", map[string]any{"name": "Блог", "status": "active"})
		if err != nil {
			t.Fatalf("Create() вернул ошибку: %v", err)
		}
		if id == "" {
			t.Fatal("Create() вернул пустой id")
		}

		r, err := s.GetByID(ctx, "footer_url", id)
		if err != nil {
			t.Fatalf("GetByID() вернул ошибку: %v", err)
		}
		if r.String("name") != "Блог" {
			t.Errorf("name = %q, ожидается Блог", r.String("name"))
		}
		if r.Get(FieldCreatedAt) == nil || r.Get(FieldUpdatedAt) == nil {
			t.Error("createdAt/updatedAt не проставлены")
		}

		if err := s.Update(ctx, "footer_url", id, map[string]any{"status": "inactive"}); err != nil {
			t.Fatalf("Update() вернул ошибку: %v", err)
		}
		r, _ = s.GetByID(ctx, "footer_url", id)
		if r.String("status") != "inactive" {
			t.Errorf("status = %q, ожидается inactive", r.String("status"))
		}
		if r.String("name") != "Блог" {
			t.Errorf("Update() затёр поле name: %q", r.String("name"))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.GetByID(ctx, "blogs", "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetByID() = %v, ожидается ErrNotFound", err)
		}
		if err := s.Update(ctx, "blogs", "missing", map[string]any{"a": 1}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update() = %v, ожидается ErrNotFound", err)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Create(ctx, "franchise_loaction", "5", map[string]any{"branch": "A"}); err != nil {
			t.Fatalf("Create() вернул ошибку: %v", err)
		}
		if _, err := s.Create(ctx, "franchise_loaction", "5", map[string]any{"branch": "B"}); !errors.Is(err, ErrDuplicate) {
			t.Errorf("повторный Create() = %v, ожидается ErrDuplicate", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, _ := s.Create(ctx, "blogs", "", map[string]any{"title": "x"})
		if err := s.Delete(ctx, "blogs", id); err != nil {
			t.Fatalf("Delete() вернул ошибку: %v", err)
		}
		if err := s.Delete(ctx, "blogs", id); err != nil {
			t.Errorf("повторный Delete() вернул ошибку: %v", err)
		}
		if _, err := s.GetByID(ctx, "blogs", id); !errors.Is(err, ErrNotFound) {
			t.Errorf("после Delete() GetByID() = %v, ожидается ErrNotFound", err)
		}
	})

	t.Run("ListFiltersCoerceTypes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.Create(ctx, "category_manage", "", map[string]any{"category_name": "AC", "status": 1})
		s.Create(ctx, "category_manage", "", map[string]any{"category_name": "RO", "status": "1"})
		s.Create(ctx, "category_manage", "", map[string]any{"category_name": "Old", "status": "0"})

		active, err := s.List(ctx, "category_manage", Eq("status", "1"))
		if err != nil {
			t.Fatalf("List() вернул ошибку: %v", err)
		}
		if len(active) != 2 {
			t.Fatalf("len(active) = %d, ожидается 2", len(active))
		}
		if active[0].String("category_name") != "AC" || active[1].String("category_name") != "RO" {
			t.Errorf("нарушен порядок вставки: %q, %q",
				active[0].String("category_name"), active[1].String("category_name"))
		}

		n, err := s.CountWhere(ctx, "category_manage", Eq("status", 0))
		if err != nil {
			t.Fatalf("CountWhere() вернул ошибку: %v", err)
		}
		if n != 1 {
			t.Errorf("CountWhere(status=0) = %d, ожидается 1", n)
		}

		all, _ := s.CountWhere(ctx, "category_manage")
		if all != 3 {
			t.Errorf("CountWhere() = %d, ожидается 3", all)
		}

		empty, err := s.List(ctx, "nothing_here")
		if err != nil || len(empty) != 0 {
			t.Errorf("List(пустая коллекция) = %v, %v", empty, err)
		}
	})

	t.Run("NextSequenceConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.NextSequence(ctx, "blogCounter")
		if err != nil {
			t.Fatalf("NextSequence() вернул ошибку: %v", err)
		}

		const workers = 20
		var (
			mu     sync.Mutex
			values []int64
			wg     sync.WaitGroup
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.NextSequence(ctx, "blogCounter")
				if err != nil {
					t.Errorf("NextSequence() вернул ошибку: %v", err)
					return
				}
				mu.Lock()
				values = append(values, v)
				mu.Unlock()
			}()
		}
		wg.Wait()

		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		if len(values) != workers {
			t.Fatalf("получено %d значений, ожидается %d", len(values), workers)
		}
		for i, v := range values {
			if v != first+1+int64(i) {
				t.Fatalf("значения не образуют непрерывный ряд: %v", values)
			}
		}

		other, _ := s.NextSequence(ctx, "categoryCounter")
		if other != 1 {
			t.Errorf("независимый счётчик = %d, ожидается 1", other)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, "blogs", "", map[string]any{"title": "a"})

	r, _ := s.GetByID(ctx, "blogs", id)
	r.Fields["title"] = "изменено"

	again, _ := s.GetByID(ctx, "blogs", id)
	if again.String("title") != "a" {
		t.Errorf("изменение копии затронуло хранилище: %q", again.String("title"))
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.List(ctx, "blogs")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("ожидается StoreError, получено %v", err)
	}
}

func TestRecordGet(t *testing.T) {
	r := Record{ID: "doc1", Fields: map[string]any{"id": float64(7), "name": "x"}}
	if r.String("id") != "7" {
		t.Errorf("id = %q, ожидается поле документа 7", r.String("id"))
	}
	r2 := Record{ID: "doc2", Fields: map[string]any{}}
	if r2.String("id") != "doc2" {
		t.Errorf("id = %q, ожидается ID документа", r2.String("id"))
	}
	if r2.Get("missing") != nil {
		t.Error("отсутствующее поле должно возвращать nil")
	}
}

package listing

import (
	"maps"
	"sync"

	"github.com/bigkaa/siteadmin/internal/docstore"
)

// Session — список одного экрана, загруженный в память: исходные записи,
// текущие критерии и номер страницы. Принадлежит одной сессии пользователя;
// методы безопасны для конкурентного вызова.
type Session struct {
	mu       sync.Mutex
	schema   Schema
	pageSize int
	records  []docstore.Record
	criteria Criteria
	page     int
}

// NewSession создаёт пустую сессию списка.
func NewSession(schema Schema, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Session{schema: schema, pageSize: pageSize, page: 1}
}

// Load заменяет исходные записи. Номер страницы сохраняется и будет
// ограничен при следующем View.
func (s *Session) Load(records []docstore.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]docstore.Record, len(records))
	for i, r := range records {
		s.records[i] = r.Clone()
	}
}

// SetCriteria задаёт критерии. Если они изменились, страница сбрасывается на первую.
// Возвращает true при изменении.
func (s *Session) SetCriteria(c Criteria) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.criteria.Equal(c) {
		return false
	}
	s.criteria = c
	s.page = 1
	return true
}

// Criteria возвращает текущие критерии.
func (s *Session) Criteria() Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// SetPage переходит на страницу n (ограничивается при View).
func (s *Session) SetPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = n
}

// View применяет критерии и возвращает текущую страницу.
func (s *Session) View() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := Apply(s.records, s.criteria, s.schema)
	p := Paginate(filtered, s.pageSize, s.page)
	s.page = p.Window.CurrentPage
	return p
}

// Filtered возвращает все записи, прошедшие критерии, без разбиения на страницы.
func (s *Session) Filtered() []docstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Apply(s.records, s.criteria, s.schema)
}

// Find возвращает копию записи по ID.
func (s *Session) Find(id string) (docstore.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return docstore.Record{}, false
}

// Patch сливает поля с записью id и возвращает снимок записи до изменения.
func (s *Session) Patch(id string, fields map[string]any) (docstore.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID != id {
			continue
		}
		snapshot := r.Clone()
		next := r.Clone()
		if next.Fields == nil {
			next.Fields = make(map[string]any, len(fields))
		}
		maps.Copy(next.Fields, fields)
		s.records[i] = next
		return snapshot, true
	}
	return docstore.Record{}, false
}

// Restore возвращает запись к снимку (по ID снимка).
func (s *Session) Restore(snapshot docstore.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == snapshot.ID {
			s.records[i] = snapshot.Clone()
			return
		}
	}
}

// Remove убирает запись из списка (после удаления в хранилище).
func (s *Session) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			return
		}
	}
}

package service

import (
	"context"
	"testing"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/model"
)

func TestDashboardService_Summary(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, model.CollectionLinks,
		doc("", map[string]any{"name": "a", "status": "active"}),
		doc("", map[string]any{"name": "b", "status": "active"}),
		doc("", map[string]any{"name": "c", "status": "inactive"}),
	)
	seed(t, store, model.CollectionBlogs,
		doc("", map[string]any{"blog_title": "x", "status": "published"}),
		doc("", map[string]any{"blog_title": "y", "status": "draft"}),
	)
	seed(t, store, model.CollectionContactLeads,
		doc("", map[string]any{"name": "Ravi", "status": "new"}),
		doc("", map[string]any{"name": "Meera"}),
		doc("", map[string]any{"name": "Anil", "status": "converted"}),
	)
	seed(t, store, model.CollectionPages,
		doc("", map[string]any{"page_title": "p", "status": "1"}),
		doc("", map[string]any{"page_title": "q", "status": "0"}),
	)
	svc := NewDashboardService(store, defaultScreens(t), discardLogger())

	counts, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() вернул ошибку: %v", err)
	}
	got := make(map[string]ScreenCount)
	for _, c := range counts {
		got[c.Screen] = c
	}

	if c := got["links"]; c.Total != 3 || c.ByStatus["active"] != 2 || c.ByStatus["inactive"] != 1 {
		t.Errorf("links: %+v", c)
	}
	if c := got["blog"]; c.Total != 2 || c.ByStatus["published"] != 1 || c.ByStatus["draft"] != 1 {
		t.Errorf("blog: %+v", c)
	}
	// Заявка без статуса считается новой.
	if c := got["contact_leads"]; c.Total != 3 || c.ByStatus["new"] != 2 || c.ByStatus["converted"] != 1 {
		t.Errorf("contact_leads: %+v", c)
	}
	// Базовое ограничение экрана страниц учитывается, разбивки по статусу нет.
	if c := got["pages"]; c.Total != 1 || c.ByStatus != nil {
		t.Errorf("pages: %+v", c)
	}
	if c := got["locations"]; c.Total != 0 || c.ByStatus != nil {
		t.Errorf("locations: %+v", c)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/domain/model"
)

func seedPages(t *testing.T, store docstore.Store) {
	t.Helper()
	seed(t, store, model.CollectionCategories,
		doc("c7", map[string]any{"id": "7", "category_name": "Plumbing", "category_url": "plumbing", "status": "1"}),
		doc("c8", map[string]any{"id": 8, "category_name": "Painting", "category_url": "painting", "status": "0"}),
	)
	seed(t, store, model.CollectionCities,
		doc("", map[string]any{"id": 3, "city_name": "Pune", "city_url": "pune", "state_name": "Maharashtra", "status": "1"}),
		doc("", map[string]any{"id": "4", "city_name": "Nagpur", "city_url": "nagpur", "state_name": "Maharashtra", "status": 0}),
		doc("", map[string]any{"id": "5", "city_name": "Surat", "city_url": "surat", "state_name": "Gujarat", "status": 1}),
	)
	seed(t, store, model.CollectionPages,
		doc("p1", map[string]any{"page_title": "Pune plumbing", "category_id": 7, "city_id": "3", "status": "1"}),
		doc("p2", map[string]any{"page_title": "Orphan", "category_id": "99", "city_id": "4", "status": "1"}),
		doc("p3", map[string]any{"page_title": "Hidden", "category_id": "7", "city_id": "3", "status": "0"}),
		doc("p4", map[string]any{"page_title": "Surat", "city_id": 5, "page_url": "/custom", "status": 1}),
	)
}

func newListing(t *testing.T, store docstore.Store) *ListingService {
	t.Helper()
	return NewListingService(store, defaultScreens(t), NewRefCache(16, 0), 10, discardLogger())
}

func byID(items []docstore.Record) map[string]docstore.Record {
	out := make(map[string]docstore.Record, len(items))
	for _, r := range items {
		out[r.ID] = r
	}
	return out
}

func TestListScreen_PagesDenormalized(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPages(t, store)
	svc := newListing(t, store)

	res, err := svc.ListScreen(context.Background(), "pages", Query{})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if res.Window.TotalItems != 3 {
		t.Fatalf("TotalItems = %d, ожидается 3 (p3 неактивна)", res.Window.TotalItems)
	}

	items := byID(res.Items)
	tests := []struct {
		id, category, city, state, link string
	}{
		{"p1", "Plumbing", "Pune", "Maharashtra", "/pune/plumbing"},
		{"p2", "Category ID: 99", "City ID: 4", "N/A", "#"},
		{"p4", "Category ID: ", "Surat", "Gujarat", "/surat"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r, ok := items[tt.id]
			if !ok {
				t.Fatalf("запись %s отсутствует в списке", tt.id)
			}
			if got := r.String("category_name"); got != tt.category {
				t.Errorf("category_name = %q, ожидается %q", got, tt.category)
			}
			if got := r.String("city_name"); got != tt.city {
				t.Errorf("city_name = %q, ожидается %q", got, tt.city)
			}
			if got := r.String("state_name"); got != tt.state {
				t.Errorf("state_name = %q, ожидается %q", got, tt.state)
			}
			if got := r.String("page_link"); got != tt.link {
				t.Errorf("page_link = %q, ожидается %q", got, tt.link)
			}
		})
	}

	if got := res.Facets["state_name"]; !slices.Equal(got, []string{"Gujarat", "Maharashtra", "N/A"}) {
		t.Errorf("Facets[state_name] = %v", got)
	}
}

func TestListScreen_StateFilterAndSearch(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPages(t, store)
	svc := newListing(t, store)
	ctx := context.Background()

	res, err := svc.ListScreen(ctx, "pages", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"state_name": "Maharashtra", "category_id": listing.All},
	}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "p1" {
		t.Errorf("фильтр по штату: получено %v", res.Items)
	}
	// Фасеты строятся по всем записям, а не по отфильтрованным.
	if len(res.Facets["state_name"]) != 3 {
		t.Errorf("Facets[state_name] = %v", res.Facets["state_name"])
	}

	res, err = svc.ListScreen(ctx, "pages", Query{Criteria: listing.Criteria{Search: "  PLUMB "}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "p1" {
		t.Errorf("поиск по денормализованному имени: получено %v", res.Items)
	}
}

func TestListScreen_Pagination(t *testing.T) {
	store := docstore.NewMemoryStore()
	for i := 1; i <= 20; i++ {
		seed(t, store, model.CollectionLocations, doc("", map[string]any{
			"id": i, "branch": fmt.Sprintf("Branch %02d", i), "city_name": "Pune", "address": "-",
		}))
	}
	svc := newListing(t, store)

	res, err := svc.ListScreen(context.Background(), "locations", Query{Page: 5})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if res.Window.CurrentPage != 3 || res.TotalPages != 3 {
		t.Errorf("страница %d из %d, ожидается 3 из 3", res.Window.CurrentPage, res.TotalPages)
	}
	if len(res.Items) != 2 || res.From != 19 || res.To != 20 {
		t.Errorf("на последней странице %d записей (%d-%d)", len(res.Items), res.From, res.To)
	}
	if !slices.Equal(res.Buttons, []int{1, 2, 3}) {
		t.Errorf("Buttons = %v", res.Buttons)
	}
	if res.Items[0].String("branch") != "Branch 19" {
		t.Errorf("сортировка по branch: первая запись %q", res.Items[0].String("branch"))
	}
}

func TestListScreen_FacetsIgnorePushdown(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, model.CollectionPartnerLeads,
		doc("", map[string]any{"fullName": "A", "state": "Goa", "status": "pending"}),
		doc("", map[string]any{"fullName": "B", "state": "Kerala", "status": "approved"}),
	)
	svc := newListing(t, store)

	res, err := svc.ListScreen(context.Background(), "partner_leads", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"state": "Goa", "status": "pending"},
	}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if len(res.Items) != 1 {
		t.Errorf("получено %d записей, ожидается 1", len(res.Items))
	}
	if !slices.Equal(res.Facets["state"], []string{"Goa", "Kerala"}) {
		t.Errorf("Facets[state] = %v", res.Facets["state"])
	}
}

func TestListScreen_MissingStatusReadsAsInitial(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, model.CollectionContactLeads,
		doc("c1", map[string]any{"name": "Без статуса"}),
		doc("c2", map[string]any{"name": "Новая", "status": "new"}),
		doc("c3", map[string]any{"name": "Отказ", "status": "rejected"}),
	)
	svc := newListing(t, store)

	res, err := svc.ListScreen(context.Background(), "contact_leads", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"status": "new"},
	}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	items := byID(res.Items)
	if len(items) != 2 {
		t.Fatalf("получено %d записей, ожидается 2: %v", len(items), res.Items)
	}
	if got := items["c1"].Fields["status"]; got != "new" {
		t.Errorf("статус записи без статуса = %v, ожидается new", got)
	}

	res, err = svc.ListScreen(context.Background(), "contact_leads", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"status": "rejected"},
	}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "c3" {
		t.Errorf("фильтр rejected: %v", res.Items)
	}

	stored, err := store.GetByID(context.Background(), model.CollectionContactLeads, "c1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, ok := stored.Fields["status"]; ok {
		t.Error("статус по умолчанию записан в хранилище")
	}
}

func TestListScreen_PartnerLeadsByService(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, model.CollectionPartnerLeads,
		doc("a", map[string]any{"fullName": "A", "selectedService": "cleaning", "status": "pending"}),
		doc("b", map[string]any{"fullName": "B", "selectedService": "repair"}),
		doc("c", map[string]any{"fullName": "C", "selectedService": "cleaning", "status": "approved"}),
	)
	svc := newListing(t, store)

	res, err := svc.ListScreen(context.Background(), "partner_leads", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"selectedService": "cleaning"},
	}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	items := byID(res.Items)
	if len(items) != 2 || items["a"].ID == "" || items["c"].ID == "" {
		t.Errorf("фильтр по услуге: %v", res.Items)
	}
	if !slices.Equal(res.Facets["selectedService"], []string{"cleaning", "repair"}) {
		t.Errorf("Facets[selectedService] = %v", res.Facets["selectedService"])
	}

	res, err = svc.ListScreen(context.Background(), "partner_leads", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"selectedService": "repair", "status": "pending"},
	}})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "b" {
		t.Errorf("услуга repair в статусе pending: %v", res.Items)
	}
}

func TestListScreen_HiddenFields(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, model.CollectionUsers, doc("u1", map[string]any{
		"name": "Asha", "email": "asha@example.com", "password_hash": "$2a$secret",
	}))
	svc := newListing(t, store)

	res, err := svc.ListScreen(context.Background(), "users", Query{})
	if err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if _, ok := res.Items[0].Fields["password_hash"]; ok {
		t.Error("password_hash не должен попадать в список")
	}
	stored, _ := store.GetByID(context.Background(), model.CollectionUsers, "u1")
	if stored.String("password_hash") == "" {
		t.Error("скрытие поля не должно менять хранилище")
	}
}

func TestListScreen_Errors(t *testing.T) {
	store := newFlakyStore()
	svc := newListing(t, store)
	ctx := context.Background()

	if _, err := svc.ListScreen(ctx, "nope", Query{}); !errors.Is(err, ErrUnknownScreen) {
		t.Errorf("неизвестный экран: получено %v", err)
	}

	_, err := svc.ListScreen(ctx, "links", Query{Criteria: listing.Criteria{
		Equality: map[string]string{"url": "x"},
		SortKey:  "color",
	}})
	fields := validationFields(t, err)
	if fields["url"] == "" || fields["sort"] == "" {
		t.Errorf("ожидались ошибки по url и sort: %v", fields)
	}
	if store.calls.Load() != 0 {
		t.Error("валидация должна проходить до обращения к хранилищу")
	}

	store.failList = true
	_, err = svc.ListScreen(ctx, "links", Query{})
	if !docstore.IsRetryable(err) {
		t.Errorf("сбой хранилища должен быть retryable StoreError: %v", err)
	}
}

func TestListScreen_ReferenceCache(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPages(t, store)
	cache := NewRefCache(16, 0)
	svc := NewListingService(store, defaultScreens(t), cache, 10, discardLogger())
	ctx := context.Background()

	if _, err := svc.ListScreen(ctx, "pages", Query{}); err != nil {
		t.Fatalf("ListScreen() вернул ошибку: %v", err)
	}
	if cache.Len() != 2 {
		t.Fatalf("в кэше %d справочников, ожидается 2", cache.Len())
	}

	// Переименование категории видно после сброса кэша.
	store.Update(ctx, model.CollectionCategories, "c7", map[string]any{"category_name": "Pipes"})
	res, _ := svc.ListScreen(ctx, "pages", Query{})
	if got := byID(res.Items)["p1"].String("category_name"); got != "Plumbing" {
		t.Errorf("до сброса кэша: %q", got)
	}
	cache.Invalidate(model.CollectionCategories)
	res, _ = svc.ListScreen(ctx, "pages", Query{})
	if got := byID(res.Items)["p1"].String("category_name"); got != "Pipes" {
		t.Errorf("после сброса кэша: %q", got)
	}
}

func TestNormalizeCriteria_Defaults(t *testing.T) {
	reg := defaultScreens(t)
	sc, _ := reg.Get("contact_leads")

	c, err := NormalizeCriteria(sc, listing.Criteria{})
	if err != nil {
		t.Fatalf("NormalizeCriteria() вернул ошибку: %v", err)
	}
	if c.SortKey != "createdAt" || c.SortDir != listing.Desc {
		t.Errorf("сортировка по умолчанию: %s %s", c.SortKey, c.SortDir)
	}

	rng, _ := listing.ParseRange("2024-03-10", "2024-03-01")
	_, err = NormalizeCriteria(sc, listing.Criteria{Range: rng})
	if validationFields(t, err)["date"] == "" {
		t.Error("ожидалась ошибка по диапазону дат")
	}

	loc, _ := reg.Get("locations")
	rng, _ = listing.ParseRange("2024-03-01", "2024-03-10")
	_, err = NormalizeCriteria(loc, listing.Criteria{Range: rng})
	if validationFields(t, err)["date"] == "" {
		t.Error("у экрана без date_field фильтр по дате недопустим")
	}
}

func TestOpenSession_ReloadKeepsCriteria(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, model.CollectionLinks,
		doc("l1", map[string]any{"name": "Home", "url": "https://a.example", "status": "active"}),
	)
	svc := newListing(t, store)
	ctx := context.Background()

	sess, err := svc.OpenSession(ctx, "links", listing.Criteria{Equality: map[string]string{"status": "active"}})
	if err != nil {
		t.Fatalf("OpenSession() вернул ошибку: %v", err)
	}
	if n := sess.View().Window.TotalItems; n != 1 {
		t.Fatalf("в сессии %d записей", n)
	}

	seed(t, store, model.CollectionLinks,
		doc("l2", map[string]any{"name": "Blog", "url": "https://b.example", "status": "active"}),
		doc("l3", map[string]any{"name": "Old", "url": "https://c.example", "status": "inactive"}),
	)
	if err := svc.Reload(ctx, "links", sess); err != nil {
		t.Fatalf("Reload() вернул ошибку: %v", err)
	}
	if n := sess.View().Window.TotalItems; n != 2 {
		t.Errorf("после Reload %d записей, ожидается 2", n)
	}
}

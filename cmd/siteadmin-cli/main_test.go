package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/model"
)

// seedSQLite создаёт файл SQLite с данными и возвращает путь к нему.
func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siteadmin.db")
	ctx := context.Background()
	s, err := docstore.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	seed := []struct {
		collection, id string
		fields         map[string]any
	}{
		{model.CollectionLinks, "l1", map[string]any{"name": "Франшиза", "url": "https://a.example", "status": "active"}},
		{model.CollectionLinks, "l2", map[string]any{"name": "Контакты", "url": "https://b.example", "status": "inactive"}},
		{model.CollectionContactLeads, "c1", map[string]any{"name": "Анна", "email": "anna@example.com", "status": "new", "createdAt": "2024-03-01T10:00:00Z"}},
		{model.CollectionLocations, "f1", map[string]any{"id": "4", "branch": "Центр"}},
	}
	for _, d := range seed {
		if _, err := s.Create(ctx, d.collection, d.id, d.fields); err != nil {
			t.Fatalf("seed %s: %v", d.id, err)
		}
	}
	return path
}

// run выполняет команду CLI и возвращает stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SA_STORE_BACKEND", "sqlite")
	t.Setenv("SA_LOG_LEVEL", "error")

	// Глобальные флаги сохраняют значения между вызовами Execute.
	flagBackend, flagSQLitePath, flagJSON = "", "", false
	listFlags, exportFlags = criteriaFlags{}, criteriaFlags{}
	listPage, exportOutput = 1, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScreensCommand(t *testing.T) {
	out, err := run(t, "screens")
	if err != nil {
		t.Fatalf("screens: %v", err)
	}
	for _, want := range []string{"contact_leads", "enquireOptions", "franchise_loaction"} {
		if !strings.Contains(out, want) {
			t.Errorf("нет %q в выводе:\n%s", want, out)
		}
	}
}

func TestListCommand(t *testing.T) {
	db := seedSQLite(t)

	out, err := run(t, "--sqlite-path", db, "--json", "list", "links", "status=active")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var page struct {
		Items  []map[string]any `json:"items"`
		Window struct {
			TotalItems int `json:"total_items"`
		} `json:"window"`
	}
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("некорректный JSON: %v\n%s", err, out)
	}
	if page.Window.TotalItems != 1 || page.Items[0]["_id"] != "l1" {
		t.Errorf("страница: %+v", page)
	}

	out, err = run(t, "--sqlite-path", db, "list", "links", "--sort", "name")
	if err != nil {
		t.Fatalf("list table: %v", err)
	}
	if strings.Index(out, "Контакты") > strings.Index(out, "Франшиза") {
		t.Errorf("порядок сортировки по name:\n%s", out)
	}
	if !strings.Contains(out, "из 2") {
		t.Errorf("нет итога:\n%s", out)
	}

	if _, err := run(t, "--sqlite-path", db, "list", "links", "bogus"); err == nil {
		t.Error("ожидалась ошибка для фильтра без =")
	}
	if _, err := run(t, "--sqlite-path", db, "list", "links", "--sort", "bogus"); err == nil {
		t.Error("ожидалась ошибка для неизвестной сортировки")
	}
}

func TestExportCommand(t *testing.T) {
	db := seedSQLite(t)

	out, err := run(t, "--sqlite-path", db, "export", "contact_leads", "status=new", "-o", "-")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], `"Анна","anna@example.com"`) {
		t.Errorf("CSV:\n%s", out)
	}

	target := filepath.Join(t.TempDir(), "leads.csv")
	if _, err := run(t, "--sqlite-path", db, "export", "contact_leads", "-o", target); err != nil {
		t.Fatalf("export в файл: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil || !strings.HasPrefix(string(data), "Name,Email,Phone") {
		t.Errorf("файл выгрузки: %q, %v", data, err)
	}

	if _, err := run(t, "--sqlite-path", db, "export", "links"); err == nil {
		t.Error("ожидалась ошибка: у ссылок нет выгрузки")
	}
}

func TestSequenceCommands(t *testing.T) {
	db := seedSQLite(t)

	for want := 1; want <= 2; want++ {
		out, err := run(t, "--sqlite-path", db, "next-sequence", model.CounterBlog)
		if err != nil {
			t.Fatalf("next-sequence: %v", err)
		}
		if got := strings.TrimSpace(out); got != strconv.Itoa(want) {
			t.Errorf("значение %q, ожидалось %d", got, want)
		}
	}
	if _, err := run(t, "--sqlite-path", db, "next-sequence", "unknown"); err == nil {
		t.Error("ожидалась ошибка для неизвестного счётчика")
	}

	out, err := run(t, "--sqlite-path", db, "next-location-id")
	if err != nil {
		t.Fatalf("next-location-id: %v", err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Errorf("next-location-id = %q, ожидалось 5", out)
	}
}

package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/siteadmin/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers
// и возвращает конфиг для подключения к нему.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("siteadmin_test"),
		postgres.WithUsername("siteadmin"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("SA_DB_HOST", host)
	t.Setenv("SA_DB_PORT", port.Port())
	t.Setenv("SA_DB_NAME", "siteadmin_test")
	t.Setenv("SA_DB_USER", "siteadmin")
	t.Setenv("SA_DB_PASSWORD", "test-password")
	t.Setenv("SA_AUTH_ENABLED", "false")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func TestConnectAndMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение не должно падать.
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("повторный Migrate() вернул ошибку: %v", err)
	}

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"documents", "counters"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("проверка таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("таблица %s не создана", table)
		}
	}

	status, _ := NewReadinessChecker("PostgreSQL", pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() = %q, ожидается ok", status)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestReadinessChecker(t *testing.T) {
	status, msg := NewReadinessChecker("SQLite", fakePinger{}).CheckReady()
	if status != "ok" {
		t.Errorf("status = %q, ожидается ok (%s)", status, msg)
	}

	status, msg = NewReadinessChecker("SQLite", fakePinger{err: errors.New("disk I/O error")}).CheckReady()
	if status != "fail" {
		t.Errorf("status = %q, ожидается fail", status)
	}
	if msg != "SQLite недоступен: disk I/O error" {
		t.Errorf("message = %q", msg)
	}
}

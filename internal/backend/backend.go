// Пакет backend — открытие хранилища документов по конфигурации:
// PostgreSQL (с миграциями), SQLite или память.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/siteadmin/internal/config"
	"github.com/bigkaa/siteadmin/internal/database"
	"github.com/bigkaa/siteadmin/internal/docstore"
)

// Backend — открытое хранилище документов.
type Backend struct {
	// Store — бэкенд без обёрток (таймауты и лента изменений добавляются вызывающим).
	Store docstore.Store
	// DB — *sql.DB поверх пула PostgreSQL для topologymetrics; nil для других бэкендов.
	DB *sql.DB
	// Pinger — проверка подключения для readiness; nil у хранилища в памяти.
	Pinger database.Pinger

	closers []func()
}

// Close освобождает подключения в обратном порядке открытия.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open открывает бэкенд cfg.StoreBackend. Для PostgreSQL сначала применяются
// миграции.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, fmt.Errorf("миграции: %w", err)
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		// Проверка здоровья PostgreSQL идёт через существующий пул
		// соединений, что позволяет обнаружить его исчерпание.
		db := stdlib.OpenDBFromPool(pool)
		store := docstore.NewPostgresStore(pool)
		return &Backend{
			Store:   store,
			DB:      db,
			Pinger:  store,
			closers: []func(){pool.Close, func() { _ = db.Close() }},
		}, nil

	case config.BackendSQLite:
		store, err := docstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище SQLite открыто", slog.String("path", cfg.SQLitePath))
		return &Backend{
			Store:   store,
			Pinger:  store,
			closers: []func(){func() { _ = store.Close() }},
		}, nil

	case config.BackendMemory:
		logger.Warn("Хранилище в памяти: данные не сохраняются между перезапусками")
		return &Backend{Store: docstore.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.StoreBackend)
	}
}

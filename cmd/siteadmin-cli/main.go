// Точка входа siteadmin-cli — обслуживание хранилища консоли из командной
// строки: списки экранов, CSV-выгрузка заявок, счётчики номеров.
// Конфигурация та же, что у сервера (переменные окружения SA_*).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/siteadmin/internal/backend"
	"github.com/bigkaa/siteadmin/internal/config"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/screens"
	"github.com/bigkaa/siteadmin/internal/service"
)

// Значения глобальных флагов.
var (
	flagBackend    string
	flagSQLitePath string
	flagJSON       bool
)

// app — окружение команд, создаётся в PersistentPreRunE.
type app struct {
	be       *backend.Backend
	store    docstore.Store
	screens  *screens.Registry
	listing  *service.ListingService
	export   *service.ExportService
	entities *service.EntityService
	logger   *slog.Logger
}

var current *app

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "siteadmin-cli",
	Short:         "Обслуживание хранилища консоли siteadmin",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "screens" {
			return nil
		}
		return openApp(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if current != nil {
			current.be.Close()
			current = nil
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "бэкенд хранилища: postgres, sqlite, memory (по умолчанию SA_STORE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "sqlite-path", "", "файл SQLite (по умолчанию SA_SQLITE_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "вывод в JSON")

	rootCmd.AddCommand(screensCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(nextLocationIDCmd)
}

// openApp загружает конфигурацию с учётом флагов и открывает хранилище.
func openApp(ctx context.Context) error {
	if flagBackend != "" {
		os.Setenv("SA_STORE_BACKEND", flagBackend)
	}
	if flagSQLitePath != "" {
		os.Setenv("SA_SQLITE_PATH", flagSQLitePath)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}
	// Служебные сообщения — в stderr, stdout остаётся для данных.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("открытие хранилища: %w", err)
	}
	reg, err := screens.Default()
	if err != nil {
		be.Close()
		return err
	}

	store := docstore.NewGuarded(be.Store, cfg.StoreOpTimeout, logger)
	ls := service.NewListingService(store, reg, service.NewRefCache(cfg.XRefCacheSize, cfg.XRefCacheTTL), cfg.PageSize, logger)
	current = &app{
		be:       be,
		store:    store,
		screens:  reg,
		listing:  ls,
		export:   service.NewExportService(ls, logger),
		entities: service.NewEntityService(store, reg, logger),
		logger:   logger,
	}
	return nil
}

// Точка входа siteadmin — консоль администрирования сайта франшизы.
// Загружает конфигурацию, открывает хранилище документов (PostgreSQL, SQLite
// или память), применяет миграции, создаёт хранилище файлов, сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/bigkaa/siteadmin/internal/api/handlers"
	"github.com/bigkaa/siteadmin/internal/api/middleware"
	"github.com/bigkaa/siteadmin/internal/backend"
	"github.com/bigkaa/siteadmin/internal/blobstore"
	"github.com/bigkaa/siteadmin/internal/config"
	"github.com/bigkaa/siteadmin/internal/database"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/rbac"
	"github.com/bigkaa/siteadmin/internal/screens"
	"github.com/bigkaa/siteadmin/internal/server"
	"github.com/bigkaa/siteadmin/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("siteadmin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
	)

	if os.Getenv("SA_DEPHEALTH_GROUP") == "" {
		logger.Warn("SA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Хранилище документов
	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка открытия хранилища документов",
			slog.String("backend", cfg.StoreBackend),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer be.Close()

	// 3.1 Таймауты и ретраи поверх бэкенда, лента изменений поверх всего
	broker := docstore.NewBroker()
	store := docstore.NewObserved(docstore.NewGuarded(be.Store, cfg.StoreOpTimeout, logger), broker)

	// 4. Хранилище файлов (изображения блога)
	blobs, err := blobstore.NewDisk(cfg.BlobDir, cfg.BlobPublicURL, cfg.BlobMaxSize)
	if err != nil {
		logger.Error("Ошибка создания хранилища файлов",
			slog.String("dir", cfg.BlobDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 5. Экраны консоли
	reg, err := screens.Default()
	if err != nil {
		logger.Error("Ошибка загрузки описания экранов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Экраны загружены", slog.Any("screens", reg.Names()))

	// 6. Кэш справочников: сбрасывается по ленте изменений
	refCache := service.NewRefCache(cfg.XRefCacheSize, cfg.XRefCacheTTL)
	go refCache.Follow(ctx, broker)

	// 7. Services
	listingSvc := service.NewListingService(store, reg, refCache, cfg.PageSize, logger)
	usersSvc := service.NewUserService(store, logger)
	services := handlers.Services{
		Listing:   listingSvc,
		Entities:  service.NewEntityService(store, reg, logger),
		Status:    service.NewStatusService(store, reg, logger),
		Blogs:     service.NewBlogService(store, blobs, logger),
		Users:     usersSvc,
		Export:    service.NewExportService(listingSvc, logger),
		Dashboard: service.NewDashboardService(store, reg, logger),
		Broker:    broker,
	}

	// 8. Аутентификация
	var auth func(http.Handler) http.Handler
	if cfg.AuthEnabled {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTIssuer,
			usersSvc,
			middleware.DefaultJWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		auth = jwtAuth.Middleware()
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		auth = middleware.DevSession(rbac.RoleAdmin)
		logger.Warn("Аутентификация отключена (SA_AUTH_ENABLED=false), все запросы выполняются с ролью admin")
	}

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL, JWKS)
	var deps func() map[string]bool
	jwksURL := ""
	if cfg.AuthEnabled {
		jwksURL = cfg.JWTJWKSURL
	}
	if be.DB != nil || jwksURL != "" {
		dephealthSvc, dhErr := service.NewDephealthService(
			"siteadmin",
			cfg.DephealthGroup,
			be.DB,
			service.PostgresURL(cfg.DBHost, cfg.DBPort, cfg.DBName),
			jwksURL,
			cfg.DephealthCheckInterval,
			logger,
		)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc.Health
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. Readiness checkers
	checkers := []handlers.NamedChecker{{Name: "blobs", Checker: database.NewReadinessChecker("каталог файлов", blobs)}}
	if be.Pinger != nil {
		checkers = append(checkers, handlers.NamedChecker{
			Name:    "store",
			Checker: database.NewReadinessChecker(cfg.StoreBackend, be.Pinger),
		})
	}
	healthHandler := handlers.NewHealthHandler(deps, checkers...)

	// 11. API handler
	apiHandler := handlers.NewAPIHandler(services, healthHandler, cfg.BlobMaxSize, logger)

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, auth, blobs.Root())
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("siteadmin остановлен")
}

// Пакет server — HTTP-сервер siteadmin с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/siteadmin/internal/api/handlers"
	"github.com/bigkaa/siteadmin/internal/api/middleware"
	"github.com/bigkaa/siteadmin/internal/config"
	"github.com/bigkaa/siteadmin/internal/domain/rbac"
)

// Server — HTTP-сервер siteadmin.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
	// cancel завершает контекст запросов после Shutdown: WebSocket-соединения
	// Shutdown не отслеживает.
	cancel context.CancelFunc
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth — middleware аутентификации (JWTAuth.Middleware() или DevSession).
// mediaRoot — каталог файлов, раздаваемых по cfg.BlobPublicURL; пусто — не раздаются.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, auth func(http.Handler) http.Handler, mediaRoot string) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(h, auth, cfg.BlobPublicURL, mediaRoot, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
		cancel:     cancel,
	}
}

// NewRouter собирает маршруты API.
// mediaPrefix — путь раздачи файлов (/media); абсолютный URL (CDN) не монтируется.
func NewRouter(h *handlers.APIHandler, auth func(http.Handler) http.Handler, mediaPrefix, mediaRoot string, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	public := []string{"/health/", "/metrics"}
	serveMedia := mediaRoot != "" && strings.HasPrefix(mediaPrefix, "/")
	if serveMedia {
		public = append(public, mediaPrefix+"/")
	}
	// Health и metrics проверяются Kubernetes напрямую, изображения блога публичны.
	router.Use(middleware.SkipPrefixes(auth, public...))

	health := h.Health()
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	if serveMedia {
		router.Handle(mediaPrefix+"/*", http.StripPrefix(mediaPrefix+"/", http.FileServer(http.Dir(mediaRoot))))
	}

	read := middleware.RequireAction(rbac.ActionRead)
	write := middleware.RequireAction(rbac.ActionWrite)
	del := middleware.RequireAction(rbac.ActionDelete)

	router.Route("/api/v1", func(r chi.Router) {
		r.With(read).Get("/me", h.Me)
		r.With(read).Get("/dashboard", h.Dashboard)
		r.With(read).Get("/locations/next-id", h.SuggestLocationID)

		r.Route("/screens", func(r chi.Router) {
			r.With(read).Get("/", h.ListScreens)
			r.Route("/{screen}", func(r chi.Router) {
				r.With(read).Get("/states", h.ListStates)
				r.With(read).Get("/export", h.ExportCSV)
				r.With(read).Get("/watch", h.Watch)

				r.With(read).Get("/records", h.ListRecords)
				r.With(write).Post("/records", h.CreateRecord)
				r.With(read).Get("/records/{id}", h.GetRecord)
				r.With(write).Patch("/records/{id}", h.UpdateRecord)
				r.With(del).Delete("/records/{id}", h.DeleteRecord)
				r.With(write).Post("/records/{id}/toggle", h.ToggleStatus)
				r.With(write).Put("/records/{id}/status", h.SetStatus)
			})
		})

		r.With(write).Post("/blogs", h.CreateBlog)
		r.With(write).Patch("/blogs/{id}", h.UpdateBlog)

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAction(rbac.ActionManageUsers))
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Patch("/{id}", h.UpdateUser)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}

// logging.go — журнал доступа консоли через slog: кто (actor, роль),
// к какому экрану, с каким статусом и за какое время обратился.
package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/siteadmin/internal/domain/model"
)

type accessKey struct{}

// accessEntry заполняется ниже по цепочке: сессия появляется только после
// аутентификации, а журнал пишется снаружи неё.
type accessEntry struct {
	session *model.Session
}

// withSession кладёт сессию в контекст запроса и отмечает её в журнале доступа.
func withSession(r *http.Request, s *model.Session) *http.Request {
	if e, ok := r.Context().Value(accessKey{}).(*accessEntry); ok {
		e.session = s
	}
	return r.WithContext(model.WithSession(r.Context(), s))
}

// responseWriter — обёртка для перехвата статус-кода ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Hijack нужен для upgrade WebSocket-соединений.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("ResponseWriter не поддерживает Hijack")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger возвращает middleware журнала доступа. Помимо метода, пути,
// статуса и длительности пишет инициатора и роль (если запрос
// аутентифицирован) и экран из маршрута. Уровень: WARN для 4xx, ERROR для 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			entry := &accessEntry{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), accessKey{}, entry)))

			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			}
			if entry.session != nil {
				attrs = append(attrs,
					slog.String("actor", entry.session.Actor()),
					slog.String("role", entry.session.Role),
				)
			}
			if screen := chi.URLParamFromCtx(r.Context(), "screen"); screen != "" {
				attrs = append(attrs, slog.String("screen", screen))
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// Пакет model — доменные модели siteadmin.
package model

import "context"

// Session — контекст пользователя консоли. Передаётся явно в каждый
// сервисный вызов через context.Context.
type Session struct {
	// Subject — идентификатор пользователя (sub из JWT)
	Subject string
	// Email — адрес электронной почты
	Email string
	// Name — отображаемое имя
	Name string
	// Role — итоговая роль (viewer, editor, admin)
	Role string
}

type sessionKey struct{}

// WithSession возвращает контекст с сессией.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom извлекает сессию из контекста. nil — сессии нет.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// Actor возвращает подпись инициатора действия для логов.
func (s *Session) Actor() string {
	if s == nil {
		return "anonymous"
	}
	if s.Email != "" {
		return s.Email
	}
	return s.Subject
}

// auth.go — JWT middleware для аутентификации и авторизации консоли.
// Проверяет подпись токена по JWKS, извлекает claims, вычисляет итоговую
// роль с учётом коллекции users и кладёт model.Session в контекст запроса.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/siteadmin/internal/api/errors"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/rbac"
)

// DefaultJWKSRefreshInterval — интервал фонового обновления ключей JWKS.
const DefaultJWKSRefreshInterval = 15 * time.Minute

// RoleResolver вычисляет итоговую роль пользователя по роли из токена
// и записи в коллекции users. Реализуется service.UserService.
type RoleResolver interface {
	ResolveRole(ctx context.Context, subject, email, tokenRole string) (string, error)
}

// tokenClaims — claims из JWT, которые использует консоль.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email             string       `json:"email"`
	Name              string       `json:"name"`
	PreferredUsername string       `json:"preferred_username"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	resolver  RoleResolver
	issuer    string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware с ключами из JWKS endpoint.
// issuer — ожидаемый issuer (пусто — не проверяется).
// resolver — может быть nil, тогда используется роль из токена.
func NewJWTAuth(
	jwksURL string,
	issuer string,
	resolver RoleResolver,
	refreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	if refreshInterval <= 0 {
		refreshInterval = DefaultJWKSRefreshInterval
	}

	// NoErrorReturnFirstHTTPReq — стартуем, даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    http.DefaultClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(k, issuer, resolver, logger)
	auth.jwtLeeway = jwtLeeway
	return auth, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS из памяти.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, resolver RoleResolver, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:     kf,
		resolver: resolver,
		issuer:   issuer,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r)
			if msg != "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			claims := &tokenClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if claims.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			sess := j.session(r.Context(), claims)
			next.ServeHTTP(w, withSession(r, sess))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization.
// Второе значение — текст ошибки для клиента.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Браузерный WebSocket не умеет передавать заголовки.
		if t := r.URL.Query().Get("access_token"); t != "" && isWebSocketUpgrade(r) {
			return t, ""
		}
		return "", "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}
	if parts[1] == "" {
		return "", "Пустой Bearer token"
	}
	return parts[1], ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// session формирует сессию: роль из realm_access.roles, затем повышение
// по записи в коллекции users.
func (j *JWTAuth) session(ctx context.Context, c *tokenClaims) *model.Session {
	var roles []string
	if c.RealmAccess != nil {
		roles = c.RealmAccess.Roles
	}
	tokenRole := rbac.HighestRole(roles)
	if tokenRole == "" {
		tokenRole = rbac.DefaultRole
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	sess := &model.Session{
		Subject: c.Subject,
		Email:   strings.ToLower(c.Email),
		Name:    name,
		Role:    tokenRole,
	}

	if j.resolver != nil {
		role, err := j.resolver.ResolveRole(ctx, sess.Subject, sess.Email, tokenRole)
		if err != nil {
			j.logger.Warn("Ошибка определения роли по коллекции users",
				slog.String("subject", sess.Subject),
				slog.String("error", err.Error()),
			)
		} else {
			sess.Role = role
		}
	}
	return sess
}

// DevSession возвращает middleware, подставляющий фиксированную сессию.
// Только для локальной разработки с выключенной аутентификацией.
func DevSession(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &model.Session{Subject: "dev", Name: "dev", Role: role}
			next.ServeHTTP(w, withSession(r, sess))
		})
	}
}

// RequireAction возвращает middleware, пропускающий только сессии,
// роли которых разрешено действие. Используется ПОСЛЕ JWTAuth.Middleware().
func RequireAction(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := model.SessionFrom(r.Context())
			if sess == nil {
				apierrors.Unauthorized(w, "Отсутствует сессия пользователя")
				return
			}
			if !rbac.Allows(sess.Role, action) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: роль %s не допускает действие %s", sess.Role, action))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SkipPrefixes оборачивает middleware, пропуская пути с указанными префиксами.
func SkipPrefixes(mw func(http.Handler) http.Handler, prefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range prefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

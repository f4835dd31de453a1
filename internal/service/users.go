// users.go — пользователи консоли: создание с проверкой формы, хеш пароля
// (bcrypt), смена роли и статуса, итоговая роль для сессии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/rbac"
	"github.com/bigkaa/siteadmin/internal/domain/workflow"
)

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = 6

// fieldPasswordHash — поле хеша пароля, скрыто в списках.
const fieldPasswordHash = "password_hash"

var emailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// UserInput — форма нового пользователя.
type UserInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
	Status          string `json:"status"`
}

// UserPatch — изменение пользователя; nil — поле не меняется.
type UserPatch struct {
	Name            *string `json:"name"`
	Role            *string `json:"role"`
	Status          *string `json:"status"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`
}

// UserService — пользователи консоли.
type UserService struct {
	store  docstore.Store
	cost   int
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(store docstore.Store, logger *slog.Logger) *UserService {
	return &UserService{
		store:  store,
		cost:   bcrypt.DefaultCost,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

func validatePassword(verr *ValidationError, password, confirm string) {
	switch {
	case password == "":
		verr.Add("password", "обязательное поле")
	case len(password) < MinPasswordLength:
		verr.Add("password", fmt.Sprintf("пароль должен содержать не менее %d символов", MinPasswordLength))
	case password != confirm:
		verr.Add("confirm_password", "пароли не совпадают")
	}
}

func validateUserStatus(verr *ValidationError, status string) {
	if status != workflow.StatusActive && status != workflow.StatusInactive {
		verr.Add("status", "допустимые значения: active, inactive")
	}
}

// Create проверяет форму и создаёт пользователя. Роль по умолчанию viewer,
// статус — inactive. Занятый email — ErrDuplicate.
func (s *UserService) Create(ctx context.Context, in UserInput) (docstore.Record, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = rbac.DefaultRole
	}
	if in.Status == "" {
		in.Status = workflow.StatusInactive
	}

	verr := &ValidationError{}
	if in.Name == "" {
		verr.Add("name", "обязательное поле")
	}
	switch {
	case in.Email == "":
		verr.Add("email", "обязательное поле")
	case !emailRe.MatchString(in.Email):
		verr.Add("email", "некорректный email")
	}
	validatePassword(verr, in.Password, in.ConfirmPassword)
	if !rbac.IsValidRole(in.Role) {
		verr.Add("role", fmt.Sprintf("допустимые роли: %s", strings.Join(rbac.Roles(), ", ")))
	}
	validateUserStatus(verr, in.Status)
	if err := verr.Err(); err != nil {
		return docstore.Record{}, err
	}

	taken, err := s.store.CountWhere(ctx, model.CollectionUsers, docstore.Eq("email", in.Email))
	if err != nil {
		return docstore.Record{}, err
	}
	if taken > 0 {
		return docstore.Record{}, fmt.Errorf("%w: email %s уже зарегистрирован", ErrDuplicate, in.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return docstore.Record{}, fmt.Errorf("хеширование пароля: %w", err)
	}
	id, err := s.store.Create(ctx, model.CollectionUsers, "", map[string]any{
		"name":            in.Name,
		"email":           in.Email,
		"role":            in.Role,
		"status":          in.Status,
		fieldPasswordHash: string(hash),
		"createdBy":       model.SessionFrom(ctx).Actor(),
	})
	if err != nil {
		return docstore.Record{}, err
	}
	s.logger.Info("Пользователь создан",
		slog.String("id", id),
		slog.String("email", in.Email),
		slog.String("role", in.Role),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return s.Get(ctx, id)
}

// Get возвращает пользователя без хеша пароля.
func (s *UserService) Get(ctx context.Context, id string) (docstore.Record, error) {
	r, err := s.store.GetByID(ctx, model.CollectionUsers, id)
	if err != nil {
		return docstore.Record{}, err
	}
	delete(r.Fields, fieldPasswordHash)
	return r, nil
}

// Update меняет имя, роль, статус или пароль. Роль меняет только администратор.
func (s *UserService) Update(ctx context.Context, id string, p UserPatch) (docstore.Record, error) {
	verr := &ValidationError{}
	patch := make(map[string]any)
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			verr.Add("name", "обязательное поле")
		}
		patch["name"] = name
	}
	if p.Role != nil {
		if !rbac.IsValidRole(*p.Role) {
			verr.Add("role", fmt.Sprintf("допустимые роли: %s", strings.Join(rbac.Roles(), ", ")))
		}
		patch["role"] = *p.Role
	}
	if p.Status != nil {
		validateUserStatus(verr, *p.Status)
		patch["status"] = *p.Status
	}
	if p.Password != nil {
		confirm := ""
		if p.ConfirmPassword != nil {
			confirm = *p.ConfirmPassword
		}
		validatePassword(verr, *p.Password, confirm)
	}
	if err := verr.Err(); err != nil {
		return docstore.Record{}, err
	}
	if p.Role != nil {
		sess := model.SessionFrom(ctx)
		if sess == nil || !rbac.Allows(sess.Role, rbac.ActionManageUsers) {
			return docstore.Record{}, fmt.Errorf("%w: роль меняет только администратор", ErrForbidden)
		}
	}
	if p.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*p.Password), s.cost)
		if err != nil {
			return docstore.Record{}, fmt.Errorf("хеширование пароля: %w", err)
		}
		patch[fieldPasswordHash] = string(hash)
	}
	if len(patch) == 0 {
		return s.Get(ctx, id)
	}
	if err := s.store.Update(ctx, model.CollectionUsers, id, patch); err != nil {
		return docstore.Record{}, err
	}
	s.logger.Info("Пользователь обновлён",
		slog.String("id", id),
		slog.Any("fields", keysOf(patch)),
		slog.String("actor", model.SessionFrom(ctx).Actor()),
	)
	return s.Get(ctx, id)
}

// CheckPassword сверяет пароль пользователя с email. Неверная пара — ErrNotFound.
func (s *UserService) CheckPassword(ctx context.Context, email, password string) (docstore.Record, error) {
	users, err := s.store.List(ctx, model.CollectionUsers, docstore.Eq("email", strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return docstore.Record{}, err
	}
	for _, u := range users {
		err := bcrypt.CompareHashAndPassword([]byte(u.String(fieldPasswordHash)), []byte(password))
		if err == nil {
			delete(u.Fields, fieldPasswordHash)
			return u, nil
		}
	}
	return docstore.Record{}, ErrNotFound
}

// ResolveRole вычисляет итоговую роль: max(роль из токена, роль из users).
// Пользователь ищется по ID (sub), затем по email.
func (s *UserService) ResolveRole(ctx context.Context, subject, email, tokenRole string) (string, error) {
	if !rbac.IsValidRole(tokenRole) {
		tokenRole = rbac.DefaultRole
	}
	stored, err := s.storedRole(ctx, subject, email)
	if err != nil {
		return "", err
	}
	return rbac.EffectiveRole(tokenRole, stored), nil
}

func (s *UserService) storedRole(ctx context.Context, subject, email string) (*string, error) {
	if subject != "" {
		r, err := s.store.GetByID(ctx, model.CollectionUsers, subject)
		switch {
		case err == nil:
			return roleOf(r), nil
		case !errors.Is(err, docstore.ErrNotFound):
			return nil, err
		}
	}
	if email == "" {
		return nil, nil
	}
	users, err := s.store.List(ctx, model.CollectionUsers, docstore.Eq("email", strings.ToLower(email)))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return roleOf(users[0]), nil
}

func roleOf(r docstore.Record) *string {
	role := r.String("role")
	if !rbac.IsValidRole(role) {
		return nil
	}
	return &role
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k == fieldPasswordHash {
			k = "password"
		}
		out = append(out, k)
	}
	return out
}

// Пакет rbac — роли пользователей консоли и права на действия.
// Итоговая роль = max(роль из токена, роль из коллекции users):
// роль можно только повысить, не понизить.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// DefaultRole — роль нового пользователя.
const DefaultRole = RoleViewer

// Action — действие в консоли.
type Action string

const (
	// ActionRead — просмотр списков и записей.
	ActionRead Action = "read"
	// ActionWrite — создание, редактирование, смена статуса контента.
	ActionWrite Action = "write"
	// ActionDelete — удаление записей.
	ActionDelete Action = "delete"
	// ActionManageUsers — управление пользователями и ролями.
	ActionManageUsers Action = "manage_users"
)

var roleWeight = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// minRole — минимальная роль для действия.
var minRole = map[Action]string{
	ActionRead:        RoleViewer,
	ActionWrite:       RoleEditor,
	ActionDelete:      RoleAdmin,
	ActionManageUsers: RoleAdmin,
}

// EffectiveRole вычисляет итоговую роль = max(tokenRole, storedRole).
func EffectiveRole(tokenRole string, storedRole *string) string {
	if storedRole == nil {
		return tokenRole
	}
	return maxRole(tokenRole, *storedRole)
}

func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора; пустой набор — "".
func HighestRole(roles []string) string {
	highest := ""
	for _, r := range roles {
		if !IsValidRole(r) {
			continue
		}
		highest = maxRole(highest, r)
	}
	return highest
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// Allows проверяет, разрешено ли роли действие.
func Allows(role string, action Action) bool {
	need, ok := minRole[action]
	if !ok {
		return false
	}
	w, ok := roleWeight[role]
	return ok && w >= roleWeight[need]
}

// Roles возвращает допустимые роли по возрастанию привилегий.
func Roles() []string {
	return []string{RoleViewer, RoleEditor, RoleAdmin}
}

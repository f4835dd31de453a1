package rbac

import "testing"

func strPtr(s string) *string { return &s }

func TestEffectiveRole(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		stored *string
		want   string
	}{
		{"viewer из токена, без записи", RoleViewer, nil, RoleViewer},
		{"viewer из токена, editor в users — повышение", RoleViewer, strPtr(RoleEditor), RoleEditor},
		{"admin из токена, viewer в users — не понижается", RoleAdmin, strPtr(RoleViewer), RoleAdmin},
		{"пустая роль токена, admin в users", "", strPtr(RoleAdmin), RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveRole(tt.token, tt.stored); got != tt.want {
				t.Errorf("EffectiveRole() = %q, хотели %q", got, tt.want)
			}
		})
	}
}

func TestHighestRole(t *testing.T) {
	if got := HighestRole([]string{"viewer", "unknown", "editor"}); got != RoleEditor {
		t.Errorf("HighestRole() = %q, хотели editor", got)
	}
	if got := HighestRole(nil); got != "" {
		t.Errorf("HighestRole(nil) = %q, хотели пусто", got)
	}
}

func TestAllows(t *testing.T) {
	tests := []struct {
		role   string
		action Action
		want   bool
	}{
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionWrite, false},
		{RoleEditor, ActionWrite, true},
		{RoleEditor, ActionDelete, false},
		{RoleEditor, ActionManageUsers, false},
		{RoleAdmin, ActionDelete, true},
		{RoleAdmin, ActionManageUsers, true},
		{"", ActionRead, false},
		{RoleAdmin, Action("fly"), false},
	}
	for _, tt := range tests {
		if got := Allows(tt.role, tt.action); got != tt.want {
			t.Errorf("Allows(%q, %q) = %v, хотели %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range Roles() {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("root") {
		t.Error("IsValidRole(root) = true")
	}
}

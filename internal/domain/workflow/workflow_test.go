package workflow

import (
	"errors"
	"testing"
)

func mustFor(t *testing.T, k Kind) *Machine {
	t.Helper()
	m, err := For(k)
	if err != nil {
		t.Fatalf("For(%q) вернул ошибку: %v", k, err)
	}
	return m
}

func TestBinary_ToggleRoundTrip(t *testing.T) {
	m := mustFor(t, KindBinary)

	next, err := m.Toggle("active")
	if err != nil || next != "inactive" {
		t.Fatalf("Toggle(active) = %q, %v", next, err)
	}
	back, _ := m.Toggle(next)
	if back != "active" {
		t.Errorf("Toggle(inactive) = %q, ожидается active", back)
	}

	if got, _ := m.Toggle(1); got != "0" {
		t.Errorf("Toggle(1) = %q, ожидается \"0\"", got)
	}
	if got, _ := m.Toggle("0"); got != "1" {
		t.Errorf("Toggle(\"0\") = %q, ожидается \"1\"", got)
	}
}

func TestToggle_UnknownValueFlipsGeneric(t *testing.T) {
	m := mustFor(t, KindBinary)
	for _, cur := range []any{nil, "", "enabled", 5} {
		if got, _ := m.Toggle(cur); got != StatusActive {
			t.Errorf("Toggle(%v) = %q, ожидается active", cur, got)
		}
	}
}

func TestBlog_ToggleAndScheduled(t *testing.T) {
	m := mustFor(t, KindBlog)

	if got, _ := m.Toggle("draft"); got != "published" {
		t.Errorf("Toggle(draft) = %q", got)
	}
	if got, _ := m.Toggle("published"); got != "draft" {
		t.Errorf("Toggle(published) = %q", got)
	}

	_, err := m.Toggle("scheduled")
	var te *TransitionError
	if !errors.As(err, &te) || te.Code != CodeToggleNotSupported {
		t.Errorf("Toggle(scheduled) = %v, ожидается TOGGLE_NOT_SUPPORTED", err)
	}
	if err := m.Select("scheduled"); err != nil {
		t.Errorf("Select(scheduled) вернул ошибку: %v", err)
	}
	if m.Initial() != StatusDraft {
		t.Errorf("Initial() = %q", m.Initial())
	}
}

func TestLeads_ExplicitSelectOnly(t *testing.T) {
	contact := mustFor(t, KindContactLead)
	if contact.CanToggle() {
		t.Error("заявки не должны поддерживать переключатель")
	}
	if _, err := contact.Toggle("new"); err == nil {
		t.Error("Toggle() заявки должен вернуть ошибку")
	}
	// Любой → любой.
	for _, s := range []string{"converted", "new", "rejected", "qualified"} {
		if err := contact.Select(s); err != nil {
			t.Errorf("Select(%q) вернул ошибку: %v", s, err)
		}
	}
	if err := contact.Select("approved"); err == nil {
		t.Error("approved недопустим для заявок с сайта")
	}

	partner := mustFor(t, KindPartnerLead)
	if err := partner.Select("approved"); err != nil {
		t.Errorf("Select(approved) вернул ошибку: %v", err)
	}
	if err := partner.Select("qualified"); err == nil {
		t.Error("qualified недопустим для заявок партнёров")
	}
	if partner.Initial() != StatusPending {
		t.Errorf("Initial() = %q", partner.Initial())
	}
}

func TestFor_UnknownKind(t *testing.T) {
	if _, err := For("spaceship"); err == nil {
		t.Error("ожидалась ошибка для неизвестного вида")
	}
}

func TestStatesReturnsCopy(t *testing.T) {
	m := mustFor(t, KindContactLead)
	s := m.States()
	s[0] = "hacked"
	if m.States()[0] != StatusNew {
		t.Error("States() должен возвращать копию")
	}
}

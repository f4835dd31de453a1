// Пакет workflow — статусы сущностей и переходы между ними.
//
// Три вида поведения:
//   - переключатель: active ↔ inactive (и "1" ↔ "0") — ссылки, категории, пользователи
//   - запись блога: draft ↔ published переключателем, scheduled — только явным выбором
//   - заявки: явный выбор любого допустимого статуса, переключателя нет
//
// Неизвестное текущее значение переключается как active/inactive.
package workflow

import (
	"fmt"
	"slices"

	"github.com/bigkaa/siteadmin/internal/domain/value"
)

// Kind — вид сущности с точки зрения статусов.
type Kind string

const (
	// KindBinary — active/inactive или "1"/"0".
	KindBinary Kind = "binary"
	// KindBlog — draft/published/scheduled.
	KindBlog Kind = "blog"
	// KindContactLead — заявки с формы обратной связи.
	KindContactLead Kind = "contact_lead"
	// KindPartnerLead — заявки партнёров.
	KindPartnerLead Kind = "partner_lead"
)

// Статусы.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	FlagOn          = "1"
	FlagOff         = "0"
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusScheduled = "scheduled"
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusConverted = "converted"
	StatusRejected  = "rejected"
	StatusPending   = "pending"
	StatusApproved  = "approved"
)

// Коды ошибок перехода.
const (
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeToggleNotSupported = "TOGGLE_NOT_SUPPORTED"
)

// TransitionError — ошибка перехода статуса.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Machine — правила статусов одного вида сущности. Неизменяема после создания.
type Machine struct {
	kind Kind
	// Допустимые значения для явного выбора.
	states []string
	// Пары переключателя; nil — переключатель не поддерживается.
	toggles map[string]string
	// Значения, которые переключателем не трогаются.
	pinned map[string]bool
	// Статус новой записи.
	initial string
}

var binaryToggles = map[string]string{
	StatusActive:   StatusInactive,
	StatusInactive: StatusActive,
	FlagOn:         FlagOff,
	FlagOff:        FlagOn,
}

var machines = map[Kind]*Machine{
	KindBinary: {
		kind:    KindBinary,
		states:  []string{StatusActive, StatusInactive, FlagOn, FlagOff},
		toggles: binaryToggles,
		initial: StatusActive,
	},
	KindBlog: {
		kind:   KindBlog,
		states: []string{StatusDraft, StatusPublished, StatusScheduled, StatusActive, StatusInactive, FlagOn, FlagOff},
		toggles: map[string]string{
			StatusDraft:     StatusPublished,
			StatusPublished: StatusDraft,
			StatusActive:    StatusInactive,
			StatusInactive:  StatusActive,
			FlagOn:          FlagOff,
			FlagOff:         FlagOn,
		},
		pinned:  map[string]bool{StatusScheduled: true},
		initial: StatusDraft,
	},
	KindContactLead: {
		kind:    KindContactLead,
		states:  []string{StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusRejected},
		initial: StatusNew,
	},
	KindPartnerLead: {
		kind:    KindPartnerLead,
		states:  []string{StatusPending, StatusContacted, StatusApproved, StatusRejected},
		initial: StatusPending,
	},
}

// For возвращает правила для вида сущности.
func For(kind Kind) (*Machine, error) {
	m, ok := machines[kind]
	if !ok {
		return nil, fmt.Errorf("неизвестный вид статусов: %q", kind)
	}
	return m, nil
}

// Kind возвращает вид сущности.
func (m *Machine) Kind() Kind { return m.kind }

// States возвращает допустимые значения для явного выбора.
func (m *Machine) States() []string { return slices.Clone(m.states) }

// Initial возвращает статус новой записи.
func (m *Machine) Initial() string { return m.initial }

// CanToggle сообщает, поддерживает ли вид переключатель.
func (m *Machine) CanToggle() bool { return m.toggles != nil }

// IsValid проверяет, допустим ли статус для явного выбора.
func (m *Machine) IsValid(status string) bool {
	return slices.Contains(m.states, status)
}

// Toggle вычисляет следующий статус по переключателю.
// Неизвестное значение даёт active (или inactive, если оно уже active).
func (m *Machine) Toggle(current any) (string, error) {
	if !m.CanToggle() {
		return "", &TransitionError{
			Code:    CodeToggleNotSupported,
			Message: fmt.Sprintf("статус вида %s меняется только явным выбором", m.kind),
		}
	}
	cur := value.String(current)
	if m.pinned[cur] {
		return "", &TransitionError{
			Code:    CodeToggleNotSupported,
			Message: fmt.Sprintf("статус %q меняется только явным выбором", cur),
		}
	}
	if next, ok := m.toggles[cur]; ok {
		return next, nil
	}
	return GenericFlip(cur), nil
}

// Select проверяет явный выбор статуса. Для заявок допустим переход
// из любого статуса в любой.
func (m *Machine) Select(target string) error {
	if !m.IsValid(target) {
		return &TransitionError{
			Code:    CodeInvalidStatus,
			Message: fmt.Sprintf("недопустимый статус %q, допустимые: %v", target, m.states),
		}
	}
	return nil
}

// GenericFlip — переключение active/inactive для нераспознанных значений.
func GenericFlip(current string) string {
	if current == StatusActive {
		return StatusInactive
	}
	return StatusActive
}

package lifecycle

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// MaxReasonLength bounds reject and void reasons
const MaxReasonLength = 500

// Stateful is what the machine needs from a document
type Stateful interface {
	CurrentStatus() Status
	SetStatus(Status)
	AuditTrail() *AuditStamps
}

// Machine runs one document kind's transition table
type Machine struct {
	kind             string
	permissionPrefix string
	table            *Table
}

// NewMachine creates a machine for kind. Permission keys are built as
// "<permissionPrefix>.<action>".
func NewMachine(kind, permissionPrefix string, table *Table) *Machine {
	return &Machine{kind: kind, permissionPrefix: permissionPrefix, table: table}
}

// Kind returns the document kind name
func (m *Machine) Kind() string { return m.kind }

// Table returns the transition table
func (m *Machine) Table() *Table { return m.table }

// PermissionKey returns the capability required for action
func (m *Machine) PermissionKey(action Action) string {
	return m.permissionPrefix + "." + string(action)
}

// Check validates that action may run from the document's current status
// without changing anything
func (m *Machine) Check(doc Stateful, action Action) error {
	if !m.table.Supports(action) {
		return shared.NewTransitionError("Action %s is not available for %s", action, m.kind)
	}
	if !m.table.Allows(action, doc.CurrentStatus()) {
		return shared.NewTransitionError("Cannot %s %s in %s status", action, m.kind, doc.CurrentStatus())
	}
	return nil
}

// Apply moves doc along action, stamping actor and time. It returns the status
// the document was in before. On error the document is left untouched.
func (m *Machine) Apply(doc Stateful, action Action, actor uuid.UUID, at time.Time, note string) (Status, error) {
	from := doc.CurrentStatus()
	if err := m.Check(doc, action); err != nil {
		return from, err
	}
	note = strings.TrimSpace(note)
	if err := ValidateNote(action, note); err != nil {
		return from, err
	}
	to, err := m.table.Target(action, from)
	if err != nil {
		return from, shared.NewTransitionError("Cannot %s %s in %s status", action, m.kind, from)
	}
	doc.SetStatus(to)
	doc.AuditTrail().Record(action, actor, at, note)
	return from, nil
}

// ValidateNote enforces the reason rules: reject and void need 1-500
// characters after trimming, approval notes are optional up to 1000
func ValidateNote(action Action, note string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(note))
	switch {
	case action.RequiresReason() && n == 0:
		return shared.NewValidationError("A reason is required to %s a document", action)
	case action.RequiresReason() && n > MaxReasonLength:
		return shared.NewValidationError("Reason must be at most %d characters", MaxReasonLength)
	case action == ActionApprove && n > 1000:
		return shared.NewValidationError("Approval notes must be at most 1000 characters")
	}
	return nil
}

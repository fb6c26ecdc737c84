package finance

import (
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names. Document events are "finance.document.<action>".
const (
	EventDocumentPrefix   = "finance.document."
	EventOpenItemsCleared = "finance.open_items.cleared"
	EventClearingReversed = "finance.clearing.reversed"
	EventTemplateCreated  = "finance.recurring.created"
	EventTemplateUpdated  = "finance.recurring.updated"
	EventTemplatePaused   = "finance.recurring.paused"
	EventTemplateResumed  = "finance.recurring.resumed"
	EventTemplateDeleted  = "finance.recurring.deleted"
	EventTemplateExecuted = "finance.recurring.executed"
	aggregateTypeClearing = "Clearing"
	aggregateTypeTemplate = "RecurringJournalTemplate"
)

// DocumentEvent is raised for every successful lifecycle action
type DocumentEvent struct {
	shared.BaseDomainEvent
	Kind       Kind             `json:"kind"`
	Number     string           `json:"number"`
	Action     lifecycle.Action `json:"action"`
	FromStatus lifecycle.Status `json:"from_status,omitempty"`
	ToStatus   lifecycle.Status `json:"to_status"`
	ActorID    uuid.UUID        `json:"actor_id"`
}

// NewDocumentEvent creates the event for action on doc
func NewDocumentEvent(doc *DocumentBase, action lifecycle.Action, from lifecycle.Status, actor uuid.UUID) *DocumentEvent {
	return &DocumentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDocumentPrefix+string(action), string(doc.Kind), doc.ID, doc.Scope()),
		Kind:            doc.Kind,
		Number:          doc.Number,
		Action:          action,
		FromStatus:      from,
		ToStatus:        doc.Status,
		ActorID:         actor,
	}
}

// OpenItemsClearedEvent is raised when a clearing is committed
type OpenItemsClearedEvent struct {
	shared.BaseDomainEvent
	Number         string          `json:"number"`
	ControlAccount ControlAccount  `json:"control_account"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	OpenItemIDs    []uuid.UUID     `json:"open_item_ids"`
}

// NewOpenItemsClearedEvent creates the event for c
func NewOpenItemsClearedEvent(c *Clearing) *OpenItemsClearedEvent {
	ids := make([]uuid.UUID, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.OpenItemID)
	}
	return &OpenItemsClearedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventOpenItemsCleared, aggregateTypeClearing, c.ID, c.Scope()),
		Number:          c.Number,
		ControlAccount:  c.ControlAccount,
		TotalAmount:     c.TotalAmount,
		OpenItemIDs:     ids,
	}
}

// ClearingReversedEvent is raised when a clearing is undone
type ClearingReversedEvent struct {
	shared.BaseDomainEvent
	Number string `json:"number"`
	Reason string `json:"reason"`
}

// NewClearingReversedEvent creates the event for c
func NewClearingReversedEvent(c *Clearing) *ClearingReversedEvent {
	return &ClearingReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventClearingReversed, aggregateTypeClearing, c.ID, c.Scope()),
		Number:          c.Number,
		Reason:          c.ReversalReason,
	}
}

// TemplateEvent is raised for recurring template changes
type TemplateEvent struct {
	shared.BaseDomainEvent
	Name   string         `json:"name"`
	Status TemplateStatus `json:"status"`
}

// NewTemplateEvent creates a template event of eventType
func NewTemplateEvent(eventType string, t *RecurringJournalTemplate) *TemplateEvent {
	return &TemplateEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, aggregateTypeTemplate, t.ID, t.Scope()),
		Name:            t.Name,
		Status:          t.Status,
	}
}

// TemplateExecutedEvent is raised after a template run spawned a journal entry
type TemplateExecutedEvent struct {
	shared.BaseDomainEvent
	JournalEntryID uuid.UUID `json:"journal_entry_id"`
	JournalNumber  string    `json:"journal_number"`
	RunNumber      int       `json:"run_number"`
	Expired        bool      `json:"expired"`
}

// NewTemplateExecutedEvent creates the event for a run of t
func NewTemplateExecutedEvent(t *RecurringJournalTemplate, exec *RecurringExecution) *TemplateExecutedEvent {
	return &TemplateExecutedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTemplateExecuted, aggregateTypeTemplate, t.ID, t.Scope()),
		JournalEntryID:  exec.JournalEntryID,
		JournalNumber:   exec.JournalNumber,
		RunNumber:       exec.RunNumber,
		Expired:         t.Status == TemplateStatusExpired,
	}
}

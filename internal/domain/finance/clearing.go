package finance

import (
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ClearingMember is one open item and the signed amount to clear from it
type ClearingMember struct {
	OpenItemID uuid.UUID       `json:"open_item_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

// ClearingGroup is a proposed set of open items to net against each other
type ClearingGroup struct {
	Members []ClearingMember `json:"members" validate:"dive"`
}

// Sum returns the signed total of all clear amounts
func (g ClearingGroup) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, m := range g.Members {
		total = total.Add(m.Amount)
	}
	return total
}

// ItemIDs returns the member open item ids in order
func (g ClearingGroup) ItemIDs() []uuid.UUID {
	return lo.Map(g.Members, func(m ClearingMember, _ int) uuid.UUID { return m.OpenItemID })
}

// Validate checks the group shape: at least two distinct items and a net
// balance of zero within tolerance
func (g ClearingGroup) Validate(tolerance decimal.Decimal) error {
	if len(g.Members) < 2 {
		return shared.NewValidationError("At least two items are required for clearing")
	}
	if dups := lo.FindDuplicates(g.ItemIDs()); len(dups) > 0 {
		return shared.NewValidationError("Open item %s appears more than once", dups[0])
	}
	if sum := g.Sum(); !withinTolerance(sum, tolerance) {
		return shared.NewValidationError("Net balance must be zero. Current balance: %s", FormatAmount(sum))
	}
	return nil
}

// ClearingStatus is the state of a clearing record
type ClearingStatus string

const (
	ClearingStatusActive   ClearingStatus = "ACTIVE"
	ClearingStatusReversed ClearingStatus = "REVERSED"
)

// Clearing records one committed netting of open items
type Clearing struct {
	shared.ScopedAggregateRoot
	Number         string          `gorm:"size:64;not null"`
	ControlAccount ControlAccount  `gorm:"size:32;not null"`
	Currency       string          `gorm:"size:3;not null"`
	ClearingDate   time.Time       `gorm:"type:date;not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status         ClearingStatus  `gorm:"size:16;not null;index"`
	Notes          string          `gorm:"size:500"`
	ReversedAt     *time.Time
	ReversedBy     *uuid.UUID     `gorm:"type:uuid"`
	ReversalReason string         `gorm:"size:500"`
	Lines          []ClearingLine `gorm:"foreignKey:ClearingID;constraint:OnDelete:CASCADE"`
}

func (Clearing) TableName() string { return "clearings" }

// ClearingLine is the effect of a clearing on one open item
type ClearingLine struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClearingID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpenItemID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	DocumentKind       Kind            `gorm:"size:32;not null"`
	DocumentID         uuid.UUID       `gorm:"type:uuid;not null"`
	Amount             decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RemainingBefore    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RemainingAfter     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PreviousClearingID *uuid.UUID      `gorm:"type:uuid"`
}

func (ClearingLine) TableName() string { return "clearing_lines" }

// ClearingInput is the clearing group plus bookkeeping fields
type ClearingInput struct {
	Group        ClearingGroup `json:"group"`
	ClearingDate *time.Time    `json:"clearing_date"`
	Notes        string        `json:"notes" validate:"max=500"`
}

// NewClearing validates group against the loaded items and, only if every
// check passes, applies it to all of them. items must hold every member of
// the group keyed by id. Either every item is updated or none is.
func NewClearing(
	scope shared.TenantScope,
	createdBy uuid.UUID,
	number string,
	group ClearingGroup,
	items map[uuid.UUID]*OpenItem,
	tolerance decimal.Decimal,
	at time.Time,
) (*Clearing, error) {
	if err := group.Validate(tolerance); err != nil {
		return nil, err
	}

	var control ControlAccount
	var currency string
	for i, m := range group.Members {
		item, ok := items[m.OpenItemID]
		if !ok {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Open item "+m.OpenItemID.String()+" not found")
		}
		if err := item.CheckScope(scope); err != nil {
			return nil, err
		}
		if i == 0 {
			control, currency = item.ControlAccount, item.Currency
		} else if item.ControlAccount != control {
			return nil, shared.NewValidationError("All items must belong to the same control account")
		} else if item.Currency != currency {
			return nil, shared.NewValidationError("All items must be in the same currency")
		}
		if err := item.CheckClearAmount(m.Amount, tolerance); err != nil {
			return nil, err
		}
	}

	c := &Clearing{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(scope, createdBy),
		Number:              number,
		ControlAccount:      control,
		Currency:            currency,
		ClearingDate:        truncateDay(at),
		Status:              ClearingStatusActive,
	}
	total := decimal.Zero
	for _, m := range group.Members {
		item := items[m.OpenItemID]
		before := item.RemainingAmount
		previous := item.LastClearingID
		item.applyClear(m.Amount, tolerance, c.ID, at)
		c.Lines = append(c.Lines, ClearingLine{
			ID:                 uuid.New(),
			ClearingID:         c.ID,
			OpenItemID:         item.ID,
			DocumentKind:       item.DocumentKind,
			DocumentID:         item.DocumentID,
			Amount:             m.Amount,
			RemainingBefore:    before,
			RemainingAfter:     item.RemainingAmount,
			PreviousClearingID: previous,
		})
		if m.Amount.IsPositive() {
			total = total.Add(m.Amount)
		}
	}
	c.TotalAmount = total
	c.AddDomainEvent(NewOpenItemsClearedEvent(c))
	return c, nil
}

// Reverse undoes the clearing on every item it touched. An item that has been
// cleared again since blocks the reversal.
func (c *Clearing) Reverse(items map[uuid.UUID]*OpenItem, by uuid.UUID, reason string, at time.Time) error {
	if c.Status == ClearingStatusReversed {
		return shared.NewTransitionError("Clearing %s is already reversed", c.Number)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewValidationError("A reason is required to reverse a clearing")
	}
	for _, line := range c.Lines {
		item, ok := items[line.OpenItemID]
		if !ok {
			return shared.NewDomainError(shared.CodeNotFound, "Open item "+line.OpenItemID.String()+" not found")
		}
		if item.LastClearingID == nil || *item.LastClearingID != c.ID {
			return shared.NewTransitionError(
				"Clearing %s cannot be reversed: open item %s was cleared again later", c.Number, item.DocumentNumber)
		}
	}
	for _, line := range c.Lines {
		items[line.OpenItemID].restore(line.RemainingBefore, line.PreviousClearingID, at)
	}
	byID := by
	when := at
	c.Status = ClearingStatusReversed
	c.ReversedAt = &when
	c.ReversedBy = &byID
	c.ReversalReason = reason
	c.UpdatedAt = at
	c.AddDomainEvent(NewClearingReversedEvent(c))
	return nil
}

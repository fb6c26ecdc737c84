package finance

import (
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TemplateStatus is the state of a recurring journal template
type TemplateStatus string

const (
	TemplateStatusActive  TemplateStatus = "ACTIVE"
	TemplateStatusPaused  TemplateStatus = "PAUSED"
	TemplateStatusExpired TemplateStatus = "EXPIRED"
	TemplateStatusDeleted TemplateStatus = "DELETED"
)

// RecurringJournalTemplate spawns a balanced journal entry on every run
type RecurringJournalTemplate struct {
	shared.ScopedAggregateRoot
	Name        string     `gorm:"size:200;not null"`
	Description string     `gorm:"size:1000"`
	Currency    string     `gorm:"size:3;not null"`
	Frequency   Frequency  `gorm:"size:16;not null"`
	StartDate   time.Time  `gorm:"type:date;not null"`
	EndDate     *time.Time `gorm:"type:date"`
	DayOfMonth  *int
	DayOfWeek   *int
	AutoPost    bool                   `gorm:"not null;default:false"`
	Status      TemplateStatus         `gorm:"size:16;not null;index"`
	NextRunDate *time.Time             `gorm:"type:date;index"`
	LastRunDate *time.Time             `gorm:"type:date"`
	RunCount    int                    `gorm:"not null;default:0"`
	Lines       []RecurringJournalLine `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}

func (RecurringJournalTemplate) TableName() string { return "recurring_journal_templates" }

// RecurringJournalLine is one line copied into every spawned journal entry
type RecurringJournalLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TemplateID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo      int             `gorm:"not null"`
	AccountCode string          `gorm:"size:32;not null"`
	Description string          `gorm:"size:500"`
	Debit       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Credit      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

func (RecurringJournalLine) TableName() string { return "recurring_journal_lines" }

// RecurringExecution is the audit record of one template run
type RecurringExecution struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TemplateID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	AgencyID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	SubAccountID   *uuid.UUID `gorm:"type:uuid"`
	JournalEntryID uuid.UUID  `gorm:"type:uuid;not null"`
	JournalNumber  string     `gorm:"size:64;not null"`
	PostingDate    time.Time  `gorm:"type:date;not null"`
	RunNumber      int        `gorm:"not null"`
	AutoPosted     bool       `gorm:"not null"`
	ExecutedBy     uuid.UUID  `gorm:"type:uuid;not null"`
	ExecutedAt     time.Time  `gorm:"not null"`
}

func (RecurringExecution) TableName() string { return "recurring_executions" }

// RecurringTemplateInput creates or edits a template
type RecurringTemplateInput struct {
	Name        string             `json:"name" validate:"required,max=200"`
	Description string             `json:"description" validate:"max=1000"`
	Currency    string             `json:"currency" validate:"required,iso4217"`
	Frequency   Frequency          `json:"frequency" validate:"required,oneof=DAILY WEEKLY BIWEEKLY MONTHLY QUARTERLY ANNUALLY"`
	StartDate   time.Time          `json:"start_date" validate:"required"`
	EndDate     *time.Time         `json:"end_date"`
	DayOfMonth  *int               `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	DayOfWeek   *int               `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	AutoPost    bool               `json:"auto_post"`
	Lines       []JournalLineInput `json:"lines" validate:"min=2,dive"`
}

func (in RecurringTemplateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return shared.NewValidationError("Template name is required")
	}
	if !in.Frequency.IsValid() {
		return shared.NewValidationError("Unknown frequency %s", in.Frequency)
	}
	if in.StartDate.IsZero() {
		return shared.NewValidationError("Start date is required")
	}
	if in.EndDate != nil && truncateDay(*in.EndDate).Before(truncateDay(in.StartDate)) {
		return shared.NewValidationError("End date cannot be before start date")
	}
	if in.DayOfMonth != nil && (*in.DayOfMonth < 1 || *in.DayOfMonth > 31) {
		return shared.NewValidationError("Day of month must be between 1 and 31")
	}
	if in.DayOfWeek != nil && (*in.DayOfWeek < 0 || *in.DayOfWeek > 6) {
		return shared.NewValidationError("Day of week must be between 0 and 6")
	}
	if len(in.Currency) != 3 {
		return shared.NewValidationError("Currency must be a 3-letter ISO code")
	}
	_, err := CheckBalanced(in.Lines)
	return err
}

// NewRecurringJournalTemplate creates an ACTIVE template whose first run is
// its start date
func NewRecurringJournalTemplate(scope shared.TenantScope, createdBy uuid.UUID, in RecurringTemplateInput) (*RecurringJournalTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t := &RecurringJournalTemplate{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(scope, createdBy),
		Status:              TemplateStatusActive,
	}
	t.assign(in)
	start := t.StartDate
	t.NextRunDate = &start
	t.AddDomainEvent(NewTemplateEvent(EventTemplateCreated, t))
	return t, nil
}

func (t *RecurringJournalTemplate) assign(in RecurringTemplateInput) {
	t.Name = strings.TrimSpace(in.Name)
	t.Description = strings.TrimSpace(in.Description)
	t.Currency = strings.ToUpper(in.Currency)
	t.Frequency = in.Frequency
	t.StartDate = truncateDay(in.StartDate)
	t.EndDate = nil
	if in.EndDate != nil {
		end := truncateDay(*in.EndDate)
		t.EndDate = &end
	}
	t.DayOfMonth = in.DayOfMonth
	t.DayOfWeek = in.DayOfWeek
	t.AutoPost = in.AutoPost
	t.Lines = make([]RecurringJournalLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		t.Lines = append(t.Lines, RecurringJournalLine{
			ID:          uuid.New(),
			TemplateID:  t.ID,
			LineNo:      i + 1,
			AccountCode: strings.TrimSpace(l.AccountCode),
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
}

// Update replaces the editable fields. The next run moves with the start
// date only while the template has never run. A template whose next run now
// lies past the new end date expires.
func (t *RecurringJournalTemplate) Update(in RecurringTemplateInput) error {
	if t.Status == TemplateStatusDeleted || t.Status == TemplateStatusExpired {
		return shared.NewTransitionError("Cannot update template in %s status", t.Status)
	}
	if err := in.validate(); err != nil {
		return err
	}
	startChanged := !truncateDay(in.StartDate).Equal(t.StartDate)
	t.assign(in)
	if startChanged && t.RunCount == 0 {
		start := t.StartDate
		t.NextRunDate = &start
	}
	if t.pastEnd(t.NextRunDate) {
		t.expire()
	}
	t.AddDomainEvent(NewTemplateEvent(EventTemplateUpdated, t))
	return nil
}

// Pause stops scheduled runs
func (t *RecurringJournalTemplate) Pause() error {
	if t.Status != TemplateStatusActive {
		return shared.NewTransitionError("Cannot pause template in %s status", t.Status)
	}
	t.Status = TemplateStatusPaused
	t.AddDomainEvent(NewTemplateEvent(EventTemplatePaused, t))
	return nil
}

// Resume reactivates a paused template. A template whose next run already
// lies past its end date expires instead.
func (t *RecurringJournalTemplate) Resume() error {
	if t.Status != TemplateStatusPaused {
		return shared.NewTransitionError("Cannot resume template in %s status", t.Status)
	}
	if t.pastEnd(t.NextRunDate) {
		t.expire()
	} else {
		t.Status = TemplateStatusActive
	}
	t.AddDomainEvent(NewTemplateEvent(EventTemplateResumed, t))
	return nil
}

// Delete soft-deletes the template
func (t *RecurringJournalTemplate) Delete() error {
	if t.Status == TemplateStatusDeleted {
		return shared.NewTransitionError("Template is already deleted")
	}
	t.Status = TemplateStatusDeleted
	t.NextRunDate = nil
	t.AddDomainEvent(NewTemplateEvent(EventTemplateDeleted, t))
	return nil
}

// LineInputs returns the template lines in journal input form
func (t *RecurringJournalTemplate) LineInputs() []JournalLineInput {
	out := make([]JournalLineInput, 0, len(t.Lines))
	for _, l := range t.Lines {
		out = append(out, JournalLineInput{
			AccountCode: l.AccountCode,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	return out
}

// CheckExecutable verifies the template may run now
func (t *RecurringJournalTemplate) CheckExecutable() error {
	if t.Status != TemplateStatusActive {
		return shared.NewTransitionError("Cannot execute template in %s status", t.Status)
	}
	_, err := CheckBalanced(t.LineInputs())
	return err
}

// DefaultPostingDate is the next scheduled run, or today when none is set
func (t *RecurringJournalTemplate) DefaultPostingDate(today time.Time) time.Time {
	if t.NextRunDate != nil {
		return *t.NextRunDate
	}
	return truncateDay(today)
}

// RecordRun advances the schedule after a run posted on postingDate. The
// template expires when the following run would fall after its end date.
func (t *RecurringJournalTemplate) RecordRun(postingDate time.Time) {
	posted := truncateDay(postingDate)
	t.LastRunDate = &posted
	t.RunCount++
	next := NextRunDate(posted, t.Frequency, t.DayOfMonth, t.DayOfWeek)
	if t.pastEnd(&next) {
		t.expire()
		return
	}
	t.NextRunDate = &next
}

func (t *RecurringJournalTemplate) pastEnd(d *time.Time) bool {
	return t.EndDate != nil && d != nil && d.After(*t.EndDate)
}

func (t *RecurringJournalTemplate) expire() {
	t.Status = TemplateStatusExpired
	t.NextRunDate = nil
}

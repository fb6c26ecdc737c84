package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// AuditStamps records who moved a document through each step and when
type AuditStamps struct {
	SubmittedAt     *time.Time
	SubmittedBy     *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt      *time.Time
	ApprovedBy      *uuid.UUID `gorm:"type:uuid"`
	ApprovalNotes   string     `gorm:"size:1000"`
	RejectedAt      *time.Time
	RejectedBy      *uuid.UUID `gorm:"type:uuid"`
	RejectionReason string     `gorm:"size:500"`
	SentAt          *time.Time
	SentBy          *uuid.UUID `gorm:"type:uuid"`
	PostedAt        *time.Time
	PostedBy        *uuid.UUID `gorm:"type:uuid"`
	VoidedAt        *time.Time
	VoidedBy        *uuid.UUID `gorm:"type:uuid"`
	VoidReason      string     `gorm:"size:500"`
	SettledAt       *time.Time
}

// Record stamps action. note is the reason for reject/void and the optional
// notes for approve.
func (s *AuditStamps) Record(action Action, actor uuid.UUID, at time.Time, note string) {
	by := actor
	when := at
	switch action {
	case ActionSubmit:
		s.SubmittedAt, s.SubmittedBy = &when, &by
	case ActionApprove:
		s.ApprovedAt, s.ApprovedBy = &when, &by
		s.ApprovalNotes = note
	case ActionReject:
		s.RejectedAt, s.RejectedBy = &when, &by
		s.RejectionReason = note
	case ActionSend:
		s.SentAt, s.SentBy = &when, &by
	case ActionPost:
		s.PostedAt, s.PostedBy = &when, &by
	case ActionVoid:
		s.VoidedAt, s.VoidedBy = &when, &by
		s.VoidReason = note
	case ActionSettle:
		s.SettledAt = &when
	case ActionUnsettle:
		s.SettledAt = nil
	}
}

// Columns lists the stamp columns written by status transitions
func (AuditStamps) Columns() []string {
	return []string{
		"submitted_at", "submitted_by",
		"approved_at", "approved_by", "approval_notes",
		"rejected_at", "rejected_by", "rejection_reason",
		"sent_at", "sent_by",
		"posted_at", "posted_by",
		"voided_at", "voided_by", "void_reason",
		"settled_at",
	}
}

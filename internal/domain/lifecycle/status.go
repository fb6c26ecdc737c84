// Package lifecycle holds the approval and posting state machine shared by
// every financial document kind.
package lifecycle

// Status is the lifecycle state of a financial document
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusReceived        Status = "RECEIVED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusSent            Status = "SENT"
	StatusPosted          Status = "POSTED"
	StatusPaid            Status = "PAID"
	StatusApplied         Status = "APPLIED"
	StatusCleared         Status = "CLEARED"
	StatusVoid            Status = "VOID"
)

// AllStatuses returns every known status
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusReceived, StatusPendingApproval, StatusApproved, StatusSent,
		StatusPosted, StatusPaid, StatusApplied, StatusCleared, StatusVoid,
	}
}

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	for _, v := range AllStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// IsSettled returns true for the states a document reaches once its balance
// has been fully cleared
func (s Status) IsSettled() bool {
	return s == StatusPaid || s == StatusApplied || s == StatusCleared
}

// IsTerminal returns true if no user action can move the document any more
func (s Status) IsTerminal() bool {
	return s.IsSettled() || s == StatusVoid
}

// IsEditable returns true while document fields may still change
func (s Status) IsEditable() bool {
	return s == StatusDraft || s == StatusReceived
}

func (s Status) String() string {
	return string(s)
}

// Action is a lifecycle operation
type Action string

const (
	ActionView     Action = "view"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionSend     Action = "send"
	ActionPost     Action = "post"
	ActionVoid     Action = "void"
	ActionSettle   Action = "settle"
	ActionUnsettle Action = "unsettle"
)

// AllActions returns every status-changing action, user and system
func AllActions() []Action {
	return []Action{
		ActionUpdate, ActionSubmit, ActionApprove, ActionReject, ActionSend,
		ActionPost, ActionVoid, ActionSettle, ActionUnsettle,
	}
}

// IsSystem reports actions driven by the ledger itself rather than a user
func (a Action) IsSystem() bool {
	return a == ActionSettle || a == ActionUnsettle
}

// RequiresReason reports whether the action must carry a reason
func (a Action) RequiresReason() bool {
	return a == ActionReject || a == ActionVoid
}

func (a Action) String() string {
	return string(a)
}

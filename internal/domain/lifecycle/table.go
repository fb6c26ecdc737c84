package lifecycle

import (
	"fmt"
	"slices"
)

// Transition is one row of a transition table. An empty To keeps the status
// unchanged (field edits).
type Transition struct {
	Action Action
	From   []Status
	To     Status
}

// Table is the set of transitions a document kind allows
type Table struct {
	initial     []Status
	transitions map[Action]Transition
}

// NewTable builds a table. initial lists the statuses a document may be
// created in; the first one is the default.
func NewTable(initial []Status, transitions ...Transition) *Table {
	t := &Table{
		initial:     slices.Clone(initial),
		transitions: make(map[Action]Transition, len(transitions)),
	}
	for _, tr := range transitions {
		tr.From = slices.Clone(tr.From)
		t.transitions[tr.Action] = tr
	}
	return t
}

// StandardTable is the DRAFT → PENDING_APPROVAL → APPROVED → POSTED lifecycle.
// settled is the status a posted document reaches when fully cleared; pass ""
// for kinds that never settle.
func StandardTable(settled Status) *Table {
	transitions := []Transition{
		{Action: ActionUpdate, From: []Status{StatusDraft}},
		{Action: ActionSubmit, From: []Status{StatusDraft}, To: StatusPendingApproval},
		{Action: ActionApprove, From: []Status{StatusPendingApproval}, To: StatusApproved},
		{Action: ActionReject, From: []Status{StatusPendingApproval}, To: StatusDraft},
		{Action: ActionPost, From: []Status{StatusApproved}, To: StatusPosted},
		{Action: ActionVoid, From: []Status{StatusDraft, StatusPendingApproval, StatusApproved, StatusPosted}, To: StatusVoid},
	}
	if settled != "" {
		transitions = append(transitions,
			Transition{Action: ActionSettle, From: []Status{StatusPosted}, To: settled},
			Transition{Action: ActionUnsettle, From: []Status{settled}, To: StatusPosted},
		)
	}
	return NewTable([]Status{StatusDraft}, transitions...)
}

// WithReceivedIntake lets documents be captured as RECEIVED and edited or
// submitted from there
func (t *Table) WithReceivedIntake() *Table {
	out := t.clone()
	out.initial = append(out.initial, StatusReceived)
	out.addFrom(ActionUpdate, StatusReceived)
	out.addFrom(ActionSubmit, StatusReceived)
	out.addFrom(ActionVoid, StatusReceived)
	return out
}

// WithSend adds the APPROVED → SENT step and allows posting from SENT
func (t *Table) WithSend() *Table {
	out := t.clone()
	out.transitions[ActionSend] = Transition{Action: ActionSend, From: []Status{StatusApproved}, To: StatusSent}
	out.addFrom(ActionPost, StatusSent)
	out.addFrom(ActionVoid, StatusSent)
	return out
}

func (t *Table) clone() *Table {
	out := &Table{initial: slices.Clone(t.initial), transitions: make(map[Action]Transition, len(t.transitions))}
	for a, tr := range t.transitions {
		tr.From = slices.Clone(tr.From)
		out.transitions[a] = tr
	}
	return out
}

func (t *Table) addFrom(action Action, from Status) {
	tr, ok := t.transitions[action]
	if !ok || slices.Contains(tr.From, from) {
		return
	}
	tr.From = append(tr.From, from)
	t.transitions[action] = tr
}

// InitialStatus returns the default creation status
func (t *Table) InitialStatus() Status {
	return t.initial[0]
}

// AllowsInitial reports whether a document may be created in status
func (t *Table) AllowsInitial(status Status) bool {
	return slices.Contains(t.initial, status)
}

// Supports reports whether the action exists for this table at all
func (t *Table) Supports(action Action) bool {
	_, ok := t.transitions[action]
	return ok
}

// Allows reports whether action may run from status
func (t *Table) Allows(action Action, from Status) bool {
	tr, ok := t.transitions[action]
	return ok && slices.Contains(tr.From, from)
}

// Target returns the status action leads to from status
func (t *Table) Target(action Action, from Status) (Status, error) {
	tr, ok := t.transitions[action]
	if !ok || !slices.Contains(tr.From, from) {
		return from, fmt.Errorf("%s not allowed from %s", action, from)
	}
	if tr.To == "" {
		return from, nil
	}
	return tr.To, nil
}

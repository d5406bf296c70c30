package domain

import "time"

// Status is the persisted lifecycle state of an invoice. StatusOverdue is never
// stored; it is derived from a pending invoice whose due date has passed.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"

	StatusOverdue Status = "overdue"
)

var transitions = map[Status]map[Status]struct{}{
	StatusDraft: {
		StatusPending:   {},
		StatusCancelled: {},
	},
	StatusPending: {
		StatusPartial:   {},
		StatusPaid:      {},
		StatusCancelled: {},
	},
	StatusPartial: {
		StatusPartial: {},
		StatusPaid:    {},
	},
	StatusPaid:      {},
	StatusCancelled: {},
}

// Persisted reports whether s may be written to the invoices table.
func (s Status) Persisted() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Cancellable reports whether cancel or void is allowed from s, money aside.
func (s Status) Cancellable() bool {
	return s == StatusDraft || s == StatusPending
}

func (s Status) AcceptsPayment() bool {
	return s == StatusPending || s == StatusPartial
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ParseStatus accepts persisted statuses plus the derived overdue view.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	if s.Persisted() || s == StatusOverdue {
		return s, true
	}
	return "", false
}

// StatusAt is the status a reader sees at now.
func (i Invoice) StatusAt(now time.Time) Status {
	if i.Status == StatusPending && i.DueDate != nil && i.DueDate.Before(now) {
		return StatusOverdue
	}
	return i.Status
}

// IsOverdue reports whether the invoice is overdue at now.
func (i Invoice) IsOverdue(now time.Time) bool {
	return i.StatusAt(now) == StatusOverdue
}

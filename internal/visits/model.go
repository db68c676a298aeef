package visits

import (
	"time"

	"github.com/google/uuid"

	"github.com/ruta-crm/ruta-crm/internal/sales"
)

// Status is the visit outcome axis.
type Status string

const (
	// StatusInProgress is the only non-terminal status and the initial one.
	StatusInProgress Status = "in_progress"
	// StatusCompleted marks a finished visit with a result.
	StatusCompleted Status = "completed"
	// StatusNoAnswer marks a visit where the client did not answer.
	StatusNoAnswer Status = "no_answer"
	// StatusNotInterested marks a visit the client declined.
	StatusNotInterested Status = "not_interested"
	// StatusPostponed marks a visit moved to a later date.
	StatusPostponed Status = "postponed"
)

// Terminal reports whether the status accepts no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusNoAnswer || s == StatusNotInterested || s == StatusPostponed
}

// ApprovalStatus is the independent history-access axis. It evolves
// separately from Status: waiting_admin gates the commercial's access to
// the client's history, not the visit's existence.
type ApprovalStatus string

const (
	// ApprovalPending is the initial state before a request is filed.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalWaitingAdmin means a request exists awaiting admin action.
	ApprovalWaitingAdmin ApprovalStatus = "waiting_admin"
	// ApprovalApproved grants history access and unblocks finalization.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected denies history access; the visit still proceeds.
	ApprovalRejected ApprovalStatus = "rejected"
)

// validCombinations enumerates every reachable (approval, status) pair.
// Terminal visit statuses are only reachable once the approval axis is
// itself terminal: an approval still in flight keeps the visit editable but
// not finishable.
var validCombinations = map[ApprovalStatus]map[Status]bool{
	ApprovalPending:      {StatusInProgress: true},
	ApprovalWaitingAdmin: {StatusInProgress: true},
	ApprovalApproved: {
		StatusInProgress: true, StatusCompleted: true, StatusNoAnswer: true,
		StatusNotInterested: true, StatusPostponed: true,
	},
	ApprovalRejected: {
		StatusInProgress: true, StatusCompleted: true, StatusNoAnswer: true,
		StatusNotInterested: true, StatusPostponed: true,
	},
}

// CombinationValid reports whether the pair appears in the reachability table.
func CombinationValid(approval ApprovalStatus, status Status) bool {
	return validCombinations[approval][status]
}

// statusForOutcome derives the terminal status from the chosen outcome
// code; unknown codes finalize as completed.
func statusForOutcome(code string) Status {
	switch code {
	case "no_answer":
		return StatusNoAnswer
	case "not_interested":
		return StatusNotInterested
	case "postponed":
		return StatusPostponed
	default:
		return StatusCompleted
	}
}

// Visit is one field encounter between a commercial and a client.
type Visit struct {
	ID                 int64          `json:"id"`
	ClientID           int64          `json:"client_id"`
	CommercialID       int64          `json:"commercial_id"`
	SecondCommercialID *int64         `json:"second_commercial_id,omitempty"`
	CompanyID          int64          `json:"company_id"`
	VisitedAt          time.Time      `json:"visited_at"`
	Status             Status         `json:"status"`
	ApprovalStatus     ApprovalStatus `json:"approval_status"`
	Notes              string         `json:"notes"`
	OutcomeCode        *string        `json:"outcome_code,omitempty"`
	Latitude           *float64       `json:"latitude,omitempty"`
	Longitude          *float64       `json:"longitude,omitempty"`
	Accuracy           *float64       `json:"accuracy,omitempty"`
	BatchID            *uuid.UUID     `json:"batch_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ApprovalRequest asks an admin to grant a commercial access to a client's
// history. One active request exists per (client, commercial) pair; it is
// created alongside the provisional visit it unblocks.
type ApprovalRequest struct {
	ID           int64          `json:"id"`
	ClientID     int64          `json:"client_id"`
	CommercialID int64          `json:"commercial_id"`
	VisitID      int64          `json:"visit_id"`
	Status       ApprovalStatus `json:"status"`
	Note         string         `json:"note,omitempty"`
	ResolvedBy   *int64         `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// VisitContext is what ResumeVisit hands back so a commercial continues
// exactly where they left off. ReadOnly is set once the visit is terminal;
// callers must treat such visits as immutable.
type VisitContext struct {
	Visit    *Visit      `json:"visit"`
	Sale     *sales.Sale `json:"sale,omitempty"`
	ReadOnly bool        `json:"read_only"`
}

// ClientHistory is the historical context unlocked by an approved request.
type ClientHistory struct {
	Visits []Visit      `json:"visits"`
	Sales  []sales.Sale `json:"sales"`
}

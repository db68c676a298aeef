package visits

import (
	"github.com/google/uuid"

	"github.com/ruta-crm/ruta-crm/internal/clients"
	"github.com/ruta-crm/ruta-crm/internal/sales"
)

// StartVisitRequest starts a single visit. Exactly one of ClientID or
// NewClient must be set; a brand-new client skips the approval gate.
type StartVisitRequest struct {
	ClientID           *int64                       `json:"client_id"`
	NewClient          *clients.CreateClientRequest `json:"new_client"`
	CompanyID          int64                        `json:"company_id" validate:"required"`
	SecondCommercialID *int64                       `json:"second_commercial_id"`
}

// StartVisitBatchRequest creates one visit per resolved national-ID under a
// shared batch identifier.
type StartVisitBatchRequest struct {
	NationalIDs []string `json:"national_ids" validate:"required,min=1,dive,required"`
	CompanyID   int64    `json:"company_id" validate:"required"`
}

// BatchResult reports what a bulk submission produced.
type BatchResult struct {
	BatchID         uuid.UUID `json:"batch_id"`
	Visits          []Visit   `json:"visits"`
	Unresolved      []string  `json:"unresolved"`
	SkippedInactive []string  `json:"skipped_inactive"`
}

// SaveProgressRequest persists the current state of a visit being taken.
// Lines, when non-empty, are the complete desired line set for the visit's
// sale. Finalize requires notes and an outcome code.
type SaveProgressRequest struct {
	Notes       string            `json:"notes"`
	OutcomeCode string            `json:"outcome_code"`
	Lines       []sales.LineInput `json:"lines" validate:"omitempty,dive"`
	Finalize    bool              `json:"finalize"`
}

// ListVisitsRequest filters the visit listing.
type ListVisitsRequest struct {
	CommercialID   *int64
	ClientID       *int64
	Status         *Status
	ApprovalStatus *ApprovalStatus
	BatchID        *uuid.UUID
	Limit          int
	Offset         int
}

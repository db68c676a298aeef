package admin

import (
	"github.com/ruta-crm/ruta-crm/internal/sales"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// ReassignRequest moves a visit to another client and/or commercial. The
// visit's sale, when one exists, follows the new ownership.
type ReassignRequest struct {
	NewClientID           *int64              `json:"new_client_id"`
	NewCommercialID       *int64              `json:"new_commercial_id"`
	NewSecondCommercialID *int64              `json:"new_second_commercial_id"`
	Confirm               shared.Confirmation `json:"confirm"`
}

// EditSaleRequest replaces a sale's whole line set out of band.
type EditSaleRequest struct {
	Lines   []sales.LineInput   `json:"lines" validate:"required,min=1,dive"`
	Confirm shared.Confirmation `json:"confirm"`
}

// DeleteVisitRequest removes a visit and everything hanging off it.
type DeleteVisitRequest struct {
	Confirm shared.Confirmation `json:"confirm"`
}

// DeleteReport states exactly what a deletion removed, sale rows first.
type DeleteReport struct {
	VisitID      int64 `json:"visit_id"`
	SalesDeleted int   `json:"sales_deleted"`
	VisitDeleted bool  `json:"visit_deleted"`
}

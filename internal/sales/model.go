package sales

import "time"

// Sale is a visit's commercial outcome. At most one sale exists per visit;
// re-saving replaces its lines instead of duplicating.
//
// Amount is the raw sum of quantity × unit price over ALL lines, voided
// ones included — voided lines are kept for audit. Reporting and
// commission paths must use EffectiveAmount instead, which excludes them.
// The two conventions are deliberate and must stay distinct.
type Sale struct {
	ID               int64      `json:"id"`
	VisitID          *int64     `json:"visit_id,omitempty"`
	ClientID         int64      `json:"client_id"`
	CommercialID     int64      `json:"commercial_id"`
	CompanyID        int64      `json:"company_id"`
	Amount           float64    `json:"amount"`
	CommissionPct    *float64   `json:"commission_pct,omitempty"`
	CommissionAmount *float64   `json:"commission_amount,omitempty"`
	SoldAt           time.Time  `json:"sold_at"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Lines            []SaleLine `json:"lines,omitempty"`
}

// EffectiveAmount is the sale total with voided lines' revenue excluded.
func (s *Sale) EffectiveAmount() float64 {
	var total float64
	for _, line := range s.Lines {
		if line.Voided {
			continue
		}
		total += line.LineTotal
	}
	return total
}

// SaleLine is one priced item of a sale. A line may bundle several named
// products (a "pack"). The three flags are independent: a financed line can
// also be paid by wire transfer, and voiding only marks the line as zero
// revenue for reporting.
type SaleLine struct {
	ID           int64    `json:"id"`
	SaleID       int64    `json:"sale_id"`
	Quantity     int      `json:"quantity"`
	UnitPrice    float64  `json:"unit_price"`
	Financed     bool     `json:"financiada"`
	WireTransfer bool     `json:"transferencia"`
	Voided       bool     `json:"nulo"`
	LineTotal    float64  `json:"line_total"`
	Products     []string `json:"products,omitempty"`
}

// LineInput is the caller-supplied shape for a full line replacement.
type LineInput struct {
	Quantity     int      `json:"quantity" validate:"required,min=1"`
	UnitPrice    float64  `json:"unit_price" validate:"min=0"`
	Financed     bool     `json:"financiada"`
	WireTransfer bool     `json:"transferencia"`
	Voided       bool     `json:"nulo"`
	Products     []string `json:"products"`
}

// VisitRef carries the visit ownership fields a new sale inherits. The
// visits package fills it so this package never reaches back into visits.
type VisitRef struct {
	VisitID      int64
	ClientID     int64
	CommercialID int64
	CompanyID    int64
}

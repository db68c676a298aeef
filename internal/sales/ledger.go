package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/geo"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// CommissionCalculator fills commission values when the sale carries none.
// The ledger itself performs no commission math beyond passing stored
// values through.
type CommissionCalculator interface {
	Commission(ctx context.Context, sale *Sale) (pct, amount float64, err error)
}

// Ledger maintains at most one sale per visit with fully replaceable lines.
type Ledger struct {
	repo       Repository
	bus        *feed.Bus
	commission CommissionCalculator
	now        func() time.Time
}

// NewLedger constructs the ledger. commission may be nil.
func NewLedger(repo Repository, bus *feed.Bus, commission CommissionCalculator) *Ledger {
	return &Ledger{repo: repo, bus: bus, commission: commission, now: time.Now}
}

// Get loads a sale by id.
func (l *Ledger) Get(ctx context.Context, id int64) (*Sale, error) {
	return l.repo.Get(ctx, id)
}

// GetByVisit loads the visit's sale, ErrNotFound when none exists.
func (l *Ledger) GetByVisit(ctx context.Context, visitID int64) (*Sale, error) {
	return l.repo.GetByVisit(ctx, visitID)
}

// ListByClient returns all sales recorded against a client, newest first.
func (l *Ledger) ListByClient(ctx context.Context, clientID int64) ([]Sale, error) {
	return l.repo.ListByClient(ctx, clientID)
}

// ReplaceLinesForVisit upserts the visit's sale and replaces its whole line
// set. The delete-then-insert runs inside one transaction, so a reader
// never observes a sale whose old lines reappear after the call returned.
// Callers must always supply the complete desired line set.
func (l *Ledger) ReplaceLinesForVisit(ctx context.Context, ref VisitRef, inputs []LineInput, pos *geo.Position) (*Sale, error) {
	lines, amount, err := buildLines(inputs)
	if err != nil {
		return nil, err
	}

	var lat, lng *float64
	if pos != nil {
		lat, lng = &pos.Latitude, &pos.Longitude
	}

	var saleID int64
	err = l.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetByVisit(ctx, ref.VisitID)
		switch {
		case err == nil:
			saleID = existing.ID
			if err := repo.UpdateHeader(ctx, saleID, amount, l.now(), lat, lng); err != nil {
				return fmt.Errorf("update sale: %w", err)
			}
		case errors.Is(err, shared.ErrNotFound):
			visitID := ref.VisitID
			saleID, err = repo.Insert(ctx, Sale{
				VisitID:      &visitID,
				ClientID:     ref.ClientID,
				CommercialID: ref.CommercialID,
				CompanyID:    ref.CompanyID,
				Amount:       amount,
				SoldAt:       l.now(),
				Latitude:     lat,
				Longitude:    lng,
			})
			if err != nil {
				return fmt.Errorf("insert sale: %w", err)
			}
		default:
			return fmt.Errorf("load sale: %w", err)
		}

		return replaceLines(ctx, repo, saleID, lines)
	})
	if err != nil {
		return nil, err
	}

	l.bus.Publish(ctx, feed.Event{Table: feed.TableSales, Type: feed.EventUpdate, ID: saleID})
	return l.finish(ctx, saleID)
}

// ReplaceLinesForSale applies the same full-replace contract to an existing
// sale, independent of the visit-taking flow.
func (l *Ledger) ReplaceLinesForSale(ctx context.Context, saleID int64, inputs []LineInput) (*Sale, error) {
	lines, amount, err := buildLines(inputs)
	if err != nil {
		return nil, err
	}

	err = l.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Get(ctx, saleID)
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}
		if err := repo.UpdateHeader(ctx, existing.ID, amount, l.now(), nil, nil); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}
		return replaceLines(ctx, repo, existing.ID, lines)
	})
	if err != nil {
		return nil, err
	}

	l.bus.Publish(ctx, feed.Event{Table: feed.TableSales, Type: feed.EventUpdate, ID: saleID})
	return l.finish(ctx, saleID)
}

func (l *Ledger) finish(ctx context.Context, saleID int64) (*Sale, error) {
	sale, err := l.repo.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.CommissionPct == nil && sale.CommissionAmount == nil && l.commission != nil {
		pct, amount, err := l.commission.Commission(ctx, sale)
		if err == nil {
			sale.CommissionPct = &pct
			sale.CommissionAmount = &amount
		}
	}
	return sale, nil
}

func replaceLines(ctx context.Context, repo Repository, saleID int64, lines []SaleLine) error {
	if err := repo.DeleteLines(ctx, saleID); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	for _, line := range lines {
		line.SaleID = saleID
		lineID, err := repo.InsertLine(ctx, line)
		if err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
		if len(line.Products) > 0 {
			if err := repo.InsertLineProducts(ctx, lineID, line.Products); err != nil {
				return fmt.Errorf("insert line products: %w", err)
			}
		}
	}
	return nil
}

// buildLines validates inputs and computes the raw amount. Voided lines are
// included in the stored amount on purpose; only EffectiveAmount excludes
// them.
func buildLines(inputs []LineInput) ([]SaleLine, float64, error) {
	var lines []SaleLine
	var amount float64
	for i, in := range inputs {
		if in.Quantity < 1 {
			return nil, 0, fmt.Errorf("%w: line %d quantity must be at least 1", shared.ErrValidation, i+1)
		}
		if in.UnitPrice < 0 {
			return nil, 0, fmt.Errorf("%w: line %d unit price must not be negative", shared.ErrValidation, i+1)
		}
		lineTotal := float64(in.Quantity) * in.UnitPrice
		amount += lineTotal

		var products []string
		for _, name := range in.Products {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			products = append(products, name)
		}

		lines = append(lines, SaleLine{
			Quantity:     in.Quantity,
			UnitPrice:    in.UnitPrice,
			Financed:     in.Financed,
			WireTransfer: in.WireTransfer,
			Voided:       in.Voided,
			LineTotal:    lineTotal,
			Products:     products,
		})
	}
	return lines, amount, nil
}

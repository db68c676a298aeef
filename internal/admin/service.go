package admin

import (
	"context"
	"strconv"
	"time"

	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/sales"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Service holds the admin-only override operations. Every one of them is
// destructive or ownership-changing, so every one of them demands an
// explicit confirmation and lands in the audit log.
type Service struct {
	repo   Repository
	ledger *sales.Ledger
	bus    *feed.Bus
	audit  *shared.AuditLogger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, ledger *sales.Ledger, bus *feed.Bus, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, ledger: ledger, bus: bus, audit: audit, now: time.Now}
}

// Reassign moves a visit to another client and/or commercial, dragging its
// sale along in the same transaction.
func (s *Service) Reassign(ctx context.Context, actor shared.Actor, visitID int64, req ReassignRequest) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	if err := req.Confirm.Require(); err != nil {
		return err
	}
	if req.NewClientID == nil && req.NewCommercialID == nil && req.NewSecondCommercialID == nil {
		return shared.ErrValidation
	}

	if err := s.repo.Reassign(ctx, visitID, req.NewClientID, req.NewCommercialID, req.NewSecondCommercialID); err != nil {
		return err
	}

	s.record(ctx, actor, "visit.reassign", "visit", visitID, map[string]any{
		"new_client_id": req.NewClientID, "new_commercial_id": req.NewCommercialID,
		"new_second_commercial_id": req.NewSecondCommercialID,
	})
	s.bus.Publish(ctx, feed.Event{Table: feed.TableVisits, Type: feed.EventUpdate, ID: visitID})
	s.bus.Publish(ctx, feed.Event{Table: feed.TableSales, Type: feed.EventUpdate, ID: visitID})
	return nil
}

// EditSale replaces a sale's entire line set outside the visit-taking flow.
func (s *Service) EditSale(ctx context.Context, actor shared.Actor, saleID int64, req EditSaleRequest) (*sales.Sale, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	if err := req.Confirm.Require(); err != nil {
		return nil, err
	}

	sale, err := s.ledger.ReplaceLinesForSale(ctx, saleID, req.Lines)
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "sale.edit", "sale", saleID, map[string]any{"lines": len(req.Lines)})
	return sale, nil
}

// DeleteVisit removes a visit with its sale tree and approval requests, and
// reports exactly what went away.
func (s *Service) DeleteVisit(ctx context.Context, actor shared.Actor, visitID int64, req DeleteVisitRequest) (*DeleteReport, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	if err := req.Confirm.Require(); err != nil {
		return nil, err
	}

	report, err := s.repo.DeleteVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "visit.delete", "visit", visitID, map[string]any{"sales_deleted": report.SalesDeleted})
	s.bus.Publish(ctx, feed.Event{Table: feed.TableVisits, Type: feed.EventDelete, ID: visitID})
	if report.SalesDeleted > 0 {
		s.bus.Publish(ctx, feed.Event{Table: feed.TableSales, Type: feed.EventDelete, ID: visitID})
	}
	return &report, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}

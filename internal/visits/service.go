package visits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ruta-crm/ruta-crm/internal/clients"
	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/geo"
	"github.com/ruta-crm/ruta-crm/internal/sales"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// batchConcurrency bounds how many visits a bulk submission creates at once.
const batchConcurrency = 4

// approvalSweepBatch pages the blocked-visit sweep after an approval decision.
const approvalSweepBatch = 200

// Service drives the visit lifecycle: provisional creation behind the
// approval gate, incremental progress saves, finalization, and the history
// access an approved request unlocks.
type Service struct {
	repo    Repository
	clients *clients.Service
	ledger  *sales.Ledger
	bus     *feed.Bus
	geo     geo.Provider
	audit   *shared.AuditLogger
	now     func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, clientSvc *clients.Service, ledger *sales.Ledger, bus *feed.Bus, provider geo.Provider, audit *shared.AuditLogger) *Service {
	return &Service{
		repo:    repo,
		clients: clientSvc,
		ledger:  ledger,
		bus:     bus,
		geo:     provider,
		audit:   audit,
		now:     time.Now,
	}
}

// Get loads a visit by id, scoped to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (*Visit, error) {
	visit, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeVisit(actor, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

// List returns visits matching the filters. Non-admin actors only ever see
// their own visits regardless of the requested commercial filter.
func (s *Service) List(ctx context.Context, actor shared.Actor, req ListVisitsRequest) ([]Visit, int, error) {
	if !actor.IsAdmin() {
		req.CommercialID = &actor.ID
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

// StartVisit creates a provisional visit. The visit exists immediately even
// when the client's history is still gated: a non-admin visiting a known
// client files an approval request and starts in waiting_admin, while admins
// and brand-new clients skip the gate entirely. A device position is
// mandatory to start.
func (s *Service) StartVisit(ctx context.Context, actor shared.Actor, req StartVisitRequest) (*Visit, error) {
	if actor.Role == shared.RoleDelivery {
		return nil, shared.ErrForbidden
	}
	if (req.ClientID == nil) == (req.NewClient == nil) {
		return nil, fmt.Errorf("%w: exactly one of client_id or new_client required", shared.ErrValidation)
	}
	if req.CompanyID == 0 {
		return nil, shared.ErrMissingCompany
	}

	pos, err := s.geo.RequestPosition(ctx)
	if err != nil {
		return nil, err
	}

	var client *clients.Client
	isNew := false
	if req.NewClient != nil {
		client, err = s.clients.Create(ctx, actor, *req.NewClient)
		if err != nil {
			return nil, err
		}
		isNew = true
	} else {
		client, err = s.clients.Get(ctx, *req.ClientID)
		if err != nil {
			return nil, err
		}
	}

	return s.create(ctx, actor, client, req.CompanyID, req.SecondCommercialID, isNew, pos, nil)
}

// StartVisitBatch creates one visit per resolved national-ID under a shared
// batch id. Unknown ids and inactive clients never abort the batch; they are
// reported back so the caller can act on them.
func (s *Service) StartVisitBatch(ctx context.Context, actor shared.Actor, req StartVisitBatchRequest) (*BatchResult, error) {
	if actor.Role == shared.RoleDelivery {
		return nil, shared.ErrForbidden
	}
	if req.CompanyID == 0 {
		return nil, shared.ErrMissingCompany
	}
	if len(req.NationalIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one national id required", shared.ErrValidation)
	}

	pos, err := s.geo.RequestPosition(ctx)
	if err != nil {
		return nil, err
	}

	found, err := s.clients.FindManyByNationalID(ctx, req.NationalIDs)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	result := &BatchResult{BatchID: batchID}

	var targets []clients.Client
	seen := make(map[string]bool, len(req.NationalIDs))
	for _, nid := range req.NationalIDs {
		nid = strings.TrimSpace(nid)
		if nid == "" || seen[nid] {
			continue
		}
		seen[nid] = true
		client, ok := found[nid]
		if !ok {
			result.Unresolved = append(result.Unresolved, nid)
			continue
		}
		if !client.Active {
			result.SkippedInactive = append(result.SkippedInactive, nid)
			continue
		}
		targets = append(targets, client)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i := range targets {
		client := targets[i]
		g.Go(func() error {
			visit, err := s.create(gctx, actor, &client, req.CompanyID, nil, false, pos, &batchID)
			if err != nil {
				return fmt.Errorf("visit for client %d: %w", client.ID, err)
			}
			mu.Lock()
			result.Visits = append(result.Visits, *visit)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// create persists the visit and, when the actor lacks history access, the
// approval request alongside it in the same transaction.
func (s *Service) create(ctx context.Context, actor shared.Actor, client *clients.Client, companyID int64, secondCommercial *int64, isNew bool, pos geo.Position, batchID *uuid.UUID) (*Visit, error) {
	if !client.Active {
		return nil, shared.ErrClientInactive
	}

	approval := ApprovalApproved
	needsRequest := false
	if !actor.IsAdmin() && !isNew {
		granted, err := s.repo.HasApprovedAccess(ctx, client.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !granted {
			approval = ApprovalWaitingAdmin
			needsRequest = true
		}
	}

	visit := Visit{
		ClientID:           client.ID,
		CommercialID:       actor.ID,
		SecondCommercialID: secondCommercial,
		CompanyID:          companyID,
		VisitedAt:          s.now(),
		Status:             StatusInProgress,
		ApprovalStatus:     approval,
		Latitude:           &pos.Latitude,
		Longitude:          &pos.Longitude,
		Accuracy:           &pos.Accuracy,
		BatchID:            batchID,
	}

	var visitID int64
	var approvalID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		visitID, err = repo.Insert(ctx, visit)
		if err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}
		if !needsRequest {
			return nil
		}
		// Reuse the in-flight request if one exists; the new visit rides on
		// the same pending grant.
		_, err = repo.GetActiveApproval(ctx, client.ID, actor.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("load approval: %w", err)
		}
		approvalID, err = repo.InsertApproval(ctx, ApprovalRequest{
			ClientID:     client.ID,
			CommercialID: actor.ID,
			VisitID:      visitID,
			Status:       ApprovalPending,
		})
		if err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, feed.Event{Table: feed.TableVisits, Type: feed.EventInsert, ID: visitID})
	if approvalID != 0 {
		s.bus.Publish(ctx, feed.Event{Table: feed.TableApprovals, Type: feed.EventInsert, ID: approvalID})
	}
	return s.repo.Get(ctx, visitID)
}

// ResumeVisit hands back the visit plus its sale so a commercial picks up
// where they left off. Terminal visits come back read-only.
func (s *Service) ResumeVisit(ctx context.Context, actor shared.Actor, id int64) (*VisitContext, error) {
	visit, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeVisit(actor, visit); err != nil {
		return nil, err
	}

	sale, err := s.ledger.GetByVisit(ctx, id)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	return &VisitContext{Visit: visit, Sale: sale, ReadOnly: visit.Status.Terminal()}, nil
}

// SaveProgress persists the visit's current state. Without Finalize it is a
// plain save: a missing or denied position never blocks it. Finalize demands
// notes, an outcome code, a device position, and a resolved approval; until
// the admin decides, the visit stays editable but cannot finish.
func (s *Service) SaveProgress(ctx context.Context, actor shared.Actor, id int64, req SaveProgressRequest) (*Visit, error) {
	visit, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeVisit(actor, visit); err != nil {
		return nil, err
	}
	if visit.Status.Terminal() {
		return nil, shared.ErrVisitFinalized
	}

	var pos *geo.Position
	p, geoErr := s.geo.RequestPosition(ctx)
	if geoErr == nil {
		pos = &p
	}

	updates := map[string]interface{}{
		"notes": req.Notes,
	}
	if code := strings.TrimSpace(req.OutcomeCode); code != "" {
		updates["outcome_code"] = code
	}
	if pos != nil {
		updates["latitude"] = pos.Latitude
		updates["longitude"] = pos.Longitude
		updates["accuracy"] = pos.Accuracy
	}

	if req.Finalize {
		if strings.TrimSpace(req.Notes) == "" {
			return nil, fmt.Errorf("%w: notes required to finalize", shared.ErrValidation)
		}
		outcome := strings.TrimSpace(req.OutcomeCode)
		if outcome == "" {
			return nil, fmt.Errorf("%w: outcome code required to finalize", shared.ErrValidation)
		}
		if geoErr != nil {
			return nil, geoErr
		}
		next := statusForOutcome(outcome)
		if !CombinationValid(visit.ApprovalStatus, next) {
			return nil, fmt.Errorf("%w: visit cannot finalize while approval is %s", shared.ErrValidation, visit.ApprovalStatus)
		}
		updates["status"] = string(next)
	}

	if len(req.Lines) > 0 {
		ref := sales.VisitRef{
			VisitID:      visit.ID,
			ClientID:     visit.ClientID,
			CommercialID: visit.CommercialID,
			CompanyID:    visit.CompanyID,
		}
		if _, err := s.ledger.ReplaceLinesForVisit(ctx, ref, req.Lines, pos); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, feed.Event{Table: feed.TableVisits, Type: feed.EventUpdate, ID: id})
	return s.repo.Get(ctx, id)
}

// PendingApprovals lists unresolved requests for the admin queue.
func (s *Service) PendingApprovals(ctx context.Context, actor shared.Actor) ([]ApprovalRequest, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListPendingApprovals(ctx)
}

// ResolveApproval decides a pending request. Approval flips the linked visit
// to approved; rejection marks it rejected but the visit itself survives and
// can still be finalized with any outcome.
func (s *Service) ResolveApproval(ctx context.Context, actor shared.Actor, id int64, approve bool, note string) (*ApprovalRequest, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}

	status := ApprovalApproved
	if !approve {
		status = ApprovalRejected
	}

	var visitID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		request, err := repo.GetApproval(ctx, id)
		if err != nil {
			return err
		}
		if request.Status != ApprovalPending {
			return fmt.Errorf("%w: approval already resolved", shared.ErrValidation)
		}
		if err := repo.ResolveApproval(ctx, id, status, actor.ID, note); err != nil {
			return err
		}
		visitID = request.VisitID

		// Every still-open visit riding on this grant follows the decision.
		// Updated rows drop out of the filter, so paging from offset zero
		// drains the whole set no matter how large it grew.
		for {
			visitList, _, err := repo.List(ctx, ListVisitsRequest{
				ClientID:       &request.ClientID,
				CommercialID:   &request.CommercialID,
				ApprovalStatus: approvalStatusPtr(ApprovalWaitingAdmin),
				Limit:          approvalSweepBatch,
			})
			if err != nil {
				return err
			}
			for _, v := range visitList {
				if err := repo.Update(ctx, v.ID, map[string]interface{}{"approval_status": string(status)}); err != nil {
					return err
				}
			}
			if len(visitList) < approvalSweepBatch {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "approval." + string(status),
			Entity:   "approval_request",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"visit_id": visitID, "note": note},
			At:       s.now(),
		})
	}

	s.bus.Publish(ctx, feed.Event{Table: feed.TableApprovals, Type: feed.EventUpdate, ID: id})
	s.bus.Publish(ctx, feed.Event{Table: feed.TableVisits, Type: feed.EventUpdate, ID: visitID})
	return s.repo.GetApproval(ctx, id)
}

// History returns the client's past visits and sales. Access requires admin
// role or an approved request for this (client, commercial) pair.
func (s *Service) History(ctx context.Context, actor shared.Actor, clientID int64) (*ClientHistory, error) {
	if !actor.IsAdmin() {
		granted, err := s.repo.HasApprovedAccess(ctx, clientID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !granted {
			return nil, shared.ErrForbidden
		}
	}

	visitList, err := s.repo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	saleList, err := s.ledger.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &ClientHistory{Visits: visitList, Sales: saleList}, nil
}

func (s *Service) authorizeVisit(actor shared.Actor, visit *Visit) error {
	if actor.IsAdmin() {
		return nil
	}
	if visit.CommercialID == actor.ID {
		return nil
	}
	if visit.SecondCommercialID != nil && *visit.SecondCommercialID == actor.ID {
		return nil
	}
	return shared.ErrForbidden
}

func approvalStatusPtr(s ApprovalStatus) *ApprovalStatus { return &s }

package visits

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruta-crm/ruta-crm/internal/clients"
	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/geo"
	"github.com/ruta-crm/ruta-crm/internal/sales"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// --- in-memory repositories ---

type mockRepo struct {
	visits    map[int64]*Visit
	approvals map[int64]*ApprovalRequest
	nextVisit int64
	nextAppr  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		visits:    make(map[int64]*Visit),
		approvals: make(map[int64]*ApprovalRequest),
		nextVisit: 1,
		nextAppr:  1,
	}
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepo) Get(ctx context.Context, id int64) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (m *mockRepo) Insert(ctx context.Context, visit Visit) (int64, error) {
	visit.ID = m.nextVisit
	m.nextVisit++
	m.visits[visit.ID] = &visit
	return visit.ID, nil
}

func (m *mockRepo) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	v, ok := m.visits[id]
	if !ok {
		return shared.ErrNotFound
	}
	for col, val := range updates {
		switch col {
		case "status":
			v.Status = Status(val.(string))
		case "approval_status":
			v.ApprovalStatus = ApprovalStatus(val.(string))
		case "notes":
			v.Notes = val.(string)
		case "outcome_code":
			code := val.(string)
			v.OutcomeCode = &code
		case "latitude":
			lat := val.(float64)
			v.Latitude = &lat
		case "longitude":
			lng := val.(float64)
			v.Longitude = &lng
		case "accuracy":
			acc := val.(float64)
			v.Accuracy = &acc
		case "client_id":
			v.ClientID = val.(int64)
		case "commercial_id":
			v.CommercialID = val.(int64)
		}
	}
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.visits[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.visits, id)
	return nil
}

func (m *mockRepo) List(ctx context.Context, req ListVisitsRequest) ([]Visit, int, error) {
	var out []Visit
	for _, v := range m.visits {
		if req.CommercialID != nil && v.CommercialID != *req.CommercialID {
			continue
		}
		if req.ClientID != nil && v.ClientID != *req.ClientID {
			continue
		}
		if req.Status != nil && v.Status != *req.Status {
			continue
		}
		if req.ApprovalStatus != nil && v.ApprovalStatus != *req.ApprovalStatus {
			continue
		}
		if req.BatchID != nil && (v.BatchID == nil || *v.BatchID != *req.BatchID) {
			continue
		}
		out = append(out, *v)
	}
	total := len(out)
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, total, nil
}

func (m *mockRepo) ListByClient(ctx context.Context, clientID int64) ([]Visit, error) {
	list, _, err := m.List(ctx, ListVisitsRequest{ClientID: &clientID})
	return list, err
}

func (m *mockRepo) InsertApproval(ctx context.Context, req ApprovalRequest) (int64, error) {
	req.ID = m.nextAppr
	m.nextAppr++
	req.CreatedAt = time.Now()
	m.approvals[req.ID] = &req
	return req.ID, nil
}

func (m *mockRepo) GetApproval(ctx context.Context, id int64) (*ApprovalRequest, error) {
	a, ok := m.approvals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockRepo) GetActiveApproval(ctx context.Context, clientID, commercialID int64) (*ApprovalRequest, error) {
	for _, a := range m.approvals {
		if a.ClientID == clientID && a.CommercialID == commercialID && a.Status == ApprovalPending {
			copied := *a
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) ResolveApproval(ctx context.Context, id int64, status ApprovalStatus, resolvedBy int64, note string) error {
	a, ok := m.approvals[id]
	if !ok || a.Status != ApprovalPending {
		return shared.ErrNotFound
	}
	now := time.Now()
	a.Status = status
	a.ResolvedBy = &resolvedBy
	a.ResolvedAt = &now
	a.Note = note
	return nil
}

func (m *mockRepo) ListPendingApprovals(ctx context.Context) ([]ApprovalRequest, error) {
	var out []ApprovalRequest
	for _, a := range m.approvals {
		if a.Status == ApprovalPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepo) HasApprovedAccess(ctx context.Context, clientID, commercialID int64) (bool, error) {
	for _, a := range m.approvals {
		if a.ClientID == clientID && a.CommercialID == commercialID && a.Status == ApprovalApproved {
			return true, nil
		}
	}
	return false, nil
}

type fakeClientsRepo struct {
	clients map[int64]*clients.Client
	nextID  int64
}

func newFakeClientsRepo() *fakeClientsRepo {
	return &fakeClientsRepo{clients: make(map[int64]*clients.Client), nextID: 1}
}

func (f *fakeClientsRepo) Get(ctx context.Context, id int64) (*clients.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeClientsRepo) GetByNationalID(ctx context.Context, nationalID string) (*clients.Client, error) {
	for _, c := range f.clients {
		if c.NationalID != nil && *c.NationalID == nationalID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeClientsRepo) GetManyByNationalID(ctx context.Context, nationalIDs []string) ([]clients.Client, error) {
	var out []clients.Client
	for _, nid := range nationalIDs {
		if c, err := f.GetByNationalID(ctx, nid); err == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeClientsRepo) Create(ctx context.Context, client clients.Client) (int64, error) {
	client.ID = f.nextID
	f.nextID++
	f.clients[client.ID] = &client
	return client.ID, nil
}

func (f *fakeClientsRepo) SetActive(ctx context.Context, id int64, active bool) error {
	c, ok := f.clients[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Active = active
	return nil
}

func (f *fakeClientsRepo) Search(ctx context.Context, req clients.SearchRequest) ([]clients.Client, int, error) {
	return nil, 0, nil
}

type fakeSalesRepo struct {
	sales  map[int64]*sales.Sale
	nextID int64
}

func newFakeSalesRepo() *fakeSalesRepo {
	return &fakeSalesRepo{sales: make(map[int64]*sales.Sale), nextID: 1}
}

func (f *fakeSalesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeSalesRepo) Get(ctx context.Context, id int64) (*sales.Sale, error) {
	s, ok := f.sales[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSalesRepo) GetByVisit(ctx context.Context, visitID int64) (*sales.Sale, error) {
	for _, s := range f.sales {
		if s.VisitID != nil && *s.VisitID == visitID {
			return f.Get(ctx, s.ID)
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeSalesRepo) Insert(ctx context.Context, sale sales.Sale) (int64, error) {
	sale.ID = f.nextID
	f.nextID++
	f.sales[sale.ID] = &sale
	return sale.ID, nil
}

func (f *fakeSalesRepo) UpdateHeader(ctx context.Context, id int64, amount float64, soldAt time.Time, lat, lng *float64) error {
	s, ok := f.sales[id]
	if !ok {
		return shared.ErrNotFound
	}
	s.Amount = amount
	s.SoldAt = soldAt
	return nil
}

func (f *fakeSalesRepo) DeleteLines(ctx context.Context, saleID int64) error {
	s, ok := f.sales[saleID]
	if !ok {
		return shared.ErrNotFound
	}
	s.Lines = nil
	return nil
}

func (f *fakeSalesRepo) InsertLine(ctx context.Context, line sales.SaleLine) (int64, error) {
	s, ok := f.sales[line.SaleID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	line.ID = int64(len(s.Lines) + 1)
	s.Lines = append(s.Lines, line)
	return line.ID, nil
}

func (f *fakeSalesRepo) InsertLineProducts(ctx context.Context, lineID int64, names []string) error {
	return nil
}

func (f *fakeSalesRepo) ListByClient(ctx context.Context, clientID int64) ([]sales.Sale, error) {
	var out []sales.Sale
	for _, s := range f.sales {
		if s.ClientID == clientID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// --- fixture ---

type fixture struct {
	svc      *Service
	repo     *mockRepo
	clients  *fakeClientsRepo
	salesRep *fakeSalesRepo
}

func newFixture(provider geo.Provider) *fixture {
	repo := newMockRepo()
	clientsRepo := newFakeClientsRepo()
	salesRepo := newFakeSalesRepo()
	bus := feed.NewBus(nil, nil)
	clientSvc := clients.NewService(clientsRepo, bus)
	ledger := sales.NewLedger(salesRepo, bus, nil)
	svc := NewService(repo, clientSvc, ledger, bus, provider, nil)
	return &fixture{svc: svc, repo: repo, clients: clientsRepo, salesRep: salesRepo}
}

func (f *fixture) addClient(t *testing.T, name string, active bool, nationalID string) int64 {
	t.Helper()
	c := clients.Client{Name: name, Address: "Calle 1", Active: active}
	if nationalID != "" {
		c.NationalID = &nationalID
	}
	id, err := f.clients.Create(context.Background(), c)
	require.NoError(t, err)
	return id
}

var (
	admin      = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	commercial = shared.Actor{ID: 7, Role: shared.RoleCommercial}
	delivery   = shared.Actor{ID: 9, Role: shared.RoleDelivery}

	testPos = geo.Static{Position: geo.Position{Latitude: 40.4, Longitude: -3.7, Accuracy: 5}}
)

// --- StartVisit ---

func TestStartVisitForbiddenForDelivery(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.StartVisit(context.Background(), delivery, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestStartVisitRequiresCompany(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID})
	assert.ErrorIs(t, err, shared.ErrMissingCompany)
}

func TestStartVisitRequiresExactlyOneClientSource(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{
		ClientID:  &clientID,
		NewClient: &clients.CreateClientRequest{Name: "Eva", Address: "X"},
		CompanyID: 1,
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestStartVisitDeniedGeolocationBlocksCreation(t *testing.T) {
	f := newFixture(geo.Denied{})
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrGeolocationDenied)
}

func TestStartVisitPendingGeolocationBlocksCreation(t *testing.T) {
	f := newFixture(geo.Pending{})
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrGeolocationRequired)
}

func TestStartVisitInactiveClient(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", false, "")

	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrClientInactive)
	assert.Empty(t, f.repo.visits)
	assert.Empty(t, f.repo.approvals)
}

func TestStartVisitCommercialEntersApprovalGate(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	visit, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, visit.Status)
	assert.Equal(t, ApprovalWaitingAdmin, visit.ApprovalStatus)
	require.NotNil(t, visit.Latitude)
	assert.Equal(t, 40.4, *visit.Latitude)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, visit.ID, pending[0].VisitID)
	assert.Equal(t, clientID, pending[0].ClientID)
}

func TestStartVisitAdminSkipsGate(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	visit, err := f.svc.StartVisit(context.Background(), admin, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, visit.ApprovalStatus)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStartVisitNewClientSkipsGate(t *testing.T) {
	f := newFixture(testPos)

	visit, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{
		NewClient: &clients.CreateClientRequest{Name: "Eva", Address: "Calle 2"},
		CompanyID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, visit.ApprovalStatus)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStartVisitReusesPendingApproval(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	_, err = f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestStartVisitApprovedAccessSkipsGate(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	first, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	_, err = f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, true, "")
	require.NoError(t, err)

	// Finish the first visit so only gate behavior is under test.
	_ = first

	second, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, second.ApprovalStatus)
}

// --- StartVisitBatch ---

func TestStartVisitBatchReportsUnresolvedAndInactive(t *testing.T) {
	f := newFixture(testPos)
	f.addClient(t, "Ana", true, "111A")
	f.addClient(t, "Eva", false, "222B")

	result, err := f.svc.StartVisitBatch(context.Background(), admin, StartVisitBatchRequest{
		NationalIDs: []string{"111A", "222B", "999Z"},
		CompanyID:   1,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, result.BatchID)
	assert.Equal(t, []string{"999Z"}, result.Unresolved)
	assert.Equal(t, []string{"222B"}, result.SkippedInactive)
	require.Len(t, result.Visits, 1)
	require.NotNil(t, result.Visits[0].BatchID)
	assert.Equal(t, result.BatchID, *result.Visits[0].BatchID)
}

func TestStartVisitBatchDeduplicatesIDs(t *testing.T) {
	f := newFixture(testPos)
	f.addClient(t, "Ana", true, "111A")

	result, err := f.svc.StartVisitBatch(context.Background(), admin, StartVisitBatchRequest{
		NationalIDs: []string{"111A", "111A"},
		CompanyID:   1,
	})
	require.NoError(t, err)
	assert.Len(t, result.Visits, 1)
}

// --- SaveProgress ---

func startApprovedVisit(t *testing.T, f *fixture) *Visit {
	t.Helper()
	clientID := f.addClient(t, "Ana", true, "")
	visit, err := f.svc.StartVisit(context.Background(), admin, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	return visit
}

func TestSaveProgressPersistsNotesWithoutFinalizing(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	updated, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{Notes: "en curso"})
	require.NoError(t, err)
	assert.Equal(t, "en curso", updated.Notes)
	assert.Equal(t, StatusInProgress, updated.Status)
}

func TestSaveProgressWithoutPositionStillSaves(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	// Swap to a denied provider after creation: plain saves must survive it.
	f.svc.geo = geo.Denied{}
	updated, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{Notes: "sin señal"})
	require.NoError(t, err)
	assert.Equal(t, "sin señal", updated.Notes)
}

func TestFinalizeRequiresNotesAndOutcome(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	_, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{Finalize: true, OutcomeCode: "completed"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{Finalize: true, Notes: "ok"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestFinalizeRequiresPosition(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	f.svc.geo = geo.Denied{}
	_, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{
		Finalize: true, Notes: "ok", OutcomeCode: "completed",
	})
	assert.ErrorIs(t, err, shared.ErrGeolocationDenied)
}

func TestFinalizeBlockedWhileWaitingAdmin(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")
	visit, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, ApprovalWaitingAdmin, visit.ApprovalStatus)

	_, err = f.svc.SaveProgress(context.Background(), commercial, visit.ID, SaveProgressRequest{
		Finalize: true, Notes: "ok", OutcomeCode: "completed",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestFinalizeMapsOutcomeToStatus(t *testing.T) {
	cases := map[string]Status{
		"completed":      StatusCompleted,
		"no_answer":      StatusNoAnswer,
		"not_interested": StatusNotInterested,
		"postponed":      StatusPostponed,
		"sold_a_pack":    StatusCompleted,
	}
	for outcome, want := range cases {
		f := newFixture(testPos)
		visit := startApprovedVisit(t, f)

		updated, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{
			Finalize: true, Notes: "ok", OutcomeCode: outcome,
		})
		require.NoError(t, err, outcome)
		assert.Equal(t, want, updated.Status, outcome)
	}
}

func TestFinalizedVisitRejectsFurtherWrites(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	_, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{
		Finalize: true, Notes: "ok", OutcomeCode: "completed",
	})
	require.NoError(t, err)

	_, err = f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{Notes: "tarde"})
	assert.ErrorIs(t, err, shared.ErrVisitFinalized)
}

func TestSaveProgressRecordsSaleLines(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	_, err := f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{
		Notes: "venta",
		Lines: []sales.LineInput{{Quantity: 2, UnitPrice: 150, Products: []string{"colchón", "almohada"}}},
	})
	require.NoError(t, err)

	sale, err := f.salesRep.GetByVisit(context.Background(), visit.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, sale.Amount)
	assert.Equal(t, visit.ClientID, sale.ClientID)
	assert.Equal(t, visit.CommercialID, sale.CommercialID)
}

func TestSaveProgressForeignVisitForbidden(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	_, err := f.svc.SaveProgress(context.Background(), commercial, visit.ID, SaveProgressRequest{Notes: "x"})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

// --- ResumeVisit ---

func TestResumeVisitReadOnlyWhenTerminal(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)

	vctx, err := f.svc.ResumeVisit(context.Background(), admin, visit.ID)
	require.NoError(t, err)
	assert.False(t, vctx.ReadOnly)
	assert.Nil(t, vctx.Sale)

	_, err = f.svc.SaveProgress(context.Background(), admin, visit.ID, SaveProgressRequest{
		Finalize: true, Notes: "ok", OutcomeCode: "completed",
		Lines: []sales.LineInput{{Quantity: 1, UnitPrice: 99}},
	})
	require.NoError(t, err)

	vctx, err = f.svc.ResumeVisit(context.Background(), admin, visit.ID)
	require.NoError(t, err)
	assert.True(t, vctx.ReadOnly)
	require.NotNil(t, vctx.Sale)
	assert.Equal(t, 99.0, vctx.Sale.Amount)
}

// --- ResolveApproval ---

func TestResolveApprovalRequiresAdmin(t *testing.T) {
	f := newFixture(testPos)
	_, err := f.svc.ResolveApproval(context.Background(), commercial, 1, true, "")
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestApproveFlipsVisitApproval(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")
	visit, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	resolved, err := f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, true, "ok")
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, admin.ID, *resolved.ResolvedBy)

	got, err := f.repo.Get(context.Background(), visit.ID)
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, got.ApprovalStatus)
	assert.Equal(t, StatusInProgress, got.Status)
}

func TestRejectKeepsVisitAliveButRejected(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")
	visit, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	_, err = f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, false, "no procede")
	require.NoError(t, err)

	got, err := f.repo.Get(context.Background(), visit.ID)
	require.NoError(t, err)
	assert.Equal(t, ApprovalRejected, got.ApprovalStatus)
	assert.Equal(t, StatusInProgress, got.Status)

	// A rejected visit can still be finalized with any outcome.
	updated, err := f.svc.SaveProgress(context.Background(), commercial, visit.ID, SaveProgressRequest{
		Finalize: true, Notes: "rechazada", OutcomeCode: "not_interested",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNotInterested, updated.Status)
}

func TestApproveSweepsAllBlockedVisits(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")
	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)

	// Pile on more provisional visits than one sweep page holds.
	for i := 0; i < approvalSweepBatch+5; i++ {
		_, err := f.repo.Insert(context.Background(), Visit{
			ClientID:       clientID,
			CommercialID:   commercial.ID,
			CompanyID:      1,
			Status:         StatusInProgress,
			ApprovalStatus: ApprovalWaitingAdmin,
		})
		require.NoError(t, err)
	}

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	_, err = f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, true, "")
	require.NoError(t, err)

	for _, v := range f.repo.visits {
		assert.Equal(t, ApprovalApproved, v.ApprovalStatus)
	}
}

func TestResolveApprovalTwiceFails(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")
	_, err := f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)

	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	_, err = f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, true, "")
	require.NoError(t, err)

	_, err = f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, false, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// --- History ---

func TestHistoryGatedOnApprovedAccess(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	_, err := f.svc.History(context.Background(), commercial, clientID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.StartVisit(context.Background(), commercial, StartVisitRequest{ClientID: &clientID, CompanyID: 1})
	require.NoError(t, err)
	pending, err := f.repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	_, err = f.svc.ResolveApproval(context.Background(), admin, pending[0].ID, true, "")
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), commercial, clientID)
	require.NoError(t, err)
	assert.Len(t, history.Visits, 1)
}

func TestHistoryAdminAlwaysAllowed(t *testing.T) {
	f := newFixture(testPos)
	clientID := f.addClient(t, "Ana", true, "")

	history, err := f.svc.History(context.Background(), admin, clientID)
	require.NoError(t, err)
	assert.Empty(t, history.Visits)
	assert.Empty(t, history.Sales)
}

// --- List scoping ---

func TestListScopesNonAdminToOwnVisits(t *testing.T) {
	f := newFixture(testPos)
	visit := startApprovedVisit(t, f)
	_ = visit

	list, total, err := f.svc.List(context.Background(), commercial, ListVisitsRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	list, total, err = f.svc.List(context.Background(), admin, ListVisitsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

package visits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruta-crm/ruta-crm/internal/platform/db"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Repository is the persistence surface for visits and approval requests.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Visit, error)
	Insert(ctx context.Context, visit Visit) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, req ListVisitsRequest) ([]Visit, int, error)
	ListByClient(ctx context.Context, clientID int64) ([]Visit, error)

	InsertApproval(ctx context.Context, req ApprovalRequest) (int64, error)
	GetApproval(ctx context.Context, id int64) (*ApprovalRequest, error)
	GetActiveApproval(ctx context.Context, clientID, commercialID int64) (*ApprovalRequest, error)
	ResolveApproval(ctx context.Context, id int64, status ApprovalStatus, resolvedBy int64, note string) error
	ListPendingApprovals(ctx context.Context) ([]ApprovalRequest, error)
	HasApprovedAccess(ctx context.Context, clientID, commercialID int64) (bool, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const visitColumns = `id, client_id, commercial_id, second_commercial_id, company_id, visited_at,
       status, approval_status, notes, outcome_code, latitude, longitude, accuracy,
       batch_id, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Visit, error) {
	row := r.db.QueryRow(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)
	v, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore(err)
	}
	return v, nil
}

func (r *repository) Insert(ctx context.Context, v Visit) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO visits (client_id, commercial_id, second_commercial_id, company_id, visited_at,
		                    status, approval_status, notes, outcome_code, latitude, longitude, accuracy, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		v.ClientID, v.CommercialID, v.SecondCommercialID, v.CompanyID, v.VisitedAt,
		string(v.Status), string(v.ApprovalStatus), v.Notes, v.OutcomeCode,
		v.Latitude, v.Longitude, v.Accuracy, v.BatchID,
	).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore(err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE visits SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{
		"client_id", "commercial_id", "second_commercial_id", "status", "approval_status",
		"notes", "outcome_code", "latitude", "longitude", "accuracy",
	} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return shared.WrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	if err != nil {
		return shared.WrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, req ListVisitsRequest) ([]Visit, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	add := func(cond string, val interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}
	if req.CommercialID != nil {
		add("commercial_id = $%d", *req.CommercialID)
	}
	if req.ClientID != nil {
		add("client_id = $%d", *req.ClientID)
	}
	if req.Status != nil {
		add("status = $%d", string(*req.Status))
	}
	if req.ApprovalStatus != nil {
		add("approval_status = $%d", string(*req.ApprovalStatus))
	}
	if req.BatchID != nil {
		add("batch_id = $%d", *req.BatchID)
	}

	whereClause := ""
	for i, cond := range conditions {
		if i == 0 {
			whereClause = "WHERE " + cond
		} else {
			whereClause += " AND " + cond
		}
	}

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM visits %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, shared.WrapStore(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM visits %s ORDER BY visited_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		visitColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.WrapStore(err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, shared.WrapStore(err)
		}
		visits = append(visits, *v)
	}
	return visits, total, rows.Err()
}

func (r *repository) ListByClient(ctx context.Context, clientID int64) ([]Visit, error) {
	rows, err := r.db.Query(ctx, `SELECT `+visitColumns+` FROM visits WHERE client_id = $1 ORDER BY visited_at DESC`, clientID)
	if err != nil {
		return nil, shared.WrapStore(err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, shared.WrapStore(err)
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (r *repository) InsertApproval(ctx context.Context, req ApprovalRequest) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO approval_requests (client_id, commercial_id, visit_id, status, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		req.ClientID, req.CommercialID, req.VisitID, string(req.Status), req.Note,
	).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore(err)
	}
	return id, nil
}

const approvalColumns = `id, client_id, commercial_id, visit_id, status, note, resolved_by, resolved_at, created_at`

func (r *repository) GetApproval(ctx context.Context, id int64) (*ApprovalRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE id = $1`, id)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore(err)
	}
	return a, nil
}

func (r *repository) GetActiveApproval(ctx context.Context, clientID, commercialID int64) (*ApprovalRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests
		WHERE client_id = $1 AND commercial_id = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		clientID, commercialID, string(ApprovalPending))
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore(err)
	}
	return a, nil
}

func (r *repository) ResolveApproval(ctx context.Context, id int64, status ApprovalStatus, resolvedBy int64, note string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE approval_requests SET status = $1, resolved_by = $2, resolved_at = NOW(), note = $3
		WHERE id = $4 AND status = $5`,
		string(status), resolvedBy, note, id, string(ApprovalPending))
	if err != nil {
		return shared.WrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListPendingApprovals(ctx context.Context) ([]ApprovalRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE status = $1 ORDER BY created_at ASC`, string(ApprovalPending))
	if err != nil {
		return nil, shared.WrapStore(err)
	}
	defer rows.Close()

	var result []ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, shared.WrapStore(err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *repository) HasApprovedAccess(ctx context.Context, clientID, commercialID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT true FROM approval_requests
		WHERE client_id = $1 AND commercial_id = $2 AND status = $3 LIMIT 1`,
		clientID, commercialID, string(ApprovalApproved)).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, shared.WrapStore(err)
	}
	return exists, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var secondCommercial pgtype.Int8
	var status, approvalStatus string
	var outcomeCode pgtype.Text
	var lat, lng, accuracy pgtype.Float8
	var batchID pgtype.UUID
	var visitedAt, createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&v.ID, &v.ClientID, &v.CommercialID, &secondCommercial, &v.CompanyID, &visitedAt,
		&status, &approvalStatus, &v.Notes, &outcomeCode, &lat, &lng, &accuracy,
		&batchID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Status = Status(status)
	v.ApprovalStatus = ApprovalStatus(approvalStatus)
	if secondCommercial.Valid {
		v.SecondCommercialID = &secondCommercial.Int64
	}
	if outcomeCode.Valid {
		v.OutcomeCode = &outcomeCode.String
	}
	if lat.Valid {
		v.Latitude = &lat.Float64
	}
	if lng.Valid {
		v.Longitude = &lng.Float64
	}
	if accuracy.Valid {
		v.Accuracy = &accuracy.Float64
	}
	if batchID.Valid {
		id := uuid.UUID(batchID.Bytes)
		v.BatchID = &id
	}
	if visitedAt.Valid {
		v.VisitedAt = visitedAt.Time
	}
	if createdAt.Valid {
		v.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		v.UpdatedAt = updatedAt.Time
	}
	return &v, nil
}

func scanApproval(row pgx.Row) (*ApprovalRequest, error) {
	var a ApprovalRequest
	var status string
	var resolvedBy pgtype.Int8
	var resolvedAt, createdAt pgtype.Timestamptz

	err := row.Scan(&a.ID, &a.ClientID, &a.CommercialID, &a.VisitID, &status, &a.Note, &resolvedBy, &resolvedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Status = ApprovalStatus(status)
	if resolvedBy.Valid {
		a.ResolvedBy = &resolvedBy.Int64
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	return &a, nil
}

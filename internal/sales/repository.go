package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruta-crm/ruta-crm/internal/platform/db"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Repository is the persistence surface of the sale ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Sale, error)
	GetByVisit(ctx context.Context, visitID int64) (*Sale, error)
	Insert(ctx context.Context, sale Sale) (int64, error)
	UpdateHeader(ctx context.Context, id int64, amount float64, soldAt time.Time, lat, lng *float64) error
	DeleteLines(ctx context.Context, saleID int64) error
	InsertLine(ctx context.Context, line SaleLine) (int64, error)
	InsertLineProducts(ctx context.Context, lineID int64, names []string) error
	ListByClient(ctx context.Context, clientID int64) ([]Sale, error)
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

const saleColumns = `id, visit_id, client_id, commercial_id, company_id, amount,
       commission_pct, commission_amount, sold_at, latitude, longitude`

func (r *repository) Get(ctx context.Context, id int64) (*Sale, error) {
	row := r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return r.scanSaleWithLines(ctx, row)
}

func (r *repository) GetByVisit(ctx context.Context, visitID int64) (*Sale, error) {
	row := r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE visit_id = $1`, visitID)
	return r.scanSaleWithLines(ctx, row)
}

func (r *repository) Insert(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales (visit_id, client_id, commercial_id, company_id, amount,
		                   commission_pct, commission_amount, sold_at, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		s.VisitID, s.ClientID, s.CommercialID, s.CompanyID, s.Amount,
		s.CommissionPct, s.CommissionAmount, s.SoldAt, s.Latitude, s.Longitude,
	).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore(err)
	}
	return id, nil
}

func (r *repository) UpdateHeader(ctx context.Context, id int64, amount float64, soldAt time.Time, lat, lng *float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales SET amount = $1, sold_at = $2,
		       latitude = COALESCE($3, latitude), longitude = COALESCE($4, longitude)
		WHERE id = $5`,
		amount, soldAt, lat, lng, id)
	if err != nil {
		return shared.WrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteLines(ctx context.Context, saleID int64) error {
	// Products first so the ordering is deterministic even without FK cascade.
	if _, err := r.db.Exec(ctx, `
		DELETE FROM sale_line_products WHERE sale_line_id IN (SELECT id FROM sale_lines WHERE sale_id = $1)`, saleID); err != nil {
		return shared.WrapStore(err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID); err != nil {
		return shared.WrapStore(err)
	}
	return nil
}

func (r *repository) InsertLine(ctx context.Context, line SaleLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sale_lines (sale_id, quantity, unit_price, financiada, transferencia, nulo, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		line.SaleID, line.Quantity, line.UnitPrice, line.Financed, line.WireTransfer, line.Voided, line.LineTotal,
	).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore(err)
	}
	return id, nil
}

func (r *repository) InsertLineProducts(ctx context.Context, lineID int64, names []string) error {
	for _, name := range names {
		if _, err := r.db.Exec(ctx, `INSERT INTO sale_line_products (sale_line_id, name) VALUES ($1, $2)`, lineID, name); err != nil {
			return shared.WrapStore(err)
		}
	}
	return nil
}

func (r *repository) ListByClient(ctx context.Context, clientID int64) ([]Sale, error) {
	rows, err := r.db.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE client_id = $1 ORDER BY sold_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, shared.WrapStore(err)
	}
	var result []Sale
	var ids []int64
	for rows.Next() {
		var s Sale
		var visitID pgtype.Int8
		var commissionPct, commissionAmount, lat, lng pgtype.Float8
		var soldAt pgtype.Timestamptz
		if err := rows.Scan(
			&s.ID, &visitID, &s.ClientID, &s.CommercialID, &s.CompanyID, &s.Amount,
			&commissionPct, &commissionAmount, &soldAt, &lat, &lng,
		); err != nil {
			rows.Close()
			return nil, shared.WrapStore(err)
		}
		if visitID.Valid {
			s.VisitID = &visitID.Int64
		}
		if commissionPct.Valid {
			s.CommissionPct = &commissionPct.Float64
		}
		if commissionAmount.Valid {
			s.CommissionAmount = &commissionAmount.Float64
		}
		if soldAt.Valid {
			s.SoldAt = soldAt.Time
		}
		if lat.Valid {
			s.Latitude = &lat.Float64
		}
		if lng.Valid {
			s.Longitude = &lng.Float64
		}
		result = append(result, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore(err)
	}

	for i, id := range ids {
		lines, err := r.loadLines(ctx, id)
		if err != nil {
			return nil, err
		}
		result[i].Lines = lines
	}
	return result, nil
}

func (r *repository) scanSaleWithLines(ctx context.Context, row pgx.Row) (*Sale, error) {
	var s Sale
	var visitID pgtype.Int8
	var commissionPct, commissionAmount, lat, lng pgtype.Float8
	var soldAt pgtype.Timestamptz

	err := row.Scan(
		&s.ID, &visitID, &s.ClientID, &s.CommercialID, &s.CompanyID, &s.Amount,
		&commissionPct, &commissionAmount, &soldAt, &lat, &lng,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore(err)
	}
	if visitID.Valid {
		s.VisitID = &visitID.Int64
	}
	if commissionPct.Valid {
		s.CommissionPct = &commissionPct.Float64
	}
	if commissionAmount.Valid {
		s.CommissionAmount = &commissionAmount.Float64
	}
	if soldAt.Valid {
		s.SoldAt = soldAt.Time
	}
	if lat.Valid {
		s.Latitude = &lat.Float64
	}
	if lng.Valid {
		s.Longitude = &lng.Float64
	}

	lines, err := r.loadLines(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Lines = lines
	return &s, nil
}

func (r *repository) loadLines(ctx context.Context, saleID int64) ([]SaleLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sale_id, quantity, unit_price, financiada, transferencia, nulo, line_total
		FROM sale_lines WHERE sale_id = $1 ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, shared.WrapStore(err)
	}
	defer rows.Close()

	var lines []SaleLine
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.Quantity, &l.UnitPrice, &l.Financed, &l.WireTransfer, &l.Voided, &l.LineTotal); err != nil {
			return nil, shared.WrapStore(err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore(err)
	}

	for i := range lines {
		productRows, err := r.db.Query(ctx, `SELECT name FROM sale_line_products WHERE sale_line_id = $1 ORDER BY id ASC`, lines[i].ID)
		if err != nil {
			return nil, shared.WrapStore(err)
		}
		for productRows.Next() {
			var name string
			if err := productRows.Scan(&name); err != nil {
				productRows.Close()
				return nil, shared.WrapStore(err)
			}
			lines[i].Products = append(lines[i].Products, name)
		}
		productRows.Close()
		if err := productRows.Err(); err != nil {
			return nil, shared.WrapStore(err)
		}
	}
	return lines, nil
}

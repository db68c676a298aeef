package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Repository is the persistence surface of the client directory.
type Repository interface {
	Get(ctx context.Context, id int64) (*Client, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Client, error)
	GetManyByNationalID(ctx context.Context, nationalIDs []string) ([]Client, error)
	Create(ctx context.Context, client Client) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Search(ctx context.Context, req SearchRequest) ([]Client, int, error)
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

const clientColumns = `id, national_id, name, address, phone, email, note, active,
       latitude, longitude, created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Client, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns), id)
	return scanClient(row)
}

func (r *repository) GetByNationalID(ctx context.Context, nationalID string) (*Client, error) {
	// Exact, case-sensitive match on the stored string.
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM clients WHERE national_id = $1`, clientColumns), nationalID)
	return scanClient(row)
}

func (r *repository) GetManyByNationalID(ctx context.Context, nationalIDs []string) ([]Client, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM clients WHERE national_id = ANY($1)`, clientColumns), nationalIDs)
	if err != nil {
		return nil, shared.WrapStore(err)
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		c, err := scanClientRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (national_id, name, address, phone, email, note, active, latitude, longitude, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		c.NationalID, c.Name, c.Address, c.Phone, c.Email, c.Note, c.Active, c.Latitude, c.Longitude, c.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore(err)
	}
	return id, nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return shared.WrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, req SearchRequest) ([]Client, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Query != "" {
		conditions = append(conditions, fmt.Sprintf("name_folded ILIKE $%d", argPos))
		args = append(args, "%"+req.Query+"%")
		argPos++
	}
	if req.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", argPos))
		args = append(args, *req.Active)
		argPos++
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
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM clients %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, shared.WrapStore(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM clients %s ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d`,
		clientColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.WrapStore(err)
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		c, err := scanClientRow(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *c)
	}
	return result, total, rows.Err()
}

func scanClient(row pgx.Row) (*Client, error) {
	c, err := scanClientRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore(err)
	}
	return c, nil
}

func scanClientRow(row pgx.Row) (*Client, error) {
	var c Client
	var nationalID, phone, email, note pgtype.Text
	var lat, lng pgtype.Float8
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&c.ID, &nationalID, &c.Name, &c.Address, &phone, &email, &note, &c.Active,
		&lat, &lng, &c.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if nationalID.Valid {
		c.NationalID = &nationalID.String
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	if note.Valid {
		c.Note = &note.String
	}
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lng.Valid {
		c.Longitude = &lng.Float64
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time
	}
	return &c, nil
}

package admin

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruta-crm/ruta-crm/internal/platform/db"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Repository performs the cross-entity writes admin overrides need. Unlike
// the per-domain repositories it spans visits and sales in one transaction,
// because an override must never leave a sale pointing at the old owner.
type Repository interface {
	Reassign(ctx context.Context, visitID int64, clientID, commercialID, secondCommercialID *int64) error
	DeleteVisit(ctx context.Context, visitID int64) (DeleteReport, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Reassign(ctx context.Context, visitID int64, clientID, commercialID, secondCommercialID *int64) error {
	if clientID == nil && commercialID == nil && secondCommercialID == nil {
		return nil
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE visits SET client_id = COALESCE($1, client_id),
			       commercial_id = COALESCE($2, commercial_id),
			       second_commercial_id = COALESCE($3, second_commercial_id),
			       updated_at = NOW()
			WHERE id = $4`,
			clientID, commercialID, secondCommercialID, visitID)
		if err != nil {
			return shared.WrapStore(err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sales SET client_id = COALESCE($1, client_id), commercial_id = COALESCE($2, commercial_id)
			WHERE visit_id = $3`,
			clientID, commercialID, visitID); err != nil {
			return shared.WrapStore(err)
		}
		return nil
	})
	return err
}

func (r *repository) DeleteVisit(ctx context.Context, visitID int64) (DeleteReport, error) {
	report := DeleteReport{VisitID: visitID}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Children before parents so the report states exactly how far a
		// failed deletion got.
		if _, err := tx.Exec(ctx, `
			DELETE FROM sale_line_products WHERE sale_line_id IN (
				SELECT sl.id FROM sale_lines sl JOIN sales s ON sl.sale_id = s.id WHERE s.visit_id = $1)`, visitID); err != nil {
			return shared.WrapStore(err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM sale_lines WHERE sale_id IN (SELECT id FROM sales WHERE visit_id = $1)`, visitID); err != nil {
			return shared.WrapStore(err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM sales WHERE visit_id = $1`, visitID)
		if err != nil {
			return shared.WrapStore(err)
		}
		report.SalesDeleted = int(tag.RowsAffected())

		if _, err := tx.Exec(ctx, `DELETE FROM approval_requests WHERE visit_id = $1`, visitID); err != nil {
			return shared.WrapStore(err)
		}

		tag, err = tx.Exec(ctx, `DELETE FROM visits WHERE id = $1`, visitID)
		if err != nil {
			return shared.WrapStore(err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		report.VisitDeleted = true
		return nil
	})
	if err != nil {
		return DeleteReport{VisitID: visitID}, err
	}
	return report, nil
}

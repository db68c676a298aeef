package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SaleIntegrityJob cross-checks stored sale amounts against the sum of their
// line totals. A divergence means a line write escaped the replace
// transaction and needs operator attention.
type SaleIntegrityJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewSaleIntegrityJob initialises the integrity scan handler.
func NewSaleIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *SaleIntegrityJob {
	return &SaleIntegrityJob{Pool: pool, Logger: logger}
}

// Handle executes the integrity scan.
func (j *SaleIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("sale integrity: handler not configured")
	}
	var payload SaleIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}

	logger := j.logger()
	start := time.Now()
	logger.Info("starting sale integrity scan", slog.Int("limit", payload.Limit))

	rows, err := j.Pool.Query(ctx, `
		SELECT s.id, s.amount, COALESCE(SUM(sl.line_total), 0) AS line_sum
		FROM sales s
		LEFT JOIN sale_lines sl ON sl.sale_id = s.id
		GROUP BY s.id, s.amount
		HAVING ABS(s.amount - COALESCE(SUM(sl.line_total), 0)) > 0.005
		ORDER BY s.id
		LIMIT $1`, payload.Limit)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	divergent := 0
	for rows.Next() {
		var saleID int64
		var amount, lineSum float64
		if err := rows.Scan(&saleID, &amount, &lineSum); err != nil {
			return err
		}
		divergent++
		logger.Warn("sale amount diverges from lines",
			slog.Int64("sale_id", saleID),
			slog.Float64("amount", amount),
			slog.Float64("line_sum", lineSum),
		)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	orphaned, err := j.scanOwnership(ctx, logger, payload.Limit)
	if err != nil {
		return err
	}

	logger.Info("completed sale integrity scan",
		slog.Int("divergent", divergent),
		slog.Int("ownership_mismatch", orphaned),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// scanOwnership reports sales whose client or commercial no longer matches
// the visit they belong to, which an interrupted reassignment can leave
// behind.
func (j *SaleIntegrityJob) scanOwnership(ctx context.Context, logger *slog.Logger, limit int) (int, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT s.id, s.visit_id, s.client_id, v.client_id, s.commercial_id, v.commercial_id
		FROM sales s
		JOIN visits v ON v.id = s.visit_id
		WHERE s.client_id <> v.client_id OR s.commercial_id <> v.commercial_id
		ORDER BY s.id
		LIMIT $1`, limit)
	if err != nil {
		logger.Error("ownership scan failed", slog.Any("error", err))
		return 0, err
	}
	defer rows.Close()

	mismatched := 0
	for rows.Next() {
		var saleID, visitID, saleClient, visitClient, saleCommercial, visitCommercial int64
		if err := rows.Scan(&saleID, &visitID, &saleClient, &visitClient, &saleCommercial, &visitCommercial); err != nil {
			return mismatched, err
		}
		mismatched++
		logger.Warn("sale ownership diverges from visit",
			slog.Int64("sale_id", saleID),
			slog.Int64("visit_id", visitID),
			slog.Int64("sale_client_id", saleClient),
			slog.Int64("visit_client_id", visitClient),
			slog.Int64("sale_commercial_id", saleCommercial),
			slog.Int64("visit_commercial_id", visitCommercial),
		)
	}
	return mismatched, rows.Err()
}

func (j *SaleIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSaleIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskSaleIntegrityScan))
}

// StaleApprovalJob flags approval requests sitting in pending past the
// allowed age, with the visits they keep blocked.
type StaleApprovalJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewStaleApprovalJob initialises the stale approval scan handler.
func NewStaleApprovalJob(pool *pgxpool.Pool, logger *slog.Logger) *StaleApprovalJob {
	return &StaleApprovalJob{Pool: pool, Logger: logger}
}

// Handle executes the stale approval scan.
func (j *StaleApprovalJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("stale approvals: handler not configured")
	}
	var payload StaleApprovalPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeHours <= 0 {
		payload.MaxAgeHours = 48
	}

	logger := j.logger()
	cutoff := time.Now().Add(-time.Duration(payload.MaxAgeHours) * time.Hour)

	rows, err := j.Pool.Query(ctx, `
		SELECT ar.id, ar.client_id, ar.commercial_id, ar.created_at,
		       COUNT(v.id) AS blocked_visits
		FROM approval_requests ar
		LEFT JOIN visits v ON v.client_id = ar.client_id
		      AND v.commercial_id = ar.commercial_id
		      AND v.approval_status = 'waiting_admin'
		WHERE ar.status = 'pending' AND ar.created_at < $1
		GROUP BY ar.id, ar.client_id, ar.commercial_id, ar.created_at
		ORDER BY ar.created_at ASC`, cutoff)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	stale := 0
	for rows.Next() {
		var id, clientID, commercialID int64
		var createdAt time.Time
		var blocked int
		if err := rows.Scan(&id, &clientID, &commercialID, &createdAt, &blocked); err != nil {
			return err
		}
		stale++
		logger.Warn("approval request stuck in pending",
			slog.Int64("approval_id", id),
			slog.Int64("client_id", clientID),
			slog.Int64("commercial_id", commercialID),
			slog.Time("created_at", createdAt),
			slog.Int("blocked_visits", blocked),
		)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logger.Info("completed stale approval scan", slog.Int("stale", stale))
	return nil
}

func (j *StaleApprovalJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStaleApprovalScan))
	}
	return slog.Default().With(slog.String("job", TaskStaleApprovalScan))
}

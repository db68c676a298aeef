package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

const relayModule = "approval_relay"

// Deduper is the slice of shared.IdempotencyStore the relay needs.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ApprovalRelay consumes approval events off the change feed. The feed
// delivers at-least-once, so each event is claimed through the idempotency
// store before processing; a failed handler releases its claim and the next
// duplicate delivery retries.
type ApprovalRelay struct {
	bus    *feed.Bus
	dedup  Deduper
	pool   *pgxpool.Pool
	logger *slog.Logger

	handle func(ctx context.Context, ev feed.Event) error
}

// NewApprovalRelay constructs the relay.
func NewApprovalRelay(bus *feed.Bus, dedup Deduper, pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRelay {
	r := &ApprovalRelay{bus: bus, dedup: dedup, pool: pool, logger: logger}
	r.handle = r.announce
	return r
}

// Run consumes events until ctx is cancelled. Requests arrive as inserts
// and are skipped; only resolutions matter downstream.
func (r *ApprovalRelay) Run(ctx context.Context) error {
	if r == nil || r.bus == nil || r.dedup == nil {
		return errors.New("approval relay: not configured")
	}
	events, stop, err := r.bus.Subscribe(ctx, feed.TableApprovals)
	if err != nil {
		return err
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != feed.EventUpdate {
				continue
			}
			if err := r.process(ctx, ev); err != nil {
				r.log().Warn("approval event dropped",
					slog.Int64("approval_id", ev.ID),
					slog.Any("error", err),
				)
			}
		}
	}
}

func (r *ApprovalRelay) process(ctx context.Context, ev feed.Event) error {
	key := fmt.Sprintf("%s:%s:%d", relayModule, ev.Type, ev.ID)
	err := r.dedup.CheckAndInsert(ctx, key, relayModule)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.handle(ctx, ev); err != nil {
		if delErr := r.dedup.Delete(ctx, key); delErr != nil {
			r.log().Error("release claim", slog.String("key", key), slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

// announce refetches the request and reports its decision. Feed events carry
// only an id, never a snapshot.
func (r *ApprovalRelay) announce(ctx context.Context, ev feed.Event) error {
	var status string
	var clientID, commercialID, visitID int64
	err := r.pool.QueryRow(ctx, `
		SELECT status, client_id, commercial_id, visit_id
		FROM approval_requests WHERE id = $1`, ev.ID).
		Scan(&status, &clientID, &commercialID, &visitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	r.log().Info("approval decision relayed",
		slog.Int64("approval_id", ev.ID),
		slog.String("status", status),
		slog.Int64("client_id", clientID),
		slog.Int64("commercial_id", commercialID),
		slog.Int64("visit_id", visitID),
	)
	return nil
}

func (r *ApprovalRelay) log() *slog.Logger {
	if r.logger != nil {
		return r.logger.With(slog.String("job", relayModule))
	}
	return slog.Default().With(slog.String("job", relayModule))
}

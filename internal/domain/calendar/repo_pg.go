package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const eventCols = `id, owner_id, title, start_time, end_time, blocks_availability, source, created_at, updated_at`

func (r *repoPG) scanEvent(row pgx.Row) (*BusyEvent, error) {
	var e BusyEvent
	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.StartTime, &e.EndTime,
		&e.BlocksAvailability, &e.Source, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Upsert(ctx context.Context, e *BusyEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO calendar_busy_event (id, owner_id, title, start_time, end_time, blocks_availability, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			blocks_availability = EXCLUDED.blocks_availability,
			source = EXCLUDED.source,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		e.ID, e.OwnerID, e.Title, e.StartTime, e.EndTime, e.BlocksAvailability, e.Source,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*BusyEvent, error) {
	e, err := r.scanEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+eventCols+` FROM calendar_busy_event WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM calendar_busy_event WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]*BusyEvent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM calendar_busy_event
		WHERE owner_id = $1 AND end_time > $2 AND start_time < $3`,
		ownerID, from, to,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM calendar_busy_event
		WHERE owner_id = $1 AND end_time > $2 AND start_time < $3
		ORDER BY start_time LIMIT $4 OFFSET $5`,
		ownerID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *repoPG) ListBlocking(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*BusyEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM calendar_busy_event
		WHERE owner_id = $1 AND blocks_availability AND end_time > $2 AND start_time < $3
		ORDER BY start_time`,
		ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) collect(rows pgx.Rows) ([]*BusyEvent, error) {
	var events []*BusyEvent
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

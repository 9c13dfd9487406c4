package slot

import (
	"context"
	"errors"
	"fmt"
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

const slotCols = `id, window_id, owner_id, service_id, service_config_id,
	start_time, end_time, status, max_capacity, current_bookings,
	buffer_after_minutes, blocking_event_id, price_cents,
	requires_confirmation, is_online, version_id, created_at, updated_at`

func (r *repoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.WindowID, &s.OwnerID, &s.ServiceID, &s.ServiceConfigID,
		&s.StartTime, &s.EndTime, &s.Status, &s.MaxCapacity, &s.CurrentBookings,
		&s.BufferAfterMinutes, &s.BlockingEventID, &s.PriceCents,
		&s.RequiresConfirmation, &s.IsOnline, &s.VersionID, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := r.scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM calculated_slot WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, f Filters, limit, offset int) ([]*Slot, int, error) {
	query := `SELECT ` + slotCols + ` FROM calculated_slot WHERE owner_id = $1 AND status <> 'WITHDRAWN'`
	countQuery := `SELECT COUNT(*) FROM calculated_slot WHERE owner_id = $1 AND status <> 'WITHDRAWN'`
	args := []interface{}{ownerID}
	idx := 2

	if !from.IsZero() {
		cond := fmt.Sprintf(` AND end_time > $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, from)
		idx++
	}
	if !to.IsZero() {
		cond := fmt.Sprintf(` AND start_time < $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, to)
		idx++
	}
	if f.ServiceID != nil {
		cond := fmt.Sprintf(` AND service_id = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, *f.ServiceID)
		idx++
	}
	if f.Status != nil {
		cond := fmt.Sprintf(` AND status = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, *f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY start_time ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByWindow(ctx context.Context, windowID uuid.UUID) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+slotCols+` FROM calculated_slot WHERE window_id = $1 ORDER BY start_time ASC`, windowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) ListForOverlay(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotCols+` FROM calculated_slot
		WHERE owner_id = $1 AND status <> 'WITHDRAWN' AND end_time > $2 AND start_time < $3
		ORDER BY start_time ASC`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) CreateBatch(ctx context.Context, slots []*Slot) (int, error) {
	created := 0
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO calculated_slot (id, window_id, owner_id, service_id, service_config_id,
				start_time, end_time, status, max_capacity, current_bookings,
				buffer_after_minutes, price_cents, requires_confirmation, is_online, version_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1)
			ON CONFLICT (owner_id, service_id, start_time) DO NOTHING`,
			s.ID, s.WindowID, s.OwnerID, s.ServiceID, s.ServiceConfigID,
			s.StartTime, s.EndTime, s.Status, s.MaxCapacity, s.CurrentBookings,
			s.BufferAfterMinutes, s.PriceCents, s.RequiresConfirmation, s.IsOnline)
		if err != nil {
			return created, err
		}
		if tag.RowsAffected() > 0 {
			s.VersionID = 1
			created++
		}
	}
	return created, nil
}

func (r *repoPG) CompareAndSetStatus(ctx context.Context, slotID uuid.UUID, expectedVersion int, expectedStatus, newStatus Status, newCurrentBookings int, blockingEventID *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE calculated_slot
		SET status = $4, current_bookings = $5, blocking_event_id = $6,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2 AND status = $3`,
		slotID, expectedVersion, expectedStatus, newStatus, newCurrentBookings, blockingEventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM calculated_slot WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r *repoPG) ClaimForBooking(ctx context.Context, slotID uuid.UUID, expectedVersion int, newStatus Status, newCurrentBookings int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE calculated_slot s
		SET status = $3, current_bookings = $4,
			version_id = version_id + 1, updated_at = NOW()
		WHERE s.id = $1 AND s.version_id = $2 AND s.status = 'AVAILABLE'
			AND NOT EXISTS (
				SELECT 1 FROM calculated_slot o
				WHERE o.owner_id = s.owner_id AND o.id <> s.id AND o.status = 'BOOKED'
					AND o.start_time < s.end_time + (s.buffer_after_minutes * interval '1 minute')
					AND s.start_time < o.end_time + (o.buffer_after_minutes * interval '1 minute')
			)`,
		slotID, expectedVersion, newStatus, newCurrentBookings)
	if err != nil {
		// The slot_no_owner_overlap exclusion constraint catches the race
		// where two claims on different rows pass the predicate before
		// either commits.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM calculated_slot WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

package booking

import (
	"context"
	"errors"

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

const bookingCols = `id, slot_id, client_id, guest_name, guest_email, guest_phone,
	service_id, price_cents, is_online, status, version_id,
	created_at, updated_at, cancelled_at, completed_at, no_show_at`

func (r *repoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.SlotID, &b.ClientID, &b.GuestName, &b.GuestEmail, &b.GuestPhone,
		&b.ServiceID, &b.PriceCents, &b.IsOnline, &b.Status, &b.VersionID,
		&b.CreatedAt, &b.UpdatedAt, &b.CancelledAt, &b.CompletedAt, &b.NoShowAt)
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking (id, slot_id, client_id, guest_name, guest_email, guest_phone,
			service_id, price_cents, is_online, status, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1)`,
		b.ID, b.SlotID, b.ClientID, b.GuestName, b.GuestEmail, b.GuestPhone,
		b.ServiceID, b.PriceCents, b.IsOnline, b.Status)
	if err != nil {
		return err
	}
	b.VersionID = 1
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := r.scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) GetActiveBySlot(ctx context.Context, slotID uuid.UUID) (*Booking, error) {
	b, err := r.scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM booking
		 WHERE slot_id = $1 AND status IN ('PENDING','CONFIRMED')
		 ORDER BY created_at DESC LIMIT 1`, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM booking WHERE client_id = $1`, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bookingCols+` FROM booking WHERE client_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, expectedVersion int, expectedStatus, newStatus Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE booking
		SET status = $4, version_id = version_id + 1, updated_at = NOW(),
			cancelled_at = CASE WHEN $4 = 'CANCELLED' THEN NOW() ELSE cancelled_at END,
			completed_at = CASE WHEN $4 = 'COMPLETED' THEN NOW() ELSE completed_at END,
			no_show_at   = CASE WHEN $4 = 'NO_SHOW'   THEN NOW() ELSE no_show_at END
		WHERE id = $1 AND version_id = $2 AND status = $3`,
		id, expectedVersion, expectedStatus, newStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM booking WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

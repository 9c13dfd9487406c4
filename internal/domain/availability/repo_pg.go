package availability

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

const windowCols = `id, owner_id, location_id, proposed_by, start_time, end_time,
	scheduling_rule, is_online_available, recurrence_option, recurrence_end_date,
	recurrence_days, status, requires_confirmation, reject_reason, version_id,
	created_at, updated_at`

func (r *repoPG) scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var recurOpt *string
	var recurEnd *time.Time
	var recurDays []int32
	err := row.Scan(&w.ID, &w.OwnerID, &w.LocationID, &w.ProposedBy, &w.StartTime, &w.EndTime,
		&w.SchedulingRule, &w.IsOnlineAvailable, &recurOpt, &recurEnd,
		&recurDays, &w.Status, &w.RequiresConfirmation, &w.RejectReason, &w.VersionID,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if recurOpt != nil {
		p := &RecurrencePattern{Option: RecurrenceOption(*recurOpt)}
		if recurEnd != nil {
			p.EndDate = *recurEnd
		}
		for _, d := range recurDays {
			p.CustomDays = append(p.CustomDays, time.Weekday(d))
		}
		w.Recurrence = p
	}
	return &w, nil
}

func (r *repoPG) Create(ctx context.Context, w *Window) error {
	w.ID = uuid.New()
	var recurOpt *string
	var recurEnd *time.Time
	var recurDays []int32
	if w.Recurrence != nil && w.Recurrence.Option != RecurNone {
		opt := string(w.Recurrence.Option)
		recurOpt = &opt
		end := w.Recurrence.EndDate
		recurEnd = &end
		for _, d := range w.Recurrence.CustomDays {
			recurDays = append(recurDays, int32(d))
		}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_window (id, owner_id, location_id, proposed_by,
			start_time, end_time, scheduling_rule, is_online_available,
			recurrence_option, recurrence_end_date, recurrence_days,
			status, requires_confirmation, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1)`,
		w.ID, w.OwnerID, w.LocationID, w.ProposedBy,
		w.StartTime, w.EndTime, w.SchedulingRule, w.IsOnlineAvailable,
		recurOpt, recurEnd, recurDays,
		w.Status, w.RequiresConfirmation)
	if err != nil {
		return err
	}
	w.VersionID = 1
	for _, cfg := range w.Services {
		cfg.ID = uuid.New()
		cfg.WindowID = w.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO service_availability_config (id, window_id, service_id,
				price_cents, duration_minutes, buffer_after_minutes, is_online, active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,true)`,
			cfg.ID, cfg.WindowID, cfg.ServiceID,
			cfg.PriceCents, cfg.DurationMinutes, cfg.BufferAfterMinutes, cfg.IsOnline)
		if err != nil {
			return err
		}
		cfg.Active = true
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Window, error) {
	w, err := r.scanWindow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+windowCols+` FROM availability_window WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadConfigs(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repoPG) loadConfigs(ctx context.Context, w *Window) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, window_id, service_id, price_cents, duration_minutes,
			buffer_after_minutes, is_online, active, created_at
		FROM service_availability_config WHERE window_id = $1 ORDER BY created_at ASC`, w.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cfg ServiceConfig
		if err := rows.Scan(&cfg.ID, &cfg.WindowID, &cfg.ServiceID, &cfg.PriceCents,
			&cfg.DurationMinutes, &cfg.BufferAfterMinutes, &cfg.IsOnline, &cfg.Active, &cfg.CreatedAt); err != nil {
			return err
		}
		w.Services = append(w.Services, &cfg)
	}
	return rows.Err()
}

func (r *repoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, statuses []WindowStatus, limit, offset int) ([]*Window, int, error) {
	query := `SELECT ` + windowCols + ` FROM availability_window WHERE owner_id = $1`
	countQuery := `SELECT COUNT(*) FROM availability_window WHERE owner_id = $1`
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
	if len(statuses) > 0 {
		cond := fmt.Sprintf(` AND status = ANY($%d)`, idx)
		query += cond
		countQuery += cond
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		args = append(args, ss)
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
	var items []*Window
	for rows.Next() {
		w, err := r.scanWindow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, w := range items {
		if err := r.loadConfigs(ctx, w); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *repoPG) TransitionStatus(ctx context.Context, id uuid.UUID, expectedVersion int, expectedStatus, newStatus WindowStatus, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_window
		SET status = $4, reject_reason = COALESCE($5, reject_reason),
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2 AND status = $3`,
		id, expectedVersion, expectedStatus, newStatus, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM availability_window WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

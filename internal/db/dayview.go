package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"groundslot/internal/model"
	"groundslot/internal/slots"
)

// DayView is everything needed to project slot statuses for one ground on
// one date, read from a single snapshot.
type DayView struct {
	Rules  []slots.Window
	Blocks []slots.Window
	Booked map[slots.TimeSlot]bool
}

func newDayView() *DayView {
	return &DayView{Booked: make(map[slots.TimeSlot]bool)}
}

// DayView loads the weekday rules, date blocks and active reservations of a
// ground inside one read transaction.
func (db *DB) DayView(ctx context.Context, groundID int64, date time.Time) (*DayView, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := date.Format(model.DateLayout)
	view := newDayView()

	if err := collectWindows(ctx, tx, &view.Rules, `
		SELECT start_time, end_time FROM availability_rules
		WHERE ground_id = ? AND day_of_week = ?
		ORDER BY start_time`, groundID, slots.DayOfWeek(date)); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	if err := collectWindows(ctx, tx, &view.Blocks, `
		SELECT start_time, end_time FROM availability_blocks
		WHERE ground_id = ? AND date = ?
		ORDER BY start_time`, groundID, day); err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT start_time, end_time FROM reservations
		WHERE ground_id = ? AND date = ? AND status <> 'CANCELLED'`, groundID, day)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	err = eachWindow(rows, func(_ int64, w slots.Window) {
		view.Booked[slots.TimeSlot{Start: w.Start, End: w.End}] = true
	})
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	return view, tx.Commit()
}

// GroundsDayView loads day views for every approved ground at once: four
// queries in one read transaction, whatever the number of grounds.
func (db *DB) GroundsDayView(ctx context.Context, date time.Time) ([]model.Ground, map[int64]*DayView, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	grounds, err := approvedGrounds(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	views := make(map[int64]*DayView, len(grounds))
	for _, g := range grounds {
		views[g.ID] = newDayView()
	}
	day := date.Format(model.DateLayout)

	rows, err := tx.QueryContext(ctx, `
		SELECT r.ground_id, r.start_time, r.end_time
		FROM availability_rules r
		JOIN grounds g ON g.id = r.ground_id
		WHERE g.status = 'APPROVED' AND r.day_of_week = ?
		ORDER BY r.ground_id, r.start_time`, slots.DayOfWeek(date))
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}
	if err := eachGroundWindow(rows, func(id int64, w slots.Window) {
		if v, ok := views[id]; ok {
			v.Rules = append(v.Rules, w)
		}
	}); err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT b.ground_id, b.start_time, b.end_time
		FROM availability_blocks b
		JOIN grounds g ON g.id = b.ground_id
		WHERE g.status = 'APPROVED' AND b.date = ?`, day)
	if err != nil {
		return nil, nil, fmt.Errorf("load blocks: %w", err)
	}
	if err := eachGroundWindow(rows, func(id int64, w slots.Window) {
		if v, ok := views[id]; ok {
			v.Blocks = append(v.Blocks, w)
		}
	}); err != nil {
		return nil, nil, fmt.Errorf("load blocks: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT r.ground_id, r.start_time, r.end_time
		FROM reservations r
		JOIN grounds g ON g.id = r.ground_id
		WHERE g.status = 'APPROVED' AND r.date = ? AND r.status <> 'CANCELLED'`, day)
	if err != nil {
		return nil, nil, fmt.Errorf("load reservations: %w", err)
	}
	if err := eachGroundWindow(rows, func(id int64, w slots.Window) {
		if v, ok := views[id]; ok {
			v.Booked[slots.TimeSlot{Start: w.Start, End: w.End}] = true
		}
	}); err != nil {
		return nil, nil, fmt.Errorf("load reservations: %w", err)
	}

	return grounds, views, tx.Commit()
}

func approvedGrounds(ctx context.Context, q queryer) ([]model.Ground, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, owner_id, name, location, price_per_hour, status, created_at
		FROM grounds WHERE status = 'APPROVED'
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query grounds: %w", err)
	}
	defer rows.Close()

	var result []model.Ground
	for rows.Next() {
		var g model.Ground
		var createdAt string
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Location, &g.PricePerHour, &g.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ground: %w", err)
		}
		g.CreatedAt = parseTimestamp(createdAt)
		result = append(result, g)
	}
	return result, rows.Err()
}

func collectWindows(ctx context.Context, q queryer, dst *[]slots.Window, query string, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return eachWindow(rows, func(_ int64, w slots.Window) {
		*dst = append(*dst, w)
	})
}

// eachWindow scans (start_time, end_time) rows.
func eachWindow(rows *sql.Rows, fn func(int64, slots.Window)) error {
	return scanWindows(rows, false, fn)
}

// eachGroundWindow scans (ground_id, start_time, end_time) rows.
func eachGroundWindow(rows *sql.Rows, fn func(int64, slots.Window)) error {
	return scanWindows(rows, true, fn)
}

func scanWindows(rows *sql.Rows, withGround bool, fn func(int64, slots.Window)) error {
	defer rows.Close()

	for rows.Next() {
		var groundID int64
		var start, end string
		var err error
		if withGround {
			err = rows.Scan(&groundID, &start, &end)
		} else {
			err = rows.Scan(&start, &end)
		}
		if err != nil {
			return err
		}

		var w slots.Window
		if w.Start, err = slots.ParseTimeOfDay(start); err != nil {
			return err
		}
		if w.End, err = slots.ParseTimeOfDay(end); err != nil {
			return err
		}
		fn(groundID, w)
	}
	return rows.Err()
}

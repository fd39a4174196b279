package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"groundslot/internal/domain"
	"groundslot/internal/model"
	"groundslot/internal/slots"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReplaceWeeklyAvailability swaps the rules of every listed day in a single
// transaction. Days not listed keep their rules; a day listed with no windows
// ends up with none.
func (db *DB) ReplaceWeeklyAvailability(ctx context.Context, groundID int64, days []model.DayWindows) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTimestamp(db.now())
	for _, day := range days {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM availability_rules WHERE ground_id = ? AND day_of_week = ?",
			groundID, day.DayOfWeek,
		); err != nil {
			return fmt.Errorf("clear day %d: %w", day.DayOfWeek, err)
		}

		for _, w := range day.Windows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO availability_rules (ground_id, day_of_week, start_time, end_time, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				groundID, day.DayOfWeek, w.Start.String(), w.End.String(), now,
			); err != nil {
				return fmt.Errorf("insert rule %s on day %d: %w", w, day.DayOfWeek, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability: %w", err)
	}

	db.logger.Debug().
		Int64("ground_id", groundID).
		Int("days", len(days)).
		Msg("weekly availability replaced")
	return nil
}

// ListRules returns every weekly rule of a ground ordered by day and start.
func (db *DB) ListRules(ctx context.Context, groundID int64) ([]model.AvailabilityRule, error) {
	return listRules(ctx, db.DB, `
		SELECT id, ground_id, day_of_week, start_time, end_time, created_at
		FROM availability_rules
		WHERE ground_id = ?
		ORDER BY day_of_week, start_time`, groundID)
}

func listRules(ctx context.Context, q queryer, query string, args ...any) ([]model.AvailabilityRule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var result []model.AvailabilityRule
	for rows.Next() {
		var r model.AvailabilityRule
		var start, end, createdAt string
		if err := rows.Scan(&r.ID, &r.GroundID, &r.DayOfWeek, &start, &end, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if r.StartTime, err = slots.ParseTimeOfDay(start); err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		if r.EndTime, err = slots.ParseTimeOfDay(end); err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		r.CreatedAt = parseTimestamp(createdAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

// CreateBlock stores a date-specific block.
func (db *DB) CreateBlock(ctx context.Context, b *model.AvailabilityBlock) error {
	now := db.now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO availability_blocks (ground_id, date, start_time, end_time, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.GroundID, b.Date.Format(model.DateLayout), b.StartTime.String(), b.EndTime.String(),
		b.Reason, formatTimestamp(now),
	)
	if err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	b.ID = id
	b.CreatedAt = parseTimestamp(formatTimestamp(now))
	return nil
}

// DeleteBlock removes a block and returns it so callers can invalidate the
// affected date.
func (db *DB) DeleteBlock(ctx context.Context, groundID, blockID int64) (*model.AvailabilityBlock, error) {
	blocks, err := listBlocks(ctx, db.DB, `
		SELECT id, ground_id, date, start_time, end_time, reason, created_at
		FROM availability_blocks WHERE id = ? AND ground_id = ?`, blockID, groundID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("block %d: %w", blockID, domain.ErrNotFound)
	}

	if _, err := db.ExecContext(ctx,
		"DELETE FROM availability_blocks WHERE id = ? AND ground_id = ?", blockID, groundID,
	); err != nil {
		return nil, fmt.Errorf("delete block: %w", err)
	}
	return &blocks[0], nil
}

// ListBlocks returns the blocks of a ground on a date.
func (db *DB) ListBlocks(ctx context.Context, groundID int64, date time.Time) ([]model.AvailabilityBlock, error) {
	return listBlocks(ctx, db.DB, `
		SELECT id, ground_id, date, start_time, end_time, reason, created_at
		FROM availability_blocks
		WHERE ground_id = ? AND date = ?
		ORDER BY start_time`, groundID, date.Format(model.DateLayout))
}

func listBlocks(ctx context.Context, q queryer, query string, args ...any) ([]model.AvailabilityBlock, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var result []model.AvailabilityBlock
	for rows.Next() {
		var b model.AvailabilityBlock
		var date, start, end, createdAt string
		if err := rows.Scan(&b.ID, &b.GroundID, &date, &start, &end, &b.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if b.Date, err = model.ParseDate(date); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.ID, err)
		}
		if b.StartTime, err = slots.ParseTimeOfDay(start); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.ID, err)
		}
		if b.EndTime, err = slots.ParseTimeOfDay(end); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.ID, err)
		}
		b.CreatedAt = parseTimestamp(createdAt)
		result = append(result, b)
	}
	return result, rows.Err()
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groundslot/internal/domain"
	"groundslot/internal/model"
	"groundslot/internal/slots"
)

const reservationColumns = `id, ground_id, date, start_time, end_time, holder_id, creator_id,
	origin, status, transaction_uuid, transaction_code, expected_amount, paid_amount,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		r                                    model.Reservation
		date, start, end                     string
		holderID                             sql.NullInt64
		txUUID, txCode, expected, paidAmount sql.NullString
		createdAt, updatedAt                 string
	)
	if err := s.Scan(&r.ID, &r.GroundID, &date, &start, &end, &holderID, &r.CreatorID,
		&r.Origin, &r.Status, &txUUID, &txCode, &expected, &paidAmount,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if r.Date, err = model.ParseDate(date); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	if r.StartTime, err = slots.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	if r.EndTime, err = slots.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	if holderID.Valid {
		id := holderID.Int64
		r.HolderID = &id
	}
	r.TransactionUUID = txUUID.String
	r.TransactionCode = txCode.String
	r.ExpectedAmount = expected.String
	r.PaidAmount = paidAmount.String
	r.CreatedAt = parseTimestamp(createdAt)
	r.UpdatedAt = parseTimestamp(updatedAt)
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertReservation writes a new reservation. The partial unique index on
// (ground_id, date, start_time, end_time) decides conflicts: a violation
// comes back as domain.ErrSlotAlreadyBooked and nothing is written.
func (db *DB) InsertReservation(ctx context.Context, r *model.Reservation) error {
	now := db.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (ground_id, date, start_time, end_time, holder_id, creator_id,
			origin, status, transaction_uuid, transaction_code, expected_amount, paid_amount,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GroundID, r.Date.Format(model.DateLayout), r.StartTime.String(), r.EndTime.String(),
		r.HolderID, r.CreatorID, r.Origin, r.Status,
		nullString(r.TransactionUUID), nullString(r.TransactionCode),
		nullString(r.ExpectedAmount), nullString(r.PaidAmount),
		formatTimestamp(r.CreatedAt), formatTimestamp(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSlotAlreadyBooked
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSlotAlreadyBooked
		}
		return fmt.Errorf("commit reservation: %w", err)
	}

	r.ID = id
	r.CreatedAt = parseTimestamp(formatTimestamp(r.CreatedAt))
	r.UpdatedAt = parseTimestamp(formatTimestamp(r.UpdatedAt))
	return nil
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// GetReservationByTransaction finds the reservation bound to a payment
// transaction uuid.
func (db *DB) GetReservationByTransaction(ctx context.Context, txUUID string) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE transaction_uuid = ?", txUUID)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", txUUID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation by transaction: %w", err)
	}
	return r, nil
}

func (db *DB) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BindTransaction attaches a payment transaction to a provisional
// reservation. Rebinding the same uuid is allowed so retries of the
// initiate step are harmless. It reports whether the row was updated.
func (db *DB) BindTransaction(ctx context.Context, id int64, txUUID, expectedAmount string) (bool, error) {
	ok, err := db.execConditional(ctx, `
		UPDATE reservations
		SET transaction_uuid = ?, expected_amount = ?, updated_at = ?
		WHERE id = ? AND status = 'PROVISIONAL'
		  AND (transaction_uuid IS NULL OR transaction_uuid = ?)`,
		txUUID, nullString(expectedAmount), formatTimestamp(db.now()), id, txUUID,
	)
	if err != nil {
		return false, fmt.Errorf("bind transaction: %w", err)
	}
	return ok, nil
}

// ConfirmPayment moves the reservation bound to txUUID from PROVISIONAL to
// CONFIRMED. It reports false when the reservation was not provisional.
func (db *DB) ConfirmPayment(ctx context.Context, txUUID, txCode, paidAmount string) (bool, error) {
	ok, err := db.execConditional(ctx, `
		UPDATE reservations
		SET status = 'CONFIRMED', transaction_code = ?, paid_amount = ?, updated_at = ?
		WHERE transaction_uuid = ? AND status = 'PROVISIONAL'`,
		nullString(txCode), nullString(paidAmount), formatTimestamp(db.now()), txUUID,
	)
	if err != nil {
		return false, fmt.Errorf("confirm payment: %w", err)
	}
	return ok, nil
}

// CancelByTransaction cancels the provisional reservation bound to txUUID.
func (db *DB) CancelByTransaction(ctx context.Context, txUUID, txCode string) (bool, error) {
	ok, err := db.execConditional(ctx, `
		UPDATE reservations
		SET status = 'CANCELLED', transaction_code = COALESCE(?, transaction_code), updated_at = ?
		WHERE transaction_uuid = ? AND status = 'PROVISIONAL'`,
		nullString(txCode), formatTimestamp(db.now()), txUUID,
	)
	if err != nil {
		return false, fmt.Errorf("cancel by transaction: %w", err)
	}
	return ok, nil
}

// CancelProvisional cancels a provisional reservation by id.
func (db *DB) CancelProvisional(ctx context.Context, id int64) (bool, error) {
	ok, err := db.execConditional(ctx, `
		UPDATE reservations SET status = 'CANCELLED', updated_at = ?
		WHERE id = ? AND status = 'PROVISIONAL'`,
		formatTimestamp(db.now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", err)
	}
	return ok, nil
}

// ExpireProvisional cancels every provisional reservation created before
// the cutoff and returns the rows it cancelled.
func (db *DB) ExpireProvisional(ctx context.Context, before time.Time) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		UPDATE reservations SET status = 'CANCELLED', updated_at = ?
		WHERE status = 'PROVISIONAL' AND created_at < ?
		RETURNING `+reservationColumns,
		formatTimestamp(db.now()), formatTimestamp(before),
	)
	if err != nil {
		return nil, fmt.Errorf("expire provisional: %w", err)
	}
	return collectReservations(rows)
}

// ListReservations returns reservations of a ground between two dates,
// inclusive, in calendar order. Cancelled rows are included.
func (db *DB) ListReservations(ctx context.Context, groundID int64, from, to time.Time) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE ground_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, start_time, id`,
		groundID, from.Format(model.DateLayout), to.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return collectReservations(rows)
}

// ListHolderReservations returns the reservations held by a user, newest
// date first.
func (db *DB) ListHolderReservations(ctx context.Context, holderID int64) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE holder_id = ?
		ORDER BY date DESC, start_time`, holderID)
	if err != nil {
		return nil, fmt.Errorf("list holder reservations: %w", err)
	}
	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()

	var result []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

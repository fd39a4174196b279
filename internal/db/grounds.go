package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"groundslot/internal/domain"
	"groundslot/internal/model"
)

// CreateGround stores a ground. Ground moderation lives outside the booking
// core; this is the write side that collaborator (and tests) use.
func (db *DB) CreateGround(ctx context.Context, g *model.Ground) error {
	if g == nil {
		return fmt.Errorf("ground is nil")
	}
	if g.Status == "" {
		g.Status = model.GroundStatusPending
	}
	now := db.now()

	res, err := db.ExecContext(ctx, `
		INSERT INTO grounds (owner_id, name, location, price_per_hour, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.OwnerID, g.Name, g.Location, g.PricePerHour, g.Status, formatTimestamp(now),
	)
	if err != nil {
		return fmt.Errorf("create ground: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create ground: %w", err)
	}
	g.ID = id
	g.CreatedAt = parseTimestamp(formatTimestamp(now))
	return nil
}

// GetGround returns a ground by id.
func (db *DB) GetGround(ctx context.Context, id int64) (*model.Ground, error) {
	var g model.Ground
	var createdAt string
	err := db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, location, price_per_hour, status, created_at
		FROM grounds WHERE id = ?`, id,
	).Scan(&g.ID, &g.OwnerID, &g.Name, &g.Location, &g.PricePerHour, &g.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ground %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ground: %w", err)
	}
	g.CreatedAt = parseTimestamp(createdAt)
	return &g, nil
}

// SetGroundStatus records a moderation decision.
func (db *DB) SetGroundStatus(ctx context.Context, id int64, status model.GroundStatus) error {
	res, err := db.ExecContext(ctx, "UPDATE grounds SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("set ground status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ground %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

package db

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"groundslot/internal/config"
	"groundslot/internal/domain"
	"groundslot/internal/model"
	"groundslot/internal/slots"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) // Sunday

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func createGround(t *testing.T, database *DB, status model.GroundStatus) *model.Ground {
	t.Helper()
	g := &model.Ground{OwnerID: 10, Name: "Futsal Arena", Location: "Kathmandu", PricePerHour: 1500, Status: status}
	require.NoError(t, database.CreateGround(context.Background(), g))
	return g
}

func slotReservation(groundID int64, start int, status model.ReservationStatus) *model.Reservation {
	holder := int64(42)
	return &model.Reservation{
		GroundID:  groundID,
		Date:      testDate,
		StartTime: slots.At(start, 0),
		EndTime:   slots.At(start+1, 0),
		HolderID:  &holder,
		CreatorID: holder,
		Origin:    model.OriginOnline,
		Status:    status,
	}
}

func TestGrounds(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	g := createGround(t, database, "")
	assert.NotZero(t, g.ID)
	assert.Equal(t, model.GroundStatusPending, g.Status)

	got, err := database.GetGround(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Futsal Arena", got.Name)
	assert.Equal(t, int64(1500), got.PricePerHour)

	require.NoError(t, database.SetGroundStatus(ctx, g.ID, model.GroundStatusApproved))
	got, err = database.GetGround(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBookable())

	_, err = database.GetGround(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, database.SetGroundStatus(ctx, 999, model.GroundStatusApproved), domain.ErrNotFound)
}

func TestReplaceWeeklyAvailability(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	err := database.ReplaceWeeklyAvailability(ctx, g.ID, []model.DayWindows{
		{DayOfWeek: 0, Windows: []slots.Window{{Start: slots.At(6, 0), End: slots.At(9, 0)}}},
		{DayOfWeek: 6, Windows: []slots.Window{
			{Start: slots.At(7, 0), End: slots.At(10, 0)},
			{Start: slots.At(15, 0), End: slots.At(17, 0)},
		}},
	})
	require.NoError(t, err)

	rules, err := database.ListRules(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, 0, rules[0].DayOfWeek)
	assert.Equal(t, slots.At(15, 0), rules[2].StartTime)

	// Replacing Sunday leaves Monday untouched.
	err = database.ReplaceWeeklyAvailability(ctx, g.ID, []model.DayWindows{
		{DayOfWeek: 6, Windows: []slots.Window{{Start: slots.At(8, 0), End: slots.At(12, 0)}}},
	})
	require.NoError(t, err)
	rules, err = database.ListRules(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, slots.At(8, 0), rules[1].StartTime)

	// An empty day clears it.
	require.NoError(t, database.ReplaceWeeklyAvailability(ctx, g.ID, []model.DayWindows{{DayOfWeek: 6}}))
	rules, err = database.ListRules(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestReplaceWeeklyAvailability_RollsBack(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	require.NoError(t, database.ReplaceWeeklyAvailability(ctx, g.ID, []model.DayWindows{
		{DayOfWeek: 2, Windows: []slots.Window{{Start: slots.At(6, 0), End: slots.At(8, 0)}}},
	}))

	// Day 9 violates the CHECK constraint after day 2 was already cleared.
	err := database.ReplaceWeeklyAvailability(ctx, g.ID, []model.DayWindows{
		{DayOfWeek: 2},
		{DayOfWeek: 9, Windows: []slots.Window{{Start: slots.At(6, 0), End: slots.At(8, 0)}}},
	})
	require.Error(t, err)

	rules, err := database.ListRules(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestBlocks(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	b := &model.AvailabilityBlock{
		GroundID: g.ID, Date: testDate,
		StartTime: slots.At(9, 0), EndTime: slots.At(11, 0), Reason: "maintenance",
	}
	require.NoError(t, database.CreateBlock(ctx, b))
	assert.NotZero(t, b.ID)

	blocks, err := database.ListBlocks(ctx, g.ID, testDate)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "maintenance", blocks[0].Reason)
	assert.Equal(t, testDate, blocks[0].Date)

	deleted, err := database.DeleteBlock(ctx, g.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, deleted.ID)

	_, err = database.DeleteBlock(ctx, g.ID, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertReservation_Conflict(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	first := slotReservation(g.ID, 9, model.StatusProvisional)
	require.NoError(t, database.InsertReservation(ctx, first))
	assert.NotZero(t, first.ID)

	err := database.InsertReservation(ctx, slotReservation(g.ID, 9, model.StatusConfirmed))
	assert.ErrorIs(t, err, domain.ErrSlotAlreadyBooked)

	// Another slot on the same date is fine.
	require.NoError(t, database.InsertReservation(ctx, slotReservation(g.ID, 10, model.StatusProvisional)))

	// Cancelling frees the slot.
	ok, err := database.CancelProvisional(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, database.InsertReservation(ctx, slotReservation(g.ID, 9, model.StatusProvisional)))

	all, err := database.ListReservations(ctx, g.ID, testDate, testDate)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPaymentTransitions(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	r := slotReservation(g.ID, 7, model.StatusProvisional)
	require.NoError(t, database.InsertReservation(ctx, r))

	ok, err := database.BindTransaction(ctx, r.ID, "tx-1", "1500")
	require.NoError(t, err)
	assert.True(t, ok)

	// Same uuid again is accepted, a different one is not.
	ok, err = database.BindTransaction(ctx, r.ID, "tx-1", "1500")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = database.BindTransaction(ctx, r.ID, "tx-2", "1500")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = database.ConfirmPayment(ctx, "tx-1", "000AE01", "1500")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = database.ConfirmPayment(ctx, "tx-1", "000AE01", "1500")
	require.NoError(t, err)
	assert.False(t, ok, "second confirm is a no-op")

	ok, err = database.CancelByTransaction(ctx, "tx-1", "")
	require.NoError(t, err)
	assert.False(t, ok, "confirmed reservations are never cancelled by callbacks")

	got, err := database.GetReservationByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, "000AE01", got.TransactionCode)
	assert.Equal(t, "1500", got.PaidAmount)
	assert.Equal(t, "1500", got.ExpectedAmount)
	require.NotNil(t, got.HolderID)
	assert.Equal(t, int64(42), *got.HolderID)

	_, err = database.GetReservationByTransaction(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpireProvisional(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	old := slotReservation(g.ID, 6, model.StatusProvisional)
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, database.InsertReservation(ctx, old))

	fresh := slotReservation(g.ID, 7, model.StatusProvisional)
	require.NoError(t, database.InsertReservation(ctx, fresh))

	confirmed := slotReservation(g.ID, 8, model.StatusConfirmed)
	confirmed.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, database.InsertReservation(ctx, confirmed))

	expired, err := database.ExpireProvisional(ctx, time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Equal(t, model.StatusCancelled, expired[0].Status)

	got, err := database.GetReservation(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProvisional, got.Status)
}

func TestDayView(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	g := createGround(t, database, model.GroundStatusApproved)

	require.NoError(t, database.ReplaceWeeklyAvailability(ctx, g.ID, []model.DayWindows{
		{DayOfWeek: slots.DayOfWeek(testDate), Windows: []slots.Window{{Start: slots.At(7, 0), End: slots.At(10, 0)}}},
		{DayOfWeek: 0, Windows: []slots.Window{{Start: slots.At(12, 0), End: slots.At(13, 0)}}},
	}))
	require.NoError(t, database.CreateBlock(ctx, &model.AvailabilityBlock{
		GroundID: g.ID, Date: testDate, StartTime: slots.At(9, 0), EndTime: slots.At(10, 0),
	}))
	require.NoError(t, database.InsertReservation(ctx, slotReservation(g.ID, 7, model.StatusProvisional)))
	cancelled := slotReservation(g.ID, 8, model.StatusProvisional)
	require.NoError(t, database.InsertReservation(ctx, cancelled))
	_, err := database.CancelProvisional(ctx, cancelled.ID)
	require.NoError(t, err)

	view, err := database.DayView(ctx, g.ID, testDate)
	require.NoError(t, err)
	assert.Equal(t, []slots.Window{{Start: slots.At(7, 0), End: slots.At(10, 0)}}, view.Rules)
	assert.Equal(t, []slots.Window{{Start: slots.At(9, 0), End: slots.At(10, 0)}}, view.Blocks)
	assert.True(t, view.Booked[slots.TimeSlot{Start: slots.At(7, 0), End: slots.At(8, 0)}])
	assert.False(t, view.Booked[slots.TimeSlot{Start: slots.At(8, 0), End: slots.At(9, 0)}])
}

func TestGroundsDayView(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	a := createGround(t, database, model.GroundStatusApproved)
	b := createGround(t, database, model.GroundStatusApproved)
	pending := createGround(t, database, model.GroundStatusPending)

	require.NoError(t, database.ReplaceWeeklyAvailability(ctx, b.ID, []model.DayWindows{
		{DayOfWeek: 6, Windows: []slots.Window{{Start: slots.At(6, 0), End: slots.At(8, 0)}}},
	}))
	require.NoError(t, database.InsertReservation(ctx, slotReservation(a.ID, 9, model.StatusConfirmed)))
	require.NoError(t, database.InsertReservation(ctx, slotReservation(pending.ID, 9, model.StatusConfirmed)))

	grounds, views, err := database.GroundsDayView(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, grounds, 2)
	require.Contains(t, views, a.ID)
	require.Contains(t, views, b.ID)
	assert.NotContains(t, views, pending.ID)

	assert.Empty(t, views[a.ID].Rules)
	assert.Len(t, views[a.ID].Booked, 1)
	assert.Len(t, views[b.ID].Rules, 1)
	assert.Empty(t, views[b.ID].Booked)
}

func TestBackupService(t *testing.T) {
	database := newTestDB(t)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(database, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 1}, &logger)
	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	stale := filepath.Join(dir, "backup_old.db")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	old := time.Now().AddDate(0, 0, -3)
	require.NoError(t, os.Chtimes(stale, old, old))

	svc.CleanupOldBackups()
	assert.NoFileExists(t, stale)
	assert.FileExists(t, path)
}

package booking

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"groundslot/internal/cache"
	"groundslot/internal/db"
	"groundslot/internal/domain"
	"groundslot/internal/events"
	"groundslot/internal/model"
	"groundslot/internal/slots"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerID = int64(10)

var (
	sunday   = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)
	owner    = model.User{ID: ownerID, Role: model.RoleOwner}
)

type fixture struct {
	svc    *Service
	db     *db.DB
	bus    *events.EventBus
	ground *model.Ground
}

func newFixture(t *testing.T, opts ...func(*fixtureOpts)) *fixture {
	t.Helper()
	o := fixtureOpts{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := zerolog.New(io.Discard)
	database, err := db.NewDB(filepath.Join(t.TempDir(), "booking.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	g := &model.Ground{OwnerID: ownerID, Name: "Dhobighat Futsal", PricePerHour: 1200, Status: model.GroundStatusApproved}
	require.NoError(t, database.CreateGround(context.Background(), g))

	bus := events.NewEventBus(&logger)
	o.cache.Subscribe(bus)
	svc := NewService(database, bus, o.cache, o.rules, &logger, WithClock(func() time.Time { return fixedNow }))
	return &fixture{svc: svc, db: database, bus: bus, ground: g}
}

type fixtureOpts struct {
	rules BookingRules
	cache *cache.StatusCache
}

func withRules(r BookingRules) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.rules = r }
}

func withCache(c *cache.StatusCache) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.cache = c }
}

func holder(id int64) *int64 { return &id }

func onlineRequest(groundID int64, hour int) ReserveRequest {
	return ReserveRequest{
		GroundID:  groundID,
		Date:      sunday,
		Start:     slots.At(hour, 0),
		End:       slots.At(hour+1, 0),
		HolderID:  holder(42),
		CreatorID: 42,
		Origin:    model.OriginOnline,
	}
}

func (f *fixture) setSunday(t *testing.T, windows ...slots.Window) {
	t.Helper()
	require.NoError(t, f.svc.ReplaceWeeklyAvailability(context.Background(), owner, f.ground.ID,
		[]model.DayWindows{{DayOfWeek: 6, Windows: windows}}))
}

func TestReserve_Online(t *testing.T) {
	f := newFixture(t)

	var created []events.Event
	f.bus.Subscribe(func(e events.Event) error {
		created = append(created, e)
		return nil
	}, events.ReservationCreated)

	r, err := f.svc.Reserve(context.Background(), onlineRequest(f.ground.ID, 9))
	require.NoError(t, err)
	assert.Equal(t, model.StatusProvisional, r.Status)
	assert.Equal(t, model.OriginOnline, r.Origin)
	assert.Equal(t, sunday, r.Date)
	require.NotNil(t, r.HolderID)
	assert.Equal(t, int64(42), *r.HolderID)

	require.Len(t, created, 1)
	assert.Equal(t, r.ID, created[0].ReservationID)
}

func TestReserve_OfflineByOwner(t *testing.T) {
	f := newFixture(t)
	f.setSunday(t, slots.Window{Start: slots.At(7, 0), End: slots.At(10, 0)})

	// Offline bookings bypass the availability check.
	r, err := f.svc.Reserve(context.Background(), ReserveRequest{
		GroundID: f.ground.ID, Date: sunday, Start: slots.At(6, 0), End: slots.At(7, 0),
		CreatorID: ownerID, Origin: model.OriginOffline,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, r.Status)
	assert.Nil(t, r.HolderID)

	_, err = f.svc.Reserve(context.Background(), ReserveRequest{
		GroundID: f.ground.ID, Date: sunday, Start: slots.At(8, 0), End: slots.At(9, 0),
		CreatorID: 99, Origin: model.OriginOffline,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReserve_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := &model.Ground{OwnerID: ownerID, Name: "Pending", Status: model.GroundStatusPending}
	require.NoError(t, f.db.CreateGround(ctx, pending))

	off := onlineRequest(f.ground.ID, 9)
	off.Start = slots.At(9, 30)
	off.End = slots.At(10, 30)

	twoHours := onlineRequest(f.ground.ID, 9)
	twoHours.End = slots.At(11, 0)

	noHolder := onlineRequest(f.ground.ID, 9)
	noHolder.HolderID = nil

	past := onlineRequest(f.ground.ID, 9)
	past.Date = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  ReserveRequest
		want error
	}{
		{"not a catalog slot", off, domain.ErrInvalidSlot},
		{"two hour slot", twoHours, domain.ErrInvalidSlot},
		{"unknown ground", onlineRequest(999, 9), domain.ErrNotFound},
		{"ground not approved", onlineRequest(pending.ID, 9), domain.ErrResourceNotApproved},
		{"online without holder", noHolder, domain.ErrValidation},
		{"slot already started", past, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reserve(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := f.db.ListReservations(ctx, f.ground.ID, sunday, sunday)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReserve_ClosedSlot(t *testing.T) {
	f := newFixture(t)
	f.setSunday(t, slots.Window{Start: slots.At(7, 0), End: slots.At(10, 0)})

	_, err := f.svc.Reserve(context.Background(), onlineRequest(f.ground.ID, 6))
	assert.ErrorIs(t, err, domain.ErrSlotClosed)
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.Reserve(context.Background(), onlineRequest(f.ground.ID, 7))
	assert.NoError(t, err)
}

func TestReserve_BookingWindow(t *testing.T) {
	f := newFixture(t, withRules(BookingRules{MaxAdvance: 24 * time.Hour}))
	_, err := f.svc.Reserve(context.Background(), onlineRequest(f.ground.ID, 9))
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.svc.SetRules(BookingRules{MinAdvance: 48 * time.Hour})
	_, err = f.svc.Reserve(context.Background(), onlineRequest(f.ground.ID, 9))
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.svc.SetRules(BookingRules{MinAdvance: time.Hour, MaxAdvance: 7 * 24 * time.Hour})
	_, err = f.svc.Reserve(context.Background(), onlineRequest(f.ground.ID, 9))
	assert.NoError(t, err)
}

func TestReserve_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, onlineRequest(f.ground.ID, 9))
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, onlineRequest(f.ground.ID, 9))
	assert.ErrorIs(t, err, domain.ErrSlotAlreadyBooked)

	// A cancelled reservation frees the slot.
	ok, err := f.db.CancelProvisional(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.Reserve(ctx, onlineRequest(f.ground.ID, 9))
	assert.NoError(t, err)
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := onlineRequest(f.ground.ID, 18)
			req.HolderID = holder(int64(100 + i))
			req.CreatorID = int64(100 + i)
			<-start
			_, err := f.svc.Reserve(context.Background(), req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSlotAlreadyBooked):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	all, err := f.db.ListReservations(context.Background(), f.ground.ID, sunday, sunday)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStatusFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No rules: every slot is open.
	statuses, err := f.svc.StatusFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	require.Len(t, statuses, 13)
	for _, s := range statuses {
		assert.Equal(t, slots.OpenWhenNoRules, s.Open)
	}

	f.setSunday(t, slots.Window{Start: slots.At(7, 0), End: slots.At(10, 0)})
	_, err = f.svc.Reserve(ctx, onlineRequest(f.ground.ID, 8))
	require.NoError(t, err)

	statuses, err = f.svc.StatusFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	require.Len(t, statuses, 13)

	byStart := map[string]slots.SlotStatus{}
	for _, s := range statuses {
		byStart[s.Start.String()] = s
	}
	assert.False(t, byStart["06:00"].Open)
	assert.True(t, byStart["07:00"].Available)
	assert.True(t, byStart["08:00"].Booked)
	assert.False(t, byStart["08:00"].Available)
	assert.True(t, byStart["09:00"].Available)
	assert.False(t, byStart["10:00"].Open)

	_, err = f.svc.StatusFor(ctx, 999, sunday)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWindowsForAndBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setSunday(t, slots.Window{Start: slots.At(7, 0), End: slots.At(10, 0)})

	open, err := f.svc.WindowsFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	block := &model.AvailabilityBlock{
		GroundID: f.ground.ID, Date: sunday,
		StartTime: slots.At(8, 30), EndTime: slots.At(9, 0), Reason: "repair",
	}
	require.NoError(t, f.svc.AddBlock(ctx, owner, block))

	open, err = f.svc.WindowsFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Equal(t, []slots.TimeSlot{
		{Start: slots.At(7, 0), End: slots.At(8, 0)},
		{Start: slots.At(9, 0), End: slots.At(10, 0)},
	}, open)

	// Other dates are unaffected.
	open, err = f.svc.WindowsFor(ctx, f.ground.ID, sunday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, open, 3)

	assert.ErrorIs(t, f.svc.RemoveBlock(ctx, model.User{ID: 77, Role: model.RoleOwner}, f.ground.ID, block.ID), domain.ErrForbidden)
	require.NoError(t, f.svc.RemoveBlock(ctx, owner, f.ground.ID, block.ID))
	open, err = f.svc.WindowsFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	bad := &model.AvailabilityBlock{GroundID: f.ground.ID, Date: sunday, StartTime: slots.At(9, 0), EndTime: slots.At(9, 0)}
	assert.ErrorIs(t, f.svc.AddBlock(ctx, owner, bad), domain.ErrValidation)
}

func TestReplaceWeeklyAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setSunday(t, slots.Window{Start: slots.At(7, 0), End: slots.At(10, 0)})

	tests := []struct {
		name string
		user model.User
		days []model.DayWindows
		want error
	}{
		{
			name: "overlapping windows",
			user: owner,
			days: []model.DayWindows{{DayOfWeek: 6, Windows: []slots.Window{
				{Start: slots.At(9, 0), End: slots.At(12, 0)},
				{Start: slots.At(6, 0), End: slots.At(10, 0)},
			}}},
			want: domain.ErrValidation,
		},
		{
			name: "duplicate windows",
			user: owner,
			days: []model.DayWindows{{DayOfWeek: 6, Windows: []slots.Window{
				{Start: slots.At(6, 0), End: slots.At(8, 0)},
				{Start: slots.At(6, 0), End: slots.At(8, 0)},
			}}},
			want: domain.ErrValidation,
		},
		{
			name: "end before start",
			user: owner,
			days: []model.DayWindows{{DayOfWeek: 6, Windows: []slots.Window{{Start: slots.At(10, 0), End: slots.At(8, 0)}}}},
			want: domain.ErrValidation,
		},
		{
			name: "day out of range",
			user: owner,
			days: []model.DayWindows{{DayOfWeek: 7}},
			want: domain.ErrValidation,
		},
		{
			name: "day submitted twice",
			user: owner,
			days: []model.DayWindows{{DayOfWeek: 1}, {DayOfWeek: 1}},
			want: domain.ErrValidation,
		},
		{
			name: "another owner",
			user: model.User{ID: 77, Role: model.RoleOwner},
			days: []model.DayWindows{{DayOfWeek: 6}},
			want: domain.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.ReplaceWeeklyAvailability(ctx, tt.user, f.ground.ID, tt.days)
			assert.ErrorIs(t, err, tt.want)

			rules, err := f.db.ListRules(ctx, f.ground.ID)
			require.NoError(t, err)
			require.Len(t, rules, 1, "rejected submissions persist nothing")
		})
	}

	// Adjacent windows are fine and an admin may edit any ground.
	admin := model.User{ID: 1, Role: model.RoleAdmin}
	require.NoError(t, f.svc.ReplaceWeeklyAvailability(ctx, admin, f.ground.ID, []model.DayWindows{
		{DayOfWeek: 6, Windows: []slots.Window{
			{Start: slots.At(12, 0), End: slots.At(14, 0)},
			{Start: slots.At(6, 0), End: slots.At(12, 0)},
		}},
	}))
	open, err := f.svc.WindowsFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Len(t, open, 8)

	// An empty day returns it to fully open.
	f.setSunday(t)
	open, err = f.svc.WindowsFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Len(t, open, 13)
}

func TestOpenGrounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := &model.Ground{OwnerID: ownerID, Name: "Closed Mornings", Status: model.GroundStatusApproved}
	require.NoError(t, f.db.CreateGround(ctx, closed))
	require.NoError(t, f.svc.ReplaceWeeklyAvailability(ctx, owner, closed.ID, []model.DayWindows{
		{DayOfWeek: 6, Windows: []slots.Window{{Start: slots.At(12, 0), End: slots.At(19, 0)}}},
	}))

	booked := &model.Ground{OwnerID: ownerID, Name: "Booked", Status: model.GroundStatusApproved}
	require.NoError(t, f.db.CreateGround(ctx, booked))
	_, err := f.svc.Reserve(ctx, onlineRequest(booked.ID, 9))
	require.NoError(t, err)

	grounds, err := f.svc.OpenGrounds(ctx, sunday, slots.At(9, 0), slots.At(10, 0))
	require.NoError(t, err)
	require.Len(t, grounds, 1)
	assert.Equal(t, f.ground.ID, grounds[0].ID)

	grounds, err = f.svc.OpenGrounds(ctx, sunday, slots.At(13, 0), slots.At(14, 0))
	require.NoError(t, err)
	assert.Len(t, grounds, 3)

	_, err = f.svc.OpenGrounds(ctx, sunday, slots.At(13, 0), slots.At(15, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestStatusFor_CacheInvalidatedOnWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := zerolog.New(io.Discard)

	f := newFixture(t, withCache(cache.NewStatusCache(rdb, time.Minute, &logger)))
	ctx := context.Background()

	statuses, err := f.svc.StatusFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Equal(t, 13, countAvailable(statuses))

	_, err = f.svc.Reserve(ctx, onlineRequest(f.ground.ID, 9))
	require.NoError(t, err)

	statuses, err = f.svc.StatusFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Equal(t, 12, countAvailable(statuses))

	f.setSunday(t, slots.Window{Start: slots.At(6, 0), End: slots.At(8, 0)})
	statuses, err = f.svc.StatusFor(ctx, f.ground.ID, sunday)
	require.NoError(t, err)
	assert.Equal(t, 2, countAvailable(statuses))
}

func countAvailable(statuses []slots.SlotStatus) int {
	n := 0
	for _, st := range statuses {
		if st.Available {
			n++
		}
	}
	return n
}

func TestGroundReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, onlineRequest(f.ground.ID, 9))
	require.NoError(t, err)

	g, list, err := f.svc.GroundReservations(ctx, owner, f.ground.ID, sunday, sunday.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Equal(t, f.ground.ID, g.ID)
	assert.Len(t, list, 1)

	_, _, err = f.svc.GroundReservations(ctx, model.User{ID: 5, Role: model.RolePlayer}, f.ground.ID, sunday, sunday)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.svc.GroundReservations(ctx, owner, f.ground.ID, sunday, sunday.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, domain.ErrValidation)

	mine, err := f.svc.HolderReservations(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

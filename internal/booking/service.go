package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"groundslot/internal/cache"
	"groundslot/internal/db"
	"groundslot/internal/domain"
	"groundslot/internal/events"
	"groundslot/internal/metrics"
	"groundslot/internal/model"
	"groundslot/internal/slots"

	"github.com/rs/zerolog"
)

// BookingRules limit when online bookings may be made. Zero disables a rule.
type BookingRules struct {
	MinAdvance time.Duration
	MaxAdvance time.Duration
	// Location is the zone slot times are wall-clock times in.
	Location *time.Location
}

// ReserveRequest asks for one catalog slot of a ground on a date.
type ReserveRequest struct {
	GroundID  int64
	Date      time.Time
	Start     slots.TimeOfDay
	End       slots.TimeOfDay
	HolderID  *int64 // nil for offline bookings
	CreatorID int64
	Origin    model.Origin
}

type Service struct {
	db     *db.DB
	bus    *events.EventBus
	cache  *cache.StatusCache
	fsm    *FSM
	logger *zerolog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	rules BookingRules
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(database *db.DB, bus *events.EventBus, statusCache *cache.StatusCache, rules BookingRules, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking").Logger()
	s := &Service{
		db:     database,
		bus:    bus,
		cache:  statusCache,
		fsm:    NewFSM(),
		logger: &l,
		now:    time.Now,
	}
	s.SetRules(rules)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRules swaps the booking rules, e.g. after a config reload.
func (s *Service) SetRules(rules BookingRules) {
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

func (s *Service) Rules() BookingRules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// FSM returns the reservation state machine.
func (s *Service) FSM() *FSM {
	return s.fsm
}

// Ground returns a ground by id.
func (s *Service) Ground(ctx context.Context, groundID int64) (*model.Ground, error) {
	return s.db.GetGround(ctx, groundID)
}

// WindowsFor returns the catalog slots open for booking on date.
func (s *Service) WindowsFor(ctx context.Context, groundID int64, date time.Time) ([]slots.TimeSlot, error) {
	if _, err := s.db.GetGround(ctx, groundID); err != nil {
		return nil, err
	}
	view, err := s.db.DayView(ctx, groundID, model.DateOnly(date))
	if err != nil {
		return nil, err
	}
	catalog := slots.AllSlots()
	return slots.OpenSlots(catalog, slots.ResolveOpen(catalog, view.Rules, view.Blocks)), nil
}

// StatusFor projects every catalog slot of a ground on date.
func (s *Service) StatusFor(ctx context.Context, groundID int64, date time.Time) ([]slots.SlotStatus, error) {
	if _, err := s.db.GetGround(ctx, groundID); err != nil {
		return nil, err
	}
	date = model.DateOnly(date)

	var cached []slots.SlotStatus
	key, hit := s.cache.Lookup(ctx, groundID, date, &cached)
	if s.cache != nil {
		metrics.IncStatusCache(hit)
	}
	if hit {
		return cached, nil
	}

	view, err := s.db.DayView(ctx, groundID, date)
	if err != nil {
		return nil, err
	}
	catalog := slots.AllSlots()
	statuses := slots.Project(catalog, slots.ResolveOpen(catalog, view.Rules, view.Blocks), view.Booked)

	s.cache.Store(ctx, key, statuses)
	return statuses, nil
}

// OpenGrounds lists approved grounds where the slot is available on date.
func (s *Service) OpenGrounds(ctx context.Context, date time.Time, start, end slots.TimeOfDay) ([]model.Ground, error) {
	if !slots.IsValidSlot(start, end) {
		return nil, domain.ErrInvalidSlot
	}
	target := slots.TimeSlot{Start: start, End: end}

	grounds, views, err := s.db.GroundsDayView(ctx, model.DateOnly(date))
	if err != nil {
		return nil, err
	}

	single := []slots.TimeSlot{target}
	var result []model.Ground
	for _, g := range grounds {
		view := views[g.ID]
		if view.Booked[target] {
			continue
		}
		if slots.ResolveOpen(single, view.Rules, view.Blocks)[0] {
			result = append(result, g)
		}
	}
	return result, nil
}

// ReplaceWeeklyAvailability validates every submitted day and then replaces
// those days' rules atomically.
func (s *Service) ReplaceWeeklyAvailability(ctx context.Context, user model.User, groundID int64, days []model.DayWindows) error {
	seen := make(map[int]bool, len(days))
	for i := range days {
		d := days[i].DayOfWeek
		if d < 0 || d > 6 {
			return domain.Invalid("day_of_week", "must be between 0 (Monday) and 6 (Sunday), got %d", d)
		}
		if seen[d] {
			return domain.Invalid("day_of_week", "day %d submitted twice", d)
		}
		seen[d] = true

		windows := append([]slots.Window(nil), days[i].Windows...)
		if err := slots.ValidateWindows(windows); err != nil {
			return domain.Invalid("windows", "day %d: %s", d, err)
		}
		days[i].Windows = windows
	}

	if _, err := s.authorizeOwner(ctx, user, groundID); err != nil {
		return err
	}

	if err := s.db.ReplaceWeeklyAvailability(ctx, groundID, days); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.AvailabilityChanged, GroundID: groundID})
	s.logger.Info().Int64("ground_id", groundID).Int64("user_id", user.ID).Int("days", len(days)).
		Msg("weekly availability replaced")
	return nil
}

// AddBlock closes part of a date on a ground.
func (s *Service) AddBlock(ctx context.Context, user model.User, block *model.AvailabilityBlock) error {
	if block.Date.IsZero() {
		return domain.Invalid("date", "is required")
	}
	if block.StartTime >= block.EndTime {
		return domain.Invalid("end_time", "must be after start_time")
	}
	if _, err := s.authorizeOwner(ctx, user, block.GroundID); err != nil {
		return err
	}

	block.Date = model.DateOnly(block.Date)
	if err := s.db.CreateBlock(ctx, block); err != nil {
		return err
	}
	s.bus.Publish(events.Event{Type: events.BlockChanged, GroundID: block.GroundID, Date: block.Date})
	return nil
}

// RemoveBlock deletes a block of the ground.
func (s *Service) RemoveBlock(ctx context.Context, user model.User, groundID, blockID int64) error {
	if _, err := s.authorizeOwner(ctx, user, groundID); err != nil {
		return err
	}
	block, err := s.db.DeleteBlock(ctx, groundID, blockID)
	if err != nil {
		return err
	}
	s.bus.Publish(events.Event{Type: events.BlockChanged, GroundID: groundID, Date: block.Date})
	return nil
}

// Reserve claims a slot. The uniqueness constraint of the ledger is the only
// arbiter between concurrent callers: exactly one of them wins and the rest
// get domain.ErrSlotAlreadyBooked.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*model.Reservation, error) {
	if !slots.IsValidSlot(req.Start, req.End) {
		return nil, domain.ErrInvalidSlot
	}
	if req.Date.IsZero() {
		return nil, domain.Invalid("date", "is required")
	}
	if req.Origin == "" {
		req.Origin = model.OriginOnline
	}
	date := model.DateOnly(req.Date)

	ground, err := s.db.GetGround(ctx, req.GroundID)
	if err != nil {
		return nil, err
	}
	if !ground.IsBookable() {
		return nil, domain.ErrResourceNotApproved
	}

	switch req.Origin {
	case model.OriginOffline:
		if req.CreatorID != ground.OwnerID {
			return nil, fmt.Errorf("offline bookings are recorded by the ground owner: %w", domain.ErrForbidden)
		}
	case model.OriginOnline:
		if req.HolderID == nil {
			return nil, domain.Invalid("holder", "online bookings need a holder")
		}
		if err := s.checkWindow(date, req.Start); err != nil {
			return nil, err
		}
		if err := s.checkOpen(ctx, req.GroundID, date, slots.TimeSlot{Start: req.Start, End: req.End}); err != nil {
			return nil, err
		}
	default:
		return nil, domain.Invalid("source", "unknown booking source %q", req.Origin)
	}

	r := &model.Reservation{
		GroundID:  req.GroundID,
		Date:      date,
		StartTime: req.Start,
		EndTime:   req.End,
		HolderID:  req.HolderID,
		CreatorID: req.CreatorID,
		Origin:    req.Origin,
		Status:    InitialStatus(req.Origin),
	}
	if err := s.db.InsertReservation(ctx, r); err != nil {
		if errors.Is(err, domain.ErrSlotAlreadyBooked) {
			metrics.IncReservationConflict()
			s.logger.Info().Int64("ground_id", req.GroundID).Str("date", r.DateString()).
				Str("slot", r.Slot().String()).Msg("slot already booked")
		}
		return nil, err
	}

	metrics.IncReservationCreated(string(r.Origin), string(r.Status))
	s.bus.Publish(events.Event{
		Type:          events.ReservationCreated,
		GroundID:      r.GroundID,
		Date:          r.Date,
		ReservationID: r.ID,
	})
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("ground_id", r.GroundID).
		Str("date", r.DateString()).
		Str("slot", r.Slot().String()).
		Str("origin", string(r.Origin)).
		Str("status", string(r.Status)).
		Msg("reservation created")
	return r, nil
}

// HolderReservations lists the reservations held by a user.
func (s *Service) HolderReservations(ctx context.Context, holderID int64) ([]model.Reservation, error) {
	return s.db.ListHolderReservations(ctx, holderID)
}

// GroundReservations lists a ground's reservations between two dates for
// its owner.
func (s *Service) GroundReservations(ctx context.Context, user model.User, groundID int64, from, to time.Time) (*model.Ground, []model.Reservation, error) {
	if to.Before(from) {
		return nil, nil, domain.Invalid("to", "must not be before from")
	}
	ground, err := s.authorizeOwner(ctx, user, groundID)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.db.ListReservations(ctx, groundID, model.DateOnly(from), model.DateOnly(to))
	if err != nil {
		return nil, nil, err
	}
	return ground, list, nil
}

func (s *Service) authorizeOwner(ctx context.Context, user model.User, groundID int64) (*model.Ground, error) {
	ground, err := s.db.GetGround(ctx, groundID)
	if err != nil {
		return nil, err
	}
	if user.Role == model.RoleAdmin || ground.OwnerID == user.ID {
		return ground, nil
	}
	return nil, fmt.Errorf("ground %d belongs to another owner: %w", groundID, domain.ErrForbidden)
}

func (s *Service) checkWindow(date time.Time, start slots.TimeOfDay) error {
	rules := s.Rules()
	now := s.now().In(rules.Location)
	startsAt := start.On(time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, rules.Location))

	if startsAt.Before(now) {
		return domain.Invalid("start_time", "slot has already started")
	}
	if rules.MinAdvance > 0 && startsAt.Before(now.Add(rules.MinAdvance)) {
		return domain.Invalid("start_time", "must be booked at least %d minutes in advance", int(rules.MinAdvance.Minutes()))
	}
	if rules.MaxAdvance > 0 && startsAt.After(now.Add(rules.MaxAdvance)) {
		return domain.Invalid("date", "cannot be booked more than %d days in advance", int(rules.MaxAdvance.Hours()/24))
	}
	return nil
}

func (s *Service) checkOpen(ctx context.Context, groundID int64, date time.Time, slot slots.TimeSlot) error {
	view, err := s.db.DayView(ctx, groundID, date)
	if err != nil {
		return err
	}
	if !slots.ResolveOpen([]slots.TimeSlot{slot}, view.Rules, view.Blocks)[0] {
		return domain.ErrSlotClosed
	}
	return nil
}

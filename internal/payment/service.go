// Package payment reconciles provisional reservations with eSewa payment
// outcomes.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"groundslot/internal/booking"
	"groundslot/internal/db"
	"groundslot/internal/domain"
	"groundslot/internal/events"
	"groundslot/internal/metrics"
	"groundslot/internal/model"
	"groundslot/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// callbackSignedFields must all be covered by the provider signature before a
// callback is acted on.
var callbackSignedFields = []string{"transaction_uuid", "status", "total_amount"}

type Config struct {
	SecretKey   string
	ProductCode string
	FormURL     string
	SuccessURL  string
	FailureURL  string
}

// PaymentRequest is what the browser posts to the provider form.
type PaymentRequest struct {
	ActionURL     string            `json:"action_url"`
	Fields        map[string]string `json:"fields"`
	ReservationID int64             `json:"booking_id"`
}

// CheckoutRequest reserves a slot online and starts paying for it.
type CheckoutRequest struct {
	GroundID    int64
	Date        time.Time
	Start       slots.TimeOfDay
	End         slots.TimeOfDay
	TotalAmount string
	User        model.User
}

// Result describes what a callback did.
type Result struct {
	ReservationID   int64                   `json:"booking_id"`
	TransactionUUID string                  `json:"transaction_uuid"`
	Status          model.ReservationStatus `json:"status"`
	Changed         bool                    `json:"changed"`
}

type Service struct {
	db      *db.DB
	booking *booking.Service
	bus     *events.EventBus
	cfg     Config
	logger  *zerolog.Logger
	now     func() time.Time
	newUUID func() string
}

func NewService(database *db.DB, bookingService *booking.Service, bus *events.EventBus, cfg Config, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "payment").Logger()
	return &Service{
		db:      database,
		booking: bookingService,
		bus:     bus,
		cfg:     cfg,
		logger:  &l,
		now:     time.Now,
		newUUID: uuid.NewString,
	}
}

// Checkout reserves the slot for the user and returns the signed provider
// form. When the ground has a price, the amount must match it.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*PaymentRequest, error) {
	amount, ok := new(big.Rat).SetString(req.TotalAmount)
	if !ok || amount.Sign() <= 0 {
		return nil, domain.Invalid("total_amount", "must be a positive amount")
	}
	if !slots.IsValidSlot(req.Start, req.End) {
		return nil, domain.ErrInvalidSlot
	}

	ground, err := s.booking.Ground(ctx, req.GroundID)
	if err != nil {
		return nil, err
	}
	if ground.PricePerHour > 0 {
		slot := slots.TimeSlot{Start: req.Start, End: req.End}
		minutes := int64(slot.Duration() / time.Minute)
		price := new(big.Rat).SetFrac64(ground.PricePerHour*minutes, 60)
		if amount.Cmp(price) != 0 {
			return nil, domain.Invalid("total_amount", "must be %s for this slot", price.FloatString(0))
		}
	}

	holder := req.User.ID
	r, err := s.booking.Reserve(ctx, booking.ReserveRequest{
		GroundID:  req.GroundID,
		Date:      req.Date,
		Start:     req.Start,
		End:       req.End,
		HolderID:  &holder,
		CreatorID: req.User.ID,
		Origin:    model.OriginOnline,
	})
	if err != nil {
		return nil, err
	}

	pr, err := s.Initiate(ctx, r.ID, req.TotalAmount)
	if err != nil {
		if _, cerr := s.db.CancelProvisional(ctx, r.ID); cerr != nil {
			s.logger.Error().Err(cerr).Int64("reservation_id", r.ID).Msg("failed to release reservation after initiate error")
		} else {
			s.publish(events.ReservationCancelled, r)
		}
		return nil, err
	}
	return pr, nil
}

// Initiate binds a transaction to a provisional reservation and signs the
// provider form. Calling it again reuses the bound transaction uuid.
func (s *Service) Initiate(ctx context.Context, reservationID int64, amount string) (*PaymentRequest, error) {
	r, err := s.db.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.booking.FSM().Check(r.Status, model.StatusProvisional); err != nil {
		return nil, err
	}

	txUUID := r.TransactionUUID
	if txUUID == "" {
		txUUID = s.newUUID()
	}
	ok, err := s.db.BindTransaction(ctx, r.ID, txUUID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reservation %d is no longer provisional: %w", r.ID, domain.ErrInvalidTransition)
	}

	fields := map[string]string{
		"amount":                  amount,
		"tax_amount":              "0",
		"total_amount":            amount,
		"transaction_uuid":        txUUID,
		"product_code":            s.cfg.ProductCode,
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"success_url":             s.cfg.SuccessURL,
		"failure_url":             s.cfg.FailureURL,
		"signed_field_names":      RequestSignedFields,
	}
	signature, err := SignFields(s.cfg.SecretKey, fields, RequestSignedFields)
	if err != nil {
		return nil, err
	}
	fields["signature"] = signature

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("transaction_uuid", txUUID).
		Str("amount", amount).
		Msg("payment initiated")

	return &PaymentRequest{ActionURL: s.cfg.FormURL, Fields: fields, ReservationID: r.ID}, nil
}

// CompleteCallback handles the provider's success redirect. Only an
// authentic payload changes state, and only a PROVISIONAL reservation can
// change; repeated or late callbacks return Changed=false.
func (s *Service) CompleteCallback(ctx context.Context, encoded string) (*Result, error) {
	p, err := DecodePayload(encoded)
	if err != nil {
		metrics.IncPaymentCallback("success", "malformed")
		return nil, domain.Invalid("data", "%s", err)
	}

	if !Verify(s.cfg.SecretKey, p) || !coversFields(p, callbackSignedFields) {
		metrics.IncPaymentCallback("success", "invalid_signature")
		s.logger.Warn().
			Str("transaction_uuid", p.TransactionUUID()).
			Str("status", p.Status()).
			Msg("payment callback rejected: invalid signature")
		return nil, domain.ErrInvalidSignature
	}

	if p.ProductCode() != s.cfg.ProductCode {
		metrics.IncPaymentCallback("success", "wrong_product")
		return nil, domain.Invalid("product_code", "unexpected product code %q", p.ProductCode())
	}

	r, err := s.db.GetReservationByTransaction(ctx, p.TransactionUUID())
	if err != nil {
		metrics.IncPaymentCallback("success", "unknown_transaction")
		return nil, err
	}

	switch {
	case IsFailedStatus(p.Status()):
		return s.cancel(ctx, "success", r, p.TransactionCode())
	case p.Status() != StatusComplete:
		// Still settling at the provider; the sweeper releases it if it never completes.
		metrics.IncPaymentCallback("success", "pending")
		s.logger.Info().
			Int64("reservation_id", r.ID).
			Str("transaction_uuid", r.TransactionUUID).
			Str("status", p.Status()).
			Msg("payment not final yet")
		return resultFor(r, false), nil
	}

	if s.booking.FSM().IsTerminal(r.Status) {
		metrics.IncPaymentCallback("success", "noop")
		if r.Status == model.StatusCancelled {
			s.paidAfterCancel(r, p)
		}
		return resultFor(r, false), nil
	}

	if r.ExpectedAmount != "" && !SameAmount(r.ExpectedAmount, p.TotalAmount()) {
		metrics.IncPaymentCallback("success", "amount_mismatch")
		s.logger.Warn().
			Int64("reservation_id", r.ID).
			Str("expected", r.ExpectedAmount).
			Str("paid", p.TotalAmount()).
			Msg("payment amount mismatch")
		return nil, domain.ErrAmountMismatch
	}

	ok, err := s.db.ConfirmPayment(ctx, r.TransactionUUID, p.TransactionCode(), p.TotalAmount())
	if err != nil {
		return nil, err
	}
	res, err := s.settle(ctx, "success", r, ok, model.StatusConfirmed, events.ReservationConfirmed)
	if err == nil && !ok && res.Status == model.StatusCancelled {
		s.paidAfterCancel(r, p)
	}
	return res, err
}

// paidAfterCancel records a completed payment whose reservation was already
// released, so it can be refunded or rebooked by hand.
func (s *Service) paidAfterCancel(r *model.Reservation, p Payload) {
	metrics.IncPaymentCallback("success", "paid_after_cancel")
	s.logger.Warn().
		Int64("reservation_id", r.ID).
		Int64("ground_id", r.GroundID).
		Str("date", r.DateString()).
		Str("slot", r.Slot().String()).
		Str("transaction_uuid", r.TransactionUUID).
		Str("transaction_code", p.TransactionCode()).
		Str("paid_amount", p.TotalAmount()).
		Msg("payment completed for a cancelled reservation")
}

// FailureCallback handles the provider's failure redirect. The payload is
// optional; when it names a transaction, that reservation is released.
// It never fails, since the caller always redirects the browser.
func (s *Service) FailureCallback(ctx context.Context, encoded string) *Result {
	if encoded == "" {
		metrics.IncPaymentCallback("failure", "no_payload")
		return nil
	}
	p, err := DecodePayload(encoded)
	if err != nil || p.TransactionUUID() == "" {
		metrics.IncPaymentCallback("failure", "malformed")
		return nil
	}
	if _, signed := p.Fields["signature"]; signed && !Verify(s.cfg.SecretKey, p) {
		metrics.IncPaymentCallback("failure", "invalid_signature")
		s.logger.Warn().Str("transaction_uuid", p.TransactionUUID()).Msg("failure callback with bad signature ignored")
		return nil
	}

	r, err := s.db.GetReservationByTransaction(ctx, p.TransactionUUID())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().Err(err).Msg("failure callback lookup failed")
		}
		metrics.IncPaymentCallback("failure", "unknown_transaction")
		return nil
	}

	res, err := s.cancel(ctx, "failure", r, p.TransactionCode())
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("failure callback cancel failed")
		return nil
	}
	return res
}

// ExpireStale cancels provisional reservations older than olderThan and
// returns how many it released.
func (s *Service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	expired, err := s.db.ExpireProvisional(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	for i := range expired {
		s.publish(events.ReservationCancelled, &expired[i])
		s.logger.Info().
			Int64("reservation_id", expired[i].ID).
			Int64("ground_id", expired[i].GroundID).
			Str("date", expired[i].DateString()).
			Str("slot", expired[i].Slot().String()).
			Msg("provisional reservation expired")
	}
	metrics.AddReservationsExpired(len(expired))
	return len(expired), nil
}

func (s *Service) cancel(ctx context.Context, kind string, r *model.Reservation, txCode string) (*Result, error) {
	if s.booking.FSM().IsTerminal(r.Status) {
		metrics.IncPaymentCallback(kind, "noop")
		return resultFor(r, false), nil
	}
	ok, err := s.db.CancelByTransaction(ctx, r.TransactionUUID, txCode)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, kind, r, ok, model.StatusCancelled, events.ReservationCancelled)
}

// settle reports the outcome of a conditional update. When the update lost a
// race, the reservation is re-read and returned unchanged.
func (s *Service) settle(ctx context.Context, kind string, r *model.Reservation, ok bool, to model.ReservationStatus, event string) (*Result, error) {
	if !ok {
		metrics.IncPaymentCallback(kind, "noop")
		current, err := s.db.GetReservation(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		return resultFor(current, false), nil
	}

	r.Status = to
	metrics.IncPaymentCallback(kind, string(to))
	s.publish(event, r)
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("transaction_uuid", r.TransactionUUID).
		Str("status", string(to)).
		Msg("payment reconciled")
	return resultFor(r, true), nil
}

func (s *Service) publish(eventType string, r *model.Reservation) {
	s.bus.Publish(events.Event{Type: eventType, GroundID: r.GroundID, Date: r.Date, ReservationID: r.ID})
}

func resultFor(r *model.Reservation, changed bool) *Result {
	return &Result{
		ReservationID:   r.ID,
		TransactionUUID: r.TransactionUUID,
		Status:          r.Status,
		Changed:         changed,
	}
}

func coversFields(p Payload, required []string) bool {
	signed := make(map[string]bool)
	for _, name := range SignedFieldNames(p.Fields["signed_field_names"]) {
		signed[name] = true
	}
	for _, name := range required {
		if !signed[name] {
			return false
		}
	}
	return true
}


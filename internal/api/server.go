// Package api exposes the booking core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"groundslot/internal/booking"
	"groundslot/internal/config"
	"groundslot/internal/domain"
	"groundslot/internal/model"
	"groundslot/internal/payment"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	headerAPIKey   = "X-Api-Key"
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// Frontend holds the pages the browser is sent to after a payment.
type Frontend struct {
	SuccessURL string
	FailureURL string
}

type HTTPServer struct {
	booking  *booking.Service
	payment  *payment.Service
	cfg      config.HTTPConfig
	frontend Frontend
	logger   *zerolog.Logger
	server   *http.Server

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func NewHTTPServer(cfg config.HTTPConfig, frontend Frontend, bookingService *booking.Service, paymentService *payment.Service, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()
	s := &HTTPServer{
		booking:  bookingService,
		payment:  paymentService,
		cfg:      cfg,
		frontend: frontend,
		logger:   &l,
		limiters: make(map[int64]*rate.Limiter),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/grounds/{id}/slots", s.handleSlotStatus)
	mux.HandleFunc("GET /api/slots/open", s.handleOpenGrounds)
	mux.Handle("POST /api/bookings", s.authenticated(s.limited(s.handleCreateBooking)))
	mux.Handle("GET /api/bookings/my", s.authenticated(s.handleMyBookings))
	mux.Handle("PUT /api/grounds/{id}/availability", s.authenticated(s.limited(s.handleReplaceAvailability)))
	mux.Handle("POST /api/grounds/{id}/blocks", s.authenticated(s.limited(s.handleCreateBlock)))
	mux.Handle("DELETE /api/grounds/{id}/blocks/{blockID}", s.authenticated(s.limited(s.handleDeleteBlock)))
	mux.Handle("GET /api/grounds/{id}/reservations.xlsx", s.authenticated(s.handleExport))
	mux.Handle("POST /api/payments/esewa/initiate", s.authenticated(s.limited(s.handleEsewaInitiate)))
	mux.HandleFunc("GET /api/payments/esewa/success", s.handleEsewaSuccess)
	mux.HandleFunc("GET /api/payments/esewa/failure", s.handleEsewaFailure)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.requireAPIKey(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API started")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// callbackPaths are reached by browser redirects from the payment provider.
var callbackPaths = map[string]bool{
	"/api/payments/esewa/success": true,
	"/api/payments/esewa/failure": true,
}

type userKey struct{}

func userFrom(ctx context.Context) model.User {
	u, _ := ctx.Value(userKey{}).(model.User)
	return u
}

func (s *HTTPServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && !callbackPaths[r.URL.Path] && r.Header.Get(headerAPIKey) != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticated reads the identity set by the gateway.
func (s *HTTPServer) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+headerUserID)
			return
		}
		role := model.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserRole))))
		switch role {
		case "":
			role = model.RolePlayer
		case model.RolePlayer, model.RoleOwner, model.RoleAdmin:
		default:
			writeError(w, http.StatusUnauthorized, "unknown role")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, model.User{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limited applies the per-user write rate limit.
func (s *HTTPServer) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit > 0 && !s.limiterFor(userFrom(r.Context()).ID).Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) limiterFor(userID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[userID]
	if !ok {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)
		s.limiters[userID] = l
	}
	return l
}

// writeFailure maps a core error to its HTTP status.
func (s *HTTPServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrResourceNotApproved),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrAmountMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSlotAlreadyBooked), errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.Invalid(field, "is required")
	}
	d, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.Invalid(field, "expected YYYY-MM-DD")
	}
	return d, nil
}

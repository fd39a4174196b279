package api

import (
	"net/http"

	"groundslot/internal/booking"
	"groundslot/internal/domain"
	"groundslot/internal/metrics"
	"groundslot/internal/model"
)

// CreateBookingRequest is the request body for POST /api/bookings.
type CreateBookingRequest struct {
	GroundID  int64  `json:"ground"`
	Date      string `json:"date"`       // Format: YYYY-MM-DD
	StartTime string `json:"start_time"` // Format: HH:MM
	EndTime   string `json:"end_time"`   // Format: HH:MM
	Source    string `json:"source,omitempty"`
}

// handleCreateBooking reserves a slot. Online bookings are held by the
// caller; offline ones are recorded by the ground owner.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GroundID <= 0 {
		s.writeFailure(w, r, domain.Invalid("ground", "is required"))
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	start, end, err := parseSlot(req.StartTime, req.EndTime)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	origin, ok := model.ParseOrigin(req.Source)
	if !ok {
		s.writeFailure(w, r, domain.Invalid("source", "must be ONLINE or OFFLINE"))
		return
	}

	user := userFrom(r.Context())
	var holder *int64
	if origin == model.OriginOnline {
		holder = &user.ID
	}

	reservation, err := s.booking.Reserve(r.Context(), booking.ReserveRequest{
		GroundID:  req.GroundID,
		Date:      date,
		Start:     start,
		End:       end,
		HolderID:  holder,
		CreatorID: user.ID,
		Origin:    origin,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reservation)
}

// handleMyBookings lists the caller's reservations.
// GET /api/bookings/my
func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("my_bookings")

	list, err := s.booking.HolderReservations(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

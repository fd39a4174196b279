package api

import (
	"net/http"

	"groundslot/internal/domain"
	"groundslot/internal/metrics"
	"groundslot/internal/model"
	"groundslot/internal/slots"
)

// WindowRequest is one open window, "HH:MM" to "HH:MM".
type WindowRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type DayRequest struct {
	DayOfWeek *int            `json:"day_of_week"` // 0 (Monday) to 6 (Sunday)
	Windows   []WindowRequest `json:"windows"`
}

// ReplaceAvailabilityRequest is the request body for
// PUT /api/grounds/{id}/availability. Days not listed keep their rules; a
// listed day with no windows goes back to open all day.
type ReplaceAvailabilityRequest struct {
	Days []DayRequest `json:"days"`
}

// CreateBlockRequest is the request body for POST /api/grounds/{id}/blocks.
type CreateBlockRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

// handleReplaceAvailability replaces the weekly windows of the listed days.
// PUT /api/grounds/{id}/availability
func (s *HTTPServer) handleReplaceAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("replace_availability")

	groundID, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var req ReplaceAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Days) == 0 {
		s.writeFailure(w, r, domain.Invalid("days", "at least one day is required"))
		return
	}

	days := make([]model.DayWindows, 0, len(req.Days))
	for _, d := range req.Days {
		if d.DayOfWeek == nil {
			s.writeFailure(w, r, domain.Invalid("day_of_week", "is required"))
			return
		}
		day := model.DayWindows{DayOfWeek: *d.DayOfWeek}
		for _, win := range d.Windows {
			start, end, err := parseSlot(win.StartTime, win.EndTime)
			if err != nil {
				s.writeFailure(w, r, err)
				return
			}
			day.Windows = append(day.Windows, slots.Window{Start: start, End: end})
		}
		days = append(days, day)
	}

	if err := s.booking.ReplaceWeeklyAvailability(r.Context(), userFrom(r.Context()), groundID, days); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateBlock closes part of a date.
// POST /api/grounds/{id}/blocks
func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_block")

	groundID, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var req CreateBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
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

	block := &model.AvailabilityBlock{
		GroundID:  groundID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Reason:    req.Reason,
	}
	if err := s.booking.AddBlock(r.Context(), userFrom(r.Context()), block); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

// handleDeleteBlock removes a block.
// DELETE /api/grounds/{id}/blocks/{blockID}
func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_block")

	groundID, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	blockID, err := pathID(r, "blockID")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if err := s.booking.RemoveBlock(r.Context(), userFrom(r.Context()), groundID, blockID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

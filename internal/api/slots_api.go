package api

import (
	"net/http"

	"groundslot/internal/domain"
	"groundslot/internal/metrics"
	"groundslot/internal/model"
	"groundslot/internal/slots"
)

// SlotStatusResponse is the response for GET /api/grounds/{id}/slots.
type SlotStatusResponse struct {
	GroundID int64            `json:"ground_id"`
	Date     string           `json:"date"`
	Slots    []slots.SlotInfo `json:"slots"`
}

// OpenGroundsResponse is the response for GET /api/slots/open.
type OpenGroundsResponse struct {
	Date    string         `json:"date"`
	Start   string         `json:"start_time"`
	End     string         `json:"end_time"`
	Grounds []model.Ground `json:"grounds"`
}

// handleSlotStatus returns every catalog slot of a ground with its status.
// GET /api/grounds/{id}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlotStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slot_status")

	groundID, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	date, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	statuses, err := s.booking.StatusFor(r.Context(), groundID, date)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SlotStatusResponse{
		GroundID: groundID,
		Date:     date.Format(model.DateLayout),
		Slots:    slots.ToSlotInfo(statuses),
	})
}

// handleOpenGrounds lists approved grounds where a slot can be booked.
// GET /api/slots/open?date=YYYY-MM-DD&start=HH:MM&end=HH:MM
func (s *HTTPServer) handleOpenGrounds(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("open_grounds")

	q := r.URL.Query()
	date, err := parseDate("date", q.Get("date"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	start, end, err := parseSlot(q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	grounds, err := s.booking.OpenGrounds(r.Context(), date, start, end)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if grounds == nil {
		grounds = []model.Ground{}
	}

	writeJSON(w, http.StatusOK, OpenGroundsResponse{
		Date:    date.Format(model.DateLayout),
		Start:   start.String(),
		End:     end.String(),
		Grounds: grounds,
	})
}

func parseSlot(start, end string) (slots.TimeOfDay, slots.TimeOfDay, error) {
	if start == "" || end == "" {
		return 0, 0, domain.Invalid("start_time", "start and end times are required")
	}
	st, err := slots.ParseTimeOfDay(start)
	if err != nil {
		return 0, 0, domain.Invalid("start_time", "expected HH:MM")
	}
	et, err := slots.ParseTimeOfDay(end)
	if err != nil {
		return 0, 0, domain.Invalid("end_time", "expected HH:MM")
	}
	return st, et, nil
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"groundslot/internal/domain"
	"groundslot/internal/metrics"
	"groundslot/internal/report"
)

// MaxExportDaysRange is the widest period one export may cover.
const MaxExportDaysRange = 366

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExport sends the owner a workbook of the ground's reservations.
// GET /api/grounds/{id}/reservations.xlsx?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	groundID, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if int(to.Sub(from).Hours()/24) > MaxExportDaysRange {
		s.writeFailure(w, r, domain.Invalid("to", "period exceeds %d days", MaxExportDaysRange))
		return
	}

	ground, list, err := s.booking.GroundReservations(r.Context(), userFrom(r.Context()), groundID, from, to)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteReservations(&buf, ground, from, to, list); err != nil {
		s.writeFailure(w, r, fmt.Errorf("render export: %w", err))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(ground, from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

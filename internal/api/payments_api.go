package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"groundslot/internal/domain"
	"groundslot/internal/metrics"
	"groundslot/internal/payment"
)

// InitiatePaymentRequest is the request body for
// POST /api/payments/esewa/initiate.
type InitiatePaymentRequest struct {
	GroundID    int64       `json:"ground"`
	Date        string      `json:"date"`
	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time"`
	TotalAmount json.Number `json:"total_amount"`
}

// handleEsewaInitiate reserves the slot for the caller and returns the
// signed form the browser posts to eSewa.
// POST /api/payments/esewa/initiate
func (s *HTTPServer) handleEsewaInitiate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("esewa_initiate")

	var req InitiatePaymentRequest
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

	form, err := s.payment.Checkout(r.Context(), payment.CheckoutRequest{
		GroundID:    req.GroundID,
		Date:        date,
		Start:       start,
		End:         end,
		TotalAmount: req.TotalAmount.String(),
		User:        userFrom(r.Context()),
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// handleEsewaSuccess verifies the provider payload and confirms the booking.
// GET /api/payments/esewa/success?data=<base64>
func (s *HTTPServer) handleEsewaSuccess(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("esewa_success")

	data := r.URL.Query().Get("data")
	if data == "" {
		s.writeFailure(w, r, domain.Invalid("data", "is required"))
		return
	}

	res, err := s.payment.CompleteCallback(r.Context(), data)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if s.frontend.SuccessURL != "" {
		http.Redirect(w, r, withResult(s.frontend.SuccessURL, res), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleEsewaFailure releases the reservation named by the payload, if any,
// and always sends the browser to the failure page.
// GET /api/payments/esewa/failure[?data=<base64>]
func (s *HTTPServer) handleEsewaFailure(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("esewa_failure")

	res := s.payment.FailureCallback(r.Context(), r.URL.Query().Get("data"))

	target := s.frontend.FailureURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, withResult(target, res), http.StatusFound)
}

func withResult(target string, res *payment.Result) string {
	if res == nil {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("booking_id", strconv.FormatInt(res.ReservationID, 10))
	q.Set("status", string(res.Status))
	u.RawQuery = q.Encode()
	return u.String()
}

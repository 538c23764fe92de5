package http

import (
	"errors"
	"fmt"
	"net/http"

	"billminder/internal/log"
	"billminder/internal/notify"
	"billminder/internal/notify/local"
)

type notificationResponseRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleGetNotificationBill(w http.ResponseWriter, r *http.Request) {
	nid := sanitizeInput(r.PathValue("nid"))
	bill, err := s.bills.GetBillByNotificationID(r.Context(), nid)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newBillView(bill))
}

// handleNotificationResponse routes a user action and returns once it has
// been fully handled. Unknown actions and notifications are accepted and
// ignored.
func (s *Server) handleNotificationResponse(w http.ResponseWriter, r *http.Request) {
	var req notificationResponseRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, log.OpRespond, err)
		return
	}
	resp := notify.Response{
		NotificationID: sanitizeInput(r.PathValue("nid")),
		Action:         sanitizeInput(req.Action),
	}
	if resp.Action == "" {
		s.fail(w, r, log.OpRespond, fmt.Errorf("%w: action is required", errBadRequest))
		return
	}

	if err := s.responder.Respond(r.Context(), resp); err != nil {
		if errors.Is(err, local.ErrNoResponseHandler) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "notification responses are not being handled"})
			return
		}
		s.fail(w, r, log.OpRespond, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"billminder/internal/core"
	"billminder/internal/log"
	"billminder/internal/reminder"
	"billminder/internal/services"
)

// billRequest is the body of create and update. Omitted fields are stored
// as absent.
type billRequest struct {
	Payee   *string      `json:"payee"`
	Amount  *json.Number `json:"amount"`
	DueDate *string      `json:"dueDate"`
}

func (req billRequest) input() (services.BillInput, error) {
	var in services.BillInput
	if req.Payee != nil {
		payee := sanitizeInput(*req.Payee)
		in.Payee = &payee
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			return in, fmt.Errorf("%w: amount %q must be a non-negative decimal", services.ErrInvalidBill, req.Amount.String())
		}
		in.Amount = &amount
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return in, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		in.DueDate = &due
	}
	return in, nil
}

type paidRequest struct {
	PaidAt *string `json:"paidAt"`
}

type reminderRequest struct {
	RemindAt string `json:"remindAt"`
}

// billDisplay holds the formatted strings shown for a bill.
type billDisplay struct {
	Payee       string `json:"payee"`
	Amount      string `json:"amount"`
	DueDate     string `json:"dueDate"`
	Paid        bool   `json:"paid"`
	HasReminder bool   `json:"hasReminder"`
}

type billView struct {
	Bill    core.Bill   `json:"bill"`
	Display billDisplay `json:"display"`
}

func newBillView(b core.Bill) billView {
	return billView{
		Bill: b,
		Display: billDisplay{
			Payee:       b.PayeeName(),
			Amount:      b.FormattedAmount(),
			DueDate:     b.FormattedDueDate(),
			Paid:        b.IsPaid(),
			HasReminder: b.HasReminder(),
		},
	}
}

type billListResponse struct {
	Bills []billView `json:"bills"`
	Count int        `json:"count"`
}

type reminderResponse struct {
	State               reminder.State `json:"state"`
	AuthorizationNeeded bool           `json:"authorizationNeeded"`
	Error               string         `json:"error,omitempty"`
	Bill                *billView      `json:"bill,omitempty"`
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	list := s.bills.ListBills(r.Context())
	resp := billListResponse{Bills: make([]billView, 0, len(list)), Count: len(list)}
	for _, b := range list {
		resp.Bills = append(resp.Bills, newBillView(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	bill, err := s.bills.CreateBill(r.Context(), in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	s.logger.LogBillChange(r.Context(), log.OpCreate, bill)
	w.Header().Set("Location", "/bills/"+bill.ID.String())
	writeJSON(w, http.StatusCreated, newBillView(bill))
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	bill, err := s.bills.GetBill(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newBillView(bill))
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	var req billRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}

	bill, err := s.bills.UpdateBill(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}

	s.logger.LogBillChange(r.Context(), log.OpUpdate, bill)
	writeJSON(w, http.StatusOK, newBillView(bill))
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	if err := s.bills.DeleteBill(r.Context(), id); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	var req paidRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}

	at := s.now()
	if req.PaidAt != nil {
		if at, err = parseDate(*req.PaidAt); err != nil {
			s.fail(w, r, log.OpUpdate, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	bill, err := s.bills.MarkPaid(r.Context(), id, at)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.logger.LogBillChange(r.Context(), log.OpUpdate, bill)
	writeJSON(w, http.StatusOK, newBillView(bill))
}

func (s *Server) handleMarkUnpaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	bill, err := s.bills.MarkUnpaid(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.logger.LogBillChange(r.Context(), log.OpUpdate, bill)
	writeJSON(w, http.StatusOK, newBillView(bill))
}

// handleScheduleReminder reports denial as a normal outcome so the client can
// ask the user for permission. A failed submit is 502, a superseded one 409.
func (s *Server) handleScheduleReminder(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpSchedule, err)
		return
	}
	var req reminderRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, log.OpSchedule, err)
		return
	}
	at, err := parseDate(req.RemindAt)
	if err != nil {
		s.fail(w, r, log.OpSchedule, fmt.Errorf("%w: remindAt: %v", errBadRequest, err))
		return
	}

	out, err := s.bills.ScheduleReminder(r.Context(), id, at)
	if err != nil {
		s.fail(w, r, log.OpSchedule, err)
		return
	}

	resp := reminderResponse{
		State:               out.State,
		AuthorizationNeeded: out.AuthorizationNeeded(),
	}
	status := http.StatusOK
	switch out.State {
	case reminder.StateStale:
		status = http.StatusConflict
		resp.Error = "superseded by a newer reminder request"
	case reminder.StateFailed:
		status = http.StatusBadGateway
		resp.Error = "notification service rejected the reminder"
		fallthrough
	default:
		view := newBillView(out.Bill)
		resp.Bill = &view
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRemoveReminder(w http.ResponseWriter, r *http.Request) {
	id, err := pathBillID(r)
	if err != nil {
		s.fail(w, r, log.OpSchedule, err)
		return
	}
	bill, err := s.bills.RemoveReminder(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpSchedule, err)
		return
	}
	writeJSON(w, http.StatusOK, newBillView(bill))
}

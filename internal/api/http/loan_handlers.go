package httpapi

import (
	"net/http"
	"strings"
	"time"

	appLending "github.com/openshelf/lending-hub/internal/application/lending"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

type loanCreateRequest struct {
	BookID string  `json:"bookId"`
	Notes  *string `json:"notes,omitempty"`
}

type loanStatusRequest struct {
	Status  string     `json:"status"`
	DueDate *time.Time `json:"dueDate,omitempty"`
	Notes   *string    `json:"notes,omitempty"`
}

func (s *Server) createLoan(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	var req loanCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.BookID) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "bookId is required")
		return
	}
	l, err := s.lendingSvc.RequestLoan(r.Context(), req.BookID, auth.UserID, req.Notes)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	role := loan.Role(strings.ToLower(r.URL.Query().Get("role")))
	var status *loan.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := loan.ParseStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
		status = &st
	}
	items, err := s.lendingSvc.ListLoans(r.Context(), auth.UserID, role, status)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"loans": items})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "loanId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid loanId")
		return
	}
	l, err := s.lendingSvc.GetLoan(r.Context(), id, auth.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) setLoanStatus(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "loanId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid loanId")
		return
	}
	var req loanStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	target, err := loan.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	l, err := s.lendingSvc.ApplyTransition(r.Context(), id, target, auth.UserID, appLending.TransitionPayload{
		DueDate: req.DueDate,
		Notes:   req.Notes,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) cancelLoan(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "loanId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid loanId")
		return
	}
	if err := s.lendingSvc.CancelRequest(r.Context(), id, auth.UserID); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"loanId": id, "cancelled": true})
}

// Ledger handlers
func (s *Server) registerBook(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	entry, err := s.lendingSvc.RegisterBook(r.Context(), chiParam(r, "bookId"), auth.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	entry, err := s.lendingSvc.GetBook(r.Context(), chiParam(r, "bookId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	appMessaging "github.com/openshelf/lending-hub/internal/application/messaging"
)

type messageSendRequest struct {
	RecipientID   string     `json:"recipientId"`
	Content       string     `json:"content"`
	RelatedBookID *string    `json:"relatedBookId,omitempty"`
	RelatedLoanID *uuid.UUID `json:"relatedLoanId,omitempty"`
}

type markReadRequest struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
}

func (r messageSendRequest) input() appMessaging.SendInput {
	return appMessaging.SendInput{
		RecipientID:   r.RecipientID,
		Content:       r.Content,
		RelatedBookID: r.RelatedBookID,
		RelatedLoanID: r.RelatedLoanID,
	}
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	var req messageSendRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	msg, err := s.messagingSvc.Send(r.Context(), auth.UserID, req.input())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	items, err := s.messagingSvc.List(r.Context(), auth.UserID, limit, offset)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": items})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	items, err := s.messagingSvc.Conversation(r.Context(), auth.UserID, chiParam(r, "userId"), limit, offset)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": items})
}

func (s *Server) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	var req markReadRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	n, err := s.messagingSvc.MarkRead(r.Context(), auth.UserID, req.MessageIDs)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"updated": n})
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	n, err := s.messagingSvc.UnreadCount(r.Context(), auth.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"unread": n})
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	appAuth "github.com/openshelf/lending-hub/internal/application/auth"
	appLending "github.com/openshelf/lending-hub/internal/application/lending"
	appMessaging "github.com/openshelf/lending-hub/internal/application/messaging"
	"github.com/openshelf/lending-hub/internal/infrastructure/realtime"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	lendingSvc   *appLending.Service
	messagingSvc *appMessaging.Service
	authSvc      *appAuth.Service
	hub          *realtime.Hub
	upgrader     websocket.Upgrader
	logger       zerolog.Logger
}

func NewServer(
	lendingSvc *appLending.Service,
	messagingSvc *appMessaging.Service,
	authSvc *appAuth.Service,
	hub *realtime.Hub,
	logger zerolog.Logger,
) *Server {
	return &Server{
		lendingSvc:   lendingSvc,
		messagingSvc: messagingSvc,
		authSvc:      authSvc,
		hub:          hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/loans", func(r chi.Router) {
				r.Post("/", s.createLoan)
				r.Get("/", s.listLoans)
				r.Get("/{loanId}", s.getLoan)
				r.Put("/{loanId}/status", s.setLoanStatus)
				r.Delete("/{loanId}", s.cancelLoan)
			})

			r.Route("/ledger/books", func(r chi.Router) {
				r.Put("/{bookId}", s.registerBook)
				r.Get("/{bookId}", s.getBook)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", s.sendMessage)
				r.Get("/", s.listMessages)
				r.Get("/conversation/{userId}", s.getConversation)
				r.Put("/read", s.markMessagesRead)
				r.Get("/unread", s.unreadCount)
			})
		})

		r.Route("/realtime", func(r chi.Router) {
			r.Get("/ws", s.wsEndpoint)
			r.Get("/sse", s.sseEndpoint)
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func chiParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

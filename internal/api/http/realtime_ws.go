package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/notification"
	"github.com/openshelf/lending-hub/internal/infrastructure/realtime"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxFrameSize   = 16 * 1024
	wsReplyQueueSize = 16
)

// Inbound frame names.
const (
	frameJoin        = "join"
	frameSendMessage = "sendMessage"
	frameLoanUpdate  = "loanUpdate"
	framePing        = "ping"
)

// Outbound frames that answer the client directly rather than through the hub.
const (
	frameJoined notification.EventType = "joined"
	frameError  notification.EventType = "error"
	framePong   notification.EventType = "pong"
)

var frameCodec = jsoniter.ConfigCompatibleWithStandardLibrary

type inboundFrame struct {
	Event string              `json:"event"`
	Data  jsoniter.RawMessage `json:"data"`
}

type joinFrame struct {
	UserID string `json:"userId"`
}

type loanUpdateFrame struct {
	LoanID uuid.UUID `json:"loanId"`
	Status string    `json:"status"`
	UserID string    `json:"userId"`
}

type errorFrame struct {
	Event   string `json:"event,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// wsSession pairs one WebSocket connection with its hub channel. Only writePump
// writes to conn.
type wsSession struct {
	server  *Server
	conn    *websocket.Conn
	ch      *realtime.Channel
	userID  string
	replies chan *notification.Event
	done    chan struct{}
}

func (s *Server) wsEndpoint(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", auth.UserID).Msg("websocket upgrade failed")
		return
	}

	sess := &wsSession{
		server:  s,
		conn:    conn,
		ch:      s.hub.Connect(auth.UserID, realtime.TransportWebSocket),
		userID:  auth.UserID,
		replies: make(chan *notification.Event, wsReplyQueueSize),
		done:    make(chan struct{}),
	}
	s.logger.Info().Str("user_id", auth.UserID).Str("channel_id", sess.ch.ID).Msg("websocket connected")

	go sess.writePump()
	sess.readPump(r.Context())
}

func (c *wsSession) readPump(ctx context.Context) {
	defer func() {
		c.server.hub.Disconnect(c.ch.ID)
		close(c.done)
		_ = c.conn.Close()
		c.server.logger.Info().Str("user_id", c.userID).Str("channel_id", c.ch.ID).Msg("websocket disconnected")
	}()

	c.conn.SetReadLimit(wsMaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.ch.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug().Err(err).Str("channel_id", c.ch.ID).Msg("websocket read failed")
			}
			return
		}
		c.ch.Touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.handleFrame(ctx, raw)
	}
}

func (c *wsSession) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.ch.Events():
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session expired"))
				return
			}
			if err := c.write(ev); err != nil {
				return
			}
		case ev := <-c.replies:
			if err := c.write(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsSession) write(ev *notification.Event) error {
	payload, err := frameCodec.Marshal(ev)
	if err != nil {
		c.server.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to encode frame")
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsSession) handleFrame(ctx context.Context, raw []byte) {
	var in inboundFrame
	if err := frameCodec.Unmarshal(raw, &in); err != nil {
		c.replyError("", "INVALID_PARAM", "malformed frame")
		return
	}

	switch in.Event {
	case frameJoin:
		var p joinFrame
		if err := c.decode(in, &p); err != nil {
			return
		}
		if p.UserID != c.userID {
			c.replyError(in.Event, "FORBIDDEN", "join must name the authenticated user")
			return
		}
		c.reply(frameJoined, map[string]string{"userId": c.userID, "channelId": c.ch.ID})

	case frameSendMessage:
		var p messageSendRequest
		if err := c.decode(in, &p); err != nil {
			return
		}
		if _, err := c.server.messagingSvc.Send(ctx, c.userID, p.input()); err != nil {
			c.replyServiceError(in.Event, err)
		}

	case frameLoanUpdate:
		var p loanUpdateFrame
		if err := c.decode(in, &p); err != nil {
			return
		}
		if err := c.relayLoanUpdate(ctx, p); err != nil {
			c.replyServiceError(in.Event, err)
		}

	case framePing:
		c.reply(framePong, map[string]time.Time{"timestamp": time.Now().UTC()})

	default:
		c.replyError(in.Event, "INVALID_PARAM", "unknown event")
	}
}

// relayLoanUpdate forwards an advisory status hint to the other party of a loan
// both users take part in. It never changes stored state.
func (c *wsSession) relayLoanUpdate(ctx context.Context, p loanUpdateFrame) error {
	status, err := loan.ParseStatus(p.Status)
	if err != nil {
		return err
	}
	l, err := c.server.lendingSvc.GetLoan(ctx, p.LoanID, c.userID)
	if err != nil {
		return err
	}
	target := l.CounterpartyOf(c.userID)
	if p.UserID != "" && p.UserID != target {
		return loan.ErrUnauthorized
	}
	if !c.server.hub.RelayLoanUpdate(l.LoanID, status, target) {
		c.server.logger.Debug().Str("loan_id", l.LoanID.String()).Str("target", target).Msg("relay not delivered")
	}
	return nil
}

func (c *wsSession) decode(in inboundFrame, v interface{}) error {
	if len(in.Data) == 0 {
		c.replyError(in.Event, "INVALID_PARAM", "data is required")
		return errors.New("empty frame data")
	}
	if err := frameCodec.Unmarshal(in.Data, v); err != nil {
		c.replyError(in.Event, "INVALID_PARAM", "malformed data")
		return err
	}
	return nil
}

func (c *wsSession) reply(eventType notification.EventType, payload interface{}) {
	data, err := frameCodec.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.replies <- notification.NewEvent(eventType, "", 0, data):
	default:
		c.server.logger.Debug().Str("channel_id", c.ch.ID).Str("event", string(eventType)).Msg("reply queue full, frame dropped")
	}
}

func (c *wsSession) replyError(event, code, message string) {
	c.reply(frameError, errorFrame{Event: event, Error: code, Message: message})
}

func (c *wsSession) replyServiceError(event string, err error) {
	_, code := classify(err)
	var te *loan.TransitionError
	if errors.As(err, &te) {
		code = "INVALID_TRANSITION"
	}
	c.replyError(event, code, err.Error())
}

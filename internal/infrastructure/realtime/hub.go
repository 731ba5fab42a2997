package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
	"github.com/openshelf/lending-hub/internal/domain/notification"
)

const (
	DefaultChannelBuffer = 64
	DefaultOfflineBuffer = 32
	DefaultOfflineGrace  = 30 * time.Second
)

// HubConfig sizes channel buffers and the brief-disconnect buffer.
type HubConfig struct {
	ChannelBuffer int
	OfflineBuffer int
	OfflineGrace  time.Duration
}

type offlineQueue struct {
	events  []*notification.Event
	expires time.Time
}

// Hub fans events out to the registry's channels. It implements notification.Publisher.
type Hub struct {
	registry *Registry
	cfg      HubConfig
	now      func() time.Time

	mu        sync.Mutex
	threadSeq map[string]int64

	// offMu guards offline. It is taken last: under mu, or under the registry
	// lock when a user's last channel goes away.
	offMu   sync.Mutex
	offline map[string]*offlineQueue

	logger zerolog.Logger
}

var _ notification.Publisher = (*Hub)(nil)

// NewHub creates a hub over registry.
func NewHub(registry *Registry, cfg HubConfig, logger zerolog.Logger) *Hub {
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = DefaultChannelBuffer
	}
	if cfg.OfflineBuffer < 0 {
		cfg.OfflineBuffer = 0
	}
	h := &Hub{
		registry:  registry,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		offline:   make(map[string]*offlineQueue),
		threadSeq: make(map[string]int64),
		logger:    logger.With().Str("component", "notification_hub").Logger(),
	}
	registry.OnOffline(h.userWentOffline)
	registry.OnReap(h.pruneOffline)
	return h
}

// Connect opens a channel for userID and replays events buffered while the user
// was briefly away.
func (h *Hub) Connect(userID string, transport Transport) *Channel {
	ch := NewChannel(userID, transport, h.cfg.ChannelBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.registry.Register(userID, ch)
	if q := h.takeOffline(userID); q != nil {
		if h.now().Before(q.expires) {
			for _, ev := range q.events {
				if err := ch.Offer(ev); err != nil {
					h.logger.Debug().Err(err).Str("user_id", userID).Str("event", string(ev.Type)).Msg("replay dropped")
				}
			}
			h.logger.Debug().Str("user_id", userID).Int("events", len(q.events)).Msg("offline buffer replayed")
		}
	}
	return ch
}

// Disconnect unregisters a channel.
func (h *Hub) Disconnect(channelID string) {
	h.registry.Unregister(channelID)
}

// userWentOffline runs inside the registry's Unregister, so the queue exists
// before any publish can observe the user without channels.
func (h *Hub) userWentOffline(userID string) {
	if h.cfg.OfflineBuffer == 0 || h.cfg.OfflineGrace <= 0 {
		return
	}
	h.offMu.Lock()
	defer h.offMu.Unlock()
	h.offline[userID] = &offlineQueue{expires: h.now().Add(h.cfg.OfflineGrace)}
}

func (h *Hub) takeOffline(userID string) *offlineQueue {
	h.offMu.Lock()
	defer h.offMu.Unlock()
	q, ok := h.offline[userID]
	if !ok {
		return nil
	}
	delete(h.offline, userID)
	return q
}

// pruneOffline drops queues whose grace period has passed.
func (h *Hub) pruneOffline() {
	now := h.now()
	h.offMu.Lock()
	defer h.offMu.Unlock()
	pruned := 0
	for userID, q := range h.offline {
		if !now.Before(q.expires) {
			delete(h.offline, userID)
			pruned++
		}
	}
	if pruned > 0 {
		h.logger.Debug().Int("pruned", pruned).Msg("expired offline buffers pruned")
	}
}

func (h *Hub) offlineCount() int {
	h.offMu.Lock()
	defer h.offMu.Unlock()
	return len(h.offline)
}

// Publish delivers ev to every live channel of userID. It reports whether at
// least one channel accepted it.
func (h *Hub) Publish(userID string, ev *notification.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(userID, ev)
}

func (h *Hub) publishLocked(userID string, ev *notification.Event) bool {
	channels := h.registry.ChannelsFor(userID)
	if len(channels) == 0 {
		h.bufferLocked(userID, ev)
		return false
	}
	delivered := false
	for _, ch := range channels {
		if err := ch.Offer(ev); err != nil {
			level := h.logger.Debug()
			if err == notification.ErrChannelFull {
				level = h.logger.Warn()
			}
			level.Err(err).
				Str("user_id", userID).
				Str("channel_id", ch.ID).
				Str("event", string(ev.Type)).
				Msg("event not delivered")
			continue
		}
		delivered = true
	}
	return delivered
}

func (h *Hub) bufferLocked(userID string, ev *notification.Event) {
	h.offMu.Lock()
	defer h.offMu.Unlock()
	q, ok := h.offline[userID]
	if !ok {
		return
	}
	if !h.now().Before(q.expires) {
		delete(h.offline, userID)
		return
	}
	if len(q.events) >= h.cfg.OfflineBuffer {
		h.logger.Debug().Str("user_id", userID).Str("event", string(ev.Type)).Msg("offline buffer full, event dropped")
		return
	}
	q.events = append(q.events, ev)
}

// PublishLoanStatusChanged tells both parties about a committed transition.
func (h *Hub) PublishLoanStatusChanged(change *loan.StatusChanged) {
	ev, ok := h.event(notification.EventLoanStatusChanged, notification.LoanEntityKey(change.LoanID), change.Version, change)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked(change.LenderID, ev)
	h.publishLocked(change.BorrowerID, ev)
}

// PublishLoanRequested tells the lender about a new request.
func (h *Hub) PublishLoanRequested(l *loan.Loan) {
	if ev, ok := h.event(notification.EventLoanRequested, notification.LoanEntityKey(l.LoanID), l.Version, l); ok {
		h.Publish(l.LenderID, ev)
	}
}

// PublishLoanCancelled tells the lender that the borrower withdrew the request.
func (h *Hub) PublishLoanCancelled(l *loan.Loan, cancelledBy string) {
	payload := &notification.LoanCancelled{
		LoanID:         l.LoanID,
		BookID:         l.BookID,
		PreviousStatus: l.Status,
		CancelledBy:    cancelledBy,
		Timestamp:      h.now(),
	}
	if ev, ok := h.event(notification.EventLoanCancelled, notification.LoanEntityKey(l.LoanID), l.Version+1, payload); ok {
		h.Publish(l.LenderID, ev)
	}
}

// PublishMessage sends newMessage to the recipient and messageSent to the sender,
// both carrying the next sequence of their thread.
func (h *Hub) PublishMessage(msg *message.Message) {
	data, err := jsoniter.ConfigFastest.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode message event")
		return
	}
	key := notification.ThreadEntityKey(msg.SenderID, msg.RecipientID)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.threadSeq[key]++
	seq := h.threadSeq[key]
	h.publishLocked(msg.RecipientID, notification.NewEvent(notification.EventNewMessage, key, seq, data))
	h.publishLocked(msg.SenderID, notification.NewEvent(notification.EventMessageSent, key, seq, data))
}

// RelayLoanUpdate forwards a client-originated loanUpdate to userID. It is
// unsequenced and changes nothing in the store.
func (h *Hub) RelayLoanUpdate(loanID uuid.UUID, status loan.Status, userID string) bool {
	payload := &notification.LoanUpdate{LoanID: loanID, Status: status, Relayed: true}
	ev, ok := h.event(notification.EventLoanStatusChanged, "", 0, payload)
	if !ok {
		return false
	}
	return h.Publish(userID, ev)
}

func (h *Hub) event(eventType notification.EventType, key string, seq int64, payload interface{}) (*notification.Event, bool) {
	data, err := jsoniter.ConfigFastest.Marshal(payload)
	if err != nil {
		h.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to encode event")
		return nil, false
	}
	return notification.NewEvent(eventType, key, seq, data), true
}

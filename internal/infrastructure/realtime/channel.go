package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/lending-hub/internal/domain/notification"
)

// Transport identifies how a channel reaches the client.
type Transport string

const (
	TransportWebSocket Transport = "ws"
	TransportSSE       Transport = "sse"
)

// Channel is one live connection of a user. Offer never blocks; when the buffer
// is full the offered event is dropped. Accepted events leave in the order they
// were offered.
type Channel struct {
	ID          string
	UserID      string
	Transport   Transport
	ConnectedAt time.Time

	mu       sync.Mutex
	out      chan *notification.Event
	closed   bool
	lastSeen atomic.Int64
	dropped  atomic.Int64
}

// NewChannel creates an open channel with the given buffer size.
func NewChannel(userID string, transport Transport, buffer int) *Channel {
	if buffer <= 0 {
		buffer = 1
	}
	now := time.Now().UTC()
	c := &Channel{
		ID:          uuid.NewString(),
		UserID:      userID,
		Transport:   transport,
		ConnectedAt: now,
		out:         make(chan *notification.Event, buffer),
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Events is drained by the transport's writer. It is closed when the channel is.
func (c *Channel) Events() <-chan *notification.Event {
	return c.out
}

// Offer queues ev for delivery.
func (c *Channel) Offer(ev *notification.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return notification.ErrChannelClosed
	}
	select {
	case c.out <- ev:
	default:
		c.dropped.Add(1)
		return notification.ErrChannelFull
	}
	return nil
}

// Close closes the outbound queue once. It reports whether this call closed it.
func (c *Channel) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.out)
	return true
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Touch records client activity.
func (c *Channel) Touch() {
	c.lastSeen.Store(time.Now().UTC().UnixNano())
}

func (c *Channel) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load()).UTC()
}

// Dropped counts events lost to a full buffer.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

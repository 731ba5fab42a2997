package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
	"github.com/openshelf/lending-hub/internal/domain/notification"
)

func newTestHub(cfg HubConfig) *Hub {
	return NewHub(NewRegistry(time.Minute, zerolog.Nop()), cfg, zerolog.Nop())
}

func receive(t *testing.T, ch *Channel) *notification.Event {
	t.Helper()
	select {
	case ev := <-ch.Events():
		return ev
	default:
		t.Fatal("expected a queued event")
		return nil
	}
}

func assertEmpty(t *testing.T, ch *Channel) {
	t.Helper()
	select {
	case ev := <-ch.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestHub_PublishLoanStatusChanged(t *testing.T) {
	hub := newTestHub(HubConfig{})
	lender := hub.Connect("lender", TransportWebSocket)
	borrowerWS := hub.Connect("borrower", TransportWebSocket)
	borrowerSSE := hub.Connect("borrower", TransportSSE)
	bystander := hub.Connect("someone", TransportWebSocket)

	change := &loan.StatusChanged{
		LoanID:         uuid.New(),
		PreviousStatus: loan.StatusRequested,
		NewStatus:      loan.StatusApproved,
		LenderID:       "lender",
		BorrowerID:     "borrower",
		Version:        2,
	}
	hub.PublishLoanStatusChanged(change)

	for _, ch := range []*Channel{lender, borrowerWS, borrowerSSE} {
		ev := receive(t, ch)
		assert.Equal(t, notification.EventLoanStatusChanged, ev.Type)
		assert.Equal(t, int64(2), ev.Seq)

		var got loan.StatusChanged
		require.NoError(t, jsoniter.Unmarshal(ev.Data, &got))
		assert.Equal(t, loan.StatusApproved, got.NewStatus)
	}
	assertEmpty(t, bystander)
}

func TestHub_LateLoanEventStillReachesLiveUser(t *testing.T) {
	hub := newTestHub(HubConfig{})
	lender := hub.Connect("lender", TransportWebSocket)
	borrower := hub.Connect("b", TransportWebSocket)
	loanID := uuid.New()

	// v3 committed after v2 but was announced first
	hub.PublishLoanStatusChanged(&loan.StatusChanged{LoanID: loanID, NewStatus: loan.StatusLent, LenderID: "lender", BorrowerID: "b", Version: 3})
	hub.PublishLoanStatusChanged(&loan.StatusChanged{LoanID: loanID, NewStatus: loan.StatusApproved, LenderID: "lender", BorrowerID: "b", Version: 2})

	for _, ch := range []*Channel{lender, borrower} {
		first := receive(t, ch)
		second := receive(t, ch)
		assert.Equal(t, int64(3), first.Seq)
		assert.Equal(t, int64(2), second.Seq)
		assert.Equal(t, first.EntityKey, second.EntityKey)
		assertEmpty(t, ch)
	}

	key := notification.LoanEntityKey(loanID)
	assert.True(t, hub.Publish("lender", seqEvent(key, 5)))
	assert.True(t, hub.Publish("lender", seqEvent(key, 4)))
	assert.Equal(t, int64(5), receive(t, lender).Seq)
	assert.Equal(t, int64(4), receive(t, lender).Seq)
}

func TestHub_PublishMessage(t *testing.T) {
	hub := newTestHub(HubConfig{})
	sender := hub.Connect("alice", TransportWebSocket)
	recipient := hub.Connect("bob", TransportWebSocket)

	first, err := message.NewMessage("alice", "bob", "is the book still free?", nil, nil)
	require.NoError(t, err)
	reply, err := message.NewMessage("bob", "alice", "yes", nil, nil)
	require.NoError(t, err)
	hub.PublishMessage(first)
	hub.PublishMessage(reply)

	got := receive(t, recipient)
	assert.Equal(t, notification.EventNewMessage, got.Type)
	assert.Equal(t, int64(1), got.Seq)
	sent := receive(t, sender)
	assert.Equal(t, notification.EventMessageSent, sent.Type)
	assert.Equal(t, got.EntityKey, sent.EntityKey)

	assert.Equal(t, notification.EventMessageSent, receive(t, recipient).Type)
	next := receive(t, sender)
	assert.Equal(t, notification.EventNewMessage, next.Type)
	assert.Equal(t, int64(2), next.Seq)

	var decoded message.Message
	require.NoError(t, jsoniter.Unmarshal(next.Data, &decoded))
	assert.Equal(t, "yes", decoded.Content)
}

func TestHub_PublishReportsDelivery(t *testing.T) {
	hub := newTestHub(HubConfig{ChannelBuffer: 1})
	assert.False(t, hub.Publish("nobody", seqEvent("", 0)))

	hub.Connect("u1", TransportWebSocket)
	assert.True(t, hub.Publish("u1", seqEvent("", 0)))
	assert.False(t, hub.Publish("u1", seqEvent("", 0)))
}

func TestHub_OfflineBufferReplay(t *testing.T) {
	hub := newTestHub(HubConfig{OfflineBuffer: 2, OfflineGrace: time.Minute})
	ch := hub.Connect("u1", TransportWebSocket)
	hub.Disconnect(ch.ID)

	assert.False(t, hub.Publish("u1", seqEvent("loan:a", 1)))
	hub.Publish("u1", seqEvent("loan:a", 2))
	hub.Publish("u1", seqEvent("loan:a", 3))

	again := hub.Connect("u1", TransportWebSocket)
	assert.Equal(t, int64(1), receive(t, again).Seq)
	assert.Equal(t, int64(2), receive(t, again).Seq)
	assertEmpty(t, again)
}

func TestHub_OfflineBufferExpires(t *testing.T) {
	hub := newTestHub(HubConfig{OfflineBuffer: 4, OfflineGrace: time.Second})
	now := time.Now().UTC()
	hub.now = func() time.Time { return now }

	ch := hub.Connect("u1", TransportWebSocket)
	hub.Disconnect(ch.ID)
	hub.Publish("u1", seqEvent("loan:a", 1))

	now = now.Add(2 * time.Second)
	again := hub.Connect("u1", TransportWebSocket)
	assertEmpty(t, again)
}

func TestHub_NoBufferForUnknownUsers(t *testing.T) {
	hub := newTestHub(HubConfig{OfflineBuffer: 4, OfflineGrace: time.Minute})
	hub.Publish("stranger", seqEvent("loan:a", 1))

	ch := hub.Connect("stranger", TransportWebSocket)
	assertEmpty(t, ch)
}

func TestHub_LoanRequestedAndCancelled(t *testing.T) {
	hub := newTestHub(HubConfig{})
	lender := hub.Connect("lender", TransportWebSocket)
	borrower := hub.Connect("borrower", TransportWebSocket)

	l := loan.NewLoan("book-1", "lender", "borrower", nil, time.Now())
	hub.PublishLoanRequested(l)
	hub.PublishLoanCancelled(l, "borrower")

	assert.Equal(t, notification.EventLoanRequested, receive(t, lender).Type)
	cancelled := receive(t, lender)
	assert.Equal(t, notification.EventLoanCancelled, cancelled.Type)
	assert.Equal(t, int64(2), cancelled.Seq)
	assertEmpty(t, borrower)
}

func TestHub_RelayLoanUpdate(t *testing.T) {
	hub := newTestHub(HubConfig{})
	assert.False(t, hub.RelayLoanUpdate(uuid.New(), loan.StatusApproved, "offline"))

	ch := hub.Connect("borrower", TransportWebSocket)
	loanID := uuid.New()
	assert.True(t, hub.RelayLoanUpdate(loanID, loan.StatusApproved, "borrower"))

	ev := receive(t, ch)
	assert.Equal(t, notification.EventLoanStatusChanged, ev.Type)
	assert.False(t, ev.IsSequenced())

	var payload notification.LoanUpdate
	require.NoError(t, jsoniter.Unmarshal(ev.Data, &payload))
	assert.Equal(t, loanID, payload.LoanID)
	assert.True(t, payload.Relayed)
}

func TestHub_OfflineQueueReadyWhenLastChannelCloses(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	hub := NewHub(r, HubConfig{OfflineBuffer: 4, OfflineGrace: time.Minute}, zerolog.Nop())
	first := hub.Connect("u1", TransportWebSocket)
	second := hub.Connect("u1", TransportSSE)

	hub.Disconnect(first.ID)
	assert.Equal(t, 0, hub.offlineCount())

	require.True(t, r.Unregister(second.ID))
	assert.Equal(t, 1, hub.offlineCount())
	assert.False(t, hub.Publish("u1", seqEvent("loan:a", 1)))

	again := hub.Connect("u1", TransportWebSocket)
	assert.Equal(t, int64(1), receive(t, again).Seq)
	assert.Equal(t, 0, hub.offlineCount())
}

func TestHub_ReapPrunesExpiredOfflineBuffers(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	hub := NewHub(r, HubConfig{OfflineBuffer: 4, OfflineGrace: time.Second}, zerolog.Nop())
	now := time.Now().UTC()
	hub.now = func() time.Time { return now }

	gone := hub.Connect("gone", TransportWebSocket)
	hub.Disconnect(gone.ID)
	now = now.Add(500 * time.Millisecond)
	recent := hub.Connect("recent", TransportWebSocket)
	hub.Disconnect(recent.ID)
	require.Equal(t, 2, hub.offlineCount())

	now = now.Add(700 * time.Millisecond)
	r.Reap(time.Now().UTC())
	assert.Equal(t, 1, hub.offlineCount())

	now = now.Add(time.Second)
	r.Reap(time.Now().UTC())
	assert.Equal(t, 0, hub.offlineCount())
}

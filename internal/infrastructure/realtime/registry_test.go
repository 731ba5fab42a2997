package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	var offline []string
	r.OnOffline(func(userID string) { offline = append(offline, userID) })

	a := NewChannel("", TransportWebSocket, 4)
	b := NewChannel("", TransportSSE, 4)
	r.Register("u1", a)
	r.Register("u1", b)

	assert.Len(t, r.ChannelsFor("u1"), 2)
	assert.Equal(t, "u1", a.UserID)
	assert.True(t, r.IsOnline("u1"))
	assert.Equal(t, 2, r.Count())

	assert.True(t, r.Unregister(a.ID))
	assert.True(t, a.Closed())
	assert.Empty(t, offline)
	assert.False(t, r.Unregister(a.ID))

	assert.True(t, r.Unregister(b.ID))
	assert.Equal(t, []string{"u1"}, offline)
	assert.False(t, r.IsOnline("u1"))
	assert.Empty(t, r.ChannelsFor("u1"))
}

func TestRegistry_Reap(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	idle := NewChannel("", TransportWebSocket, 1)
	fresh := NewChannel("", TransportWebSocket, 1)
	r.Register("u1", idle)
	r.Register("u2", fresh)

	idle.lastSeen.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	reaped := r.Reap(time.Now().UTC())
	assert.Equal(t, 1, reaped)
	assert.True(t, idle.Closed())
	assert.False(t, fresh.Closed())
	assert.Nil(t, r.Get(idle.ID))
	require.NotNil(t, r.Get(fresh.ID))
}

func TestRegistry_TouchKeepsChannelAlive(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	ch := NewChannel("", TransportWebSocket, 1)
	r.Register("u1", ch)
	ch.lastSeen.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	ch.Touch()

	assert.Equal(t, 0, r.Reap(time.Now().UTC()))
	assert.False(t, ch.Closed())
}

func TestRegistry_StopClosesEverything(t *testing.T) {
	r := NewRegistry(0, zerolog.Nop())
	ch := NewChannel("", TransportWebSocket, 1)
	r.Register("u1", ch)

	r.Stop()
	assert.True(t, ch.Closed())
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ConcurrentPublishAndUnregister(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	hub := NewHub(r, HubConfig{ChannelBuffer: 1}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		ch := hub.Connect("u1", TransportWebSocket)
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Publish("u1", seqEvent("", 0))
		}()
		go func(id string) {
			defer wg.Done()
			hub.Disconnect(id)
		}(ch.ID)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_OfflineCallbackRunsInsideUnregister(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	var lockHeld, removed bool
	r.OnOffline(func(userID string) {
		// a concurrent lookup cannot slip in before the callback finishes
		lockHeld = !r.mu.TryRLock()
		if !lockHeld {
			r.mu.RUnlock()
		}
		removed = len(r.byUser[userID]) == 0
	})

	ch := NewChannel("", TransportWebSocket, 1)
	r.Register("u1", ch)
	require.True(t, r.Unregister(ch.ID))

	assert.True(t, lockHeld)
	assert.True(t, removed)
}

func TestRegistry_ReapRunsHook(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	calls := 0
	r.OnReap(func() { calls++ })

	r.Reap(time.Now().UTC())
	r.Reap(time.Now().UTC())
	assert.Equal(t, 2, calls)
}

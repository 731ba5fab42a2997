package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLivenessWindow is how long a channel may stay silent before it is reaped.
const DefaultLivenessWindow = 60 * time.Second

// Registry maps users to their live channels. Unregister closes the channel while
// holding the write lock, so a lookup either sees an open channel or none.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Channel
	byID   map[string]*Channel

	livenessWindow time.Duration
	onOffline      func(userID string)
	onReap         func()
	logger         zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(livenessWindow time.Duration, logger zerolog.Logger) *Registry {
	if livenessWindow <= 0 {
		livenessWindow = DefaultLivenessWindow
	}
	return &Registry{
		byUser:         make(map[string]map[string]*Channel),
		byID:           make(map[string]*Channel),
		livenessWindow: livenessWindow,
		logger:         logger.With().Str("component", "session_registry").Logger(),
	}
}

// OnOffline sets a callback run when a user's last channel is removed. It runs
// under the registry's write lock and must not call back into the registry.
func (r *Registry) OnOffline(fn func(userID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOffline = fn
}

// OnReap sets a callback run at the end of every Reap.
func (r *Registry) OnReap(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReap = fn
}

// Register adds ch under userID.
func (r *Registry) Register(userID string, ch *Channel) {
	ch.UserID = userID
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, ok := r.byUser[userID]
	if !ok {
		channels = make(map[string]*Channel)
		r.byUser[userID] = channels
	}
	channels[ch.ID] = ch
	r.byID[ch.ID] = ch
	r.logger.Debug().Str("user_id", userID).Str("channel_id", ch.ID).Str("transport", string(ch.Transport)).Msg("channel registered")
}

// Unregister removes and closes a channel whatever user owns it. Unknown ids are ignored.
func (r *Registry) Unregister(channelID string) bool {
	r.mu.Lock()
	ch, ok := r.byID[channelID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, channelID)
	offline := false
	if channels, ok := r.byUser[ch.UserID]; ok {
		delete(channels, channelID)
		if len(channels) == 0 {
			delete(r.byUser, ch.UserID)
			offline = true
		}
	}
	ch.Close()
	if offline && r.onOffline != nil {
		r.onOffline(ch.UserID)
	}
	r.mu.Unlock()

	r.logger.Debug().Str("user_id", ch.UserID).Str("channel_id", channelID).Msg("channel unregistered")
	return true
}

// ChannelsFor returns the user's live channels.
func (r *Registry) ChannelsFor(userID string) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := r.byUser[userID]
	out := make([]*Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch)
	}
	return out
}

// Get returns a channel by id.
func (r *Registry) Get(channelID string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[channelID]
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Reap unregisters channels idle longer than the liveness window.
func (r *Registry) Reap(now time.Time) int {
	cutoff := now.Add(-r.livenessWindow)
	r.mu.RLock()
	stale := make([]string, 0)
	for id, ch := range r.byID {
		if ch.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	reaped := 0
	for _, id := range stale {
		if ch := r.Get(id); ch == nil || !ch.LastSeen().Before(cutoff) {
			continue
		}
		if r.Unregister(id) {
			reaped++
		}
	}
	if reaped > 0 {
		r.logger.Info().Int("reaped", reaped).Msg("idle channels reaped")
	}

	r.mu.RLock()
	onReap := r.onReap
	r.mu.RUnlock()
	if onReap != nil {
		onReap()
	}
	return reaped
}

// Run reaps idle channels until ctx is done, then closes every channel.
func (r *Registry) Run(ctx context.Context) {
	interval := r.livenessWindow / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Stop()
			return
		case now := <-ticker.C:
			r.Reap(now.UTC())
		}
	}
}

// Stop closes and removes every channel.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.byID {
		ch.Close()
		delete(r.byID, id)
	}
	r.byUser = make(map[string]map[string]*Channel)
}

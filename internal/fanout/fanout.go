package fanout

import (
	"sync"

	"go.uber.org/zap"

	"trivia-service/internal/domain"
)

const defaultBuffer = 16

// Channel is a single user's push stream. Events are delivered through a
// buffered Go channel; when the buffer is full the oldest undelivered
// event is dropped so a slow client never blocks a broadcast. Complete
// closes the stream and fires the close hook wired at registration.
type Channel struct {
	mu      sync.Mutex
	events  chan domain.Event
	closed  bool
	onClose func()
}

func NewChannel() *Channel {
	return &Channel{events: make(chan domain.Event, defaultBuffer)}
}

// Events is the receive side of the stream. It is closed on Complete.
func (c *Channel) Events() <-chan domain.Event {
	return c.events
}

// Complete closes the stream. It is idempotent and safe to call from the
// transport side; the registry removes the channel through the hook.
func (c *Channel) Complete() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.events)
	hook := c.onClose
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (c *Channel) setOnClose(hook func()) {
	c.mu.Lock()
	c.onClose = hook
	c.mu.Unlock()
}

// push delivers an event, dropping the oldest buffered one under
// pressure. Reports false once the channel has been completed.
func (c *Channel) push(e domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- e:
		return true
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- e:
			return true
		default:
			return false
		}
	}
}

// Manager is a registry of at most one active push channel per user.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	log      *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		channels: make(map[string]*Channel),
		log:      log,
	}
}

// Register binds a channel to a user. Any previously registered channel
// for the same user is completed first and replaced; the two never
// coexist. The channel's close hook is wired here so a channel that
// completes (or errors out) on the transport side removes itself.
func (m *Manager) Register(playerID string, ch *Channel) {
	m.mu.Lock()
	old := m.channels[playerID]
	m.channels[playerID] = ch
	ch.setOnClose(func() { m.remove(playerID, ch) })
	m.mu.Unlock()

	if old != nil {
		old.Complete()
		m.log.Debug("replaced stale push channel", zap.String("player", playerID))
	}
	m.log.Debug("registered push channel", zap.String("player", playerID))
}

// Unregister removes a user's channel without completing it, reporting
// whether anything was removed.
func (m *Manager) Unregister(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[playerID]; !ok {
		return false
	}
	delete(m.channels, playerID)
	return true
}

// IsCurrent reports whether ch is still the channel registered for the
// player. A replaced channel is no longer current even before it
// completes.
func (m *Manager) IsCurrent(playerID string, ch *Channel) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[playerID] == ch
}

// remove deletes the mapping only if ch is still the current channel, so
// completing a replaced channel never evicts its successor.
func (m *Manager) remove(playerID string, ch *Channel) {
	m.mu.Lock()
	if m.channels[playerID] == ch {
		delete(m.channels, playerID)
	}
	m.mu.Unlock()
}

// Send pushes an event to one user. A missing channel is a no-op
// reporting false, not an error. A failed delivery unregisters the
// offending channel.
func (m *Manager) Send(playerID string, e domain.Event) bool {
	m.mu.RLock()
	ch, ok := m.channels[playerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !ch.push(e) {
		m.remove(playerID, ch)
		m.log.Warn("failed to push event, dropping channel",
			zap.String("player", playerID),
			zap.String("event", string(e.Type)))
		return false
	}
	return true
}

// SendMany attempts delivery to every target even after an individual
// failure, returning true only if all succeeded.
func (m *Manager) SendMany(playerIDs []string, e domain.Event) bool {
	success := true
	for _, playerID := range playerIDs {
		if !m.Send(playerID, e) {
			success = false
		}
	}
	return success
}

// SendAll broadcasts to every registered channel, best effort.
func (m *Manager) SendAll(e domain.Event) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.channels))
	for playerID := range m.channels {
		ids = append(ids, playerID)
	}
	m.mu.RUnlock()

	for _, playerID := range ids {
		m.Send(playerID, e)
	}
}

// Disconnect completes and unregisters a user's channel for deliberate
// teardown, reporting whether the user had one.
func (m *Manager) Disconnect(playerID string) bool {
	m.mu.RLock()
	ch, ok := m.channels[playerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ch.Complete()
	return true
}

// DisconnectAll tears down every registered channel.
func (m *Manager) DisconnectAll() {
	m.mu.RLock()
	chs := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		chs = append(chs, ch)
	}
	m.mu.RUnlock()

	for _, ch := range chs {
		ch.Complete()
	}
}

// Size reports the registry population, for diagnostics and tests.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

package game

import (
	"sync"

	"trivia-service/internal/domain"
)

// Collector accumulates answer submissions for a single question inside
// its timed window. Submissions overwrite earlier ones from the same
// player (last write wins). Close freezes the buffer; late submissions
// are rejected, not dropped. Safe for concurrent use without caller-side
// locking.
type Collector struct {
	mu      sync.RWMutex
	closed  bool
	answers map[string]domain.Answer
}

func NewCollector() *Collector {
	return &Collector{answers: make(map[string]domain.Answer)}
}

// Submit records a player's answer, replacing any previous one. It
// returns ErrAnswerWindowClosed once the collector is closed.
func (c *Collector) Submit(playerID string, ans domain.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrAnswerWindowClosed
	}
	c.answers[playerID] = ans
	return nil
}

// Close freezes the buffer. It is idempotent.
func (c *Collector) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of the current contents.
func (c *Collector) Snapshot() map[string]domain.Answer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Answer, len(c.answers))
	for playerID, ans := range c.answers {
		out[playerID] = ans
	}
	return out
}

// Len reports how many players have answered so far.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.answers)
}

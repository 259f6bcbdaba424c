package outreach

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Inbox holds pending outreach messages until a client drains them. It keeps
// at most one pending message per user and drops the lowest-priority message
// when full.
type Inbox struct {
	mu       sync.Mutex
	capacity int
	cooldown time.Duration
	pending  map[string]Message
	lastSent map[string]time.Time
}

// NewInbox returns an inbox holding at most capacity messages. A user who
// received a message is not queued again until cooldown has passed.
func NewInbox(capacity int, cooldown time.Duration) *Inbox {
	if capacity <= 0 {
		capacity = DefaultConfig().InboxSize
	}
	return &Inbox{
		capacity: capacity,
		cooldown: cooldown,
		pending:  make(map[string]Message),
		lastSent: make(map[string]time.Time),
	}
}

// Push queues msg and reports whether it was accepted. A pending message for
// the same user is replaced only by a higher-priority one.
func (b *Inbox) Push(msg Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.lastSent[msg.UserID]; ok && msg.CreatedAt.Sub(last) < b.cooldown {
		return false
	}
	if prev, ok := b.pending[msg.UserID]; ok {
		if msg.Priority <= prev.Priority {
			return false
		}
		msg.ID = prev.ID
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, ok := b.pending[msg.UserID]; !ok && len(b.pending) >= b.capacity {
		victim, ok := b.lowest()
		if !ok || b.pending[victim].Priority >= msg.Priority {
			return false
		}
		delete(b.pending, victim)
	}
	b.pending[msg.UserID] = msg
	return true
}

// lowest returns the user whose pending message has the lowest priority,
// oldest first on ties.
func (b *Inbox) lowest() (string, bool) {
	var (
		userID string
		found  bool
		worst  Message
	)
	for id, m := range b.pending {
		if !found || m.Priority < worst.Priority ||
			(m.Priority == worst.Priority && m.CreatedAt.Before(worst.CreatedAt)) {
			userID, worst, found = id, m, true
		}
	}
	return userID, found
}

// Drain removes and returns pending messages, highest priority first. An
// empty userID drains every user; limit <= 0 means no limit. Drained users
// enter their cooldown.
func (b *Inbox) Drain(userID string, limit int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	if userID != "" {
		if m, ok := b.pending[userID]; ok {
			out = append(out, m)
		}
	} else {
		for _, m := range b.pending {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for _, m := range out {
		delete(b.pending, m.UserID)
		b.lastSent[m.UserID] = m.CreatedAt
	}
	return out
}

// Forget drops any pending message and cooldown for userID.
func (b *Inbox) Forget(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, userID)
	delete(b.lastSent, userID)
}

// Len returns the number of pending messages.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

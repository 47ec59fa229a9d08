package notify

import (
	"sort"
	"sync"
	"time"
)

// Notification is a stored event with read tracking for the UI inbox.
type Notification struct {
	ID        int       `json:"id"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Center is an in-memory per-user notification inbox. It implements
// Notifier so the engine can publish into it directly.
type Center struct {
	mu    sync.RWMutex
	inbox map[string][]Notification
}

// NewCenter creates an empty notification center.
func NewCenter() *Center {
	return &Center{inbox: make(map[string][]Notification)}
}

// Publish stores the event in the user's inbox.
func (c *Center) Publish(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	c.inbox[event.Username] = append(c.inbox[event.Username], Notification{
		ID:        len(c.inbox[event.Username]),
		Message:   event.Message,
		Category:  event.Category,
		Priority:  event.Priority,
		Timestamp: ts,
	})
}

// List returns the user's notifications newest first, optionally only
// unread ones.
func (c *Center) List(username string, unreadOnly bool) []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored := c.inbox[username]
	out := make([]Notification, 0, len(stored))
	for _, n := range stored {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// MarkRead marks one notification as read. Returns false when the id
// does not exist.
func (c *Center) MarkRead(username string, id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := c.inbox[username]
	for i := range stored {
		if stored[i].ID == id {
			stored[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every notification for the user as read.
func (c *Center) MarkAllRead(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := c.inbox[username]
	for i := range stored {
		stored[i].Read = true
	}
}

// Clear drops all notifications for the user.
func (c *Center) Clear(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inbox, username)
}

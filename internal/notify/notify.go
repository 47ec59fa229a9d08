// Package notify delivers ledger events (trade fills, order expiries)
// to user-facing sinks. Delivery is fire-and-forget: a failed or slow
// sink must never roll back or delay a trade.
package notify

import "time"

// Event categories.
const (
	CategoryTrade = "trade"
	CategoryOrder = "order"
)

// Event priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Event is a user-facing ledger event.
type Event struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is the sink interface the portfolio engine publishes to.
type Notifier interface {
	Publish(event Event)
}

// Fanout publishes to every sink in order.
type Fanout []Notifier

func (f Fanout) Publish(event Event) {
	for _, n := range f {
		n.Publish(event)
	}
}

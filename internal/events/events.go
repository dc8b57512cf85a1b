package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventTaskPublished      = "task.published"
	EventReportSubmitted    = "report.submitted"
	EventReportModerated    = "report.moderated"
	EventFlarikiAwarded     = "flariki.awarded"
	EventFlarikiPenalized   = "flariki.penalized"
	EventPurchaseCreated    = "purchase.created"
	EventPurchaseUpdated    = "purchase.updated"
	EventUserModerated      = "user.moderated"
	EventBroadcastCompleted = "broadcast.completed"
)

// AllEvents is the subscription key that receives every event type.
const AllEvents = "*"

type TaskEventPayload struct {
	TaskID     string `json:"task_id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Recipients int    `json:"recipients"`
	ActorID    string `json:"actor_id,omitempty"`
}

type UserEventPayload struct {
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	ActorID string `json:"actor_id,omitempty"`
}

// ReportEventPayload is the report snapshot for event consumers.
type ReportEventPayload struct {
	ReportID       string `json:"report_id"`
	TaskID         string `json:"task_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Reward         int64  `json:"reward,omitempty"`
	ModeratorID    string `json:"moderator_id,omitempty"`
}

type LedgerEventPayload struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"`
	ActorID       string `json:"actor_id,omitempty"`
}

type PurchaseEventPayload struct {
	PurchaseID string `json:"purchase_id"`
	UserID     string `json:"user_id"`
	ItemID     string `json:"item_id"`
	Quantity   int    `json:"quantity"`
	TotalPrice int64  `json:"total_price"`
	Status     string `json:"status"`
}

type BroadcastEventPayload struct {
	BroadcastID string `json:"broadcast_id"`
	Recipients  int    `json:"recipients"`
	Delivered   int    `json:"delivered"`
	Failed      int    `json:"failed"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

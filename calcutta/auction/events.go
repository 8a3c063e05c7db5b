package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAuctionStarted   EventType = "auction_started"
	EventAuctionPaused    EventType = "auction_paused"
	EventAuctionResumed   EventType = "auction_resumed"
	EventAuctionCompleted EventType = "auction_completed"
	EventItemActive       EventType = "item_active"
	EventItemSold         EventType = "item_sold"
	EventItemUnsold       EventType = "item_unsold"
	EventItemReverted     EventType = "item_reverted"
	EventNewBid           EventType = "new_bid"
	EventTimerUpdate      EventType = "timer_update"
	EventWheelSpinResult  EventType = "wheel_spin_result"
	EventPayoutProcessed  EventType = "payout_processed"
	EventBalanceUpdate    EventType = "balance_update"
)

// Event is a broadcast notification about pool state. Events are advisory:
// they are published after the owning transaction commits, and consumers that
// miss one re-sync from the state endpoint.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	PoolID    int64                  `json:"poolId"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewEvent(typ EventType, poolID int64, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		PoolID:    poolID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events to whatever transport the host process wires in.
// Implementations must not block the caller for long; delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes every event to the structured log. It is the default
// publisher and stays useful as a tee in front of real transports.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) {
	slog.Info("Event published",
		slog.String("type", "auction"),
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.Int64("pool_id", event.PoolID),
	)
}

// Hub fans events out to per-pool subscriber channels. Slow subscribers are
// skipped rather than blocking the auction path.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64][]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64][]chan Event)}
}

// Subscribe returns a buffered channel of events for one pool and a cancel
// function that closes it.
func (h *Hub) Subscribe(poolID int64) (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	h.subs[poolID] = append(h.subs[poolID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.subs[poolID]
		for i, c := range chans {
			if c == ch {
				h.subs[poolID] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

func (h *Hub) Publish(_ context.Context, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[event.PoolID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Dropping event for slow subscriber",
				slog.String("type", "auction"),
				slog.String("event_type", string(event.Type)),
				slog.Int64("pool_id", event.PoolID),
			)
		}
	}
}

// MultiPublisher tees one event to several publishers.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) {
	for _, p := range m {
		p.Publish(ctx, event)
	}
}

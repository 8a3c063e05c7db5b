package auction

import (
	"log/slog"
	"sync"
	"time"
)

// ExtendDeadline decides whether a bid accepted at now pushes the item
// deadline out. A bid landing with more than threshold remaining leaves the
// deadline alone. Otherwise the deadline moves to now + threshold, clamped so
// the item never runs longer than maxDuration past its activation.
func ExtendDeadline(now, deadline, activatedAt time.Time, threshold, maxDuration time.Duration) (time.Time, bool) {
	if deadline.Sub(now) > threshold {
		return deadline, false
	}

	extended := now.Add(threshold)
	if limit := activatedAt.Add(maxDuration); extended.After(limit) {
		extended = limit
	}
	if !extended.After(deadline) {
		return deadline, false
	}
	return extended, true
}

// ExpiryFunc is invoked when an item's countdown fires. The deadline the
// timer was armed with is passed along so the handler can detect that the
// timer was superseded by an extension.
type ExpiryFunc func(poolID, itemID int64, deadline time.Time)

// TimerService owns one in-process timer per active item. Timers are an
// optimization over the durable timer_deadline column: after a restart they
// are rebuilt from the database, so losing them is never fatal.
type TimerService struct {
	expire ExpiryFunc

	timers sync.Map // itemID -> *time.Timer
	done   chan struct{}
	once   sync.Once
}

func NewTimerService(expire ExpiryFunc) *TimerService {
	return &TimerService{
		expire: expire,
		done:   make(chan struct{}),
	}
}

// Schedule arms (or re-arms) the countdown for an item. A past deadline fires
// immediately, which is how recovery drains items that expired while the
// process was down.
func (ts *TimerService) Schedule(poolID, itemID int64, deadline time.Time) {
	ts.Cancel(itemID)

	timer := time.AfterFunc(time.Until(deadline), func() {
		select {
		case <-ts.done:
			return
		default:
		}
		ts.timers.Delete(itemID)
		ts.expire(poolID, itemID, deadline)
	})
	ts.timers.Store(itemID, timer)

	slog.Debug("Timer scheduled",
		slog.String("type", "auction"),
		slog.Int64("item_id", itemID),
		slog.Time("deadline", deadline),
	)
}

// Cancel stops an item's countdown if one is armed.
func (ts *TimerService) Cancel(itemID int64) {
	if v, ok := ts.timers.LoadAndDelete(itemID); ok {
		v.(*time.Timer).Stop()
	}
}

// Shutdown stops all timers and suppresses callbacks from timers that already
// fired but have not run yet.
func (ts *TimerService) Shutdown() {
	ts.once.Do(func() { close(ts.done) })
	ts.timers.Range(func(key, value interface{}) bool {
		value.(*time.Timer).Stop()
		ts.timers.Delete(key)
		return true
	})
}

// SPDX-License-Identifier: MIT

// Package broadcast fans the full scoreboard state out to any number
// of subscribers. Delivery is push-based and never blocks a publisher.
package broadcast

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scorecast/scorecast/internal/scoreboard"
)

var (
	publishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorecast_broadcast_publish_total",
		Help: "Total number of state publications",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorecast_broadcast_dropped_total",
		Help: "Total number of updates dropped for slow subscribers",
	})
	subscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scorecast_broadcast_subscribers",
		Help: "Number of currently connected subscribers",
	})
)

// subscriberBuffer bounds how many undelivered updates a subscriber may
// lag behind before its oldest pending update is dropped.
const subscriberBuffer = 16

// Subscription is one registered subscriber. Updates arrive on C in
// publication order; when the subscriber falls further behind than the
// buffer allows, the oldest pending update is discarded.
type Subscription struct {
	C    chan scoreboard.State
	hub  *Hub
	once sync.Once
}

// Close unregisters the subscription and closes C. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub is the fan-out point between the state store and its viewers.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	last scoreboard.State
}

// NewHub builds a hub whose first subscribers receive initial as their
// snapshot until the first publication arrives.
func NewHub(initial scoreboard.State) *Hub {
	return &Hub{
		subs: make(map[*Subscription]struct{}),
		last: initial,
	}
}

// Subscribe registers a new subscriber and returns it together with the
// current full state, so the caller needs no separate fetch.
func (h *Hub) Subscribe() (*Subscription, scoreboard.State) {
	sub := &Subscription{
		C:   make(chan scoreboard.State, subscriberBuffer),
		hub: h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	snapshot := h.last
	h.mu.Unlock()
	subscriberGauge.Inc()
	return sub, snapshot
}

// Publish delivers state to every registered subscriber. A slow
// subscriber loses its oldest pending update; publication itself never
// blocks or fails.
func (h *Hub) Publish(state scoreboard.State) {
	h.mu.Lock()
	h.last = state
	for sub := range h.subs {
		select {
		case sub.C <- state:
		default:
			// Buffer full: discard the oldest pending update to make
			// room, keeping delivery order for the rest.
			select {
			case <-sub.C:
				droppedTotal.Inc()
			default:
			}
			select {
			case sub.C <- state:
			default:
			}
		}
	}
	h.mu.Unlock()
	publishTotal.Inc()
}

// SubscriberCount reports the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()
	if ok {
		subscriberGauge.Dec()
		close(sub.C)
	}
}

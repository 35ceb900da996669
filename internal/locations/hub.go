// Package locations fans live position reports out to the company's
// websocket subscribers.
package locations

import (
	"sync"

	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/store"
)

// Hub keeps subscriber channels per company.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[chan store.Location]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]map[chan store.Location]struct{})}
}

// Subscribe returns a buffered channel receiving the company's reports.
func (h *Hub) Subscribe(companyID int64, buffer int) chan store.Location {
	ch := make(chan store.Location, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[companyID]
	if subs == nil {
		subs = make(map[chan store.Location]struct{})
		h.subscribers[companyID] = subs
	}
	subs[ch] = struct{}{}
	metrics.LocationSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (h *Hub) Unsubscribe(companyID int64, ch chan store.Location) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[companyID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	metrics.LocationSubscribers.Dec()
	if len(subs) == 0 {
		delete(h.subscribers, companyID)
	}
}

// Publish delivers loc to every subscriber of its company. Slow subscribers
// miss the report instead of blocking the writer.
func (h *Hub) Publish(loc store.Location) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for ch := range h.subscribers[loc.CompanyID] {
		select {
		case ch <- loc:
			delivered++
		default:
		}
	}
	if delivered > 0 {
		metrics.LocationsPublished.Add(float64(delivered))
	}
	return delivered
}

// Subscribers counts the company's open subscriptions.
func (h *Hub) Subscribers(companyID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[companyID])
}

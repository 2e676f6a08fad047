package webhookservice

import (
	"sync"

	"sales-dashboard/internal/domain/orders"
)

// DefaultRecentLimit is how many accepted deliveries are kept for debugging.
const DefaultRecentLimit = 50

// RecentDeliveries is a fixed-size ring of the latest accepted orders.
type RecentDeliveries struct {
	mu    sync.Mutex
	items []orders.NormalizedOrder
	next  int
	full  bool
}

// NewRecentDeliveries keeps the last limit orders.
func NewRecentDeliveries(limit int) *RecentDeliveries {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &RecentDeliveries{items: make([]orders.NormalizedOrder, limit)}
}

// Add records an accepted order, evicting the oldest when full.
func (r *RecentDeliveries) Add(order orders.NormalizedOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = order
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// List returns the orders received through provider, newest first.
// An empty provider matches every order.
func (r *RecentDeliveries) List(provider string) []orders.NormalizedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.items)
	}

	out := make([]orders.NormalizedOrder, 0, n)
	for i := 1; i <= n; i++ {
		order := r.items[(r.next-i+len(r.items))%len(r.items)]
		if provider == "" || order.Provider == provider {
			out = append(out, order)
		}
	}
	return out
}

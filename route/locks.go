/*
locks.go - Per-shop write serialization

PURPOSE:
  Guarantees at most one in-flight allocation per shop. Payment allocation
  is read-modify-write: reconcile a snapshot, allocate against it, persist
  the result. Two concurrent allocations for the same shop could both read
  the same snapshot and double-apply, so writes for one shop are serialized.

TWO LEVELS:
  - shop level:   ProcessPayment, AddDelivery, DeleteDelivery and other
                  per-shop mutations take the shop's mutex.
  - route level:  ProcessDailyReset archives across every shop, so it takes
                  the exclusive route lock and waits out all shop holders.

Shops on different routes never contend with each other; only the daily
reset stops the world.
*/
package route

import (
	"sync"

	"github.com/milkroute/ledger-engine/ledger"
)

// shopLocks provides keyed per-shop mutexes plus an exclusive route-wide
// lock for the daily reset.
type shopLocks struct {
	route sync.RWMutex

	mu    sync.Mutex
	shops map[ledger.ShopID]*sync.Mutex
}

func newShopLocks() *shopLocks {
	return &shopLocks{shops: make(map[ledger.ShopID]*sync.Mutex)}
}

// lockShop acquires the mutex for one shop and returns the release func.
// Blocks while a daily reset is in progress.
func (l *shopLocks) lockShop(id ledger.ShopID) func() {
	l.route.RLock()

	l.mu.Lock()
	m, ok := l.shops[id]
	if !ok {
		m = &sync.Mutex{}
		l.shops[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.route.RUnlock()
	}
}

// lockRoute acquires exclusive access across all shops and returns the
// release func. Waits for every in-flight per-shop operation to finish.
func (l *shopLocks) lockRoute() func() {
	l.route.Lock()
	return l.route.Unlock
}

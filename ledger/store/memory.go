// Package store provides an in-memory ledger.Store implementation for
// tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/milkroute/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	shops       map[ledger.ShopID]ledger.Shop
	deliveries  map[ledger.DeliveryID]ledger.DeliveryRecord
	payments    []ledger.PaymentRecord
	adjustments []ledger.ManualAdjustment
	deferred    map[deferredKey]ledger.DeferredPaymentMark
	products    map[ledger.ProductID]ledger.Product
	staff       map[ledger.StaffID]ledger.Staff
	stock       map[ledger.ProductID]ledger.StockLevel
	deleted     []ledger.DeletedDelivery
}

type deferredKey struct {
	ShopID ledger.ShopID
	Date   string
}

func NewMemory() *Memory {
	return &Memory{
		shops:      make(map[ledger.ShopID]ledger.Shop),
		deliveries: make(map[ledger.DeliveryID]ledger.DeliveryRecord),
		deferred:   make(map[deferredKey]ledger.DeferredPaymentMark),
		products:   make(map[ledger.ProductID]ledger.Product),
		staff:      make(map[ledger.StaffID]ledger.Staff),
		stock:      make(map[ledger.ProductID]ledger.StockLevel),
	}
}

// =============================================================================
// TRANSACTION READER
// =============================================================================

// ShopTransactions returns the raw record bundle for reconciliation:
// unarchived deliveries dated <= asOf, archived deliveries still carrying an
// unpaid balance, payments dated <= asOf, and every manual adjustment.
func (m *Memory) ShopTransactions(_ context.Context, shopID ledger.ShopID, asOf ledger.Date) (ledger.ShopTransactions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := ledger.ShopTransactions{ShopID: shopID}

	for _, d := range m.deliveries {
		if d.ShopID != shopID {
			continue
		}
		switch {
		case !d.Archived && d.DeliveryDate.BeforeOrEqual(asOf):
			txs.Deliveries = append(txs.Deliveries, d)
		case d.Archived && d.Unpaid().IsPositive():
			txs.Deliveries = append(txs.Deliveries, d)
		}
	}
	sort.Slice(txs.Deliveries, func(i, j int) bool {
		if !txs.Deliveries[i].DeliveryDate.Equal(txs.Deliveries[j].DeliveryDate) {
			return txs.Deliveries[i].DeliveryDate.Before(txs.Deliveries[j].DeliveryDate)
		}
		return txs.Deliveries[i].CreatedAt.Before(txs.Deliveries[j].CreatedAt)
	})

	for _, p := range m.payments {
		if p.ShopID == shopID && p.PaymentDate.BeforeOrEqual(asOf) {
			txs.Payments = append(txs.Payments, p)
		}
	}
	for _, a := range m.adjustments {
		if a.ShopID == shopID {
			txs.Adjustments = append(txs.Adjustments, a)
		}
	}

	return txs, nil
}

// =============================================================================
// SHOPS
// =============================================================================

func (m *Memory) ListShops(_ context.Context, activeOnly bool) ([]ledger.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var shops []ledger.Shop
	for _, s := range m.shops {
		if activeOnly && !s.Active {
			continue
		}
		shops = append(shops, s)
	}
	sort.Slice(shops, func(i, j int) bool { return shops[i].Name < shops[j].Name })
	return shops, nil
}

func (m *Memory) GetShop(_ context.Context, id ledger.ShopID) (*ledger.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shops[id]
	if !ok {
		return nil, ledger.ErrShopNotFound
	}
	return &s, nil
}

func (m *Memory) SaveShop(_ context.Context, shop ledger.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shops[shop.ID] = shop
	return nil
}

func (m *Memory) DeactivateShop(_ context.Context, id ledger.ShopID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shops[id]
	if !ok {
		return ledger.ErrShopNotFound
	}
	s.Active = false
	m.shops[id] = s
	return nil
}

// =============================================================================
// DELIVERIES
// =============================================================================

func (m *Memory) SaveDelivery(_ context.Context, d ledger.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.ID] = d
	return nil
}

func (m *Memory) GetDelivery(_ context.Context, id ledger.DeliveryID) (*ledger.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, ledger.ErrDeliveryNotFound
	}
	return &d, nil
}

func (m *Memory) DeliveriesForDate(_ context.Context, date ledger.Date) ([]ledger.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.DeliveryRecord
	for _, d := range m.deliveries {
		if !d.Archived && d.DeliveryDate.Equal(date) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ApplyPayment(_ context.Context, p ledger.PaymentRecord, updated []ledger.DeliveryRecord, settlement *ledger.ManualAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// All-or-nothing: verify every delivery exists before touching anything.
	for _, d := range updated {
		if _, ok := m.deliveries[d.ID]; !ok {
			return ledger.ErrDeliveryNotFound
		}
	}

	m.payments = append(m.payments, p)
	for _, d := range updated {
		existing := m.deliveries[d.ID]
		existing.PaidAmount = d.PaidAmount
		m.deliveries[d.ID] = existing
	}
	if settlement != nil {
		m.adjustments = append(m.adjustments, *settlement)
	}
	return nil
}

func (m *Memory) DeleteDelivery(_ context.Context, id ledger.DeliveryID, deletedBy ledger.StaffID, reason string) (*ledger.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, ledger.ErrDeliveryNotFound
	}
	delete(m.deliveries, id)
	m.deleted = append(m.deleted, ledger.DeletedDelivery{
		ID:        uuid.NewString(),
		Delivery:  d,
		DeletedBy: deletedBy,
		Reason:    reason,
		DeletedAt: time.Now().UTC(),
	})
	return &d, nil
}

func (m *Memory) DeletedDeliveries(_ context.Context) ([]ledger.DeletedDelivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.DeletedDelivery, len(m.deleted))
	copy(out, m.deleted)
	return out, nil
}

// =============================================================================
// ADJUSTMENTS AND DEFERRED MARKS
// =============================================================================

func (m *Memory) SaveAdjustment(_ context.Context, a ledger.ManualAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments = append(m.adjustments, a)
	return nil
}

func (m *Memory) GetDeferredMark(_ context.Context, shopID ledger.ShopID, date ledger.Date) (*ledger.DeferredPaymentMark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mark, ok := m.deferred[deferredKey{ShopID: shopID, Date: date.String()}]
	if !ok {
		return nil, nil
	}
	return &mark, nil
}

func (m *Memory) SaveDeferredMark(_ context.Context, mark ledger.DeferredPaymentMark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferred[deferredKey{ShopID: mark.ShopID, Date: mark.Date.String()}] = mark
	return nil
}

func (m *Memory) ClearDeferredMarks(_ context.Context, date ledger.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.deferred {
		if k.Date == date.String() {
			delete(m.deferred, k)
		}
	}
	return nil
}

// =============================================================================
// PRODUCTS, STAFF, STOCK
// =============================================================================

func (m *Memory) ListProducts(_ context.Context, activeOnly bool) ([]ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var products []ledger.Product
	for _, p := range m.products {
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (m *Memory) GetProduct(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ledger.ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) SaveProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) ListStaff(_ context.Context, activeOnly bool) ([]ledger.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var staff []ledger.Staff
	for _, s := range m.staff {
		if activeOnly && !s.Active {
			continue
		}
		staff = append(staff, s)
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].Name < staff[j].Name })
	return staff, nil
}

func (m *Memory) GetStaff(_ context.Context, id ledger.StaffID) (*ledger.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.staff[id]
	if !ok {
		return nil, ledger.ErrStaffNotFound
	}
	return &s, nil
}

func (m *Memory) SaveStaff(_ context.Context, s ledger.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = s
	return nil
}

func (m *Memory) StockLevels(_ context.Context) ([]ledger.StockLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var levels []ledger.StockLevel
	for _, l := range m.stock {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ProductID < levels[j].ProductID })
	return levels, nil
}

func (m *Memory) GetStock(_ context.Context, productID ledger.ProductID) (*ledger.StockLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.stock[productID]
	if !ok {
		return nil, ledger.ErrProductNotFound
	}
	return &l, nil
}

func (m *Memory) SetStock(_ context.Context, level ledger.StockLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	level.UpdatedAt = time.Now().UTC()
	m.stock[level.ProductID] = level
	return nil
}

func (m *Memory) AdjustStock(_ context.Context, productID ledger.ProductID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.stock[productID]
	if !ok {
		return ledger.ErrProductNotFound
	}
	next := l.Quantity + delta
	if next < 0 {
		return &ledger.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			OnHand:    l.Quantity,
		}
	}
	l.Quantity = next
	l.UpdatedAt = time.Now().UTC()
	m.stock[productID] = l
	return nil
}

// =============================================================================
// DAILY RESET
// =============================================================================

func (m *Memory) ArchiveDeliveries(_ context.Context, date ledger.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, d := range m.deliveries {
		if !d.Archived && d.DeliveryDate.BeforeOrEqual(date) {
			d.Archived = true
			m.deliveries[id] = d
			count++
		}
	}
	return count, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shops = make(map[ledger.ShopID]ledger.Shop)
	m.deliveries = make(map[ledger.DeliveryID]ledger.DeliveryRecord)
	m.payments = nil
	m.adjustments = nil
	m.deferred = make(map[deferredKey]ledger.DeferredPaymentMark)
	m.products = make(map[ledger.ProductID]ledger.Product)
	m.staff = make(map[ledger.StaffID]ledger.Staff)
	m.stock = make(map[ledger.ProductID]ledger.StockLevel)
	m.deleted = nil
	return nil
}

/*
Package route is the collection-route service: the orchestration layer
between the HTTP API and the pure ledger engine.

PURPOSE:
  The ledger package computes; this package coordinates. Every operation
  follows the same shape:
    1. take the shop lock (mutations only)
    2. read raw records through the store
    3. run the engine (Reconcile / Allocate / Classify / AggregateRoute)
    4. persist results atomically through the store
    5. invalidate cached views

WRITE SERIALIZATION:
  Payment allocation is read-modify-write against a reconciled snapshot.
  A per-shop keyed mutex guarantees at most one in-flight allocation per
  shop; the daily reset takes the exclusive route-wide lock. See locks.go.

CACHING:
  Collection and ledger views are cached with a short TTL and invalidated
  after every mutation. See cache.go.

STOCK:
  Delivery entry decrements per-product stock and rejects deliveries the
  van cannot cover; deleting a delivery restores what it consumed.

SEE ALSO:
  - ledger/reconcile.go: the derivation this package orchestrates
  - ledger/allocate.go:  FIFO allocation, persisted via Store.ApplyPayment
*/
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/milkroute/ledger-engine/ledger"
)

const (
	viewCacheTTL      = 30 * time.Second
	viewCacheCapacity = 512

	// collectionFanOut bounds concurrent per-shop reconciliations when
	// building the collection view.
	collectionFanOut = 8
)

// Service wires the store and the ledger engine into route operations.
type Service struct {
	store ledger.Store
	locks *shopLocks
	cache *viewCache
	log   *logrus.Logger

	// today is injectable for tests.
	today func() ledger.Date
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the business-day source.
func WithClock(today func() ledger.Date) Option {
	return func(s *Service) { s.today = today }
}

// NewService creates the route service on top of a store.
func NewService(store ledger.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		locks: newShopLocks(),
		cache: newViewCache(viewCacheTTL, viewCacheCapacity),
		log:   logrus.New(),
		today: ledger.Today,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current business day.
func (s *Service) Today() ledger.Date { return s.today() }

// =============================================================================
// VIEWS
// =============================================================================

// LedgerView is one shop's reconciled position with its classification.
type LedgerView struct {
	Shop      ledger.Shop
	Ledger    ledger.Ledger
	Status    ledger.Status
	Deferred  bool
	Anomalies []ledger.Anomaly
}

// ShopLedger returns the reconciled ledger and status for one shop.
func (s *Service) ShopLedger(ctx context.Context, shopID ledger.ShopID, asOf ledger.Date) (*LedgerView, error) {
	key := fmt.Sprintf("ledger:%s:%s", shopID, asOf)
	if cached := s.cache.get(key); cached != nil {
		return cached.(*LedgerView), nil
	}

	view, err := s.buildLedgerView(ctx, shopID, asOf)
	if err != nil {
		return nil, err
	}
	s.cache.set(key, view)
	return view, nil
}

// buildLedgerView reconciles one shop without touching the cache.
func (s *Service) buildLedgerView(ctx context.Context, shopID ledger.ShopID, asOf ledger.Date) (*LedgerView, error) {
	shop, err := s.store.GetShop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.ShopTransactions(ctx, shopID, asOf)
	if err != nil {
		return nil, err
	}
	l, anomalies := ledger.Reconcile(txs, asOf)

	for _, a := range anomalies {
		s.log.WithFields(logrus.Fields{
			"shop":   shopID,
			"kind":   a.Kind,
			"record": a.RecordID,
		}).Warn(a.Detail)
	}

	mark, err := s.store.GetDeferredMark(ctx, shopID, asOf)
	if err != nil {
		return nil, err
	}
	deferred := mark != nil

	return &LedgerView{
		Shop:      *shop,
		Ledger:    l,
		Status:    ledger.Classify(l, deferred),
		Deferred:  deferred,
		Anomalies: anomalies,
	}, nil
}

// CollectionView reconciles every active shop for the day. Shops are
// processed concurrently; results keep the store's shop ordering.
func (s *Service) CollectionView(ctx context.Context, asOf ledger.Date) ([]LedgerView, error) {
	key := fmt.Sprintf("collection:%s", asOf)
	if cached := s.cache.get(key); cached != nil {
		return cached.([]LedgerView), nil
	}

	shops, err := s.store.ListShops(ctx, true)
	if err != nil {
		return nil, err
	}

	views := make([]LedgerView, len(shops))
	errs := make([]error, len(shops))
	sem := make(chan struct{}, collectionFanOut)
	var wg sync.WaitGroup

	for i, shop := range shops {
		wg.Add(1)
		go func(i int, shopID ledger.ShopID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			view, err := s.buildLedgerView(ctx, shopID, asOf)
			if err != nil {
				errs[i] = err
				return
			}
			views[i] = *view
		}(i, shop.ID)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	s.cache.set(key, views)
	return views, nil
}

// RouteStats aggregates the day's collection view into dashboard totals.
func (s *Service) RouteStats(ctx context.Context, asOf ledger.Date) (ledger.RouteStats, error) {
	views, err := s.CollectionView(ctx, asOf)
	if err != nil {
		return ledger.RouteStats{}, err
	}
	ledgers := make([]ledger.Ledger, len(views))
	for i, v := range views {
		ledgers[i] = v.Ledger
	}
	return ledger.AggregateRoute(ledgers, len(views)), nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentInput is a collection request from the field.
type PaymentInput struct {
	ShopID      ledger.ShopID
	Amount      ledger.Money
	Date        ledger.Date
	CollectedBy ledger.StaffID
	Note        string
}

// PaymentResult reports a processed payment and the shop's new position.
type PaymentResult struct {
	Payment      ledger.PaymentRecord
	Applications []ledger.Application
	Ledger       ledger.Ledger
	Status       ledger.Status
}

// ProcessPayment allocates a payment FIFO across the shop's outstanding
// deliveries and persists the outcome atomically. Serialized per shop.
func (s *Service) ProcessPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if _, err := s.store.GetStaff(ctx, in.CollectedBy); err != nil {
		return nil, err
	}

	unlock := s.locks.lockShop(in.ShopID)
	defer unlock()

	if _, err := s.store.GetShop(ctx, in.ShopID); err != nil {
		return nil, err
	}

	txs, err := s.store.ShopTransactions(ctx, in.ShopID, in.Date)
	if err != nil {
		return nil, err
	}
	l, _ := ledger.Reconcile(txs, in.Date)

	alloc, err := ledger.Allocate(in.Amount, l, txs.Deliveries)
	if err != nil {
		return nil, err
	}

	payment := ledger.PaymentRecord{
		ID:          ledger.PaymentID(uuid.NewString()),
		ShopID:      in.ShopID,
		Amount:      in.Amount,
		PaymentDate: in.Date,
		CollectedBy: in.CollectedBy,
		Note:        in.Note,
		CreatedAt:   time.Now().UTC(),
	}
	// The slice of the payment that exceeded delivery debt retires manual
	// debt; record the matching credit atomically with the payment so the
	// next reconcile sees the reduced manual pending.
	var settlement *ledger.ManualAdjustment
	if alloc.ManualSettled.IsPositive() {
		settlement = &ledger.ManualAdjustment{
			ID:         ledger.AdjustmentID(uuid.NewString()),
			ShopID:     in.ShopID,
			Amount:     alloc.ManualSettled.Neg(),
			OriginDate: in.Date,
			Note:       "settled by payment " + string(payment.ID),
			CreatedAt:  payment.CreatedAt,
		}
	}
	if err := s.store.ApplyPayment(ctx, payment, alloc.UpdatedDeliveries, settlement); err != nil {
		return nil, err
	}
	s.cache.invalidateShop(string(in.ShopID))

	s.log.WithFields(logrus.Fields{
		"shop":       in.ShopID,
		"payment":    payment.ID,
		"amount":     in.Amount,
		"deliveries": len(alloc.Applications),
		"settled":    alloc.ManualSettled,
	}).Info("payment allocated")

	view, err := s.buildLedgerView(ctx, in.ShopID, in.Date)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		Payment:      payment,
		Applications: alloc.Applications,
		Ledger:       view.Ledger,
		Status:       view.Status,
	}, nil
}

// MarkPayTomorrow flags the shop as deferring today's dues. Idempotent:
// re-marking reports alreadyMarked without error.
func (s *Service) MarkPayTomorrow(ctx context.Context, shopID ledger.ShopID, date ledger.Date, note string) (alreadyMarked bool, err error) {
	unlock := s.locks.lockShop(shopID)
	defer unlock()

	if _, err := s.store.GetShop(ctx, shopID); err != nil {
		return false, err
	}

	existing, err := s.store.GetDeferredMark(ctx, shopID, date)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	err = s.store.SaveDeferredMark(ctx, ledger.DeferredPaymentMark{
		ShopID:    shopID,
		Date:      date,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	s.cache.invalidateShop(string(shopID))
	return false, nil
}

// AdjustmentInput records out-of-band debt or credit for a shop.
type AdjustmentInput struct {
	ShopID     ledger.ShopID
	Amount     ledger.Money
	OriginDate ledger.Date
	Note       string
}

// AddManualAdjustment records a manual pending adjustment. The amount is
// signed: positive adds previous-pending debt, negative is a credit.
func (s *Service) AddManualAdjustment(ctx context.Context, in AdjustmentInput) (*ledger.ManualAdjustment, error) {
	if in.Amount.IsZero() {
		return nil, ledger.ErrInvalidAmount
	}

	unlock := s.locks.lockShop(in.ShopID)
	defer unlock()

	if _, err := s.store.GetShop(ctx, in.ShopID); err != nil {
		return nil, err
	}

	adj := ledger.ManualAdjustment{
		ID:         ledger.AdjustmentID(uuid.NewString()),
		ShopID:     in.ShopID,
		Amount:     in.Amount,
		OriginDate: in.OriginDate,
		Note:       in.Note,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveAdjustment(ctx, adj); err != nil {
		return nil, err
	}
	s.cache.invalidateShop(string(in.ShopID))

	s.log.WithFields(logrus.Fields{
		"shop":   in.ShopID,
		"amount": in.Amount,
	}).Info("manual adjustment recorded")
	return &adj, nil
}

// =============================================================================
// DELIVERIES
// =============================================================================

// DeliveryLineInput is one product line of a delivery request.
type DeliveryLineInput struct {
	ProductID ledger.ProductID
	Quantity  int
}

// DeliveryInput is a delivery entry from the field.
type DeliveryInput struct {
	ShopID  ledger.ShopID
	StaffID ledger.StaffID
	Date    ledger.Date
	Lines   []DeliveryLineInput
	Note    string
}

// AddDelivery prices the lines from the product catalog, validates and
// decrements stock, and persists the delivery.
func (s *Service) AddDelivery(ctx context.Context, in DeliveryInput) (*ledger.DeliveryRecord, error) {
	if len(in.Lines) == 0 {
		return nil, errors.New("delivery requires at least one line")
	}
	if _, err := s.store.GetStaff(ctx, in.StaffID); err != nil {
		return nil, err
	}

	unlock := s.locks.lockShop(in.ShopID)
	defer unlock()

	if _, err := s.store.GetShop(ctx, in.ShopID); err != nil {
		return nil, err
	}

	lines := make([]ledger.ProductLine, len(in.Lines))
	total := ledger.ZeroMoney()
	for i, li := range in.Lines {
		if li.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: quantity must be positive", i)
		}
		product, err := s.store.GetProduct(ctx, li.ProductID)
		if err != nil {
			return nil, err
		}
		subtotal := product.UnitPrice.MulInt(li.Quantity)
		lines[i] = ledger.ProductLine{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			UnitPrice: product.UnitPrice,
			Subtotal:  subtotal,
		}
		total = total.Add(subtotal)
	}

	// Decrement stock line by line; on failure, restore what was taken.
	for i, line := range lines {
		if err := s.store.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
			for _, done := range lines[:i] {
				if restoreErr := s.store.AdjustStock(ctx, done.ProductID, done.Quantity); restoreErr != nil {
					s.log.WithError(restoreErr).WithField("product", done.ProductID).
						Error("failed to restore stock after rejected delivery")
				}
			}
			return nil, err
		}
	}

	d := ledger.DeliveryRecord{
		ID:           ledger.DeliveryID(uuid.NewString()),
		ShopID:       in.ShopID,
		StaffID:      in.StaffID,
		DeliveryDate: in.Date,
		Lines:        lines,
		TotalAmount:  total,
		PaidAmount:   ledger.ZeroMoney(),
		Note:         in.Note,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveDelivery(ctx, d); err != nil {
		// Delivery did not persist; put the stock back.
		for _, line := range lines {
			if restoreErr := s.store.AdjustStock(ctx, line.ProductID, line.Quantity); restoreErr != nil {
				s.log.WithError(restoreErr).WithField("product", line.ProductID).
					Error("failed to restore stock after failed save")
			}
		}
		return nil, err
	}
	s.cache.invalidateShop(string(in.ShopID))

	s.log.WithFields(logrus.Fields{
		"shop":     in.ShopID,
		"delivery": d.ID,
		"total":    total,
	}).Info("delivery recorded")
	return &d, nil
}

// DeleteDelivery logically deletes a delivery: the record moves to the
// audit trail and its stock is restored.
func (s *Service) DeleteDelivery(ctx context.Context, id ledger.DeliveryID, deletedBy ledger.StaffID, reason string) (*ledger.DeliveryRecord, error) {
	existing, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lockShop(existing.ShopID)
	defer unlock()

	deleted, err := s.store.DeleteDelivery(ctx, id, deletedBy, reason)
	if err != nil {
		return nil, err
	}

	for _, line := range deleted.Lines {
		if err := s.store.AdjustStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"delivery": id,
				"product":  line.ProductID,
			}).Error("failed to restore stock for deleted delivery")
		}
	}
	s.cache.invalidateShop(string(deleted.ShopID))

	s.log.WithFields(logrus.Fields{
		"delivery": id,
		"by":       deletedBy,
		"reason":   reason,
	}).Info("delivery deleted")
	return deleted, nil
}

// DeliveriesForDate lists the day's active deliveries.
func (s *Service) DeliveriesForDate(ctx context.Context, date ledger.Date) ([]ledger.DeliveryRecord, error) {
	return s.store.DeliveriesForDate(ctx, date)
}

// DeletedDeliveries returns the audit trail.
func (s *Service) DeletedDeliveries(ctx context.Context) ([]ledger.DeletedDelivery, error) {
	return s.store.DeletedDeliveries(ctx)
}

// =============================================================================
// DAILY RESET
// =============================================================================

// ResetResult reports what a daily reset swept.
type ResetResult struct {
	Date               ledger.Date
	DeliveriesArchived int
}

// ResetPreview reports what a reset would sweep, without mutating.
type ResetPreview struct {
	Date           ledger.Date
	DeliveryCount  int
	TotalDelivered ledger.Money
	UnpaidCarried  ledger.Money
}

// ProcessDailyReset closes the business day: archives the day's deliveries
// (unpaid balances carry forward as prior debt) and clears deferred marks.
// Takes the exclusive route lock; no allocation runs concurrently.
func (s *Service) ProcessDailyReset(ctx context.Context, date ledger.Date) (*ResetResult, error) {
	unlock := s.locks.lockRoute()
	defer unlock()

	archived, err := s.store.ArchiveDeliveries(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearDeferredMarks(ctx, date); err != nil {
		return nil, err
	}
	s.cache.invalidateAll()

	s.log.WithFields(logrus.Fields{
		"date":     date,
		"archived": archived,
	}).Info("daily reset complete")

	return &ResetResult{Date: date, DeliveriesArchived: archived}, nil
}

// ResetAll wipes the store. Demo scenario loading only; takes the
// exclusive route lock so nothing runs against a half-cleared database.
func (s *Service) ResetAll(ctx context.Context) error {
	unlock := s.locks.lockRoute()
	defer unlock()

	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.cache.invalidateAll()
	s.log.Warn("store wiped for scenario load")
	return nil
}

// PreviewDailyReset reports what ProcessDailyReset would archive.
func (s *Service) PreviewDailyReset(ctx context.Context, date ledger.Date) (*ResetPreview, error) {
	deliveries, err := s.store.DeliveriesForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	preview := &ResetPreview{
		Date:           date,
		DeliveryCount:  len(deliveries),
		TotalDelivered: ledger.ZeroMoney(),
		UnpaidCarried:  ledger.ZeroMoney(),
	}
	for _, d := range deliveries {
		preview.TotalDelivered = preview.TotalDelivered.Add(d.TotalAmount)
		preview.UnpaidCarried = preview.UnpaidCarried.Add(d.Unpaid())
	}
	return preview, nil
}

// DailySummary is the report for one business day.
type DailySummary struct {
	Date  ledger.Date
	Stats ledger.RouteStats
	Shops []LedgerView
}

// Summary builds the daily report for any date, today or past.
func (s *Service) Summary(ctx context.Context, date ledger.Date) (*DailySummary, error) {
	views, err := s.CollectionView(ctx, date)
	if err != nil {
		return nil, err
	}
	ledgers := make([]ledger.Ledger, len(views))
	for i, v := range views {
		ledgers[i] = v.Ledger
	}
	return &DailySummary{
		Date:  date,
		Stats: ledger.AggregateRoute(ledgers, len(views)),
		Shops: views,
	}, nil
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListShops returns shops, optionally only active ones.
func (s *Service) ListShops(ctx context.Context, activeOnly bool) ([]ledger.Shop, error) {
	return s.store.ListShops(ctx, activeOnly)
}

// GetShop returns one shop.
func (s *Service) GetShop(ctx context.Context, id ledger.ShopID) (*ledger.Shop, error) {
	return s.store.GetShop(ctx, id)
}

// SaveShop creates or updates a shop, assigning an id when absent.
func (s *Service) SaveShop(ctx context.Context, shop ledger.Shop) (*ledger.Shop, error) {
	if shop.ID == "" {
		shop.ID = ledger.ShopID(uuid.NewString())
	}
	if err := s.store.SaveShop(ctx, shop); err != nil {
		return nil, err
	}
	s.cache.invalidateAll()
	return &shop, nil
}

// DeactivateShop soft-deletes a shop. Its records remain.
func (s *Service) DeactivateShop(ctx context.Context, id ledger.ShopID) error {
	if err := s.store.DeactivateShop(ctx, id); err != nil {
		return err
	}
	s.cache.invalidateAll()
	return nil
}

// ShopTransactions exposes the raw record bundle for one shop.
func (s *Service) ShopTransactions(ctx context.Context, shopID ledger.ShopID, asOf ledger.Date) (ledger.ShopTransactions, error) {
	if _, err := s.store.GetShop(ctx, shopID); err != nil {
		return ledger.ShopTransactions{}, err
	}
	return s.store.ShopTransactions(ctx, shopID, asOf)
}

// ListProducts returns products, optionally only active ones.
func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]ledger.Product, error) {
	return s.store.ListProducts(ctx, activeOnly)
}

// SaveProduct creates or updates a product, assigning an id when absent.
func (s *Service) SaveProduct(ctx context.Context, p ledger.Product) (*ledger.Product, error) {
	if p.ID == "" {
		p.ID = ledger.ProductID(uuid.NewString())
	}
	if err := s.store.SaveProduct(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListStaff returns delivery staff, optionally only active ones.
func (s *Service) ListStaff(ctx context.Context, activeOnly bool) ([]ledger.Staff, error) {
	return s.store.ListStaff(ctx, activeOnly)
}

// SaveStaff creates or updates a staff member, assigning an id when absent.
func (s *Service) SaveStaff(ctx context.Context, st ledger.Staff) (*ledger.Staff, error) {
	if st.ID == "" {
		st.ID = ledger.StaffID(uuid.NewString())
	}
	if err := s.store.SaveStaff(ctx, st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StockLevels returns all stock levels.
func (s *Service) StockLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	return s.store.StockLevels(ctx)
}

// SetStock sets a product's quantity and low-stock threshold.
func (s *Service) SetStock(ctx context.Context, level ledger.StockLevel) error {
	if _, err := s.store.GetProduct(ctx, level.ProductID); err != nil {
		return err
	}
	return s.store.SetStock(ctx, level)
}

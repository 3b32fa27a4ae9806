/*
store.go - Persistence contracts for the route ledger

PURPOSE:
  Defines the interface between the engine/service layers and persistence.
  The read contract (TransactionReader) is the engine's only storage
  boundary: it hands back RAW records for reconciliation, never aggregates.

READ CONTRACT:
  ShopTransactions(shopID, asOf) returns:
    - deliveries that still carry meaning as of asOf: every non-archived
      delivery dated <= asOf, plus archived deliveries that still have an
      unpaid balance (swept debt stays visible as prior pending)
    - all payments dated <= asOf
    - all manual adjustments
  No summing, no filtering beyond the above. Reconcile does the rest.

WRITE CONTRACT:
  ApplyPayment persists a payment record together with the delivery
  paid-amount updates produced by the allocator and, when part of the
  payment retired manual-adjustment debt, the matching settlement credit -
  all atomically. There is no API for editing a payment: payments are
  immutable once created.

FAILURE MODE:
  Storage errors surface as *FetchError (reads) or plain wrapped errors
  (writes). The store performs no retries; callers own retry policy.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - ledger/store:  in-memory store for tests and dev
*/
package ledger

import "context"

// =============================================================================
// READ CONTRACT - What the reconciler consumes
// =============================================================================

// TransactionReader fetches raw transaction records for reconciliation.
type TransactionReader interface {
	// ShopTransactions returns the raw record bundle for one shop as of a
	// date. Errors are reported as *FetchError.
	ShopTransactions(ctx context.Context, shopID ShopID, asOf Date) (ShopTransactions, error)
}

// =============================================================================
// STORE - Full persistence surface used by the route service
// =============================================================================

// Store is the complete persistence contract. It stays record-oriented:
// every aggregation lives in the engine, not in SQL.
type Store interface {
	TransactionReader

	// Shops
	ListShops(ctx context.Context, activeOnly bool) ([]Shop, error)
	GetShop(ctx context.Context, id ShopID) (*Shop, error)
	SaveShop(ctx context.Context, shop Shop) error
	DeactivateShop(ctx context.Context, id ShopID) error

	// Deliveries
	SaveDelivery(ctx context.Context, d DeliveryRecord) error
	GetDelivery(ctx context.Context, id DeliveryID) (*DeliveryRecord, error)
	DeliveriesForDate(ctx context.Context, date Date) ([]DeliveryRecord, error)

	// ApplyPayment atomically persists the payment record, the delivery
	// paid-amount updates from an allocation, and the settlement credit
	// adjustment for any part of the payment that retired manual debt
	// (nil when deliveries absorbed the whole amount).
	ApplyPayment(ctx context.Context, p PaymentRecord, updated []DeliveryRecord, settlement *ManualAdjustment) error

	// DeleteDelivery moves a delivery into the deleted-deliveries audit
	// trail. Stock reversal is the service's job.
	DeleteDelivery(ctx context.Context, id DeliveryID, deletedBy StaffID, reason string) (*DeliveryRecord, error)
	DeletedDeliveries(ctx context.Context) ([]DeletedDelivery, error)

	// Adjustments
	SaveAdjustment(ctx context.Context, a ManualAdjustment) error

	// Deferred payment marks
	GetDeferredMark(ctx context.Context, shopID ShopID, date Date) (*DeferredPaymentMark, error)
	SaveDeferredMark(ctx context.Context, mark DeferredPaymentMark) error
	ClearDeferredMarks(ctx context.Context, date Date) error

	// Products
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	SaveProduct(ctx context.Context, p Product) error

	// Staff
	ListStaff(ctx context.Context, activeOnly bool) ([]Staff, error)
	GetStaff(ctx context.Context, id StaffID) (*Staff, error)
	SaveStaff(ctx context.Context, s Staff) error

	// Stock
	StockLevels(ctx context.Context) ([]StockLevel, error)
	GetStock(ctx context.Context, productID ProductID) (*StockLevel, error)
	SetStock(ctx context.Context, level StockLevel) error

	// AdjustStock applies a signed delta to a product's on-hand quantity.
	// Used by delivery entry (negative) and delivery deletion (positive).
	AdjustStock(ctx context.Context, productID ProductID, delta int) error

	// ArchiveDeliveries marks every non-archived delivery dated <= date as
	// archived, returning how many rows were swept. Part of the daily reset.
	ArchiveDeliveries(ctx context.Context, date Date) (int, error)

	// Reset wipes every record. Demo scenario loading only; never called in
	// normal operation.
	Reset(ctx context.Context) error
}

/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All engine error types in one place. Callers use errors.Is/errors.As;
  the service and API layers map these onto HTTP statuses.

ERROR CATEGORIES:
  1. Rejections   - user-facing, e.g. a payment exceeding total pending
  2. Fetch errors - storage failures surfaced verbatim from the adapter
  3. Not-found    - referenced records that don't exist

ANOMALIES ARE NOT ERRORS:
  Over-paid deliveries, future-dated deliveries, and non-positive payments
  are clamped or excluded and reported alongside results (see reconcile.go).
  They can arise from concurrent edits and must never abort reconciliation.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPaymentExceedsPending is returned when an allocation request is
	// larger than the shop's total pending. Enforced at the boundary rather
	// than silently truncated, so no unexplained credit balance can appear.
	ErrPaymentExceedsPending = errors.New("payment exceeds total pending")

	// ErrShopNotFound is returned when a referenced shop doesn't exist.
	ErrShopNotFound = errors.New("shop not found")

	// ErrDeliveryNotFound is returned when a referenced delivery doesn't exist.
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrProductNotFound is returned when a referenced product doesn't exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrStaffNotFound is returned when a referenced staff member doesn't exist.
	ErrStaffNotFound = errors.New("staff not found")

	// ErrInsufficientStock is returned when a delivery asks for more packets
	// than are on hand.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidAmount is returned for zero or negative amounts on operations
	// that require a positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PaymentExceedsPendingError reports an over-sized allocation together with
// the maximum collectible amount: the ledger's total pending, or, when the
// reconciled ledger and the delivery list disagree, the delivery debt the
// list actually covers plus settleable manual debt. The caller must not
// retry with the same amount.
type PaymentExceedsPendingError struct {
	ShopID    ShopID
	Requested Money
	Max       Money
}

func (e *PaymentExceedsPendingError) Error() string {
	return fmt.Sprintf("payment %v exceeds collectible balance %v for shop %s",
		e.Requested.Value, e.Max.Value, e.ShopID)
}

func (e *PaymentExceedsPendingError) Unwrap() error {
	return ErrPaymentExceedsPending
}

// FetchError wraps a storage failure from the transaction store adapter.
// The engine is never invoked with partial data: a fetch failure means
// "ledger unavailable", not "ledger is zero".
type FetchError struct {
	ShopID ShopID
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for shop %s: %v", e.Op, e.ShopID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InsufficientStockError reports which product ran short.
type InsufficientStockError struct {
	ProductID ProductID
	Requested int
	OnHand    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, on hand %d",
		e.ProductID, e.Requested, e.OnHand)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPaymentExceedsPending) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrShopNotFound) ||
		errors.Is(err, ErrDeliveryNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrStaffNotFound)
}

// IsFetchError returns true if the error came from the storage adapter.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

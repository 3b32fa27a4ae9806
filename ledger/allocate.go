/*
allocate.go - FIFO payment allocation

PURPOSE:
  Distributes an incoming payment across a shop's outstanding deliveries,
  oldest debt first. The allocator is pure: it takes the current record set
  and returns UPDATED COPIES; persisting the result (atomically, together
  with the payment record) is the service layer's job.

POLICY - oldest-debt-first:
  1. Sort outstanding deliveries by delivery date ascending, creation time
     ascending as the stable tie-break.
  2. Walk the list applying min(remaining, unpaid) to each delivery.
  3. Whatever exceeds delivery debt settles manual-adjustment debt, up to
     the ledger's ManualPending; the result reports it as ManualSettled and
     the service records the matching credit adjustment. Paying exactly
     TotalPending therefore always drives TotalPending to 0.
  4. A payment larger than total pending is REJECTED up front with
     PaymentExceedsPendingError carrying the maximum collectible amount.
     Truncating silently would create unexplained credit balances.

"PAY TOMORROW":
  Deferral is not an allocation. It is a mark on the shop/date handled by
  the service layer (see route.Service.MarkPayTomorrow) and is mutually
  exclusive with allocating the same cycle's amount.
*/
package ledger

import (
	"fmt"
	"sort"
)

// Application records how much of a payment landed on one delivery.
type Application struct {
	DeliveryID DeliveryID
	Applied    Money
}

// AllocationResult is the outcome of a successful allocation.
type AllocationResult struct {
	// UpdatedDeliveries are copies of the input deliveries whose PaidAmount
	// changed, in allocation order. Untouched deliveries are not included.
	UpdatedDeliveries []DeliveryRecord

	// Applications lists the per-delivery split, in allocation order.
	Applications []Application

	// ManualSettled is the part of the payment that exceeded delivery debt
	// and retires manual-adjustment debt instead. Bounded by the ledger's
	// ManualPending; zero when deliveries absorbed the whole amount. The
	// caller records the matching credit adjustment.
	ManualSettled Money
}

// Allocate distributes amount across the shop's outstanding deliveries,
// oldest first.
//
// The ledger must be the current reconciled view of the same shop as the
// outstanding deliveries; a shop id mismatch is a programmer error and
// panics. Inputs are not mutated.
func Allocate(amount Money, l Ledger, outstanding []DeliveryRecord) (AllocationResult, error) {
	if !amount.IsPositive() {
		return AllocationResult{}, ErrInvalidAmount
	}

	for _, d := range outstanding {
		if d.ShopID != l.ShopID {
			panic(fmt.Sprintf("ledger: allocation for shop %s given delivery %s of shop %s",
				l.ShopID, d.ID, d.ShopID))
		}
	}

	if amount.GreaterThan(l.TotalPending) {
		return AllocationResult{}, &PaymentExceedsPendingError{
			ShopID:    l.ShopID,
			Requested: amount,
			Max:       l.TotalPending,
		}
	}

	// Only deliveries with a genuine outstanding balance participate.
	open := make([]DeliveryRecord, 0, len(outstanding))
	for _, d := range outstanding {
		if d.Unpaid().IsPositive() {
			open = append(open, d)
		}
	}

	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].DeliveryDate.Equal(open[j].DeliveryDate) {
			return open[i].DeliveryDate.Before(open[j].DeliveryDate)
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})

	result := AllocationResult{ManualSettled: ZeroMoney()}
	remaining := amount

	for _, d := range open {
		if !remaining.IsPositive() {
			break
		}
		applied := remaining.Min(d.Unpaid())
		d.PaidAmount = d.PaidAmount.Add(applied)
		remaining = remaining.Sub(applied)

		result.UpdatedDeliveries = append(result.UpdatedDeliveries, d)
		result.Applications = append(result.Applications, Application{
			DeliveryID: d.ID,
			Applied:    applied,
		})
	}

	// Whatever the deliveries could not absorb settles manual-adjustment
	// debt. The up-front bound check keeps the remainder within ManualPending
	// unless the ledger and the delivery list disagree (stale snapshot); that
	// case is rejected with the genuinely collectible amount rather than
	// inventing credit.
	settleable := l.ManualPending.ClampNonNegative()
	if remaining.GreaterThan(settleable) {
		return AllocationResult{}, &PaymentExceedsPendingError{
			ShopID:    l.ShopID,
			Requested: amount,
			Max:       amount.Sub(remaining).Add(settleable),
		}
	}
	result.ManualSettled = remaining

	return result, nil
}

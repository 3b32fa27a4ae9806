/*
status.go - Collection status classification

PURPOSE:
  Derives a shop's display status from its reconciled ledger and the
  deferred-payment flag.

TIE-BREAK ORDER (significant):
  1. pay_tomorrow - deferral is the user's final word for the cycle. It
     wins even when a partial payment also happened before the deferral.
  2. paid        - nothing pending at all.
  3. partial     - cash arrived today but something is still pending.
  4. pending     - everything else.
*/
package ledger

// Classify derives the display status for a ledger.
//
// deferred is whether a DeferredPaymentMark exists for the ledger's shop and
// as-of date. The mark only matters while today's pending is non-zero: a shop
// that deferred and then somehow ended up fully collected shows as paid.
func Classify(l Ledger, deferred bool) Status {
	switch {
	case deferred && l.TodayPending.IsPositive():
		return StatusPayTomorrow
	case l.TotalPending.IsZero():
		return StatusPaid
	case l.TodayPaid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

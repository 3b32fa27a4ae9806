/*
reconcile.go - Ledger reconciliation

PURPOSE:
  Computes the reconciled Ledger for one shop as of one date. This is the
  single authoritative implementation of "what does this shop owe" - every
  screen renders this result instead of recomputing sums with its own
  filters.

ALGORITHM:
  1. Partition deliveries into today (date == asOf) and prior (date < asOf).
     Deliveries dated after asOf are treated as not-yet-occurred: excluded,
     and reported as an anomaly (they should not exist in well-formed data).
  2. Per delivery, unpaid = TotalAmount - PaidAmount. A negative unpaid
     (over-payment) is clamped to zero and reported as an anomaly rather
     than propagated as negative pending.
  3. TodayPending is the SUM OF PER-DELIVERY unpaid values, not the
     aggregate subtraction max(0, delivered-paid). The per-delivery figure
     is authoritative: aggregating first would let one over-paid delivery
     mask another underpaid one.
  4. PriorPending sums unpaid on deliveries dated before asOf.
  5. ManualPending sums adjustments. Adjustments ALWAYS land in previous
     pending regardless of origin date.
  6. PreviousPending = PriorPending + ManualPending, floored at zero (a net
     credit larger than prior debt is clamped and reported as an anomaly).
  7. TodayPaid is computed from payment records dated asOf. This is a
     separate figure from the PaidAmount bookkeeping on today's deliveries:
     cash received today may have retired yesterday's debt.

PURITY:
  Reconcile is a pure function of its inputs. Reconciling the same record
  set twice yields identical ledgers. Safe to call from any goroutine.
*/
package ledger

// =============================================================================
// ANOMALIES - Non-fatal data oddities found during reconciliation
// =============================================================================

// AnomalyKind identifies a class of non-fatal data oddity.
type AnomalyKind string

const (
	// AnomalyOverpaidDelivery: a delivery's PaidAmount exceeds its TotalAmount.
	AnomalyOverpaidDelivery AnomalyKind = "overpaid_delivery"

	// AnomalyFutureDelivery: a delivery dated after the as-of date.
	AnomalyFutureDelivery AnomalyKind = "future_delivery"

	// AnomalyNonPositivePayment: a payment with zero or negative amount.
	AnomalyNonPositivePayment AnomalyKind = "non_positive_payment"

	// AnomalyNegativePreviousPending: manual credits exceeded prior debt;
	// previous pending was floored at zero.
	AnomalyNegativePreviousPending AnomalyKind = "negative_previous_pending"
)

// Anomaly describes a record the reconciler clamped or excluded. Anomalies
// are returned alongside the result for logging; they never abort the
// computation, since they can arise from concurrent edits.
type Anomaly struct {
	Kind     AnomalyKind
	RecordID string
	Detail   string
}

// =============================================================================
// RECONCILE - Raw records in, Ledger out
// =============================================================================

// Reconcile computes the ledger for txs.ShopID as of asOf.
func Reconcile(txs ShopTransactions, asOf Date) (Ledger, []Anomaly) {
	var anomalies []Anomaly

	todayDelivered := ZeroMoney()
	todayPaidFromDeliveries := ZeroMoney()
	todayPending := ZeroMoney()
	priorPending := ZeroMoney()

	for _, d := range txs.Deliveries {
		if d.DeliveryDate.After(asOf) {
			anomalies = append(anomalies, Anomaly{
				Kind:     AnomalyFutureDelivery,
				RecordID: string(d.ID),
				Detail:   "delivery dated " + d.DeliveryDate.String() + " after as-of " + asOf.String(),
			})
			continue
		}

		unpaid := d.Unpaid()
		if unpaid.IsNegative() {
			anomalies = append(anomalies, Anomaly{
				Kind:     AnomalyOverpaidDelivery,
				RecordID: string(d.ID),
				Detail:   "paid " + d.PaidAmount.String() + " against total " + d.TotalAmount.String(),
			})
			unpaid = ZeroMoney()
		}

		if d.DeliveryDate.Equal(asOf) {
			todayDelivered = todayDelivered.Add(d.TotalAmount)
			todayPaidFromDeliveries = todayPaidFromDeliveries.Add(d.PaidAmount)
			todayPending = todayPending.Add(unpaid)
		} else {
			priorPending = priorPending.Add(unpaid)
		}
	}

	// Cash view: actual payments dated asOf, independent of how (or whether)
	// they were allocated against deliveries.
	todayPaid := ZeroMoney()
	for _, p := range txs.Payments {
		if !p.Amount.IsPositive() {
			anomalies = append(anomalies, Anomaly{
				Kind:     AnomalyNonPositivePayment,
				RecordID: string(p.ID),
				Detail:   "payment amount " + p.Amount.String(),
			})
			continue
		}
		if p.PaymentDate.Equal(asOf) {
			todayPaid = todayPaid.Add(p.Amount)
		}
	}

	manualPending := ZeroMoney()
	for _, a := range txs.Adjustments {
		manualPending = manualPending.Add(a.Amount)
	}

	previousPending := priorPending.Add(manualPending)
	if previousPending.IsNegative() {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyNegativePreviousPending,
			Detail: "net " + previousPending.String() + " floored at zero",
		})
		previousPending = ZeroMoney()
	}

	return Ledger{
		ShopID:                  txs.ShopID,
		AsOf:                    asOf,
		TodayDelivered:          todayDelivered,
		TodayPaid:               todayPaid,
		TodayPaidFromDeliveries: todayPaidFromDeliveries,
		TodayPending:            todayPending,
		PriorPending:            priorPending,
		ManualPending:           manualPending,
		PreviousPending:         previousPending,
		TotalPending:            todayPending.Add(previousPending),
	}, anomalies
}

package ledger_test

import (
	"testing"
	"time"

	"github.com/milkroute/ledger-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(day int) ledger.Date {
	return ledger.NewDate(2025, time.June, day)
}

func money(v float64) ledger.Money {
	return ledger.NewMoney(v)
}

func delivery(id string, shop ledger.ShopID, on ledger.Date, total, paid float64) ledger.DeliveryRecord {
	return ledger.DeliveryRecord{
		ID:           ledger.DeliveryID(id),
		ShopID:       shop,
		DeliveryDate: on,
		TotalAmount:  money(total),
		PaidAmount:   money(paid),
		CreatedAt:    on.Time,
	}
}

func payment(id string, shop ledger.ShopID, on ledger.Date, amount float64) ledger.PaymentRecord {
	return ledger.PaymentRecord{
		ID:          ledger.PaymentID(id),
		ShopID:      shop,
		Amount:      money(amount),
		PaymentDate: on,
	}
}

func adjustment(id string, shop ledger.ShopID, on ledger.Date, amount float64) ledger.ManualAdjustment {
	return ledger.ManualAdjustment{
		ID:         ledger.AdjustmentID(id),
		ShopID:     shop,
		Amount:     money(amount),
		OriginDate: on,
	}
}

func hasAnomaly(anomalies []ledger.Anomaly, kind ledger.AnomalyKind) bool {
	for _, a := range anomalies {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// =============================================================================
// BASIC PARTITIONING
// =============================================================================

func TestReconcile_TodayAndPriorPartition(t *testing.T) {
	// GIVEN: one prior unpaid delivery of 100 (yesterday), one today delivery
	//        of 50, no payments, no adjustments
	// THEN:  todayPending=50, previousPending=100, totalPending=150
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-prior", "shop-1", date(9), 100, 0),
			delivery("d-today", "shop-1", asOf, 50, 0),
		},
	}

	l, anomalies := ledger.Reconcile(txs, asOf)

	if len(anomalies) != 0 {
		t.Fatalf("unexpected anomalies: %v", anomalies)
	}
	if !l.TodayDelivered.Equal(money(50)) {
		t.Errorf("todayDelivered = %v, want 50", l.TodayDelivered)
	}
	if !l.TodayPending.Equal(money(50)) {
		t.Errorf("todayPending = %v, want 50", l.TodayPending)
	}
	if !l.PreviousPending.Equal(money(100)) {
		t.Errorf("previousPending = %v, want 100", l.PreviousPending)
	}
	if !l.TotalPending.Equal(money(150)) {
		t.Errorf("totalPending = %v, want 150", l.TotalPending)
	}
}

func TestReconcile_SumIdentityAndNonNegative(t *testing.T) {
	// Invariant: totalPending == todayPending + previousPending, all >= 0.
	asOf := date(15)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d1", "shop-1", date(12), 80, 30),
			delivery("d2", "shop-1", date(14), 40, 40),
			delivery("d3", "shop-1", asOf, 60, 10),
		},
		Payments: []ledger.PaymentRecord{
			payment("p1", "shop-1", date(14), 40),
			payment("p2", "shop-1", asOf, 10),
		},
		Adjustments: []ledger.ManualAdjustment{
			adjustment("a1", "shop-1", date(1), 25),
		},
	}

	l, _ := ledger.Reconcile(txs, asOf)

	if !l.TotalPending.Equal(l.TodayPending.Add(l.PreviousPending)) {
		t.Errorf("totalPending %v != todayPending %v + previousPending %v",
			l.TotalPending, l.TodayPending, l.PreviousPending)
	}
	for name, m := range map[string]ledger.Money{
		"todayPending":    l.TodayPending,
		"previousPending": l.PreviousPending,
		"totalPending":    l.TotalPending,
	} {
		if m.IsNegative() {
			t.Errorf("%s is negative: %v", name, m)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	// Pure function: reconciling the same set twice yields identical ledgers.
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d1", "shop-1", date(8), 100, 20),
			delivery("d2", "shop-1", asOf, 50, 0),
		},
		Payments: []ledger.PaymentRecord{
			payment("p1", "shop-1", asOf, 20),
		},
	}

	first, _ := ledger.Reconcile(txs, asOf)
	second, _ := ledger.Reconcile(txs, asOf)

	pairs := []struct {
		name string
		a, b ledger.Money
	}{
		{"todayDelivered", first.TodayDelivered, second.TodayDelivered},
		{"todayPaid", first.TodayPaid, second.TodayPaid},
		{"todayPaidFromDeliveries", first.TodayPaidFromDeliveries, second.TodayPaidFromDeliveries},
		{"todayPending", first.TodayPending, second.TodayPending},
		{"previousPending", first.PreviousPending, second.PreviousPending},
		{"totalPending", first.TotalPending, second.TotalPending},
	}
	for _, p := range pairs {
		if !p.a.Equal(p.b) {
			t.Errorf("reconcile not deterministic: %s %v vs %v", p.name, p.a, p.b)
		}
	}
}

// =============================================================================
// DUAL BOOKKEEPING - cash view vs delivery bookkeeping
// =============================================================================

func TestReconcile_TodayPaidIsCashView_NotDeliveryBookkeeping(t *testing.T) {
	// GIVEN: yesterday's delivery of 100 fully retired by a payment of 100
	//        received TODAY, and an unpaid today delivery of 50
	// THEN:  todayPaid=100 (cash arrived today) while
	//        todayPaidFromDeliveries=0 (today's delivery untouched)
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-prior", "shop-1", date(9), 100, 100),
			delivery("d-today", "shop-1", asOf, 50, 0),
		},
		Payments: []ledger.PaymentRecord{
			payment("p1", "shop-1", asOf, 100),
		},
	}

	l, _ := ledger.Reconcile(txs, asOf)

	if !l.TodayPaid.Equal(money(100)) {
		t.Errorf("todayPaid = %v, want 100", l.TodayPaid)
	}
	if !l.TodayPaidFromDeliveries.Equal(money(0)) {
		t.Errorf("todayPaidFromDeliveries = %v, want 0", l.TodayPaidFromDeliveries)
	}
	if !l.TodayDelivered.Equal(money(50)) {
		t.Errorf("todayDelivered = %v, want 50 (prior delivery must not count)", l.TodayDelivered)
	}
	if !l.TotalPending.Equal(money(50)) {
		t.Errorf("totalPending = %v, want 50", l.TotalPending)
	}
}

// =============================================================================
// PER-DELIVERY CLAMPING
// =============================================================================

func TestReconcile_OverpaidDeliveryClampedNotMasked(t *testing.T) {
	// GIVEN: today has one over-paid delivery (paid 120 on 100) and one
	//        unpaid delivery of 50
	// THEN:  todayPending=50. The aggregate subtraction (150-170) would give
	//        0; per-delivery unpaid is authoritative so the over-payment
	//        cannot mask the unpaid delivery.
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-over", "shop-1", asOf, 100, 120),
			delivery("d-open", "shop-1", asOf, 50, 0),
		},
	}

	l, anomalies := ledger.Reconcile(txs, asOf)

	if !l.TodayPending.Equal(money(50)) {
		t.Errorf("todayPending = %v, want 50", l.TodayPending)
	}
	if !hasAnomaly(anomalies, ledger.AnomalyOverpaidDelivery) {
		t.Error("expected overpaid_delivery anomaly")
	}
}

func TestReconcile_FutureDeliveryExcluded(t *testing.T) {
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-future", "shop-1", date(11), 75, 0),
		},
	}

	l, anomalies := ledger.Reconcile(txs, asOf)

	if !l.TotalPending.IsZero() {
		t.Errorf("totalPending = %v, want 0 (future delivery excluded)", l.TotalPending)
	}
	if !hasAnomaly(anomalies, ledger.AnomalyFutureDelivery) {
		t.Error("expected future_delivery anomaly")
	}
}

func TestReconcile_NonPositivePaymentExcluded(t *testing.T) {
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Payments: []ledger.PaymentRecord{
			payment("p-zero", "shop-1", asOf, 0),
			payment("p-neg", "shop-1", asOf, -10),
			payment("p-ok", "shop-1", asOf, 30),
		},
	}

	l, anomalies := ledger.Reconcile(txs, asOf)

	if !l.TodayPaid.Equal(money(30)) {
		t.Errorf("todayPaid = %v, want 30", l.TodayPaid)
	}
	count := 0
	for _, a := range anomalies {
		if a.Kind == ledger.AnomalyNonPositivePayment {
			count++
		}
	}
	if count != 2 {
		t.Errorf("non_positive_payment anomalies = %d, want 2", count)
	}
}

// =============================================================================
// MANUAL ADJUSTMENTS - always previous pending
// =============================================================================

func TestReconcile_ManualAdjustmentAlwaysPrevious(t *testing.T) {
	// The adjustment is dated TODAY and still lands in previousPending.
	// Easy rule to get wrong, so locked in explicitly.
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-prior", "shop-1", date(9), 100, 0),
			delivery("d-today", "shop-1", asOf, 50, 0),
		},
		Adjustments: []ledger.ManualAdjustment{
			adjustment("a-today", "shop-1", asOf, 25),
		},
	}

	l, _ := ledger.Reconcile(txs, asOf)

	if !l.PreviousPending.Equal(money(125)) {
		t.Errorf("previousPending = %v, want 125", l.PreviousPending)
	}
	if !l.TotalPending.Equal(money(175)) {
		t.Errorf("totalPending = %v, want 175", l.TotalPending)
	}
	if !l.TodayPending.Equal(money(50)) {
		t.Errorf("todayPending = %v, want 50 (adjustment must not leak into today)", l.TodayPending)
	}
}

func TestReconcile_NegativeAdjustmentFlooredAtZero(t *testing.T) {
	// A credit larger than prior debt floors previousPending at zero and
	// reports the clamping.
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-prior", "shop-1", date(9), 40, 0),
		},
		Adjustments: []ledger.ManualAdjustment{
			adjustment("a-credit", "shop-1", date(1), -100),
		},
	}

	l, anomalies := ledger.Reconcile(txs, asOf)

	if !l.PreviousPending.IsZero() {
		t.Errorf("previousPending = %v, want 0", l.PreviousPending)
	}
	if !hasAnomaly(anomalies, ledger.AnomalyNegativePreviousPending) {
		t.Error("expected negative_previous_pending anomaly")
	}
}

func TestReconcile_NegativeAdjustmentReducesPreviousPending(t *testing.T) {
	// A credit smaller than prior debt simply reduces it. No anomaly.
	asOf := date(10)
	txs := ledger.ShopTransactions{
		ShopID: "shop-1",
		Deliveries: []ledger.DeliveryRecord{
			delivery("d-prior", "shop-1", date(9), 100, 0),
		},
		Adjustments: []ledger.ManualAdjustment{
			adjustment("a-credit", "shop-1", date(1), -30),
		},
	}

	l, anomalies := ledger.Reconcile(txs, asOf)

	if !l.PreviousPending.Equal(money(70)) {
		t.Errorf("previousPending = %v, want 70", l.PreviousPending)
	}
	if len(anomalies) != 0 {
		t.Errorf("unexpected anomalies: %v", anomalies)
	}
}

func TestReconcile_EmptyTransactions(t *testing.T) {
	l, anomalies := ledger.Reconcile(ledger.ShopTransactions{ShopID: "shop-1"}, date(10))

	if !l.TotalPending.IsZero() || !l.TodayDelivered.IsZero() || !l.TodayPaid.IsZero() {
		t.Errorf("empty transactions must reconcile to zeroes, got %+v", l)
	}
	if len(anomalies) != 0 {
		t.Errorf("unexpected anomalies: %v", anomalies)
	}
}

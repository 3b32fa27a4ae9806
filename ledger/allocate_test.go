package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/milkroute/ledger-engine/ledger"
)

func deliveryAt(id string, shop ledger.ShopID, on ledger.Date, createdAt time.Time, total, paid float64) ledger.DeliveryRecord {
	d := delivery(id, shop, on, total, paid)
	d.CreatedAt = createdAt
	return d
}

func reconciled(deliveries ...ledger.DeliveryRecord) ledger.Ledger {
	l, _ := ledger.Reconcile(ledger.ShopTransactions{
		ShopID:     "shop-1",
		Deliveries: deliveries,
	}, date(10))
	return l
}

// =============================================================================
// FIFO PROPERTY
// =============================================================================

func TestAllocate_FIFO_OldestDeliveryFirst(t *testing.T) {
	// GIVEN: deliveries D1 (June 8) and D2 (June 9), both unpaid
	// WHEN:  paying less than D1's unpaid
	// THEN:  everything lands on D1, D2 untouched
	d1 := delivery("d1", "shop-1", date(8), 100, 0)
	d2 := delivery("d2", "shop-1", date(9), 100, 0)
	l := reconciled(d1, d2)

	result, err := ledger.Allocate(money(60), l, []ledger.DeliveryRecord{d2, d1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.UpdatedDeliveries) != 1 {
		t.Fatalf("updated %d deliveries, want 1", len(result.UpdatedDeliveries))
	}
	if result.UpdatedDeliveries[0].ID != "d1" {
		t.Errorf("allocated to %s, want d1", result.UpdatedDeliveries[0].ID)
	}
	if !result.UpdatedDeliveries[0].PaidAmount.Equal(money(60)) {
		t.Errorf("d1 paid = %v, want 60", result.UpdatedDeliveries[0].PaidAmount)
	}
}

func TestAllocate_TieBreakByCreationTime(t *testing.T) {
	// Same delivery date: earlier CreatedAt wins.
	base := time.Date(2025, time.June, 9, 8, 0, 0, 0, time.UTC)
	first := deliveryAt("d-early", "shop-1", date(9), base, 50, 0)
	second := deliveryAt("d-late", "shop-1", date(9), base.Add(time.Hour), 50, 0)
	l := reconciled(first, second)

	result, err := ledger.Allocate(money(50), l, []ledger.DeliveryRecord{second, first})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.UpdatedDeliveries[0].ID != "d-early" {
		t.Errorf("allocated to %s first, want d-early", result.UpdatedDeliveries[0].ID)
	}
}

// =============================================================================
// CROSS-DAY SPLIT - prior 100, today 50, payment 120
// =============================================================================

func TestAllocate_SplitAcrossPriorAndToday(t *testing.T) {
	// GIVEN: prior unpaid 100 (yesterday) and today delivery 50
	// WHEN:  paying 120
	// THEN:  prior fully paid, 20 applied to today, totalPending drops to 30
	prior := delivery("d-prior", "shop-1", date(9), 100, 0)
	today := delivery("d-today", "shop-1", date(10), 50, 0)
	l := reconciled(prior, today)

	if !l.TotalPending.Equal(money(150)) {
		t.Fatalf("precondition: totalPending = %v, want 150", l.TotalPending)
	}

	result, err := ledger.Allocate(money(120), l, []ledger.DeliveryRecord{prior, today})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.UpdatedDeliveries) != 2 {
		t.Fatalf("updated %d deliveries, want 2", len(result.UpdatedDeliveries))
	}
	if !result.UpdatedDeliveries[0].PaidAmount.Equal(money(100)) {
		t.Errorf("prior paid = %v, want 100", result.UpdatedDeliveries[0].PaidAmount)
	}
	if !result.UpdatedDeliveries[1].PaidAmount.Equal(money(20)) {
		t.Errorf("today paid = %v, want 20", result.UpdatedDeliveries[1].PaidAmount)
	}

	// Re-reconcile with the updated records: totalPending must be 30.
	after, _ := ledger.Reconcile(ledger.ShopTransactions{
		ShopID:     "shop-1",
		Deliveries: result.UpdatedDeliveries,
	}, date(10))
	if !after.TotalPending.Equal(money(30)) {
		t.Errorf("totalPending after allocation = %v, want 30", after.TotalPending)
	}
}

// =============================================================================
// FULL-PAYMENT AND BOUNDS
// =============================================================================

func TestAllocate_FullPaymentClearsEverything(t *testing.T) {
	d1 := delivery("d1", "shop-1", date(8), 100, 30)
	d2 := delivery("d2", "shop-1", date(10), 50, 0)
	l := reconciled(d1, d2)

	result, err := ledger.Allocate(l.TotalPending, l, []ledger.DeliveryRecord{d1, d2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, d := range result.UpdatedDeliveries {
		if !d.Unpaid().IsZero() {
			t.Errorf("delivery %s unpaid = %v after full payment, want 0", d.ID, d.Unpaid())
		}
		if d.PaidAmount.GreaterThan(d.TotalAmount) {
			t.Errorf("delivery %s paid %v exceeds total %v", d.ID, d.PaidAmount, d.TotalAmount)
		}
	}
	if !result.ManualSettled.IsZero() {
		t.Errorf("manualSettled = %v, want 0 without manual debt", result.ManualSettled)
	}
}

func TestAllocate_FullPaymentWithManualDebt(t *testing.T) {
	// GIVEN: prior delivery 100 unpaid plus a manual debit of 25
	// WHEN:  paying exactly totalPending (125)
	// THEN:  the delivery is cleared and the extra 25 settles the manual debt
	d := delivery("d1", "shop-1", date(9), 100, 0)
	l, _ := ledger.Reconcile(ledger.ShopTransactions{
		ShopID:      "shop-1",
		Deliveries:  []ledger.DeliveryRecord{d},
		Adjustments: []ledger.ManualAdjustment{adjustment("adj-1", "shop-1", date(9), 25)},
	}, date(10))

	if !l.TotalPending.Equal(money(125)) {
		t.Fatalf("precondition: totalPending = %v, want 125", l.TotalPending)
	}

	result, err := ledger.Allocate(money(125), l, []ledger.DeliveryRecord{d})
	if err != nil {
		t.Fatalf("paying exact totalPending rejected: %v", err)
	}
	if !result.UpdatedDeliveries[0].PaidAmount.Equal(money(100)) {
		t.Errorf("delivery paid = %v, want 100", result.UpdatedDeliveries[0].PaidAmount)
	}
	if !result.ManualSettled.Equal(money(25)) {
		t.Errorf("manualSettled = %v, want 25", result.ManualSettled)
	}
}

func TestAllocate_PartialManualSettlement(t *testing.T) {
	// Paying between the delivery-unpaid sum and totalPending: whatever
	// exceeds the deliveries retires that much manual debt.
	d := delivery("d1", "shop-1", date(9), 100, 0)
	l, _ := ledger.Reconcile(ledger.ShopTransactions{
		ShopID:      "shop-1",
		Deliveries:  []ledger.DeliveryRecord{d},
		Adjustments: []ledger.ManualAdjustment{adjustment("adj-1", "shop-1", date(9), 25)},
	}, date(10))

	result, err := ledger.Allocate(money(110), l, []ledger.DeliveryRecord{d})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.UpdatedDeliveries[0].PaidAmount.Equal(money(100)) {
		t.Errorf("delivery paid = %v, want 100", result.UpdatedDeliveries[0].PaidAmount)
	}
	if !result.ManualSettled.Equal(money(10)) {
		t.Errorf("manualSettled = %v, want 10", result.ManualSettled)
	}
}

func TestAllocate_StaleDeliveryListReportsCollectibleMax(t *testing.T) {
	// The ledger snapshot claims more debt than the delivery list covers.
	// The error's Max is what this list plus the manual debt can absorb.
	d := delivery("d1", "shop-1", date(9), 100, 0)
	stale := ledger.Ledger{
		ShopID:        "shop-1",
		TotalPending:  money(200),
		ManualPending: money(25),
	}

	_, err := ledger.Allocate(money(150), stale, []ledger.DeliveryRecord{d})

	var exceedsErr *ledger.PaymentExceedsPendingError
	if !errors.As(err, &exceedsErr) {
		t.Fatalf("err = %v, want *PaymentExceedsPendingError", err)
	}
	if !exceedsErr.Max.Equal(money(125)) {
		t.Errorf("max collectible = %v, want 125", exceedsErr.Max)
	}
}

func TestAllocate_PaymentExceedingPendingRejected(t *testing.T) {
	d := delivery("d1", "shop-1", date(10), 50, 0)
	l := reconciled(d)

	_, err := ledger.Allocate(money(80), l, []ledger.DeliveryRecord{d})

	if !errors.Is(err, ledger.ErrPaymentExceedsPending) {
		t.Fatalf("err = %v, want ErrPaymentExceedsPending", err)
	}
	var exceedsErr *ledger.PaymentExceedsPendingError
	if !errors.As(err, &exceedsErr) {
		t.Fatal("expected *PaymentExceedsPendingError")
	}
	if !exceedsErr.Max.Equal(money(50)) {
		t.Errorf("max allowable = %v, want 50", exceedsErr.Max)
	}
}

func TestAllocate_NonPositiveAmountRejected(t *testing.T) {
	d := delivery("d1", "shop-1", date(10), 50, 0)
	l := reconciled(d)

	for _, amount := range []float64{0, -10} {
		if _, err := ledger.Allocate(money(amount), l, []ledger.DeliveryRecord{d}); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Allocate(%v) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestAllocate_InputsNotMutated(t *testing.T) {
	d := delivery("d1", "shop-1", date(10), 50, 0)
	l := reconciled(d)
	input := []ledger.DeliveryRecord{d}

	_, err := ledger.Allocate(money(20), l, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !input[0].PaidAmount.IsZero() {
		t.Errorf("input delivery mutated: paid = %v", input[0].PaidAmount)
	}
}

func TestAllocate_ShopMismatchPanics(t *testing.T) {
	d := delivery("d1", "shop-1", date(10), 50, 0)
	l := reconciled(d)
	foreign := delivery("d2", "shop-2", date(10), 50, 0)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on shop id mismatch")
		}
	}()
	_, _ = ledger.Allocate(money(10), l, []ledger.DeliveryRecord{foreign})
}

func TestAllocate_SkipsFullyPaidDeliveries(t *testing.T) {
	paid := delivery("d-paid", "shop-1", date(8), 100, 100)
	open := delivery("d-open", "shop-1", date(9), 50, 0)
	l := reconciled(paid, open)

	result, err := ledger.Allocate(money(50), l, []ledger.DeliveryRecord{paid, open})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.UpdatedDeliveries) != 1 || result.UpdatedDeliveries[0].ID != "d-open" {
		t.Errorf("expected only d-open updated, got %+v", result.Applications)
	}
}

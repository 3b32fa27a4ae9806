package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkroute/ledger-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) ledger.Date {
	t.Helper()
	d, err := ledger.ParseDate(s)
	require.NoError(t, err)
	return d
}

func seedShop(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.SaveShop(context.Background(), ledger.Shop{
		ID:     ledger.ShopID(id),
		Name:   "Shop " + id,
		Active: true,
	})
	require.NoError(t, err)
}

func TestShopRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveShop(ctx, ledger.Shop{
		ID:          "shop-1",
		Name:        "Corner Store",
		OwnerName:   "Ravi",
		Phone:       "555-0101",
		RouteNumber: "R1",
		Active:      true,
	})
	require.NoError(t, err)

	got, err := s.GetShop(ctx, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, "Corner Store", got.Name)
	assert.Equal(t, "Ravi", got.OwnerName)
	assert.True(t, got.Active)

	// Upsert preserves identity and overwrites fields.
	err = s.SaveShop(ctx, ledger.Shop{ID: "shop-1", Name: "Corner Store II", Active: true})
	require.NoError(t, err)
	got, err = s.GetShop(ctx, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, "Corner Store II", got.Name)

	_, err = s.GetShop(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrShopNotFound)
}

func TestDeactivateShopFiltersActiveList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "a")
	seedShop(t, s, "b")

	require.NoError(t, s.DeactivateShop(ctx, "b"))

	all, err := s.ListShops(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := s.ListShops(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ledger.ShopID("a"), active[0].ID)

	assert.ErrorIs(t, s.DeactivateShop(ctx, "missing"), ledger.ErrShopNotFound)
}

func TestDeliveryRoundTripWithLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")

	d := ledger.DeliveryRecord{
		ID:           "del-1",
		ShopID:       "shop-1",
		StaffID:      "staff-1",
		DeliveryDate: mustDate(t, "2025-06-10"),
		Lines: []ledger.ProductLine{
			{ProductID: "milk-500", Quantity: 10, UnitPrice: ledger.MoneyFromString("25"), Subtotal: ledger.MoneyFromString("250")},
			{ProductID: "curd-200", Quantity: 5, UnitPrice: ledger.MoneyFromString("15.50"), Subtotal: ledger.MoneyFromString("77.50")},
		},
		TotalAmount: ledger.MoneyFromString("327.50"),
		PaidAmount:  ledger.MoneyFromString("0"),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveDelivery(ctx, d))

	got, err := s.GetDelivery(ctx, "del-1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.TotalAmount.Equal(ledger.MoneyFromString("327.50")))
	assert.True(t, got.Lines[1].UnitPrice.Equal(ledger.MoneyFromString("15.50")))
	assert.True(t, got.Unpaid().Equal(ledger.MoneyFromString("327.50")))

	_, err = s.GetDelivery(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrDeliveryNotFound)
}

func TestShopTransactionsReadContract(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")
	asOf := mustDate(t, "2025-06-10")

	// Unarchived, dated asOf: included.
	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "today", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: asOf,
		TotalAmount:  ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("0"),
	}))
	// Unarchived, future-dated: excluded by the store.
	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "future", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-11"),
		TotalAmount:  ledger.MoneyFromString("40"), PaidAmount: ledger.MoneyFromString("0"),
	}))
	// Archived with unpaid balance: included.
	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "old-unpaid", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-01"), Archived: true,
		TotalAmount: ledger.MoneyFromString("80"), PaidAmount: ledger.MoneyFromString("30"),
	}))
	// Archived and settled: dropped.
	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "old-paid", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-02"), Archived: true,
		TotalAmount: ledger.MoneyFromString("60"), PaidAmount: ledger.MoneyFromString("60"),
	}))

	txs, err := s.ShopTransactions(ctx, "shop-1", asOf)
	require.NoError(t, err)
	require.Len(t, txs.Deliveries, 2)
	// Ordered by date then creation time.
	assert.Equal(t, ledger.DeliveryID("old-unpaid"), txs.Deliveries[0].ID)
	assert.Equal(t, ledger.DeliveryID("today"), txs.Deliveries[1].ID)
}

func TestApplyPaymentIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")
	asOf := mustDate(t, "2025-06-10")

	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "del-1", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-09"),
		TotalAmount:  ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("0"),
	}))

	payment := ledger.PaymentRecord{
		ID: "pay-1", ShopID: "shop-1",
		Amount:      ledger.MoneyFromString("60"),
		PaymentDate: asOf,
		CollectedBy: "staff-1",
	}
	updated := []ledger.DeliveryRecord{{
		ID: "del-1", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-09"),
		TotalAmount:  ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("60"),
	}}
	require.NoError(t, s.ApplyPayment(ctx, payment, updated, nil))

	got, err := s.GetDelivery(ctx, "del-1")
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(ledger.MoneyFromString("60")))

	txs, err := s.ShopTransactions(ctx, "shop-1", asOf)
	require.NoError(t, err)
	require.Len(t, txs.Payments, 1)
	assert.True(t, txs.Payments[0].Amount.Equal(ledger.MoneyFromString("60")))

	// A payment referencing a missing delivery rolls back entirely.
	badPayment := ledger.PaymentRecord{
		ID: "pay-2", ShopID: "shop-1",
		Amount: ledger.MoneyFromString("10"), PaymentDate: asOf, CollectedBy: "staff-1",
	}
	err = s.ApplyPayment(ctx, badPayment, []ledger.DeliveryRecord{{ID: "missing"}}, nil)
	require.ErrorIs(t, err, ledger.ErrDeliveryNotFound)

	txs, err = s.ShopTransactions(ctx, "shop-1", asOf)
	require.NoError(t, err)
	assert.Len(t, txs.Payments, 1, "rolled-back payment must not persist")
}

func TestApplyPaymentPersistsSettlement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")
	asOf := mustDate(t, "2025-06-10")

	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "del-1", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-09"),
		TotalAmount:  ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("0"),
	}))

	payment := ledger.PaymentRecord{
		ID: "pay-1", ShopID: "shop-1",
		Amount:      ledger.MoneyFromString("125"),
		PaymentDate: asOf,
		CollectedBy: "staff-1",
	}
	updated := []ledger.DeliveryRecord{{
		ID: "del-1", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-09"),
		TotalAmount:  ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("100"),
	}}
	settlement := &ledger.ManualAdjustment{
		ID: "adj-settle", ShopID: "shop-1",
		Amount:     ledger.MoneyFromString("-25"),
		OriginDate: asOf,
		Note:       "settled by payment pay-1",
	}
	require.NoError(t, s.ApplyPayment(ctx, payment, updated, settlement))

	txs, err := s.ShopTransactions(ctx, "shop-1", asOf)
	require.NoError(t, err)
	require.Len(t, txs.Adjustments, 1)
	assert.True(t, txs.Adjustments[0].Amount.Equal(ledger.MoneyFromString("-25")))
	assert.Equal(t, "settled by payment pay-1", txs.Adjustments[0].Note)
}

func TestCorruptedAmountSurfacesFetchError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")
	asOf := mustDate(t, "2025-06-10")

	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "del-1", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: asOf,
		TotalAmount:  ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("0"),
	}))

	// Corrupt the stored amount behind the store's back. It must come back
	// as an error, not silently as zero.
	_, err := s.db.Exec(`UPDATE deliveries SET total_amount = 'garbage' WHERE id = 'del-1'`)
	require.NoError(t, err)

	_, err = s.ShopTransactions(ctx, "shop-1", asOf)
	require.Error(t, err)
	assert.True(t, ledger.IsFetchError(err), "want fetch error, got %v", err)
}

func TestDeleteDeliveryMovesToAuditTrail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")

	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "del-1", ShopID: "shop-1", StaffID: "st",
		DeliveryDate: mustDate(t, "2025-06-10"),
		Lines: []ledger.ProductLine{
			{ProductID: "milk-500", Quantity: 4, UnitPrice: ledger.MoneyFromString("25"), Subtotal: ledger.MoneyFromString("100")},
		},
		TotalAmount: ledger.MoneyFromString("100"), PaidAmount: ledger.MoneyFromString("0"),
	}))

	deleted, err := s.DeleteDelivery(ctx, "del-1", "staff-2", "entered twice")
	require.NoError(t, err)
	assert.Equal(t, ledger.DeliveryID("del-1"), deleted.ID)

	_, err = s.GetDelivery(ctx, "del-1")
	assert.ErrorIs(t, err, ledger.ErrDeliveryNotFound)

	audit, err := s.DeletedDeliveries(ctx)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.StaffID("staff-2"), audit[0].DeletedBy)
	assert.Equal(t, "entered twice", audit[0].Reason)
	assert.Equal(t, ledger.DeliveryID("del-1"), audit[0].Delivery.ID)
	require.Len(t, audit[0].Delivery.Lines, 1)
	assert.True(t, audit[0].Delivery.TotalAmount.Equal(ledger.MoneyFromString("100")))

	_, err = s.DeleteDelivery(ctx, "missing", "staff-2", "")
	assert.ErrorIs(t, err, ledger.ErrDeliveryNotFound)
}

func TestDeferredMarkIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := mustDate(t, "2025-06-10")

	mark, err := s.GetDeferredMark(ctx, "shop-1", day)
	require.NoError(t, err)
	assert.Nil(t, mark)

	require.NoError(t, s.SaveDeferredMark(ctx, ledger.DeferredPaymentMark{
		ShopID: "shop-1", Date: day, Note: "owner away",
	}))
	// Second save is a no-op, not an error.
	require.NoError(t, s.SaveDeferredMark(ctx, ledger.DeferredPaymentMark{
		ShopID: "shop-1", Date: day,
	}))

	mark, err = s.GetDeferredMark(ctx, "shop-1", day)
	require.NoError(t, err)
	require.NotNil(t, mark)
	assert.Equal(t, "owner away", mark.Note)

	require.NoError(t, s.ClearDeferredMarks(ctx, day))
	mark, err = s.GetDeferredMark(ctx, "shop-1", day)
	require.NoError(t, err)
	assert.Nil(t, mark)
}

func TestAdjustmentsAlwaysReturned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")

	require.NoError(t, s.SaveAdjustment(ctx, ledger.ManualAdjustment{
		ID: "adj-1", ShopID: "shop-1",
		Amount:     ledger.MoneyFromString("75"),
		OriginDate: mustDate(t, "2025-06-10"),
		Note:       "pre-app balance",
	}))

	// Adjustment dated after asOf is still returned: manual debt is not
	// date-windowed.
	txs, err := s.ShopTransactions(ctx, "shop-1", mustDate(t, "2025-06-05"))
	require.NoError(t, err)
	require.Len(t, txs.Adjustments, 1)
	assert.True(t, txs.Adjustments[0].Amount.Equal(ledger.MoneyFromString("75")))
}

func TestStockAdjustRejectsNegative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetStock(ctx, ledger.StockLevel{
		ProductID: "milk-500", Quantity: 10, LowStockThreshold: 5,
	}))

	require.NoError(t, s.AdjustStock(ctx, "milk-500", -4))
	level, err := s.GetStock(ctx, "milk-500")
	require.NoError(t, err)
	assert.Equal(t, 6, level.Quantity)

	err = s.AdjustStock(ctx, "milk-500", -7)
	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.OnHand)

	// Failed adjustment leaves quantity untouched.
	level, err = s.GetStock(ctx, "milk-500")
	require.NoError(t, err)
	assert.Equal(t, 6, level.Quantity)

	assert.ErrorIs(t, s.AdjustStock(ctx, "missing", 1), ledger.ErrProductNotFound)
}

func TestArchiveDeliveries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShop(t, s, "shop-1")
	day := mustDate(t, "2025-06-10")

	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "d1", ShopID: "shop-1", StaffID: "st", DeliveryDate: mustDate(t, "2025-06-09"),
		TotalAmount: ledger.MoneyFromString("50"), PaidAmount: ledger.MoneyFromString("50"),
	}))
	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "d2", ShopID: "shop-1", StaffID: "st", DeliveryDate: day,
		TotalAmount: ledger.MoneyFromString("50"), PaidAmount: ledger.MoneyFromString("20"),
	}))
	require.NoError(t, s.SaveDelivery(ctx, ledger.DeliveryRecord{
		ID: "d3", ShopID: "shop-1", StaffID: "st", DeliveryDate: mustDate(t, "2025-06-11"),
		TotalAmount: ledger.MoneyFromString("50"), PaidAmount: ledger.MoneyFromString("0"),
	}))

	n, err := s.ArchiveDeliveries(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Archived-but-unpaid d2 survives as prior debt; settled d1 is gone;
	// future d3 is untouched.
	txs, err := s.ShopTransactions(ctx, "shop-1", mustDate(t, "2025-06-11"))
	require.NoError(t, err)
	require.Len(t, txs.Deliveries, 2)
	assert.Equal(t, ledger.DeliveryID("d2"), txs.Deliveries[0].ID)
	assert.True(t, txs.Deliveries[0].Archived)
	assert.Equal(t, ledger.DeliveryID("d3"), txs.Deliveries[1].ID)

	// Idempotent: nothing left to archive for that date.
	n, err = s.ArchiveDeliveries(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProductsStaffRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProduct(ctx, ledger.Product{
		ID: "milk-500", Name: "Milk 500ml", UnitPrice: ledger.MoneyFromString("25"), Active: true,
	}))
	require.NoError(t, s.SaveProduct(ctx, ledger.Product{
		ID: "curd-200", Name: "Curd 200g", UnitPrice: ledger.MoneyFromString("15"), Active: false,
	}))
	require.NoError(t, s.SaveStaff(ctx, ledger.Staff{
		ID: "staff-1", Name: "Anu", Phone: "555-0102", Active: true,
	}))

	active, err := s.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ledger.ProductID("milk-500"), active[0].ID)

	p, err := s.GetProduct(ctx, "curd-200")
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.True(t, p.UnitPrice.Equal(ledger.MoneyFromString("15")))

	st, err := s.GetStaff(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "Anu", st.Name)

	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)
	_, err = s.GetStaff(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrStaffNotFound)
}

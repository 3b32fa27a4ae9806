/*
Package ledger provides the core reconciliation engine for a milk route.

PURPOSE:
  This package contains the types and algorithms that turn a shop's raw
  transaction records (deliveries, payments, manual adjustments) into a
  reconciled view of what is owed: today's pending, previous pending, and
  the total. It also allocates incoming payments against outstanding debt
  and classifies a shop's collection status.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal currency amount (no floats anywhere near money)
  - Date: A calendar date (deliveries and payments are dated, not timestamped)
  - DeliveryRecord / PaymentRecord / ManualAdjustment: raw transaction records
  - Ledger: the reconciled, derived view for one shop on one date

DESIGN PRINCIPLES:
  1. Purity: reconciliation and allocation take values and return values.
     No I/O, no clocks, no hidden state.
  2. Precision: decimal.Decimal for every amount.
  3. Type safety: distinct id types so a shop id can't be passed where a
     delivery id belongs.
  4. Dual bookkeeping: a delivery's PaidAmount tracks allocation against
     that delivery; the payment ledger tracks when cash actually arrived.
     The two views are deliberately separate (see reconcile.go).

SEE ALSO:
  - reconcile.go: Ledger computation from raw records
  - allocate.go: FIFO payment allocation
  - status.go: Collection status classification
  - aggregate.go: Route-wide rollups
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal currency amount
// =============================================================================

// Money is a currency amount in the smallest sensible unit of the local
// currency. Record fields (delivery totals, payment amounts) are expected to
// be non-negative; intermediate arithmetic may go negative and is clamped at
// well-defined points (see reconcile.go).
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money       { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money  { return Money{Value: decimal.NewFromInt(value)} }
func ZeroMoney() Money                   { return Money{Value: decimal.Zero} }

// MoneyFromString parses a decimal string. Invalid input yields zero; use
// ParseMoney where malformed input must be reported rather than swallowed.
func MoneyFromString(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		return ZeroMoney()
	}
	return m
}

// ParseMoney parses a decimal string, reporting malformed input.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney(), err
	}
	return Money{Value: d}, nil
}

func (m Money) Add(o Money) Money        { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money        { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) MulInt(n int) Money       { return Money{Value: m.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (m Money) Neg() Money               { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) String() string           { return m.Value.String() }

// Min returns the smaller of the two amounts.
func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// ClampNonNegative floors the amount at zero.
func (m Money) ClampNonNegative() Money {
	if m.IsNegative() {
		return ZeroMoney()
	}
	return m
}

// =============================================================================
// DATE - Calendar date (day granularity)
// =============================================================================

// Date is a calendar date. Deliveries and payments belong to a date, not a
// timestamp; "today vs previous" partitioning compares dates only.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar date (UTC).
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now().UTC()) }

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(o Date) bool        { return d.normalize().Before(o.normalize()) }
func (d Date) Equal(o Date) bool         { return d.normalize().Equal(o.normalize()) }
func (d Date) After(o Date) bool         { return d.normalize().After(o.normalize()) }
func (d Date) BeforeOrEqual(o Date) bool { return d.Before(o) || d.Equal(o) }
func (d Date) AfterOrEqual(o Date) bool  { return d.After(o) || d.Equal(o) }
func (d Date) AddDays(n int) Date        { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) IsZero() bool              { return d.Time.IsZero() }
func (d Date) String() string            { return d.normalize().Format("2006-01-02") }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShopID string
type DeliveryID string
type PaymentID string
type AdjustmentID string
type ProductID string
type StaffID string

// =============================================================================
// SHOP - Reference record
// =============================================================================

// Shop is the customer a route serves. Shops are never deleted once they are
// referenced by transactions; they are deactivated instead.
type Shop struct {
	ID          ShopID
	Name        string
	OwnerName   string
	Phone       string
	Address     string
	RouteNumber string
	Active      bool
	CreatedAt   time.Time
}

// =============================================================================
// TRANSACTION RECORDS
// =============================================================================

// ProductLine is one line item of a delivery.
type ProductLine struct {
	ProductID ProductID
	Quantity  int
	UnitPrice Money // price at delivery time, frozen
	Subtotal  Money // Quantity * UnitPrice
}

// DeliveryRecord is one delivery to one shop on one date.
//
// INVARIANTS:
//   - TotalAmount == sum of line subtotals
//   - 0 <= PaidAmount <= TotalAmount (PaidAmount only moves via allocation)
type DeliveryRecord struct {
	ID           DeliveryID
	ShopID       ShopID
	StaffID      StaffID
	DeliveryDate Date
	Lines        []ProductLine
	TotalAmount  Money
	PaidAmount   Money
	Archived     bool
	Note         string
	CreatedAt    time.Time
}

// Unpaid returns the outstanding amount on this delivery. Over-payment
// (negative result) is reported as-is; the reconciler clamps and records
// the anomaly.
func (d DeliveryRecord) Unpaid() Money {
	return d.TotalAmount.Sub(d.PaidAmount)
}

// LineTotal sums the line subtotals. Must equal TotalAmount.
func (d DeliveryRecord) LineTotal() Money {
	total := ZeroMoney()
	for _, l := range d.Lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// PaymentRecord is cash received from a shop. Immutable once created.
// CollectedBy is always explicit; the engine never fills in a default actor.
type PaymentRecord struct {
	ID          PaymentID
	ShopID      ShopID
	Amount      Money
	PaymentDate Date
	CollectedBy StaffID
	Note        string
	CreatedAt   time.Time
}

// ManualAdjustment is out-of-band debt (or credit) not tied to a delivery,
// e.g. a balance carried in from before the system existed.
//
// BUSINESS RULE: an adjustment always counts toward PREVIOUS pending,
// regardless of its origin date. Even an adjustment dated today is treated
// as historical debt. This is deliberate, not a bug.
type ManualAdjustment struct {
	ID         AdjustmentID
	ShopID     ShopID
	Amount     Money // signed; negative is a credit
	OriginDate Date
	Note       string
	CreatedAt  time.Time
}

// DeferredPaymentMark records "pay tomorrow" for a shop on a date. It
// suppresses collection prompts for the cycle without changing amounts owed.
// Cleared by the next daily reset.
type DeferredPaymentMark struct {
	ShopID    ShopID
	Date      Date
	Note      string
	CreatedAt time.Time
}

// ShopTransactions is the raw record bundle the store hands the reconciler.
// No aggregation has been applied.
type ShopTransactions struct {
	ShopID      ShopID
	Deliveries  []DeliveryRecord
	Payments    []PaymentRecord
	Adjustments []ManualAdjustment
}

// =============================================================================
// LEDGER - Reconciled view (derived, never persisted)
// =============================================================================

// Ledger is the reconciled state of one shop as of one date.
//
// TodayPaid and TodayPaidFromDeliveries are intentionally separate figures:
// a payment received today may retire yesterday's unpaid delivery, which
// raises that delivery's PaidAmount without counting toward today's
// deliveries at all. The UI shows both views; they must not be conflated.
type Ledger struct {
	ShopID ShopID
	AsOf   Date

	TodayDelivered          Money // sum of today's delivery totals
	TodayPaid               Money // payments dated AsOf (cash view)
	TodayPaidFromDeliveries Money // PaidAmount bookkeeping on today's deliveries
	TodayPending            Money // unpaid on today's deliveries

	PriorPending    Money // unpaid on deliveries dated before AsOf
	ManualPending   Money // net manual adjustments
	PreviousPending Money // PriorPending + ManualPending, floored at zero

	TotalPending Money // TodayPending + PreviousPending
}

// Status is a shop's display status for the collection cycle.
type Status string

const (
	StatusPaid        Status = "paid"
	StatusPartial     Status = "partial"
	StatusPending     Status = "pending"
	StatusPayTomorrow Status = "pay_tomorrow"
)

// =============================================================================
// REFERENCE DATA - Products, staff, stock
// =============================================================================

// Product is a milk type with its current catalog price. The price on a
// delivery line is frozen at delivery time; changing the catalog price never
// rewrites history.
type Product struct {
	ID        ProductID
	Name      string
	UnitPrice Money
	Active    bool
	CreatedAt time.Time
}

// Staff is a delivery person. Delivery and payment creation always name the
// acting staff member explicitly.
type Staff struct {
	ID        StaffID
	Name      string
	Phone     string
	Active    bool
	CreatedAt time.Time
}

// StockLevel tracks on-hand quantity for one product.
type StockLevel struct {
	ProductID         ProductID
	Quantity          int
	LowStockThreshold int
	UpdatedAt         time.Time
}

// Low reports whether the level is at or below its threshold.
func (s StockLevel) Low() bool { return s.Quantity <= s.LowStockThreshold }

// DeletedDelivery is the audit record for a logically deleted delivery.
// The original record is preserved verbatim; stock consumed by the delivery
// is restored when the record is written.
type DeletedDelivery struct {
	ID        string
	Delivery  DeliveryRecord
	DeletedBy StaffID
	Reason    string
	DeletedAt time.Time
}

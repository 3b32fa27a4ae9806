/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Currency amounts cross the wire as decimal STRINGS ("123.50"), never as
  floats. Clients that need arithmetic parse them with a decimal library.

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the shared
  validator before touching the service layer.

SEE ALSO:
  - handlers.go: Uses these types
  - route/service.go: The inputs these map onto
*/
package api

import (
	"time"

	"github.com/milkroute/ledger-engine/ledger"
	"github.com/milkroute/ledger-engine/route"
)

// =============================================================================
// SHOP TYPES
// =============================================================================

// ShopDTO represents a shop in API responses.
type ShopDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerName   string `json:"owner_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	RouteNumber string `json:"route_number,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// SaveShopRequest creates or updates a shop.
type SaveShopRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,min=1,max=120"`
	OwnerName   string `json:"owner_name" validate:"max=120"`
	Phone       string `json:"phone" validate:"max=20"`
	Address     string `json:"address" validate:"max=250"`
	RouteNumber string `json:"route_number" validate:"max=20"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// LedgerDTO is the reconciled position of one shop.
type LedgerDTO struct {
	ShopID                  string `json:"shop_id"`
	AsOf                    string `json:"as_of"`
	TodayDelivered          string `json:"today_delivered"`
	TodayPaid               string `json:"today_paid"`
	TodayPaidFromDeliveries string `json:"today_paid_from_deliveries"`
	TodayPending            string `json:"today_pending"`
	PreviousPending         string `json:"previous_pending"`
	TotalPending            string `json:"total_pending"`
}

// AnomalyDTO flags a suspect record noticed during reconciliation.
type AnomalyDTO struct {
	Kind     string `json:"kind"`
	RecordID string `json:"record_id,omitempty"`
	Detail   string `json:"detail"`
}

// ShopLedgerDTO is the full ledger view for one shop.
type ShopLedgerDTO struct {
	Shop      ShopDTO      `json:"shop"`
	Ledger    LedgerDTO    `json:"ledger"`
	Status    string       `json:"status"`
	Deferred  bool         `json:"deferred"`
	Anomalies []AnomalyDTO `json:"anomalies,omitempty"`
}

// RouteStatsDTO is the route dashboard summary.
type RouteStatsDTO struct {
	TotalDelivered string  `json:"total_delivered"`
	TotalCollected string  `json:"total_collected"`
	TotalPending   string  `json:"total_pending"`
	ShopsVisited   int     `json:"shops_visited"`
	TotalShops     int     `json:"total_shops"`
	Completion     float64 `json:"completion"`
}

// TransactionsDTO is the raw record bundle behind one shop's ledger.
type TransactionsDTO struct {
	ShopID      string          `json:"shop_id"`
	Deliveries  []DeliveryDTO   `json:"deliveries"`
	Payments    []PaymentDTO    `json:"payments"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// ProcessPaymentRequest submits a collected amount for allocation.
type ProcessPaymentRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CollectedBy string `json:"collected_by" validate:"required"`
	Note        string `json:"note" validate:"max=250"`
}

// PaymentDTO represents a recorded payment.
type PaymentDTO struct {
	ID          string `json:"id"`
	ShopID      string `json:"shop_id"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"`
	CollectedBy string `json:"collected_by"`
	Note        string `json:"note,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ApplicationDTO shows how much of a payment landed on one delivery.
type ApplicationDTO struct {
	DeliveryID string `json:"delivery_id"`
	Applied    string `json:"applied"`
}

// PaymentResultDTO is the response after a successful allocation.
type PaymentResultDTO struct {
	Payment      PaymentDTO       `json:"payment"`
	Applications []ApplicationDTO `json:"applications"`
	Ledger       LedgerDTO        `json:"ledger"`
	Status       string           `json:"status"`
}

// DeferRequest marks a shop as paying tomorrow.
type DeferRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Note string `json:"note" validate:"max=250"`
}

// DeferResponse reports the deferral outcome.
type DeferResponse struct {
	ShopID        string `json:"shop_id"`
	Date          string `json:"date"`
	AlreadyMarked bool   `json:"already_marked"`
	Status        string `json:"status"`
}

// CreateAdjustmentRequest records out-of-band debt or credit.
type CreateAdjustmentRequest struct {
	Amount     string `json:"amount" validate:"required"`
	OriginDate string `json:"origin_date" validate:"omitempty,datetime=2006-01-02"`
	Note       string `json:"note" validate:"max=250"`
}

// AdjustmentDTO represents a manual adjustment.
type AdjustmentDTO struct {
	ID         string `json:"id"`
	ShopID     string `json:"shop_id"`
	Amount     string `json:"amount"`
	OriginDate string `json:"origin_date"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// =============================================================================
// DELIVERY TYPES
// =============================================================================

// DeliveryLineRequest is one product line of a delivery request.
type DeliveryLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateDeliveryRequest records a delivery to a shop.
type CreateDeliveryRequest struct {
	ShopID  string                `json:"shop_id" validate:"required"`
	StaffID string                `json:"staff_id" validate:"required"`
	Date    string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Lines   []DeliveryLineRequest `json:"lines" validate:"required,min=1,dive"`
	Note    string                `json:"note" validate:"max=250"`
}

// DeliveryLineDTO is one priced line of a delivery.
type DeliveryLineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// DeliveryDTO represents a delivery record.
type DeliveryDTO struct {
	ID           string            `json:"id"`
	ShopID       string            `json:"shop_id"`
	StaffID      string            `json:"staff_id"`
	DeliveryDate string            `json:"delivery_date"`
	Lines        []DeliveryLineDTO `json:"lines"`
	TotalAmount  string            `json:"total_amount"`
	PaidAmount   string            `json:"paid_amount"`
	UnpaidAmount string            `json:"unpaid_amount"`
	Archived     bool              `json:"archived"`
	Note         string            `json:"note,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty"`
}

// DeleteDeliveryRequest is the body for a logical delete.
type DeleteDeliveryRequest struct {
	DeletedBy string `json:"deleted_by" validate:"required"`
	Reason    string `json:"reason" validate:"max=250"`
}

// DeletedDeliveryDTO is one audit-trail entry.
type DeletedDeliveryDTO struct {
	ID        string      `json:"id"`
	Delivery  DeliveryDTO `json:"delivery"`
	DeletedBy string      `json:"deleted_by"`
	Reason    string      `json:"reason,omitempty"`
	DeletedAt string      `json:"deleted_at"`
}

// =============================================================================
// REFERENCE DATA TYPES
// =============================================================================

// ProductDTO represents a product.
type ProductDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Active    bool   `json:"active"`
}

// SaveProductRequest creates or updates a product.
type SaveProductRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required,min=1,max=120"`
	UnitPrice string `json:"unit_price" validate:"required"`
	Active    *bool  `json:"active"`
}

// StaffDTO represents a delivery staff member.
type StaffDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Active bool   `json:"active"`
}

// SaveStaffRequest creates or updates a staff member.
type SaveStaffRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,min=1,max=120"`
	Phone string `json:"phone" validate:"max=20"`
}

// StockLevelDTO represents one product's stock position.
type StockLevelDTO struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Low               bool   `json:"low"`
}

// SetStockRequest sets a product's quantity and threshold.
type SetStockRequest struct {
	Quantity          int `json:"quantity" validate:"gte=0"`
	LowStockThreshold int `json:"low_stock_threshold" validate:"gte=0"`
}

// =============================================================================
// RESET AND REPORT TYPES
// =============================================================================

// ResetRequest triggers the daily reset.
type ResetRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ResetResultDTO reports what the reset swept.
type ResetResultDTO struct {
	Date               string `json:"date"`
	DeliveriesArchived int    `json:"deliveries_archived"`
}

// ResetPreviewDTO reports what a reset would sweep.
type ResetPreviewDTO struct {
	Date           string `json:"date"`
	DeliveryCount  int    `json:"delivery_count"`
	TotalDelivered string `json:"total_delivered"`
	UnpaidCarried  string `json:"unpaid_carried"`
}

// SummaryDTO is the report for one business day.
type SummaryDTO struct {
	Date  string          `json:"date"`
	Stats RouteStatsDTO   `json:"stats"`
	Shops []ShopLedgerDTO `json:"shops"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO MAPPING
// =============================================================================

func toShopDTO(s ledger.Shop) ShopDTO {
	return ShopDTO{
		ID:          string(s.ID),
		Name:        s.Name,
		OwnerName:   s.OwnerName,
		Phone:       s.Phone,
		Address:     s.Address,
		RouteNumber: s.RouteNumber,
		Active:      s.Active,
		CreatedAt:   formatTime(s.CreatedAt),
	}
}

func toLedgerDTO(l ledger.Ledger) LedgerDTO {
	return LedgerDTO{
		ShopID:                  string(l.ShopID),
		AsOf:                    l.AsOf.String(),
		TodayDelivered:          l.TodayDelivered.String(),
		TodayPaid:               l.TodayPaid.String(),
		TodayPaidFromDeliveries: l.TodayPaidFromDeliveries.String(),
		TodayPending:            l.TodayPending.String(),
		PreviousPending:         l.PreviousPending.String(),
		TotalPending:            l.TotalPending.String(),
	}
}

func toShopLedgerDTO(v route.LedgerView) ShopLedgerDTO {
	dto := ShopLedgerDTO{
		Shop:     toShopDTO(v.Shop),
		Ledger:   toLedgerDTO(v.Ledger),
		Status:   string(v.Status),
		Deferred: v.Deferred,
	}
	for _, a := range v.Anomalies {
		dto.Anomalies = append(dto.Anomalies, AnomalyDTO{
			Kind:     string(a.Kind),
			RecordID: a.RecordID,
			Detail:   a.Detail,
		})
	}
	return dto
}

func toRouteStatsDTO(s ledger.RouteStats) RouteStatsDTO {
	return RouteStatsDTO{
		TotalDelivered: s.TotalDelivered.String(),
		TotalCollected: s.TotalCollected.String(),
		TotalPending:   s.TotalPending.String(),
		ShopsVisited:   s.ShopsVisited,
		TotalShops:     s.TotalShops,
		Completion:     s.Completion,
	}
}

func toDeliveryDTO(d ledger.DeliveryRecord) DeliveryDTO {
	lines := make([]DeliveryLineDTO, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = DeliveryLineDTO{
			ProductID: string(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
			Subtotal:  l.Subtotal.String(),
		}
	}
	return DeliveryDTO{
		ID:           string(d.ID),
		ShopID:       string(d.ShopID),
		StaffID:      string(d.StaffID),
		DeliveryDate: d.DeliveryDate.String(),
		Lines:        lines,
		TotalAmount:  d.TotalAmount.String(),
		PaidAmount:   d.PaidAmount.String(),
		UnpaidAmount: d.Unpaid().String(),
		Archived:     d.Archived,
		Note:         d.Note,
		CreatedAt:    formatTime(d.CreatedAt),
	}
}

func toPaymentDTO(p ledger.PaymentRecord) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		ShopID:      string(p.ShopID),
		Amount:      p.Amount.String(),
		PaymentDate: p.PaymentDate.String(),
		CollectedBy: string(p.CollectedBy),
		Note:        p.Note,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

func toAdjustmentDTO(a ledger.ManualAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:         string(a.ID),
		ShopID:     string(a.ShopID),
		Amount:     a.Amount.String(),
		OriginDate: a.OriginDate.String(),
		Note:       a.Note,
		CreatedAt:  formatTime(a.CreatedAt),
	}
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		UnitPrice: p.UnitPrice.String(),
		Active:    p.Active,
	}
}

func toStaffDTO(s ledger.Staff) StaffDTO {
	return StaffDTO{
		ID:     string(s.ID),
		Name:   s.Name,
		Phone:  s.Phone,
		Active: s.Active,
	}
}

func toStockDTO(l ledger.StockLevel) StockLevelDTO {
	return StockLevelDTO{
		ProductID:         string(l.ProductID),
		Quantity:          l.Quantity,
		LowStockThreshold: l.LowStockThreshold,
		Low:               l.Low(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

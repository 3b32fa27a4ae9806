/*
handlers.go - HTTP API handlers for the ledger reconciliation engine

PURPOSE:
  Exposes the route service via REST API. Handles HTTP request/response,
  JSON serialization, input validation, and delegates to the service.

ENDPOINTS:
  Shops:
    GET    /api/shops                   List active shops (?all=true for all)
    POST   /api/shops                   Create shop
    GET    /api/shops/{id}              Shop detail
    PUT    /api/shops/{id}              Update shop
    DELETE /api/shops/{id}              Soft-deactivate shop
    GET    /api/shops/{id}/ledger       Reconciled ledger + status
    GET    /api/shops/{id}/transactions Raw deliveries/payments/adjustments
    POST   /api/shops/{id}/payments     Process payment (FIFO allocation)
    POST   /api/shops/{id}/defer        Mark pay tomorrow
    POST   /api/shops/{id}/adjustments  Manual pending adjustment

  Collection:
    GET    /api/collection              Per-shop ledgers + statuses
    GET    /api/route/stats             Route dashboard totals

  Deliveries:
    GET    /api/deliveries?date=        List deliveries for a date
    POST   /api/deliveries              Add delivery (prices + stock)
    DELETE /api/deliveries/{id}         Logical delete (audit + stock back)
    GET    /api/deliveries/deleted      Audit trail

  Reference data:
    GET/POST /api/products, /api/staff
    GET      /api/stock, PUT /api/stock/{productId}

  Day close:
    POST   /api/reset                   Daily reset
    GET    /api/reset/preview           What the reset would sweep
    GET    /api/reports/summary?date=   Daily report, any date

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, over-payment
  - 404: Resource not found
  - 409: Insufficient stock
  - 500: Internal errors

DATE HANDLING:
  Every date-bearing endpoint accepts YYYY-MM-DD and defaults to the
  current business day when omitted.

SEE ALSO:
  - dto.go: Request/response data structures
  - route/service.go: The operations behind each endpoint
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/milkroute/ledger-engine/ledger"
	"github.com/milkroute/ledger-engine/route"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *route.Service
	validate *validator.Validate

	// currentScenario tracks the loaded demo scenario, if any.
	currentScenario string
}

// NewHandler creates a new handler around the route service.
func NewHandler(svc *route.Service) *Handler {
	return &Handler{
		Service:  svc,
		validate: validator.New(),
	}
}

// =============================================================================
// SHOP HANDLERS
// =============================================================================

// ListShops returns active shops; ?all=true includes deactivated ones.
func (h *Handler) ListShops(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	shops, err := h.Service.ListShops(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shops", err)
		return
	}

	dtos := make([]ShopDTO, len(shops))
	for i, s := range shops {
		dtos[i] = toShopDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetShop returns a single shop.
func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))
	shop, err := h.Service.GetShop(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get shop", err)
		return
	}
	writeJSON(w, http.StatusOK, toShopDTO(*shop))
}

// CreateShop creates a new shop.
func (h *Handler) CreateShop(w http.ResponseWriter, r *http.Request) {
	var req SaveShopRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	shop, err := h.Service.SaveShop(r.Context(), ledger.Shop{
		ID:          ledger.ShopID(req.ID),
		Name:        req.Name,
		OwnerName:   req.OwnerName,
		Phone:       req.Phone,
		Address:     req.Address,
		RouteNumber: req.RouteNumber,
		Active:      true,
	})
	if err != nil {
		writeServiceError(w, "Failed to create shop", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShopDTO(*shop))
}

// UpdateShop updates an existing shop.
func (h *Handler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))

	existing, err := h.Service.GetShop(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get shop", err)
		return
	}

	var req SaveShopRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	existing.Name = req.Name
	existing.OwnerName = req.OwnerName
	existing.Phone = req.Phone
	existing.Address = req.Address
	existing.RouteNumber = req.RouteNumber

	shop, err := h.Service.SaveShop(r.Context(), *existing)
	if err != nil {
		writeServiceError(w, "Failed to update shop", err)
		return
	}
	writeJSON(w, http.StatusOK, toShopDTO(*shop))
}

// DeactivateShop soft-deletes a shop; its ledger history remains.
func (h *Handler) DeactivateShop(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))
	if err := h.Service.DeactivateShop(r.Context(), id); err != nil {
		writeServiceError(w, "Failed to deactivate shop", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetShopLedger returns the reconciled ledger and status for one shop.
// GET /api/shops/{id}/ledger?date=YYYY-MM-DD
func (h *Handler) GetShopLedger(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))
	asOf, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	view, err := h.Service.ShopLedger(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, "Failed to reconcile ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toShopLedgerDTO(*view))
}

// GetShopTransactions returns the raw record bundle behind the ledger.
// GET /api/shops/{id}/transactions?date=YYYY-MM-DD
func (h *Handler) GetShopTransactions(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))
	asOf, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	txs, err := h.Service.ShopTransactions(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, "Failed to load transactions", err)
		return
	}

	dto := TransactionsDTO{
		ShopID:      string(txs.ShopID),
		Deliveries:  []DeliveryDTO{},
		Payments:    []PaymentDTO{},
		Adjustments: []AdjustmentDTO{},
	}
	for _, d := range txs.Deliveries {
		dto.Deliveries = append(dto.Deliveries, toDeliveryDTO(d))
	}
	for _, p := range txs.Payments {
		dto.Payments = append(dto.Payments, toPaymentDTO(p))
	}
	for _, a := range txs.Adjustments {
		dto.Adjustments = append(dto.Adjustments, toAdjustmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ProcessPayment allocates a collected amount FIFO across outstanding
// deliveries. POST /api/shops/{id}/payments
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))

	var req ProcessPaymentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	amount, ok := h.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	date, ok := h.parseDateOrToday(w, req.Date)
	if !ok {
		return
	}

	result, err := h.Service.ProcessPayment(r.Context(), route.PaymentInput{
		ShopID:      id,
		Amount:      amount,
		Date:        date,
		CollectedBy: ledger.StaffID(req.CollectedBy),
		Note:        req.Note,
	})
	if err != nil {
		writeServiceError(w, "Failed to process payment", err)
		return
	}

	dto := PaymentResultDTO{
		Payment:      toPaymentDTO(result.Payment),
		Applications: []ApplicationDTO{},
		Ledger:       toLedgerDTO(result.Ledger),
		Status:       string(result.Status),
	}
	for _, a := range result.Applications {
		dto.Applications = append(dto.Applications, ApplicationDTO{
			DeliveryID: string(a.DeliveryID),
			Applied:    a.Applied.String(),
		})
	}
	writeJSON(w, http.StatusCreated, dto)
}

// DeferPayment marks a shop as paying tomorrow. Idempotent.
// POST /api/shops/{id}/defer
func (h *Handler) DeferPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))

	var req DeferRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	date, ok := h.parseDateOrToday(w, req.Date)
	if !ok {
		return
	}

	already, err := h.Service.MarkPayTomorrow(r.Context(), id, date, req.Note)
	if err != nil {
		writeServiceError(w, "Failed to defer payment", err)
		return
	}

	view, err := h.Service.ShopLedger(r.Context(), id, date)
	if err != nil {
		writeServiceError(w, "Failed to reconcile ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, DeferResponse{
		ShopID:        string(id),
		Date:          date.String(),
		AlreadyMarked: already,
		Status:        string(view.Status),
	})
}

// CreateAdjustment records manual pending debt or credit for a shop.
// POST /api/shops/{id}/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShopID(chi.URLParam(r, "id"))

	var req CreateAdjustmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	amount, ok := h.parseSignedAmount(w, req.Amount)
	if !ok {
		return
	}
	origin, ok := h.parseDateOrToday(w, req.OriginDate)
	if !ok {
		return
	}

	adj, err := h.Service.AddManualAdjustment(r.Context(), route.AdjustmentInput{
		ShopID:     id,
		Amount:     amount,
		OriginDate: origin,
		Note:       req.Note,
	})
	if err != nil {
		writeServiceError(w, "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(*adj))
}

// =============================================================================
// COLLECTION HANDLERS
// =============================================================================

// GetCollection returns the per-shop collection view for the day.
// GET /api/collection?date=YYYY-MM-DD
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	views, err := h.Service.CollectionView(r.Context(), asOf)
	if err != nil {
		writeServiceError(w, "Failed to build collection view", err)
		return
	}

	dtos := make([]ShopLedgerDTO, len(views))
	for i, v := range views {
		dtos[i] = toShopLedgerDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRouteStats returns the route dashboard totals.
// GET /api/route/stats?date=YYYY-MM-DD
func (h *Handler) GetRouteStats(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	stats, err := h.Service.RouteStats(r.Context(), asOf)
	if err != nil {
		writeServiceError(w, "Failed to compute route stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteStatsDTO(stats))
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// ListDeliveries returns the day's deliveries.
// GET /api/deliveries?date=YYYY-MM-DD
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	deliveries, err := h.Service.DeliveriesForDate(r.Context(), date)
	if err != nil {
		writeServiceError(w, "Failed to list deliveries", err)
		return
	}

	dtos := make([]DeliveryDTO, len(deliveries))
	for i, d := range deliveries {
		dtos[i] = toDeliveryDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDelivery records a delivery: lines are priced from the catalog and
// stock is decremented. POST /api/deliveries
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	date, ok := h.parseDateOrToday(w, req.Date)
	if !ok {
		return
	}

	lines := make([]route.DeliveryLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = route.DeliveryLineInput{
			ProductID: ledger.ProductID(l.ProductID),
			Quantity:  l.Quantity,
		}
	}

	d, err := h.Service.AddDelivery(r.Context(), route.DeliveryInput{
		ShopID:  ledger.ShopID(req.ShopID),
		StaffID: ledger.StaffID(req.StaffID),
		Date:    date,
		Lines:   lines,
		Note:    req.Note,
	})
	if err != nil {
		writeServiceError(w, "Failed to record delivery", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeliveryDTO(*d))
}

// DeleteDelivery logically deletes a delivery.
// DELETE /api/deliveries/{id}
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	id := ledger.DeliveryID(chi.URLParam(r, "id"))

	var req DeleteDeliveryRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	d, err := h.Service.DeleteDelivery(r.Context(), id, ledger.StaffID(req.DeletedBy), req.Reason)
	if err != nil {
		writeServiceError(w, "Failed to delete delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(*d))
}

// ListDeletedDeliveries returns the audit trail.
// GET /api/deliveries/deleted
func (h *Handler) ListDeletedDeliveries(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Service.DeletedDeliveries(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list deleted deliveries", err)
		return
	}

	dtos := make([]DeletedDeliveryDTO, len(deleted))
	for i, dd := range deleted {
		dtos[i] = DeletedDeliveryDTO{
			ID:        dd.ID,
			Delivery:  toDeliveryDTO(dd.Delivery),
			DeletedBy: string(dd.DeletedBy),
			Reason:    dd.Reason,
			DeletedAt: formatTime(dd.DeletedAt),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListProducts returns active products; ?all=true includes inactive.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	products, err := h.Service.ListProducts(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct creates or updates a product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req SaveProductRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	price, ok := h.parseAmount(w, req.UnitPrice)
	if !ok {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	p, err := h.Service.SaveProduct(r.Context(), ledger.Product{
		ID:        ledger.ProductID(req.ID),
		Name:      req.Name,
		UnitPrice: price,
		Active:    active,
	})
	if err != nil {
		writeServiceError(w, "Failed to save product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*p))
}

// ListStaff returns active staff; ?all=true includes inactive.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	staff, err := h.Service.ListStaff(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, "Failed to list staff", err)
		return
	}

	dtos := make([]StaffDTO, len(staff))
	for i, s := range staff {
		dtos[i] = toStaffDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStaff creates or updates a staff member.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req SaveStaffRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	s, err := h.Service.SaveStaff(r.Context(), ledger.Staff{
		ID:     ledger.StaffID(req.ID),
		Name:   req.Name,
		Phone:  req.Phone,
		Active: true,
	})
	if err != nil {
		writeServiceError(w, "Failed to save staff", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaffDTO(*s))
}

// GetStock returns all stock levels with low-stock flags.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.Service.StockLevels(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list stock", err)
		return
	}

	dtos := make([]StockLevelDTO, len(levels))
	for i, l := range levels {
		dtos[i] = toStockDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetStock sets a product's quantity and threshold.
// PUT /api/stock/{productId}
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	productID := ledger.ProductID(chi.URLParam(r, "productId"))

	var req SetStockRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	err := h.Service.SetStock(r.Context(), ledger.StockLevel{
		ProductID:         productID,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		writeServiceError(w, "Failed to set stock", err)
		return
	}
	writeJSON(w, http.StatusOK, StockLevelDTO{
		ProductID:         string(productID),
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		Low:               req.Quantity <= req.LowStockThreshold,
	})
}

// =============================================================================
// RESET AND REPORT HANDLERS
// =============================================================================

// ProcessReset closes the business day.
// POST /api/reset
func (h *Handler) ProcessReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	date, ok := h.parseDateOrToday(w, req.Date)
	if !ok {
		return
	}

	res, err := h.Service.ProcessDailyReset(r.Context(), date)
	if err != nil {
		writeServiceError(w, "Failed to process daily reset", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResultDTO{
		Date:               res.Date.String(),
		DeliveriesArchived: res.DeliveriesArchived,
	})
}

// PreviewReset reports what the reset would sweep.
// GET /api/reset/preview?date=YYYY-MM-DD
func (h *Handler) PreviewReset(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	preview, err := h.Service.PreviewDailyReset(r.Context(), date)
	if err != nil {
		writeServiceError(w, "Failed to preview reset", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetPreviewDTO{
		Date:           preview.Date.String(),
		DeliveryCount:  preview.DeliveryCount,
		TotalDelivered: preview.TotalDelivered.String(),
		UnpaidCarried:  preview.UnpaidCarried.String(),
	})
}

// GetSummary returns the daily report for any date.
// GET /api/reports/summary?date=YYYY-MM-DD
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	summary, err := h.Service.Summary(r.Context(), date)
	if err != nil {
		writeServiceError(w, "Failed to build summary", err)
		return
	}

	dto := SummaryDTO{
		Date:  summary.Date.String(),
		Stats: toRouteStatsDTO(summary.Stats),
		Shops: make([]ShopLedgerDTO, len(summary.Shops)),
	}
	for i, v := range summary.Shops {
		dto.Shops[i] = toShopLedgerDTO(v)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// REQUEST PARSING HELPERS
// =============================================================================

// decodeValid decodes the JSON body and runs struct validation. Writes the
// error response itself and returns false on failure.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// dateParam reads a YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string) (ledger.Date, bool) {
	return h.parseDateOrToday(w, r.URL.Query().Get(name))
}

func (h *Handler) parseDateOrToday(w http.ResponseWriter, raw string) (ledger.Date, bool) {
	if raw == "" {
		return h.Service.Today(), true
	}
	d, err := ledger.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return ledger.Date{}, false
	}
	return d, true
}

// parseAmount parses a positive decimal amount string.
func (h *Handler) parseAmount(w http.ResponseWriter, raw string) (ledger.Money, bool) {
	m, ok := h.parseSignedAmount(w, raw)
	if !ok {
		return ledger.Money{}, false
	}
	if !m.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return ledger.Money{}, false
	}
	return m, true
}

// parseSignedAmount parses any non-zero decimal amount string.
func (h *Handler) parseSignedAmount(w http.ResponseWriter, raw string) (ledger.Money, bool) {
	m := ledger.MoneyFromString(raw)
	if m.IsZero() {
		writeError(w, http.StatusBadRequest, "Invalid or zero amount", nil)
		return ledger.Money{}, false
	}
	return m, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	var stockErr *ledger.InsufficientStockError
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

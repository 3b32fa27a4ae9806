/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	route data for testing and demos. Each scenario creates shops, staff,
	products, stock, and a day's worth of deliveries and payments that
	demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-route:    Morning state - deliveries made, nothing collected yet
	mid-route:      Partial collections, one deferral, one anomaly-free mix
	carryover-debt: Prior-day unpaid deliveries carried as previous pending

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create products, staff, stock
 3. Create shops
 4. Record deliveries (and, for multi-day scenarios, run the daily reset)
 5. Optionally collect payments and mark deferrals

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mid-route"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - server.go: Scenario route registration
  - route/service.go: The operations scenarios drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/milkroute/ledger-engine/ledger"
	"github.com/milkroute/ledger-engine/route"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-route",
		Name:        "Fresh Route",
		Description: "Morning state: deliveries recorded, nothing collected yet",
	},
	{
		ID:          "mid-route",
		Name:        "Mid-Route",
		Description: "Partial collections, one full payment, one pay-tomorrow deferral",
	},
	{
		ID:          "carryover-debt",
		Name:        "Carryover Debt",
		Description: "Yesterday's unpaid deliveries carried as previous pending",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario wipes the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	if err := h.Service.ResetAll(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-route":
		err = h.loadFreshRouteScenario(ctx)
	case "mid-route":
		err = h.loadMidRouteScenario(ctx)
	case "carryover-debt":
		err = h.loadCarryoverDebtScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SHARED FIXTURES
// =============================================================================

// seedCatalog creates the demo staff, products, and van stock. Every
// scenario starts from the same catalog.
func (h *Handler) seedCatalog(ctx context.Context) error {
	staff := []ledger.Staff{
		{ID: "staff-ravi", Name: "Ravi", Phone: "9800000001", Active: true},
		{ID: "staff-meena", Name: "Meena", Phone: "9800000002", Active: true},
	}
	for _, st := range staff {
		if _, err := h.Service.SaveStaff(ctx, st); err != nil {
			return err
		}
	}

	products := []struct {
		p     ledger.Product
		stock int
		low   int
	}{
		{ledger.Product{ID: "milk-500", Name: "Milk 500ml", UnitPrice: ledger.MoneyFromString("25"), Active: true}, 200, 20},
		{ledger.Product{ID: "milk-1000", Name: "Milk 1L", UnitPrice: ledger.MoneyFromString("48"), Active: true}, 120, 15},
		{ledger.Product{ID: "curd-200", Name: "Curd 200g", UnitPrice: ledger.MoneyFromString("15"), Active: true}, 80, 10},
		{ledger.Product{ID: "paneer-200", Name: "Paneer 200g", UnitPrice: ledger.MoneyFromString("90"), Active: true}, 30, 5},
	}
	for _, entry := range products {
		if _, err := h.Service.SaveProduct(ctx, entry.p); err != nil {
			return err
		}
		err := h.Service.SetStock(ctx, ledger.StockLevel{
			ProductID:         entry.p.ID,
			Quantity:          entry.stock,
			LowStockThreshold: entry.low,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// seedShops creates the demo shops and returns their ids in order.
func (h *Handler) seedShops(ctx context.Context) ([]ledger.ShopID, error) {
	shops := []ledger.Shop{
		{ID: "shop-ganesh", Name: "Ganesh General Store", OwnerName: "Ganesh", Phone: "9810000001", RouteNumber: "R1", Active: true},
		{ID: "shop-lakshmi", Name: "Lakshmi Tea Stall", OwnerName: "Lakshmi", Phone: "9810000002", RouteNumber: "R1", Active: true},
		{ID: "shop-corner", Name: "Corner Bakery", OwnerName: "Joseph", Phone: "9810000003", RouteNumber: "R2", Active: true},
	}
	ids := make([]ledger.ShopID, len(shops))
	for i, shop := range shops {
		saved, err := h.Service.SaveShop(ctx, shop)
		if err != nil {
			return nil, err
		}
		ids[i] = saved.ID
	}
	return ids, nil
}

func (h *Handler) deliver(ctx context.Context, shopID ledger.ShopID, date ledger.Date, lines ...route.DeliveryLineInput) error {
	_, err := h.Service.AddDelivery(ctx, route.DeliveryInput{
		ShopID:  shopID,
		StaffID: "staff-ravi",
		Date:    date,
		Lines:   lines,
	})
	return err
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshRouteScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	shops, err := h.seedShops(ctx)
	if err != nil {
		return err
	}

	today := h.Service.Today()

	// Morning drops, nothing collected yet. Every shop classifies pending.
	if err := h.deliver(ctx, shops[0], today,
		route.DeliveryLineInput{ProductID: "milk-500", Quantity: 10},
		route.DeliveryLineInput{ProductID: "curd-200", Quantity: 4},
	); err != nil {
		return err
	}
	if err := h.deliver(ctx, shops[1], today,
		route.DeliveryLineInput{ProductID: "milk-1000", Quantity: 6},
	); err != nil {
		return err
	}
	return h.deliver(ctx, shops[2], today,
		route.DeliveryLineInput{ProductID: "milk-500", Quantity: 8},
		route.DeliveryLineInput{ProductID: "paneer-200", Quantity: 2},
	)
}

func (h *Handler) loadMidRouteScenario(ctx context.Context) error {
	if err := h.loadFreshRouteScenario(ctx); err != nil {
		return err
	}

	today := h.Service.Today()
	shops := []ledger.ShopID{"shop-ganesh", "shop-lakshmi", "shop-corner"}

	// Shop 1 pays in full: 10*25 + 4*15 = 310.
	_, err := h.Service.ProcessPayment(ctx, route.PaymentInput{
		ShopID:      shops[0],
		Amount:      ledger.MoneyFromString("310"),
		Date:        today,
		CollectedBy: "staff-ravi",
	})
	if err != nil {
		return err
	}

	// Shop 2 pays part of its 288: classifies partial.
	_, err = h.Service.ProcessPayment(ctx, route.PaymentInput{
		ShopID:      shops[1],
		Amount:      ledger.MoneyFromString("200"),
		Date:        today,
		CollectedBy: "staff-meena",
	})
	if err != nil {
		return err
	}

	// Shop 3 defers to tomorrow.
	_, err = h.Service.MarkPayTomorrow(ctx, shops[2], today, "owner at the market")
	return err
}

func (h *Handler) loadCarryoverDebtScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	shops, err := h.seedShops(ctx)
	if err != nil {
		return err
	}

	today := h.Service.Today()
	yesterday := today.AddDays(-1)

	// Yesterday's drops: one fully paid, one half paid, one untouched.
	if err := h.deliver(ctx, shops[0], yesterday,
		route.DeliveryLineInput{ProductID: "milk-500", Quantity: 8}, // 200
	); err != nil {
		return err
	}
	if err := h.deliver(ctx, shops[1], yesterday,
		route.DeliveryLineInput{ProductID: "milk-1000", Quantity: 5}, // 240
	); err != nil {
		return err
	}
	if err := h.deliver(ctx, shops[2], yesterday,
		route.DeliveryLineInput{ProductID: "paneer-200", Quantity: 3}, // 270
	); err != nil {
		return err
	}

	_, err = h.Service.ProcessPayment(ctx, route.PaymentInput{
		ShopID:      shops[0],
		Amount:      ledger.MoneyFromString("200"),
		Date:        yesterday,
		CollectedBy: "staff-ravi",
	})
	if err != nil {
		return err
	}
	_, err = h.Service.ProcessPayment(ctx, route.PaymentInput{
		ShopID:      shops[1],
		Amount:      ledger.MoneyFromString("120"),
		Date:        yesterday,
		CollectedBy: "staff-ravi",
	})
	if err != nil {
		return err
	}

	// Close yesterday: unpaid balances become previous pending.
	if _, err := h.Service.ProcessDailyReset(ctx, yesterday); err != nil {
		return err
	}

	// Manual adjustment from the paper ledger era, plus a fresh drop today.
	_, err = h.Service.AddManualAdjustment(ctx, route.AdjustmentInput{
		ShopID:     shops[2],
		Amount:     ledger.MoneyFromString("55"),
		OriginDate: yesterday.AddDays(-7),
		Note:       "balance from paper ledger",
	})
	if err != nil {
		return err
	}

	return h.deliver(ctx, shops[0], today,
		route.DeliveryLineInput{ProductID: "milk-500", Quantity: 10},
	)
}

/*
scenarios_test.go - Demo scenario loader tests

Loads each scenario through the API and checks the resulting route state
via the same endpoints a client would use.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
)

func loadScenario(t *testing.T, router *chi.Mux, id string) {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": id})
	if rec.Code != http.StatusOK {
		t.Fatalf("Load scenario %s: status %d, body %s", id, rec.Code, rec.Body.String())
	}
}

func TestListScenarios(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/scenarios", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("List scenarios: status %d", rec.Code)
	}
	list := decode[[]ScenarioDTO](t, rec)
	if len(list) != 3 {
		t.Errorf("Scenario count = %d, want 3", len(list))
	}
}

func TestLoadUnknownScenarioRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Unknown scenario: status %d, want 400", rec.Code)
	}
}

func TestFreshRouteScenario(t *testing.T) {
	router := newTestRouter(t)
	loadScenario(t, router, "fresh-route")

	rec := doJSON(t, router, "GET", "/api/collection", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Collection: status %d", rec.Code)
	}
	views := decode[[]ShopLedgerDTO](t, rec)
	if len(views) != 3 {
		t.Fatalf("Shops = %d, want 3", len(views))
	}
	for _, v := range views {
		if v.Status != "pending" {
			t.Errorf("Shop %s status = %s, want pending", v.Shop.Name, v.Status)
		}
		if v.Ledger.TodayPaid != "0" {
			t.Errorf("Shop %s today paid = %s, want 0", v.Shop.Name, v.Ledger.TodayPaid)
		}
	}

	// Stock was decremented by the deliveries: 200 - 10 - 8 = 182 of milk-500.
	rec = doJSON(t, router, "GET", "/api/stock", nil)
	for _, level := range decode[[]StockLevelDTO](t, rec) {
		if level.ProductID == "milk-500" && level.Quantity != 182 {
			t.Errorf("milk-500 stock = %d, want 182", level.Quantity)
		}
	}
}

func TestMidRouteScenario(t *testing.T) {
	router := newTestRouter(t)
	loadScenario(t, router, "mid-route")

	rec := doJSON(t, router, "GET", "/api/collection", nil)
	views := decode[[]ShopLedgerDTO](t, rec)

	byName := map[string]ShopLedgerDTO{}
	for _, v := range views {
		byName[v.Shop.Name] = v
	}

	if got := byName["Ganesh General Store"].Status; got != "paid" {
		t.Errorf("Full payer status = %s, want paid", got)
	}
	if got := byName["Lakshmi Tea Stall"].Status; got != "partial" {
		t.Errorf("Partial payer status = %s, want partial", got)
	}
	corner := byName["Corner Bakery"]
	if corner.Status != "pay_tomorrow" || !corner.Deferred {
		t.Errorf("Deferred shop status = %s deferred = %v, want pay_tomorrow/true", corner.Status, corner.Deferred)
	}
}

func TestCarryoverDebtScenario(t *testing.T) {
	router := newTestRouter(t)
	loadScenario(t, router, "carryover-debt")

	// Lakshmi owed 240 yesterday, paid 120, the reset swept the rest forward.
	rec := doJSON(t, router, "GET", "/api/shops/shop-lakshmi/ledger", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Ledger: status %d", rec.Code)
	}
	view := decode[ShopLedgerDTO](t, rec)
	if view.Ledger.PreviousPending != "120" {
		t.Errorf("Previous pending = %s, want 120", view.Ledger.PreviousPending)
	}
	if view.Ledger.TodayDelivered != "0" {
		t.Errorf("Today delivered = %s, want 0", view.Ledger.TodayDelivered)
	}

	// Corner Bakery carries yesterday's 270 plus a 55 paper-ledger balance.
	rec = doJSON(t, router, "GET", "/api/shops/shop-corner/ledger", nil)
	view = decode[ShopLedgerDTO](t, rec)
	if view.Ledger.PreviousPending != "325" {
		t.Errorf("Previous pending = %s, want 325", view.Ledger.PreviousPending)
	}

	// Current scenario endpoint reflects the load.
	rec = doJSON(t, router, "GET", "/api/scenarios/current", nil)
	current := decode[ScenarioDTO](t, rec)
	if current.ID != "carryover-debt" {
		t.Errorf("Current scenario = %s, want carryover-debt", current.ID)
	}
}

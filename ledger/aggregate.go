/*
aggregate.go - Route-wide rollups

PURPOSE:
  Rolls per-shop ledgers up into the dashboard totals: delivered, collected,
  pending, shops visited, completion percentage. Straightforward summation;
  the only care point is the empty route (0/0 must be 0%, never NaN).
*/
package ledger

// RouteStats are the dashboard totals for one day across a route.
type RouteStats struct {
	TotalDelivered Money
	TotalCollected Money
	TotalPending   Money
	ShopsVisited   int
	TotalShops     int
	Completion     float64 // percent, 0-100
}

// AggregateRoute sums ledgers into route totals. A shop counts as visited
// when anything was delivered to it today, regardless of payment status.
// totalShops is the active shop count for the route (the denominator of the
// completion percentage); it may exceed len(ledgers).
func AggregateRoute(ledgers []Ledger, totalShops int) RouteStats {
	stats := RouteStats{
		TotalDelivered: ZeroMoney(),
		TotalCollected: ZeroMoney(),
		TotalPending:   ZeroMoney(),
		TotalShops:     totalShops,
	}

	for _, l := range ledgers {
		stats.TotalDelivered = stats.TotalDelivered.Add(l.TodayDelivered)
		stats.TotalCollected = stats.TotalCollected.Add(l.TodayPaid)
		stats.TotalPending = stats.TotalPending.Add(l.TotalPending)
		if l.TodayDelivered.IsPositive() {
			stats.ShopsVisited++
		}
	}

	if totalShops > 0 {
		stats.Completion = float64(stats.ShopsVisited) / float64(totalShops) * 100
	}

	return stats
}

/*
scheduler_test.go - Reset scheduler lifecycle tests

The reset semantics themselves are covered by the route package; these
tests pin down the start/stop lifecycle.
*/
package api

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/milkroute/ledger-engine/ledger"
	"github.com/milkroute/ledger-engine/route"
	"github.com/milkroute/ledger-engine/store/sqlite"
)

func newTestScheduler(t *testing.T) *ResetScheduler {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	day, err := ledger.ParseDate("2025-06-10")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}
	svc := route.NewService(store,
		route.WithLogger(log),
		route.WithClock(func() ledger.Date { return day }),
	)
	return NewResetScheduler(svc, log)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	rs := newTestScheduler(t)
	rs.CheckInterval = time.Hour
	rs.CutoverHour = 0

	rs.Start()
	rs.Stop()
	rs.Stop() // second stop must be a no-op, not a panic
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	rs := newTestScheduler(t)
	rs.Stop()
}

func TestSchedulerDisabledDoesNotStart(t *testing.T) {
	rs := newTestScheduler(t)
	rs.Enabled = false

	rs.Start()
	rs.Stop()
}

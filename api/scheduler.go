/*
scheduler.go - Automated end-of-day reset

PURPOSE:
  Runs the daily reset automatically so the route does not depend on
  someone remembering to close the day. Periodically checks whether the
  previous business day is still open and, past the cutover hour,
  archives it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - After CutoverHour local time, closes every open day before today
  - Skips days already closed (tracked by the last reset date)
  - Manual POST /api/reset still works; the scheduler just catches the
    days nobody closed by hand

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - CutoverHour:   Hour of day after which yesterday is closed (default: 1)
  - Enabled:       Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewResetScheduler(svc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessReset endpoint (manual day close)
  - route/service.go: ProcessDailyReset
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/milkroute/ledger-engine/ledger"
	"github.com/milkroute/ledger-engine/route"
)

// ResetScheduler closes stale business days automatically.
type ResetScheduler struct {
	Service       *route.Service
	CheckInterval time.Duration
	CutoverHour   int
	Enabled       bool

	log       *logrus.Logger
	lastReset ledger.Date
	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewResetScheduler creates a new scheduler.
func NewResetScheduler(svc *route.Service, log *logrus.Logger) *ResetScheduler {
	return &ResetScheduler{
		Service:       svc,
		CheckInterval: 15 * time.Minute,
		CutoverHour:   1,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ResetScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("reset scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run(rs.ticker)

	rs.log.WithField("interval", rs.CheckInterval).Info("reset scheduler started")
}

// Stop stops the scheduler. Safe to call more than once, and before Start.
func (rs *ResetScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.ticker = nil
	close(rs.stop)
	rs.wg.Wait()
	rs.log.Info("reset scheduler stopped")
}

func (rs *ResetScheduler) run(ticker *time.Ticker) {
	defer rs.wg.Done()

	// Run immediately on start to catch a day left open over a restart.
	rs.checkAndClose()

	for {
		select {
		case <-ticker.C:
			rs.checkAndClose()
		case <-rs.stop:
			return
		}
	}
}

// checkAndClose archives the previous business day once the cutover hour
// has passed.
func (rs *ResetScheduler) checkAndClose() {
	now := time.Now()
	if now.Hour() < rs.CutoverHour {
		return
	}

	yesterday := rs.Service.Today().AddDays(-1)
	rs.mu.Lock()
	done := !rs.lastReset.IsZero() && rs.lastReset.AfterOrEqual(yesterday)
	rs.mu.Unlock()
	if done {
		return
	}

	res, err := rs.Service.ProcessDailyReset(context.Background(), yesterday)
	if err != nil {
		rs.log.WithError(err).WithField("date", yesterday).
			Error("automatic daily reset failed")
		return
	}

	rs.mu.Lock()
	rs.lastReset = yesterday
	rs.mu.Unlock()

	if res.DeliveriesArchived > 0 {
		rs.log.WithFields(logrus.Fields{
			"date":     yesterday,
			"archived": res.DeliveriesArchived,
		}).Info("automatic daily reset complete")
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *ResetScheduler) RunNow() {
	rs.checkAndClose()
}

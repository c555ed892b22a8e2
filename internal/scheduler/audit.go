// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// OverpaidLister finds reservations whose payments exceed their total.
type OverpaidLister interface {
	ListOverpaid(ctx context.Context) ([]repository.OverpaidReservation, error)
}

// LedgerAudit reports reservations with a negative balance.  Such rows
// should never exist; each one is logged at ERROR for an operator.
type LedgerAudit struct {
	store   OverpaidLister
	timeout time.Duration
}

func NewLedgerAudit(store OverpaidLister) *LedgerAudit {
	return &LedgerAudit{store: store, timeout: time.Minute}
}

// Run performs one audit pass and returns the number of violations found.
func (a *LedgerAudit) Run(ctx context.Context) (int, error) {
	logger.EnterMethod("LedgerAudit.Run")
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	logger.DatabaseCall("list_overpaid")
	rows, err := a.store.ListOverpaid(ctx)
	logger.DatabaseResult("list_overpaid", len(rows), err)
	if err != nil {
		logger.ExitMethodWithError("LedgerAudit.Run", err)
		return 0, err
	}
	for _, r := range rows {
		logger.ErrorContext(ctx, "ledger integrity violation: negative balance",
			"severity", "high", "reservation_id", r.ReservationID,
			"total", r.TotalAmount, "paid", r.TotalPaid, "balance", r.TotalAmount-r.TotalPaid)
	}
	if len(rows) == 0 {
		logger.Info("ledger audit clean")
	}
	logger.ExitMethod("LedgerAudit.Run", "violations", len(rows))
	return len(rows), nil
}

// Start schedules the audit on spec (standard five-field cron syntax) and
// returns the running cron.  Stop it on shutdown.
func Start(spec string, audit *LedgerAudit) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := audit.Run(context.Background()); err != nil {
			logger.Error("ledger audit failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

package sponsorship

import (
	"context"
	"sync"
	"time"

	"github.com/dujyo/gasengine/internal/app/storage"
	"github.com/dujyo/gasengine/internal/app/system"
	"github.com/dujyo/gasengine/pkg/logger"
)

// PeriodRoller pre-opens the budget row for each new period so the first
// sponsored request of a period does not pay the creation cost, and logs the
// rollover. Collection stays correct without it: LockBudget creates the row
// on demand.
type PeriodRoller struct {
	pool     *Pool
	ledger   storage.WalletLedger
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	last    string
}

var _ system.Service = (*PeriodRoller)(nil)

// NewPeriodRoller creates a roller checking for new periods every minute.
func NewPeriodRoller(pool *Pool, ledger storage.WalletLedger, log *logger.Logger) *PeriodRoller {
	if log == nil {
		log = logger.NewDefault("sponsorship-roller")
	}
	return &PeriodRoller{
		pool:     pool,
		ledger:   ledger,
		interval: time.Minute,
		log:      log,
	}
}

func (r *PeriodRoller) Name() string { return "sponsorship-roller" }

func (r *PeriodRoller) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.tick(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("sponsorship period roller started")
	return nil
}

func (r *PeriodRoller) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *PeriodRoller) tick(ctx context.Context) {
	periodID := r.pool.CurrentPeriodID()

	r.mu.Lock()
	seen := r.last == periodID
	r.mu.Unlock()
	if seen {
		return
	}

	ltx, err := r.ledger.Begin(ctx)
	if err != nil {
		r.log.WithError(err).Warn("open budget period failed")
		return
	}
	if _, err := ltx.LockBudget(ctx, periodID, r.pool.BudgetTotal()); err != nil {
		r.log.WithError(err).Warnf("lock budget for period %s failed", periodID)
		if rbErr := ltx.Rollback(); rbErr != nil {
			r.log.WithError(rbErr).Error("rollback after budget open failure")
		}
		return
	}
	if err := ltx.Commit(); err != nil {
		r.log.WithError(err).Warnf("commit budget period %s failed", periodID)
		return
	}

	r.mu.Lock()
	r.last = periodID
	r.mu.Unlock()
	r.log.WithField("period_id", periodID).Info("sponsorship budget period opened")
}

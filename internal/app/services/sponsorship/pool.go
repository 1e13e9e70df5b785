// Package sponsorship subsidizes fees for incentivized transaction kinds
// from a period-scoped budget.
package sponsorship

import (
	"context"
	"errors"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/sponsorship"
	"github.com/dujyo/gasengine/internal/app/storage"
	"github.com/dujyo/gasengine/pkg/logger"
)

// Outcome statuses.
const (
	StatusFullySponsored     = "fully_sponsored"
	StatusPartiallySponsored = "partially_sponsored"
	StatusNotEligible        = "not_eligible"
)

// Outcome is the result of a sponsorship attempt. An exhausted budget is not
// an error; it falls through to the direct-debit path.
type Outcome struct {
	Status       string `json:"status"`
	Sponsored    int64  `json:"sponsored"`
	RemainingDue int64  `json:"remaining_due"`
}

// Config declares eligibility and the budget of each period.
type Config struct {
	// EligibleKinds may be sponsored; every other kind is refused without
	// touching the budget.
	EligibleKinds []fee.TransactionKind `yaml:"eligible_kinds"`

	// PeriodDuration scopes the budget; periods shorter than an hour are
	// rounded up to an hour, zero defaults to daily.
	PeriodDuration time.Duration `yaml:"period_duration"`

	// BudgetTotal is the per-period budget in droplets.
	BudgetTotal int64 `yaml:"budget_total"`

	// PerPayerCap is the lifetime sponsored amount allowed per payer, in
	// droplets. Zero disables the cap.
	PerPayerCap int64 `yaml:"per_payer_cap"`
}

// DefaultConfig sponsors the stream-to-earn onboarding actions with a daily
// budget of 10,000 tokens and a 500 token lifetime cap per payer.
func DefaultConfig() Config {
	return Config{
		EligibleKinds:  []fee.TransactionKind{fee.KindStreamEarn, fee.KindUploadContent, fee.KindMintNFT, fee.KindClaimRewards},
		PeriodDuration: 24 * time.Hour,
		BudgetTotal:    10_000 * fee.TokenUnit,
		PerPayerCap:    500 * fee.TokenUnit,
	}
}

// Pool decides sponsorship and debits the period budget. The check and the
// decrement happen under the budget row lock of the caller's ledger
// transaction, so two concurrent requests can never both observe sufficient
// budget and overspend the cap.
type Pool struct {
	eligible map[fee.TransactionKind]bool
	period   time.Duration
	total    int64
	payerCap int64
	now      func() time.Time
	log      *logger.Logger
}

// New builds a pool from configuration.
func New(cfg Config, log *logger.Logger) *Pool {
	if log == nil {
		log = logger.NewDefault("sponsorship")
	}
	if cfg.PeriodDuration <= 0 {
		cfg.PeriodDuration = 24 * time.Hour
	}
	if cfg.PeriodDuration < time.Hour {
		cfg.PeriodDuration = time.Hour
	}
	eligible := make(map[fee.TransactionKind]bool, len(cfg.EligibleKinds))
	for _, kind := range cfg.EligibleKinds {
		eligible[kind] = true
	}
	return &Pool{
		eligible: eligible,
		period:   cfg.PeriodDuration,
		total:    cfg.BudgetTotal,
		payerCap: cfg.PerPayerCap,
		now:      time.Now,
		log:      log,
	}
}

// CurrentPeriodID returns the identifier of the period containing now.
// Daily periods use the date, sub-daily periods append the hour.
func (p *Pool) CurrentPeriodID() string {
	now := p.now().UTC()
	if p.period >= 24*time.Hour {
		return now.Format("2006-01-02")
	}
	return now.Truncate(p.period).Format("2006-01-02T15")
}

// BudgetTotal returns the configured per-period budget.
func (p *Pool) BudgetTotal() int64 { return p.total }

// Eligible reports whether a kind can be sponsored at all.
func (p *Pool) Eligible(kind fee.TransactionKind) bool { return p.eligible[kind] }

// TrySponsor attempts to cover amount droplets for payer inside the given
// ledger transaction. It atomically reads and decrements the current
// period's budget; outcomes follow the engine policy: full, partial with the
// shortfall, or not eligible.
func (p *Pool) TrySponsor(ctx context.Context, ltx storage.LedgerTx, payer string, kind fee.TransactionKind, amount int64) (Outcome, error) {
	if amount <= 0 || p.total <= 0 || !p.eligible[kind] {
		return Outcome{Status: StatusNotEligible, RemainingDue: amount}, nil
	}

	periodID := p.CurrentPeriodID()
	budget, err := ltx.LockBudget(ctx, periodID, p.total)
	if err != nil {
		return Outcome{}, err
	}

	if budget.Remaining == 0 {
		return Outcome{Status: StatusNotEligible, RemainingDue: amount}, nil
	}

	// The usage read happens under the budget row lock. A usage row that does
	// not exist yet cannot be locked, so without the budget lock two
	// concurrent first-time requests from the same payer would both read zero
	// and both pass the cap.
	if p.payerCap > 0 {
		used, err := ltx.PayerSponsoredTotal(ctx, payer)
		if err != nil {
			return Outcome{}, err
		}
		if used+amount > p.payerCap {
			return Outcome{Status: StatusNotEligible, RemainingDue: amount}, nil
		}
	}

	sponsored := amount
	if budget.Remaining < sponsored {
		sponsored = budget.Remaining
	}
	if err := ltx.DebitBudget(ctx, periodID, sponsored); err != nil {
		return Outcome{}, err
	}
	if err := ltx.AddPayerSponsored(ctx, payer, sponsored); err != nil {
		return Outcome{}, err
	}

	if sponsored == amount {
		return Outcome{Status: StatusFullySponsored, Sponsored: sponsored}, nil
	}
	return Outcome{Status: StatusPartiallySponsored, Sponsored: sponsored, RemainingDue: amount - sponsored}, nil
}

// Status returns the current period budget. A period nobody has drawn from
// yet reports the full configured total.
func (p *Pool) Status(ctx context.Context, store storage.SponsorshipStore) (sponsorship.Budget, error) {
	periodID := p.CurrentPeriodID()
	budget, err := store.GetBudget(ctx, periodID)
	if err != nil {
		var nf *fee.NotFoundError
		if errors.As(err, &nf) {
			return sponsorship.Budget{PeriodID: periodID, Total: p.total, Remaining: p.total}, nil
		}
		return sponsorship.Budget{}, err
	}
	return budget, nil
}

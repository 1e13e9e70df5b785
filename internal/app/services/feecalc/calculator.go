package feecalc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/pkg/logger"
)

// PriceOracle reports the current USD price of a token in micro-USD per
// whole token.
type PriceOracle interface {
	TokenPriceUSD(ctx context.Context, token string) (int64, error)
}

// StaticOracle serves fixed rates from configuration. Used for local
// development and tests; production wires a live feed.
type StaticOracle struct {
	mu    sync.RWMutex
	rates map[string]int64
}

// NewStaticOracle creates an oracle with the given micro-USD rates.
func NewStaticOracle(rates map[string]int64) *StaticOracle {
	copied := make(map[string]int64, len(rates))
	for token, rate := range rates {
		copied[strings.ToUpper(token)] = rate
	}
	return &StaticOracle{rates: copied}
}

// TokenPriceUSD returns the configured rate for a token.
func (o *StaticOracle) TokenPriceUSD(_ context.Context, token string) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rate, ok := o.rates[strings.ToUpper(token)]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no price for token %s", token)
	}
	return rate, nil
}

// SetRate updates a rate, for development tooling.
func (o *StaticOracle) SetRate(token string, rate int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rates[strings.ToUpper(token)] = rate
}

// Calculator prices transactions against the schedule and pins the oracle
// rates into each quote.
type Calculator struct {
	schedule  *Schedule
	oracle    PriceOracle
	primary   string
	secondary string
	log       *logger.Logger
}

// NewCalculator constructs a calculator for the given primary and secondary
// fee tokens.
func NewCalculator(schedule *Schedule, oracle PriceOracle, primaryToken, secondaryToken string, log *logger.Logger) *Calculator {
	if log == nil {
		log = logger.NewDefault("feecalc")
	}
	return &Calculator{
		schedule:  schedule,
		oracle:    oracle,
		primary:   primaryToken,
		secondary: secondaryToken,
		log:       log,
	}
}

// Schedule exposes the validated schedule for read-only consumers.
func (c *Calculator) Schedule() *Schedule { return c.schedule }

// Quote computes the fee for one transaction. txValue is the moved amount in
// droplets of the primary token and only matters for percentage-priced
// kinds. The multiplication order is fixed:
//
//	base × class_multiplier × (1 - tier_discount)
//
// then min/max bounds, then USD -> token conversion flooring toward zero.
func (c *Calculator) Quote(ctx context.Context, kind fee.TransactionKind, txValue int64, tier fee.UserTier, class fee.ContentClass) (fee.Quote, error) {
	entry, ok := c.schedule.Entry(kind)
	if !ok {
		// Unreachable when the schedule validated with a default rate;
		// kept as a guard for schedules that demand full coverage.
		return fee.Quote{}, fmt.Errorf("%w: no price entry for kind %s", fee.ErrConfigInvalid, kind)
	}

	primaryRate, err := c.oracle.TokenPriceUSD(ctx, c.primary)
	if err != nil {
		return fee.Quote{}, fmt.Errorf("price oracle %s: %w", c.primary, err)
	}
	secondaryRate, err := c.oracle.TokenPriceUSD(ctx, c.secondary)
	if err != nil {
		return fee.Quote{}, fmt.Errorf("price oracle %s: %w", c.secondary, err)
	}

	quote := fee.Quote{
		Kind:          kind,
		Class:         class,
		Tier:          tier,
		PrimaryRate:   primaryRate,
		SecondaryRate: secondaryRate,
	}
	if entry.Free {
		return quote, nil
	}

	usd := entry.FixedUSD
	if entry.PercentBps > 0 && txValue > 0 {
		valueUSD := fee.TokensToUSD(txValue, primaryRate)
		usd += fee.ApplyBps(valueUSD, entry.PercentBps)
	}

	usd = fee.ApplyBps(usd, c.schedule.MultiplierBps(class))
	usd = fee.ApplyBps(usd, 10_000-c.schedule.TierDiscountBps(tier))

	if entry.MinUSD > 0 && usd < entry.MinUSD {
		usd = entry.MinUSD
	}
	if entry.MaxUSD > 0 && usd > entry.MaxUSD {
		usd = entry.MaxUSD
	}

	quote.USDAmount = usd
	quote.TokenAmount = fee.USDToTokens(usd, primaryRate)
	return quote, nil
}

// PrimaryToken returns the token fees are collected in.
func (c *Calculator) PrimaryToken() string { return c.primary }

// SecondaryToken returns the token the auto-swap fallback converts from.
func (c *Calculator) SecondaryToken() string { return c.secondary }

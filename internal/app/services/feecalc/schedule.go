// Package feecalc computes USD-denominated gas fees and converts them to
// token amounts at the current oracle rate.
package feecalc

import (
	"fmt"
	"math"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
)

// Entry prices one transaction kind. Amounts are micro-USD; PercentBps is
// applied to the USD value of the transaction for value-based kinds.
type Entry struct {
	FixedUSD   int64 `yaml:"fixed_usd"`
	PercentBps int64 `yaml:"percent_bps"`
	MinUSD     int64 `yaml:"min_usd"`
	MaxUSD     int64 `yaml:"max_usd"`
	Free       bool  `yaml:"free"`
}

// Config is the fee schedule: per-kind prices, class multipliers and tier
// discounts. Loaded once at startup and immutable thereafter.
type Config struct {
	Entries map[fee.TransactionKind]Entry `yaml:"entries"`

	// DefaultFixedUSD prices kinds without an entry. Zero disables the
	// default, which makes full entry coverage mandatory.
	DefaultFixedUSD int64 `yaml:"default_fixed_usd"`

	Multipliers   map[fee.ContentClass]float64 `yaml:"multipliers"`
	TierDiscounts map[fee.UserTier]float64     `yaml:"tier_discounts"`
}

// DefaultConfig returns the platform fee table. Content actions are cheap
// and fixed, value-moving DEX actions are percentage-priced, social actions
// are free.
func DefaultConfig() Config {
	usd := func(dollars float64) int64 { return int64(math.Round(dollars * float64(fee.MicroUSD))) }

	return Config{
		Entries: map[fee.TransactionKind]Entry{
			fee.KindStreamEarn:    {Free: true},
			fee.KindUploadContent: {FixedUSD: usd(0.02)},
			fee.KindMintNFT:       {FixedUSD: usd(0.05)},
			fee.KindTransferNFT:   {FixedUSD: usd(0.001)},

			fee.KindSimpleTransfer:   {FixedUSD: usd(0.001)},
			fee.KindTransferWithData: {FixedUSD: usd(0.002)},
			fee.KindMultiSigTransfer: {FixedUSD: usd(0.005)},

			fee.KindDexSwap:         {PercentBps: 30, MinUSD: usd(0.01), MaxUSD: usd(10)},
			fee.KindAddLiquidity:    {FixedUSD: usd(0.02)},
			fee.KindRemoveLiquidity: {FixedUSD: usd(0.02)},

			fee.KindStake:        {FixedUSD: usd(0.02)},
			fee.KindUnstake:      {FixedUSD: usd(0.05), PercentBps: 100},
			fee.KindClaimRewards: {FixedUSD: usd(0.01)},

			fee.KindRegisterValidator: {FixedUSD: usd(0.1)},
			fee.KindProposeBlock:      {Free: true},
			fee.KindVote:              {FixedUSD: usd(0.001)},

			fee.KindFollow:  {Free: true},
			fee.KindComment: {Free: true},
			fee.KindLike:    {Free: true},
			fee.KindReview:  {FixedUSD: usd(0.005)},
		},
		DefaultFixedUSD: usd(0.001),
		Multipliers: map[fee.ContentClass]float64{
			fee.ClassCultural:       0.5,
			fee.ClassNormal:         1.0,
			fee.ClassPotentialAbuse: 5.0,
		},
		TierDiscounts: map[fee.UserTier]float64{
			fee.TierRegular:            0,
			fee.TierPremium:            0.5,
			fee.TierCreativeValidator:  0.5,
			fee.TierCommunityValidator: 0.25,
			fee.TierEconomicValidator:  0,
		},
	}
}

// Schedule is the validated, immutable form of Config. Multipliers and
// discounts are held in basis points so fee math stays in integers.
type Schedule struct {
	entries        map[fee.TransactionKind]Entry
	defaultFixed   int64
	multiplierBps  map[fee.ContentClass]int64
	tierDiscountBp map[fee.UserTier]int64
}

// NewSchedule validates a Config eagerly. Any violation is fatal at startup
// so pricing can never fail with a configuration error at request time.
func NewSchedule(cfg Config) (*Schedule, error) {
	if len(cfg.Entries) == 0 && cfg.DefaultFixedUSD <= 0 {
		return nil, fmt.Errorf("%w: schedule has no entries and no default rate", fee.ErrConfigInvalid)
	}
	if cfg.Multipliers == nil {
		cfg.Multipliers = DefaultConfig().Multipliers
	}
	if cfg.TierDiscounts == nil {
		cfg.TierDiscounts = DefaultConfig().TierDiscounts
	}

	for _, class := range []fee.ContentClass{fee.ClassCultural, fee.ClassNormal, fee.ClassPotentialAbuse} {
		m, ok := cfg.Multipliers[class]
		if !ok {
			return nil, fmt.Errorf("%w: missing multiplier for class %s", fee.ErrConfigInvalid, class)
		}
		if m <= 0 {
			return nil, fmt.Errorf("%w: multiplier for class %s must be positive, got %v", fee.ErrConfigInvalid, class, m)
		}
	}
	for tier, d := range cfg.TierDiscounts {
		if d < 0 || d >= 1 {
			return nil, fmt.Errorf("%w: tier discount for %s must be in [0, 1), got %v", fee.ErrConfigInvalid, tier, d)
		}
	}
	for kind, entry := range cfg.Entries {
		if entry.FixedUSD < 0 || entry.PercentBps < 0 || entry.MinUSD < 0 || entry.MaxUSD < 0 {
			return nil, fmt.Errorf("%w: negative amount in entry for kind %s", fee.ErrConfigInvalid, kind)
		}
		if entry.MaxUSD > 0 && entry.MinUSD > entry.MaxUSD {
			return nil, fmt.Errorf("%w: min above max in entry for kind %s", fee.ErrConfigInvalid, kind)
		}
	}

	multiplierBps := make(map[fee.ContentClass]int64, len(cfg.Multipliers))
	for class, m := range cfg.Multipliers {
		multiplierBps[class] = int64(math.Round(m * 10_000))
	}
	tierDiscountBp := make(map[fee.UserTier]int64, len(cfg.TierDiscounts))
	for tier, d := range cfg.TierDiscounts {
		tierDiscountBp[tier] = int64(math.Round(d * 10_000))
	}

	entries := make(map[fee.TransactionKind]Entry, len(cfg.Entries))
	for kind, entry := range cfg.Entries {
		entries[kind] = entry
	}

	return &Schedule{
		entries:        entries,
		defaultFixed:   cfg.DefaultFixedUSD,
		multiplierBps:  multiplierBps,
		tierDiscountBp: tierDiscountBp,
	}, nil
}

// Entry returns the schedule entry for a kind, falling back to the default
// rate for unknown kinds. The second return is false when the kind has no
// entry and no default exists.
func (s *Schedule) Entry(kind fee.TransactionKind) (Entry, bool) {
	if entry, ok := s.entries[kind]; ok {
		return entry, true
	}
	if s.defaultFixed > 0 {
		return Entry{FixedUSD: s.defaultFixed}, true
	}
	return Entry{}, false
}

// MultiplierBps returns the class multiplier in basis points.
func (s *Schedule) MultiplierBps(class fee.ContentClass) int64 {
	if bps, ok := s.multiplierBps[class]; ok {
		return bps
	}
	return 10_000
}

// TierDiscountBps returns the tier discount in basis points.
func (s *Schedule) TierDiscountBps(tier fee.UserTier) int64 {
	return s.tierDiscountBp[tier]
}

// Kinds returns every explicitly priced kind.
func (s *Schedule) Kinds() []fee.TransactionKind {
	kinds := make([]fee.TransactionKind, 0, len(s.entries))
	for kind := range s.entries {
		kinds = append(kinds, kind)
	}
	return kinds
}

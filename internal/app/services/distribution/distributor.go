// Package distribution splits collected fees between validators, treasury,
// liquidity pools and burn.
package distribution

import (
	"fmt"
	"math"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
)

// Policy declares the revenue split. The four shares must sum to 1.0 within
// epsilon or startup fails.
type Policy struct {
	ValidatorsShare   float64 `yaml:"validators_share" json:"validators_share"`
	TreasuryShare     float64 `yaml:"treasury_share" json:"treasury_share"`
	LiquidityShare    float64 `yaml:"liquidity_share" json:"liquidity_share"`
	BurnShare         float64 `yaml:"burn_share" json:"burn_share"`
	CreativeBonus     float64 `yaml:"creative_bonus" json:"creative_bonus"`
	ValidatorsAccount string  `yaml:"validators_account" json:"validators_account"`
	TreasuryAccount   string  `yaml:"treasury_account" json:"treasury_account"`
	LiquidityAccount  string  `yaml:"liquidity_account" json:"liquidity_account"`
	BurnAccount       string  `yaml:"burn_account" json:"burn_account"`
}

// Epsilon is the tolerance for the share-sum invariant.
const Epsilon = 0.001

// DefaultPolicy is the platform split: 40% validators, 30% treasury, 20%
// liquidity pools, 10% burn, with a 5% creative-validator bonus shifted from
// treasury to validators.
func DefaultPolicy() Policy {
	return Policy{
		ValidatorsShare:   0.40,
		TreasuryShare:     0.30,
		LiquidityShare:    0.20,
		BurnShare:         0.10,
		CreativeBonus:     0.05,
		ValidatorsAccount: "pot:validators",
		TreasuryAccount:   "pot:treasury",
		LiquidityAccount:  "pot:liquidity",
		BurnAccount:       "sink:burn",
	}
}

// Distributor applies a validated policy. Shares are held in basis points;
// the rounding remainder goes to the validators share so the components
// always sum exactly to the total.
type Distributor struct {
	policy      Policy
	treasuryBps int64
	liquidBps   int64
	burnBps     int64
	bonusBps    int64
}

// New validates the policy eagerly; an invalid split is a configuration bug
// and fails startup.
func New(policy Policy) (*Distributor, error) {
	sum := policy.ValidatorsShare + policy.TreasuryShare + policy.LiquidityShare + policy.BurnShare
	if math.Abs(sum-1.0) > Epsilon {
		return nil, fmt.Errorf("%w: distribution shares must sum to 1.0, got %v", fee.ErrConfigInvalid, sum)
	}
	for name, share := range map[string]float64{
		"validators": policy.ValidatorsShare,
		"treasury":   policy.TreasuryShare,
		"liquidity":  policy.LiquidityShare,
		"burn":       policy.BurnShare,
	} {
		if share < 0 {
			return nil, fmt.Errorf("%w: %s share is negative", fee.ErrConfigInvalid, name)
		}
	}
	if policy.CreativeBonus < 0 || policy.CreativeBonus > policy.TreasuryShare {
		return nil, fmt.Errorf("%w: creative bonus must be within the treasury share", fee.ErrConfigInvalid)
	}

	return &Distributor{
		policy:      policy,
		treasuryBps: int64(math.Round(policy.TreasuryShare * 10_000)),
		liquidBps:   int64(math.Round(policy.LiquidityShare * 10_000)),
		burnBps:     int64(math.Round(policy.BurnShare * 10_000)),
		bonusBps:    int64(math.Round(policy.CreativeBonus * 10_000)),
	}, nil
}

// Policy returns the validated policy.
func (d *Distributor) Policy() Policy { return d.policy }

// Distribute splits totalFee. For creative validators a bonus fraction of
// the fee moves from the treasury share to the validators share; it is never
// added on top.
func (d *Distributor) Distribute(totalFee int64, isCreativeValidator bool) (fee.DistributionResult, error) {
	if totalFee < 0 {
		return fee.DistributionResult{}, fmt.Errorf("%w: negative fee", fee.ErrInternalInvariant)
	}

	treasury := fee.ApplyBps(totalFee, d.treasuryBps)
	liquidity := fee.ApplyBps(totalFee, d.liquidBps)
	burn := fee.ApplyBps(totalFee, d.burnBps)
	validators := totalFee - treasury - liquidity - burn

	if isCreativeValidator {
		bonus := fee.ApplyBps(totalFee, d.bonusBps)
		if bonus > treasury {
			bonus = treasury
		}
		validators += bonus
		treasury -= bonus
	}

	result := fee.DistributionResult{
		Validators:     validators,
		Treasury:       treasury,
		LiquidityPools: liquidity,
		Burn:           burn,
		Total:          totalFee,
	}
	if !result.Verify() {
		return fee.DistributionResult{}, fmt.Errorf("%w: distribution components do not sum to total", fee.ErrInternalInvariant)
	}
	return result, nil
}

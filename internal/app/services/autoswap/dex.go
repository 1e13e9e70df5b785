// Package autoswap converts the secondary token into the primary token when
// a payer's primary balance cannot cover a fee.
package autoswap

import (
	"context"
	"fmt"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/services/feecalc"
)

// DexClient is the swap collaborator contract. The engine never looks inside
// the AMM; it only quotes and executes against this interface.
type DexClient interface {
	// QuoteSwap prices a swap that yields exactly amountOut of tokenOut.
	QuoteSwap(ctx context.Context, tokenIn, tokenOut string, amountOut int64) (fee.SwapOutcome, error)

	// ExecuteSwap performs a previously quoted swap.
	ExecuteSwap(ctx context.Context, quote fee.SwapOutcome) (fee.SwapOutcome, error)
}

// SimulatedDex prices swaps off the oracle rates plus a fixed fee, for local
// development and tests.
type SimulatedDex struct {
	oracle feecalc.PriceOracle
	feeBps int64
}

var _ DexClient = (*SimulatedDex)(nil)

// NewSimulatedDex creates a dex charging feeBps on the input amount.
func NewSimulatedDex(oracle feecalc.PriceOracle, feeBps int64) *SimulatedDex {
	if feeBps < 0 {
		feeBps = 0
	}
	return &SimulatedDex{oracle: oracle, feeBps: feeBps}
}

// QuoteSwap computes the input amount needed at oracle prices plus the dex
// fee.
func (d *SimulatedDex) QuoteSwap(ctx context.Context, tokenIn, tokenOut string, amountOut int64) (fee.SwapOutcome, error) {
	if amountOut <= 0 {
		return fee.SwapOutcome{}, fmt.Errorf("amount out must be positive")
	}
	inRate, err := d.oracle.TokenPriceUSD(ctx, tokenIn)
	if err != nil {
		return fee.SwapOutcome{}, err
	}
	outRate, err := d.oracle.TokenPriceUSD(ctx, tokenOut)
	if err != nil {
		return fee.SwapOutcome{}, err
	}

	// amountIn such that amountIn * inRate covers amountOut * outRate plus
	// the dex fee; +1 pays for the floor division.
	usdOut := fee.TokensToUSD(amountOut, outRate)
	usdIn := fee.ApplyBps(usdOut, 10_000+d.feeBps)
	amountIn := fee.USDToTokens(usdIn, inRate) + 1

	return fee.SwapOutcome{
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		PriceImpactBps: d.feeBps,
		QuotedAt:       time.Now().UTC(),
	}, nil
}

// ExecuteSwap fills the quote as priced.
func (d *SimulatedDex) ExecuteSwap(_ context.Context, quote fee.SwapOutcome) (fee.SwapOutcome, error) {
	return quote, nil
}

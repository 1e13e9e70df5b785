package autoswap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/storage"
	"github.com/dujyo/gasengine/pkg/logger"
)

// Config bounds the swap fallback.
type Config struct {
	// MaxSlippageBps is the tolerated excess of the quoted input over the
	// oracle-implied input, in basis points.
	MaxSlippageBps int64 `yaml:"max_slippage_bps"`

	// Timeout bounds each DEX call. The swap is the only external call in
	// fee collection; on timeout the collection aborts fail-closed.
	Timeout time.Duration `yaml:"timeout"`

	// DexFeeBps prices the simulated dex when no real client is wired.
	DexFeeBps int64 `yaml:"dex_fee_bps"`
}

// DefaultConfig tolerates 5% slippage and waits at most 5s per DEX call.
func DefaultConfig() Config {
	return Config{MaxSlippageBps: 500, Timeout: 5 * time.Second, DexFeeBps: 30}
}

// Handler covers a primary-token shortfall by swapping the payer's
// secondary tokens. All balance mutations happen inside the caller's ledger
// transaction; a failed swap leaves every balance untouched.
type Handler struct {
	dex       DexClient
	primary   string
	secondary string
	slippage  int64
	timeout   time.Duration
	log       *logger.Logger
}

// New builds a handler. Zero config fields fall back to the defaults.
func New(dex DexClient, primaryToken, secondaryToken string, cfg Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("autoswap")
	}
	defaults := DefaultConfig()
	if cfg.MaxSlippageBps <= 0 {
		cfg.MaxSlippageBps = defaults.MaxSlippageBps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Handler{
		dex:       dex,
		primary:   primaryToken,
		secondary: secondaryToken,
		slippage:  cfg.MaxSlippageBps,
		timeout:   cfg.Timeout,
		log:       log,
	}
}

// CoverShortfall swaps secondary tokens into exactly shortfall droplets of
// the primary token inside ltx. primaryRate and secondaryRate are the rates
// pinned in the fee quote; the quoted swap input is re-validated against
// them immediately before execution so a stale quote cannot overcharge.
func (h *Handler) CoverShortfall(ctx context.Context, ltx storage.LedgerTx, payer string, shortfall, primaryRate, secondaryRate int64) (fee.SwapOutcome, error) {
	if shortfall <= 0 {
		return fee.SwapOutcome{}, fmt.Errorf("%w: shortfall must be positive", fee.ErrInternalInvariant)
	}

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	quote, err := h.dex.QuoteSwap(callCtx, h.secondary, h.primary, shortfall)
	if err != nil {
		return fee.SwapOutcome{}, h.failClosed("quote swap", err)
	}
	if quote.AmountOut < shortfall {
		return fee.SwapOutcome{}, fmt.Errorf("dex quote covers %d of %d: %w", quote.AmountOut, shortfall, fee.ErrInsufficientFunds)
	}

	balance, err := ltx.LockBalance(ctx, payer, h.secondary)
	if err != nil {
		if fee.IsNotFound(err) {
			return fee.SwapOutcome{}, fee.ErrInsufficientFunds
		}
		return fee.SwapOutcome{}, err
	}
	if balance < quote.AmountIn {
		return fee.SwapOutcome{}, fmt.Errorf("secondary balance %d below swap input %d: %w", balance, quote.AmountIn, fee.ErrInsufficientFunds)
	}

	// Oracle-implied input at the pinned rates, padded by the tolerance.
	// Quotes go stale between request and execution; anything beyond the
	// tolerance aborts before any balance moves. The conversion rounds up so
	// a sub-droplet shortfall can never floor the bound to zero.
	impliedIn := fee.MulDivCeil(shortfall, primaryRate, secondaryRate)
	maxIn := fee.ApplyBps(impliedIn, 10_000+h.slippage)
	if maxIn <= 0 || quote.AmountIn > maxIn {
		return fee.SwapOutcome{}, fmt.Errorf("swap input %d above tolerated %d: %w", quote.AmountIn, maxIn, fee.ErrSlippageExceeded)
	}

	executed, err := h.dex.ExecuteSwap(callCtx, quote)
	if err != nil {
		return fee.SwapOutcome{}, h.failClosed("execute swap", err)
	}
	if executed.AmountOut < shortfall {
		return fee.SwapOutcome{}, fmt.Errorf("swap returned %d of %d: %w", executed.AmountOut, shortfall, fee.ErrSlippageExceeded)
	}

	ref := fmt.Sprintf("autoswap:%s", payer)
	if err := ltx.Debit(ctx, payer, h.secondary, wallet.EntrySwapOut, executed.AmountIn, ref); err != nil {
		return fee.SwapOutcome{}, err
	}
	if err := ltx.Credit(ctx, payer, h.primary, wallet.EntrySwapIn, executed.AmountOut, ref); err != nil {
		return fee.SwapOutcome{}, err
	}

	h.log.WithField("payer", payer).
		WithField("amount_in", executed.AmountIn).
		WithField("amount_out", executed.AmountOut).
		Info("auto-swap covered fee shortfall")
	return executed, nil
}

// failClosed maps DEX failures onto the recoverable taxonomy. A timed-out
// or failing DEX aborts the collection without mutating state.
func (h *Handler) failClosed(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s timed out: %w", op, fee.ErrSlippageExceeded)
	}
	return fmt.Errorf("%s: %v: %w", op, err, fee.ErrSlippageExceeded)
}

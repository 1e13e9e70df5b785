package autoswap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/services/feecalc"
	"github.com/dujyo/gasengine/internal/app/storage/memory"
)

func testOracle() *feecalc.StaticOracle {
	return feecalc.NewStaticOracle(map[string]int64{"DYO": 100_000, "DYS": 50_000})
}

func fundDYS(t *testing.T, store *memory.Store, payer string, amount int64) {
	t.Helper()
	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ltx.Credit(ctx, payer, "DYS", wallet.EntryDeposit, amount, "seed"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ltx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestCoverShortfallSwapsExactAmount(t *testing.T) {
	store := memory.New()
	fundDYS(t, store, "alice", 3*fee.TokenUnit)

	oracle := testOracle()
	handler := New(NewSimulatedDex(oracle, 30), "DYO", "DYS", Config{}, nil)

	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	outcome, err := handler.CoverShortfall(ctx, ltx, "alice", fee.TokenUnit, 100_000, 50_000)
	if err != nil {
		t.Fatalf("cover shortfall: %v", err)
	}
	if err := ltx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if outcome.AmountOut != fee.TokenUnit {
		t.Fatalf("amount out = %d, want exactly the shortfall %d", outcome.AmountOut, fee.TokenUnit)
	}
	// 1 DYO at $0.10 costs $0.10 of DYS at $0.05 = 2 DYS, plus the 0.3% dex
	// fee and the floor correction.
	if outcome.AmountIn != 200_600_001 {
		t.Fatalf("amount in = %d, want 200600001", outcome.AmountIn)
	}

	dyo, err := store.GetWallet(ctx, "alice", "DYO")
	if err != nil {
		t.Fatalf("get DYO wallet: %v", err)
	}
	if dyo.Balance != fee.TokenUnit {
		t.Fatalf("DYO balance = %d, want %d", dyo.Balance, fee.TokenUnit)
	}
	dys, err := store.GetWallet(ctx, "alice", "DYS")
	if err != nil {
		t.Fatalf("get DYS wallet: %v", err)
	}
	if dys.Balance != 3*fee.TokenUnit-outcome.AmountIn {
		t.Fatalf("DYS balance = %d, want %d", dys.Balance, 3*fee.TokenUnit-outcome.AmountIn)
	}
}

func TestCoverShortfallOneDroplet(t *testing.T) {
	store := memory.New()
	fundDYS(t, store, "alice", 1_000)

	handler := New(NewSimulatedDex(testOracle(), 30), "DYO", "DYS", Config{}, nil)

	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	outcome, err := handler.CoverShortfall(ctx, ltx, "alice", 1, 100_000, 50_000)
	if err != nil {
		t.Fatalf("cover shortfall: %v", err)
	}
	if err := ltx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// One droplet is below the micro-USD resolution; the quote is just the
	// floor correction and the tolerance bound rounds up instead of
	// collapsing to zero.
	if outcome.AmountIn != 1 || outcome.AmountOut != 1 {
		t.Fatalf("outcome = %+v, want one droplet in and out", outcome)
	}
	dys, err := store.GetWallet(ctx, "alice", "DYS")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if dys.Balance != 999 {
		t.Fatalf("DYS balance = %d, want 999", dys.Balance)
	}
}

func TestCoverShortfallInsufficientSecondary(t *testing.T) {
	store := memory.New()
	fundDYS(t, store, "alice", fee.TokenUnit) // needs ~2 DYS for 1 DYO

	handler := New(NewSimulatedDex(testOracle(), 30), "DYO", "DYS", Config{}, nil)

	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = handler.CoverShortfall(ctx, ltx, "alice", fee.TokenUnit, 100_000, 50_000)
	if !errors.Is(err, fee.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if err := ltx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	dys, err := store.GetWallet(ctx, "alice", "DYS")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if dys.Balance != fee.TokenUnit {
		t.Fatalf("DYS balance mutated to %d", dys.Balance)
	}
}

func TestCoverShortfallMissingSecondaryWallet(t *testing.T) {
	store := memory.New()
	handler := New(NewSimulatedDex(testOracle(), 30), "DYO", "DYS", Config{}, nil)

	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer ltx.Rollback()

	_, err = handler.CoverShortfall(ctx, ltx, "nobody", fee.TokenUnit, 100_000, 50_000)
	if !errors.Is(err, fee.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestCoverShortfallSlippageExceeded(t *testing.T) {
	store := memory.New()
	fundDYS(t, store, "alice", 3*fee.TokenUnit)

	// A 6% dex fee exceeds the 5% tolerance against the oracle-implied
	// input, so the handler aborts before any balance moves.
	handler := New(NewSimulatedDex(testOracle(), 600), "DYO", "DYS", Config{}, nil)

	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = handler.CoverShortfall(ctx, ltx, "alice", fee.TokenUnit, 100_000, 50_000)
	if !errors.Is(err, fee.ErrSlippageExceeded) {
		t.Fatalf("err = %v, want ErrSlippageExceeded", err)
	}
	if err := ltx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	dys, err := store.GetWallet(ctx, "alice", "DYS")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if dys.Balance != 3*fee.TokenUnit {
		t.Fatalf("DYS balance mutated to %d", dys.Balance)
	}
	if _, err := store.GetWallet(ctx, "alice", "DYO"); !fee.IsNotFound(err) {
		t.Fatalf("DYO wallet err = %v, want not found", err)
	}
}

type blockingDex struct{}

func (blockingDex) QuoteSwap(ctx context.Context, tokenIn, tokenOut string, amountOut int64) (fee.SwapOutcome, error) {
	<-ctx.Done()
	return fee.SwapOutcome{}, ctx.Err()
}

func (blockingDex) ExecuteSwap(ctx context.Context, quote fee.SwapOutcome) (fee.SwapOutcome, error) {
	<-ctx.Done()
	return fee.SwapOutcome{}, ctx.Err()
}

func TestCoverShortfallDexTimeoutFailsClosed(t *testing.T) {
	store := memory.New()
	fundDYS(t, store, "alice", 3*fee.TokenUnit)

	handler := New(blockingDex{}, "DYO", "DYS", Config{Timeout: 10 * time.Millisecond}, nil)

	ctx := context.Background()
	ltx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer ltx.Rollback()

	_, err = handler.CoverShortfall(ctx, ltx, "alice", fee.TokenUnit, 100_000, 50_000)
	if !errors.Is(err, fee.ErrSlippageExceeded) {
		t.Fatalf("err = %v, want ErrSlippageExceeded on timeout", err)
	}
}

func TestCoverShortfallRejectsNonPositiveShortfall(t *testing.T) {
	store := memory.New()
	handler := New(NewSimulatedDex(testOracle(), 30), "DYO", "DYS", Config{}, nil)

	ltx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer ltx.Rollback()

	if _, err := handler.CoverShortfall(context.Background(), ltx, "alice", 0, 100_000, 50_000); !errors.Is(err, fee.ErrInternalInvariant) {
		t.Fatalf("err = %v, want ErrInternalInvariant", err)
	}
}

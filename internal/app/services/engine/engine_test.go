package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/services/autoswap"
	"github.com/dujyo/gasengine/internal/app/services/classifier"
	"github.com/dujyo/gasengine/internal/app/services/distribution"
	"github.com/dujyo/gasengine/internal/app/services/feecalc"
	"github.com/dujyo/gasengine/internal/app/services/sponsorship"
	"github.com/dujyo/gasengine/internal/app/storage/memory"
)

type fixture struct {
	engine  *Engine
	store   *memory.Store
	tracker *classifier.ActivityTracker
	pool    *sponsorship.Pool
}

// Rates: $0.10 per DYO, $0.05 per DYS.
func newFixture(t *testing.T, poolCfg sponsorship.Config) *fixture {
	t.Helper()

	schedule, err := feecalc.NewSchedule(feecalc.DefaultConfig())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	dist, err := distribution.New(distribution.DefaultPolicy())
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}

	oracle := feecalc.NewStaticOracle(map[string]int64{"DYO": 100_000, "DYS": 50_000})
	calc := feecalc.NewCalculator(schedule, oracle, "DYO", "DYS", nil)
	tracker := classifier.NewActivityTracker(time.Hour)
	pool := sponsorship.New(poolCfg, nil)
	swapper := autoswap.New(autoswap.NewSimulatedDex(oracle, 30), "DYO", "DYS", autoswap.Config{}, nil)

	store := memory.New()
	return &fixture{
		engine:  New(store, classifier.New(classifier.Config{}), tracker, calc, pool, swapper, dist, nil),
		store:   store,
		tracker: tracker,
		pool:    pool,
	}
}

func noSponsorship() sponsorship.Config {
	return sponsorship.Config{EligibleKinds: nil, BudgetTotal: 0}
}

func (f *fixture) fund(t *testing.T, address, token string, amount int64) {
	t.Helper()
	ctx := context.Background()
	ltx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ltx.Credit(ctx, address, token, wallet.EntryDeposit, amount, "seed"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ltx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, address, token string) int64 {
	t.Helper()
	acct, err := f.store.GetWallet(context.Background(), address, token)
	if err != nil {
		if fee.IsNotFound(err) {
			return 0
		}
		t.Fatalf("get wallet: %v", err)
	}
	return acct.Balance
}

func TestQuoteIsIdempotent(t *testing.T) {
	f := newFixture(t, noSponsorship())
	req := Request{Payer: "alice", Kind: fee.KindUploadContent, Tier: fee.TierRegular}

	first, err := f.engine.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	second, err := f.engine.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if first != second {
		t.Fatalf("quotes differ: %+v vs %+v", first, second)
	}

	// upload_content is cultural: $0.02 halved to $0.01 = 0.1 DYO.
	if first.Class != fee.ClassCultural || first.TokenAmount != 10_000_000 {
		t.Fatalf("quote = %+v, want cultural 10000000 droplets", first)
	}

	// Quoting never mutates: no receipts, no activity.
	if rcpts, _ := f.store.ListReceipts(context.Background(), "alice"); len(rcpts) != 0 {
		t.Fatalf("quote persisted %d receipts", len(rcpts))
	}
	if count := f.tracker.Count("alice", fee.KindUploadContent); count != 0 {
		t.Fatalf("quote recorded activity: %d", count)
	}
}

func TestQuoteEscalatesHighFrequency(t *testing.T) {
	f := newFixture(t, noSponsorship())

	for i := 0; i < 51; i++ {
		f.tracker.Record("alice", fee.KindUploadContent)
	}
	q, err := f.engine.Quote(context.Background(), Request{Payer: "alice", Kind: fee.KindUploadContent, Tier: fee.TierRegular})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Class != fee.ClassPotentialAbuse {
		t.Fatalf("class = %s, want potential_abuse", q.Class)
	}
	// 5x the $0.02 base instead of the cultural half.
	if q.USDAmount != 100_000 {
		t.Fatalf("usd = %d, want 100000", q.USDAmount)
	}
}

func TestCollectFreeKind(t *testing.T) {
	f := newFixture(t, noSponsorship())

	rcpt, err := f.engine.Collect(context.Background(), Request{Payer: "alice", Kind: fee.KindFollow, Tier: fee.TierRegular})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if rcpt.TokenAmount != 0 || rcpt.USDAmount != 0 {
		t.Fatalf("free receipt = %+v", rcpt)
	}
	if rcpt.ID == "" {
		t.Fatal("receipt must have an id")
	}

	stored, err := f.store.GetReceipt(context.Background(), rcpt.ID)
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if stored.Payer != "alice" {
		t.Fatalf("stored receipt = %+v", stored)
	}
	if count := f.tracker.Count("alice", fee.KindFollow); count != 1 {
		t.Fatalf("activity = %d, want 1", count)
	}
}

func TestCollectDirectDebitAndDistribution(t *testing.T) {
	f := newFixture(t, noSponsorship())
	f.fund(t, "alice", "DYO", 5_000_000)

	// simple_transfer is $0.001 = 0.01 DYO = 1,000,000 droplets.
	rcpt, err := f.engine.Collect(context.Background(), Request{Payer: "alice", Kind: fee.KindSimpleTransfer, Tier: fee.TierRegular})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if rcpt.TokenAmount != 1_000_000 {
		t.Fatalf("fee = %d, want 1000000", rcpt.TokenAmount)
	}
	if rcpt.SponsoredAmount != 0 || rcpt.SwappedAmount != 0 {
		t.Fatalf("receipt = %+v, want plain debit", rcpt)
	}
	if !rcpt.Distribution.Verify() || rcpt.Distribution.Total != 1_000_000 {
		t.Fatalf("distribution = %+v", rcpt.Distribution)
	}

	if got := f.balance(t, "alice", "DYO"); got != 4_000_000 {
		t.Fatalf("payer balance = %d, want 4000000", got)
	}
	if got := f.balance(t, "pot:validators", "DYO"); got != 400_000 {
		t.Fatalf("validators pot = %d, want 400000", got)
	}
	if got := f.balance(t, "pot:treasury", "DYO"); got != 300_000 {
		t.Fatalf("treasury pot = %d, want 300000", got)
	}
	if got := f.balance(t, "pot:liquidity", "DYO"); got != 200_000 {
		t.Fatalf("liquidity pot = %d, want 200000", got)
	}
	if got := f.balance(t, "sink:burn", "DYO"); got != 100_000 {
		t.Fatalf("burn sink = %d, want 100000", got)
	}
}

func TestCollectCreativeValidatorBonus(t *testing.T) {
	f := newFixture(t, noSponsorship())
	f.fund(t, "alice", "DYO", 5_000_000)

	rcpt, err := f.engine.Collect(context.Background(), Request{
		Payer: "alice", Kind: fee.KindSimpleTransfer, Tier: fee.TierRegular, IsCreativeValidator: true,
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if rcpt.Distribution.Validators != 450_000 || rcpt.Distribution.Treasury != 250_000 {
		t.Fatalf("distribution = %+v, want 45/25 split", rcpt.Distribution)
	}
}

func TestCollectFullySponsored(t *testing.T) {
	f := newFixture(t, sponsorship.Config{
		EligibleKinds: []fee.TransactionKind{fee.KindUploadContent},
		BudgetTotal:   100_000_000,
	})

	// The payer has no wallet at all; the pool covers the whole fee.
	rcpt, err := f.engine.Collect(context.Background(), Request{Payer: "alice", Kind: fee.KindUploadContent, Tier: fee.TierRegular})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if rcpt.SponsoredAmount != rcpt.TokenAmount || rcpt.TokenAmount != 10_000_000 {
		t.Fatalf("receipt = %+v, want fully sponsored 10000000", rcpt)
	}
	if got := f.balance(t, "alice", "DYO"); got != 0 {
		t.Fatalf("payer balance = %d, want net zero", got)
	}

	// The subsidy is visible on the payer's ledger: a sponsor credit for the
	// covered amount and a debit for the full fee.
	entries, err := f.store.ListEntries(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var sponsorOK, debitOK bool
	for _, entry := range entries {
		switch entry.Type {
		case wallet.EntrySponsor:
			sponsorOK = entry.Amount == 10_000_000
		case wallet.EntryDebit:
			debitOK = entry.Amount == -10_000_000
		}
	}
	if !sponsorOK || !debitOK {
		t.Fatalf("entries = %+v, want sponsor credit and full debit", entries)
	}

	budget, err := f.store.GetBudget(context.Background(), f.pool.CurrentPeriodID())
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if budget.Remaining != 90_000_000 {
		t.Fatalf("budget remaining = %d, want 90000000", budget.Remaining)
	}
}

func TestCollectPartialSponsorshipComposesWithSwap(t *testing.T) {
	f := newFixture(t, sponsorship.Config{
		EligibleKinds: []fee.TransactionKind{fee.KindUploadContent},
		BudgetTotal:   4_000_000,
	})
	f.fund(t, "alice", "DYS", 20_000_000)

	// Fee 10,000,000; the pool covers 4,000,000 and the remaining 6,000,000
	// comes from a DYS swap because the payer holds no DYO.
	rcpt, err := f.engine.Collect(context.Background(), Request{Payer: "alice", Kind: fee.KindUploadContent, Tier: fee.TierRegular})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if rcpt.SponsoredAmount != 4_000_000 {
		t.Fatalf("sponsored = %d, want 4000000", rcpt.SponsoredAmount)
	}
	if rcpt.SwappedAmount != 12_036_001 {
		t.Fatalf("swapped DYS = %d, want 12036001", rcpt.SwappedAmount)
	}

	// The swap minted exactly the shortfall, the debit consumed it all.
	if got := f.balance(t, "alice", "DYO"); got != 0 {
		t.Fatalf("DYO balance = %d, want 0", got)
	}
	if got := f.balance(t, "alice", "DYS"); got != 20_000_000-12_036_001 {
		t.Fatalf("DYS balance = %d, want %d", got, 20_000_000-12_036_001)
	}
}

func TestCollectSwapsOneDropletShortfall(t *testing.T) {
	f := newFixture(t, noSponsorship())
	f.fund(t, "alice", "DYO", 999_999) // one droplet short of the 1,000,000 fee
	f.fund(t, "alice", "DYS", 1_000_000)

	rcpt, err := f.engine.Collect(context.Background(), Request{Payer: "alice", Kind: fee.KindSimpleTransfer, Tier: fee.TierRegular})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// One droplet of DYO is below the micro-USD resolution, so the dex quote
	// is just the floor correction; the tolerance bound must not collapse to
	// zero for it.
	if rcpt.SwappedAmount != 1 {
		t.Fatalf("swapped = %d, want 1 droplet of DYS", rcpt.SwappedAmount)
	}
	if got := f.balance(t, "alice", "DYO"); got != 0 {
		t.Fatalf("DYO balance = %d, want 0", got)
	}
	if got := f.balance(t, "alice", "DYS"); got != 999_999 {
		t.Fatalf("DYS balance = %d, want 999999", got)
	}
}

func TestCollectInsufficientFundsRollsBack(t *testing.T) {
	f := newFixture(t, noSponsorship())
	f.fund(t, "alice", "DYO", 500_000) // half the 1,000,000 fee
	f.fund(t, "alice", "DYS", 1_000)   // nowhere near enough to swap

	_, err := f.engine.Collect(context.Background(), Request{Payer: "alice", Kind: fee.KindSimpleTransfer, Tier: fee.TierRegular})
	if !errors.Is(err, fee.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// Bit-identical state: balances kept, nothing distributed, no receipt,
	// no activity recorded.
	if got := f.balance(t, "alice", "DYO"); got != 500_000 {
		t.Fatalf("DYO balance = %d, want 500000", got)
	}
	if got := f.balance(t, "alice", "DYS"); got != 1_000 {
		t.Fatalf("DYS balance = %d, want 1000", got)
	}
	if got := f.balance(t, "pot:validators", "DYO"); got != 0 {
		t.Fatalf("validators pot = %d, want 0", got)
	}
	if rcpts, _ := f.store.ListReceipts(context.Background(), "alice"); len(rcpts) != 0 {
		t.Fatalf("found %d receipts after failed collection", len(rcpts))
	}
	if count := f.tracker.Count("alice", fee.KindSimpleTransfer); count != 0 {
		t.Fatalf("failed collection recorded activity: %d", count)
	}
}

func TestCollectRequiresPayer(t *testing.T) {
	f := newFixture(t, noSponsorship())
	if _, err := f.engine.Collect(context.Background(), Request{Kind: fee.KindSimpleTransfer}); err == nil {
		t.Fatal("expected error for missing payer")
	}
}
